package sourceclient

import "strconv"

// brazilianStates lists the 26 state abbreviations, used to generate the
// per-state tribunal code families below; the federal district's codes
// (TJDFT, TRE-DF) are added separately.
var brazilianStates = []string{
	"AC", "AL", "AP", "AM", "BA", "CE", "ES", "GO",
	"MA", "MT", "MS", "MG", "PA", "PB", "PR", "PE",
	"PI", "RJ", "RN", "RS", "RO", "RR", "SC", "SP",
	"SE", "TO",
}

// hardcodedTribunais is the fallback list of well-known tribunal codes,
// unioned with whatever the comunicacao/tribunal API reports. Federal and
// superior courts, then one justice-court code per state (plus the
// federal district and the three states that run a separate military
// justice), then labor and electoral courts by region/state.
var hardcodedTribunais = buildHardcodedTribunais()

func buildHardcodedTribunais() []string {
	codes := []string{
		"CJF", "PJeCor", "SEEU",
		"TRF1", "TRF2", "TRF3", "TRF4", "TRF5", "TRF6",
		"STF", "STJ", "TST", "TSE", "STM", "CNJ",
		"TJDFT",
	}

	for _, state := range brazilianStates {
		codes = append(codes, "TJ"+state)
	}
	// Military justice is organized separately only in these three states.
	codes = append(codes, "TJMMG", "TJMRS", "TJMSP")

	for i := 1; i <= 24; i++ {
		codes = append(codes, "TRT"+strconv.Itoa(i))
	}

	codes = append(codes, "TRE-DF")
	for _, state := range brazilianStates {
		codes = append(codes, "TRE-"+state)
	}

	return codes
}
