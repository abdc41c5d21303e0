// Package config provides configuration management for djen-backup.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (DJEN_*)
// 3. Project config (.djen/config.yaml in cwd)
// 4. Home config (~/.djen/config.yaml)
// 5. Defaults
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all djen-backup configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// SourceBaseURL is the DJEN publication proxy base URL.
	SourceBaseURL string `yaml:"source_base_url" json:"source_base_url"`

	// StateDir holds the two JSON-persisted state caches (IA-mirror state,
	// backfill progress).
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// WindowDays is the scan mode's recent-date window size.
	WindowDays int `yaml:"window_days" json:"window_days"`

	// Workers is the concurrency of the item/tribunal worker pool.
	Workers int `yaml:"workers" json:"workers"`

	// DeadlineMinutes bounds how long a single run may keep starting new work.
	DeadlineMinutes int `yaml:"deadline_minutes" json:"deadline_minutes"`

	// MaxItems caps the number of items (scan) or dates per tribunal
	// (backfill) processed in a single run. 0 means unlimited.
	MaxItems int `yaml:"max_items" json:"max_items"`

	// StartDate and LowerBound are ISO date strings (YYYY-MM-DD); empty
	// means "compute the mode-specific default at call time".
	StartDate  string `yaml:"start_date" json:"start_date"`
	LowerBound string `yaml:"lower_bound" json:"lower_bound"`

	// ForceRecheck skips the mirror fast path and re-queries archive
	// metadata for every date in the window.
	ForceRecheck bool `yaml:"force_recheck" json:"force_recheck"`

	// RatePerSecond paces outbound HTTP calls; 0 means unlimited.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput          = "table"
	defaultSourceBaseURL   = "https://djen-proxy-mhgmawcn3a-rj.a.run.app"
	defaultStateDirName    = ".djen/state"
	defaultWindowDays      = 7
	defaultWorkers         = 1
	defaultDeadlineMinutes = 45
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:          defaultOutput,
		SourceBaseURL:   defaultSourceBaseURL,
		StateDir:        defaultStateDirName,
		WindowDays:      defaultWindowDays,
		Workers:         defaultWorkers,
		DeadlineMinutes: defaultDeadlineMinutes,
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	if homeConfig, _ := loadFromPath(homeConfigPath()); homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	if projectConfig, _ := loadFromPath(projectConfigPath()); projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".djen", "config.yaml")
}

func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("DJEN_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".djen", "config.yaml")
}

func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides. DJEN_PROXY_URL is kept
// as the source base URL's override name, matching the original CLI's env
// var; every other field follows the DJEN_* naming convention.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("DJEN_PROXY_URL"); v != "" {
		cfg.SourceBaseURL = v
	}
	if v := os.Getenv("DJEN_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("DJEN_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("DJEN_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("DJEN_FORCE_RECHECK"); v == "true" || v == "1" {
		cfg.ForceRecheck = true
	}
	if v, ok := getEnvInt("DJEN_WINDOW_DAYS"); ok {
		cfg.WindowDays = v
	}
	if v, ok := getEnvInt("DJEN_WORKERS"); ok {
		cfg.Workers = v
	}
	if v, ok := getEnvInt("DJEN_DEADLINE_MINUTES"); ok {
		cfg.DeadlineMinutes = v
	}
	if v, ok := getEnvInt("DJEN_MAX_ITEMS"); ok {
		cfg.MaxItems = v
	}
	if v := os.Getenv("DJEN_START_DATE"); v != "" {
		cfg.StartDate = v
	}
	if v := os.Getenv("DJEN_LOWER_BOUND"); v != "" {
		cfg.LowerBound = v
	}
	if v, ok := getEnvFloat("DJEN_RATE_PER_SECOND"); ok {
		cfg.RatePerSecond = v
	}
	return cfg
}

// merge merges src into dst, with non-zero src values taking precedence.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.SourceBaseURL != "" {
		dst.SourceBaseURL = src.SourceBaseURL
	}
	if src.StateDir != "" {
		dst.StateDir = src.StateDir
	}
	if src.WindowDays != 0 {
		dst.WindowDays = src.WindowDays
	}
	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
	if src.DeadlineMinutes != 0 {
		dst.DeadlineMinutes = src.DeadlineMinutes
	}
	if src.MaxItems != 0 {
		dst.MaxItems = src.MaxItems
	}
	if src.StartDate != "" {
		dst.StartDate = src.StartDate
	}
	if src.LowerBound != "" {
		dst.LowerBound = src.LowerBound
	}
	if src.ForceRecheck {
		dst.ForceRecheck = true
	}
	if src.RatePerSecond != 0 {
		dst.RatePerSecond = src.RatePerSecond
	}
	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.djen/config.yaml"
	SourceProject Source = ".djen/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvString(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvFloat(key string) (float64, bool) {
	v, ok := getEnvString(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// ResolvedConfig shows the subset of config values worth surfacing with
// their source for operator-facing diagnostics.
type ResolvedConfig struct {
	SourceBaseURL resolved `json:"source_base_url"`
	StateDir      resolved `json:"state_dir"`
	WindowDays    resolved `json:"window_days"`
	Workers       resolved `json:"workers"`
	Verbose       resolved `json:"verbose"`
}

func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

func resolveIntField(home, project, env, flag, def int) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != 0 {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != 0 {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != 0 {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != 0 {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// Resolve returns configuration with source tracking, for a `djen-backup
// status` or config-inspection display. Precedence: flags > env > project >
// home > defaults.
func Resolve(flagWorkers int, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeSourceURL, homeStateDir string
	var homeWindowDays, homeWorkers int
	if homeConfig != nil {
		homeSourceURL = homeConfig.SourceBaseURL
		homeStateDir = homeConfig.StateDir
		homeWindowDays = homeConfig.WindowDays
		homeWorkers = homeConfig.Workers
	}

	var projectSourceURL, projectStateDir string
	var projectWindowDays, projectWorkers int
	if projectConfig != nil {
		projectSourceURL = projectConfig.SourceBaseURL
		projectStateDir = projectConfig.StateDir
		projectWindowDays = projectConfig.WindowDays
		projectWorkers = projectConfig.Workers
	}

	envSourceURL, _ := getEnvString("DJEN_PROXY_URL")
	envStateDir, _ := getEnvString("DJEN_STATE_DIR")
	envWindowDays, _ := getEnvInt("DJEN_WINDOW_DAYS")
	envWorkers, _ := getEnvInt("DJEN_WORKERS")
	envVerbose := os.Getenv("DJEN_VERBOSE") == "true" || os.Getenv("DJEN_VERBOSE") == "1"

	rc := &ResolvedConfig{
		SourceBaseURL: resolveStringField(homeSourceURL, projectSourceURL, envSourceURL, "", defaultSourceBaseURL),
		StateDir:      resolveStringField(homeStateDir, projectStateDir, envStateDir, "", defaultStateDirName),
		WindowDays:    resolveIntField(homeWindowDays, projectWindowDays, envWindowDays, 0, defaultWindowDays),
		Workers:       resolveIntField(homeWorkers, projectWorkers, envWorkers, flagWorkers, defaultWorkers),
		Verbose:       resolved{Value: false, Source: SourceDefault},
	}

	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}

// ErrCredentialsNotFound is returned by ResolveIAAuth when neither the
// environment variables nor the credentials file yield a usable key pair,
// and dryRun is false.
var ErrCredentialsNotFound = fmt.Errorf("no Internet Archive S3 credentials found: set IAS3_ACCESS_KEY/IAS3_SECRET_KEY or configure ~/.config/internetarchive/ia.ini")

// ResolveIAAuth resolves the Internet Archive S3 credentials into the
// pre-formed "LOW {access}:{secret}" Authorization header value. Resolution
// order: IAS3_ACCESS_KEY/IAS3_SECRET_KEY environment variables (both
// required, trimmed), then the [s3] section of
// ~/.config/internetarchive/ia.ini. A dry run substitutes a placeholder
// instead of failing, since no upload will actually be attempted.
func ResolveIAAuth(dryRun bool) (string, error) {
	access := strings.TrimSpace(os.Getenv("IAS3_ACCESS_KEY"))
	secret := strings.TrimSpace(os.Getenv("IAS3_SECRET_KEY"))
	if access != "" && secret != "" {
		return fmt.Sprintf("LOW %s:%s", access, secret), nil
	}

	if access, secret, err := readIACredentialsFile(iaCredentialsPath()); err == nil {
		return fmt.Sprintf("LOW %s:%s", access, secret), nil
	}

	if dryRun {
		return "LOW dry-run:dry-run", nil
	}

	return "", ErrCredentialsNotFound
}

func iaCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "internetarchive", "ia.ini")
}

// readIACredentialsFile parses the [s3] section's access/secret keys out of
// a minimal INI file — no third-party INI library appears anywhere in the
// retrieved corpus with an actual call site, so this is a small
// self-contained scanner rather than a dependency for two key lookups.
func readIACredentialsFile(path string) (access, secret string, err error) {
	if path == "" {
		return "", "", fmt.Errorf("no home directory")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	section := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"))
			continue
		}
		if section != "s3" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "access":
			access = strings.TrimSpace(value)
		case "secret":
			secret = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}
	if access == "" || secret == "" {
		return "", "", fmt.Errorf("ia.ini missing [s3] access/secret")
	}
	return access, secret, nil
}
