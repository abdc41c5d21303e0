// Command djen-backup mirrors daily DJEN judicial bulletins into an
// archival object store. See Execute in root.go for the command tree.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
