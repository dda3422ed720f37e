// Command goguard runs and administers a goGuard token guard.
//
//	goguard serve              start the demo HTTP server
//	goguard issue -s alice     mint a token pair
//	goguard revoke TOKEN       blacklist a token
//	goguard prune              remove expired revocation records
//
// Configuration is read from GOGUARD_* environment variables and an optional .env file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
