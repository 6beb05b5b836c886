// Command grove runs a small demo host wired with the grove orchestrator.
//
//	grove providers
//	grove run --tick 200ms --ticks 10 --metrics-addr :9090
//
// Flags can also be set through GROVE_DEMO_* environment variables, and the
// orchestrator itself reads --config (TOML) and GROVE_* variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
