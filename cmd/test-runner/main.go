// Package main - test_runner.go
// Executable to run the shadow-mode reference scenarios.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/simulation"
)

func main() {
	fmt.Println("TACTICAL REVIVE - SHADOW MODE SCENARIOS")
	fmt.Println(strings.Repeat("=", 48))

	cfg, adjusted, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	for _, note := range adjusted {
		fmt.Println("config:", note)
	}

	log := logger.NewNop()
	if os.Getenv("TACTICALREVIVE_VERBOSE") != "" {
		log = logger.NewDevelopment()
	}

	results := simulation.NewRunner(cfg.Revive, log).Run(context.Background(), simulation.Scenarios())
	for _, r := range results {
		mark := "PASS"
		if !r.Passed {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %-26s %5d ticks  %s\n", mark, r.Scenario, r.Ticks, r.Description)
		if !r.Passed {
			fmt.Printf("         %s\n", r.Reason)
		}
	}

	passed, failed := simulation.Summary(results)
	fmt.Println(strings.Repeat("=", 48))
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}
