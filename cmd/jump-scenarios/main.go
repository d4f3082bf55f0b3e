package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BYTE-6D65/jumpclock/cmd/jump-scenarios/framework"
	"github.com/BYTE-6D65/jumpclock/cmd/jump-scenarios/scenarios"
)

const suiteName = "Jumpclock Behavior Scenarios"

func main() {
	var (
		runAll     = flag.Bool("all", false, "Run all scenarios")
		category   = flag.String("category", "", "Run scenarios in a category (prefix match)")
		testName   = flag.String("test", "", "Run a specific scenario (e.g., 2.1)")
		list       = flag.Bool("list", false, "List scenarios and exit")
		verbose    = flag.Bool("verbose", false, "Verbose output (detailed results)")
		reportType = flag.String("report", "summary", "Report type: summary, detailed, json, markdown")
		timeout    = flag.Duration("timeout", 30*time.Second, "Timeout per scenario")
	)
	flag.Parse()

	registry := buildTestRegistry()

	if *list {
		for _, test := range registry {
			fmt.Printf("%-45s %s\n", test.Name(), test.Description())
		}
		return
	}

	if !*runAll && *category == "" && *testName == "" {
		fmt.Println("Error: Must specify --all, --category, or --test")
		flag.Usage()
		os.Exit(1)
	}

	testsToRun := filterTests(registry, *runAll, *category, *testName)
	if len(testsToRun) == 0 {
		fmt.Println("No scenarios match the specified criteria")
		os.Exit(1)
	}

	report := framework.NewTestReport(suiteName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nReceived interrupt signal, stopping scenarios...")
		cancel()
	}()

	fmt.Printf("=== %s ===\n\n", suiteName)
	fmt.Printf("Running %d scenario(s)...\n\n", len(testsToRun))

	for i, test := range testsToRun {
		if ctx.Err() != nil {
			fmt.Println("Scenarios interrupted by user")
			break
		}

		fmt.Printf("[%d/%d] Running: %s...\n", i+1, len(testsToRun), test.Name())

		result := runTest(ctx, test, *timeout)
		report.AddResult(result)

		fmt.Printf("  %s (%s)\n", framework.StatusLabel(result.Passed), result.Duration)
		if !result.Passed && !*verbose {
			for _, assertion := range result.Assertions {
				if !assertion.Passed {
					fmt.Printf("    ✗ %s (expected %v, got %v)\n", assertion.Name, assertion.Expected, assertion.Actual)
					if assertion.Message != "" {
						fmt.Printf("      %s\n", assertion.Message)
					}
				}
			}
			for _, err := range result.Errors {
				fmt.Printf("    ! %s\n", err)
			}
		}
		fmt.Println()
	}

	report.Finish()

	fmt.Println()
	switch *reportType {
	case "summary":
		report.PrintSummary(os.Stdout)
	case "detailed":
		report.PrintDetailed(os.Stdout)
	case "json":
		if err := report.PrintJSON(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error printing JSON report: %v\n", err)
			os.Exit(1)
		}
	case "markdown":
		report.PrintMarkdown(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown report type: %s\n", *reportType)
		os.Exit(1)
	}

	if report.FailedTests() > 0 {
		os.Exit(1)
	}
}

// runTest executes a single scenario with timeout.
func runTest(ctx context.Context, test framework.TestCase, timeout time.Duration) *framework.TestResult {
	testCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := test.Setup(testCtx); err != nil {
		result := framework.NewTestResult(test.Name(), test.Category())
		result.AddError(fmt.Errorf("setup failed: %w", err))
		result.Finish()
		return result
	}

	defer func() {
		if err := test.Teardown(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Teardown failed for %s: %v\n", test.Name(), err)
		}
	}()

	if err := test.Run(testCtx); err != nil {
		result := test.Validate()
		result.AddError(fmt.Errorf("run failed: %w", err))
		return result
	}

	return test.Validate()
}

// buildTestRegistry creates the registry of all available scenarios.
func buildTestRegistry() []framework.TestCase {
	return []framework.TestCase{
		// Clock Read Tests
		scenarios.NewSteadyMonotonic(),
		scenarios.NewSystemElapsed(),

		// Jump Threshold Tests
		scenarios.NewOverrideForwardJump(),
		scenarios.NewForwardThresholdBoundary(),
		scenarios.NewSourceChangeToggle(),
		scenarios.NewSystemStepMonitor(),

		// Handler Lifecycle Tests
		scenarios.NewReleaseStopsCallbacks(),
		scenarios.NewCloseBeforeRelease(),
		scenarios.NewCollectedTokenDisarms(),
		scenarios.NewRegistrationFailureClean(),

		// Replay and Feed Tests
		scenarios.NewReplayFeed(),
	}
}

// filterTests filters the registry based on CLI flags. A scenario matches
// --test when its name starts with the given prefix followed by ':'.
func filterTests(registry []framework.TestCase, all bool, category, testName string) []framework.TestCase {
	if all {
		return registry
	}

	filtered := make([]framework.TestCase, 0)
	for _, test := range registry {
		if testName != "" {
			if test.Name() == testName || strings.HasPrefix(test.Name(), testName+":") {
				filtered = append(filtered, test)
			}
			continue
		}

		if category != "" && strings.HasPrefix(strings.ToLower(test.Category()), strings.ToLower(category)) {
			filtered = append(filtered, test)
		}
	}

	return filtered
}
