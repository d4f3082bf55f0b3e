package framework

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#50FA7B"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// StatusLabel renders PASS or FAIL in color.
func StatusLabel(passed bool) string {
	if passed {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// TestReport contains results from multiple scenarios.
type TestReport struct {
	SuiteName string        `json:"suite_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration,format:nano"`
	Results   []*TestResult `json:"results"`
}

// NewTestReport creates a new test report.
func NewTestReport(suiteName string) *TestReport {
	return &TestReport{
		SuiteName: suiteName,
		StartTime: time.Now(),
		Results:   make([]*TestResult, 0),
	}
}

// AddResult adds a scenario result to the report.
func (r *TestReport) AddResult(result *TestResult) {
	r.Results = append(r.Results, result)
}

// Finish marks the report as complete.
func (r *TestReport) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// TotalTests returns the total number of scenarios.
func (r *TestReport) TotalTests() int {
	return len(r.Results)
}

// PassedTests returns the number of passed scenarios.
func (r *TestReport) PassedTests() int {
	count := 0
	for _, result := range r.Results {
		if result.Passed {
			count++
		}
	}
	return count
}

// FailedTests returns the number of failed scenarios.
func (r *TestReport) FailedTests() int {
	return r.TotalTests() - r.PassedTests()
}

// PassRate returns the percentage of passed scenarios.
func (r *TestReport) PassRate() float64 {
	if r.TotalTests() == 0 {
		return 0
	}
	return float64(r.PassedTests()) / float64(r.TotalTests()) * 100
}

// byCategory groups results by category in a stable order.
func (r *TestReport) byCategory() ([]string, map[string][]*TestResult) {
	categories := make(map[string][]*TestResult)
	var names []string
	for _, result := range r.Results {
		if _, ok := categories[result.Category]; !ok {
			names = append(names, result.Category)
		}
		categories[result.Category] = append(categories[result.Category], result)
	}
	return names, categories
}

// PrintSummary prints a text summary to the writer.
func (r *TestReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", titleStyle.Render("=== "+r.SuiteName+" ==="))

	names, categories := r.byCategory()
	for _, category := range names {
		fmt.Fprintf(w, "Category: %s\n", category)
		for _, result := range categories[category] {
			fmt.Fprintf(w, "  [%s] %s %s\n", StatusLabel(result.Passed), result.TestName,
				dimStyle.Render("("+result.Duration.String()+")"))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "=== Summary ===\n")
	fmt.Fprintf(w, "Total Scenarios: %d\n", r.TotalTests())
	fmt.Fprintf(w, "Passed: %d\n", r.PassedTests())
	fmt.Fprintf(w, "Failed: %d\n", r.FailedTests())
	fmt.Fprintf(w, "Pass Rate: %.1f%%\n", r.PassRate())
	fmt.Fprintf(w, "Duration: %s\n\n", r.Duration)

	if r.FailedTests() == 0 {
		fmt.Fprintln(w, passStyle.Render("All scenarios PASSED"))
	} else {
		fmt.Fprintln(w, failStyle.Render("Some scenarios FAILED"))
	}
}

// PrintDetailed prints detailed results to the writer.
func (r *TestReport) PrintDetailed(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", titleStyle.Render("=== "+r.SuiteName+" - Detailed Results ==="))

	for _, result := range r.Results {
		r.printTestResult(w, result)
		fmt.Fprintln(w)
	}

	r.PrintSummary(w)
}

func (r *TestReport) printTestResult(w io.Writer, result *TestResult) {
	fmt.Fprintf(w, "[%s] %s\n", StatusLabel(result.Passed), result.TestName)
	fmt.Fprintf(w, "Category: %s\n", result.Category)
	fmt.Fprintf(w, "Duration: %s\n", result.Duration)
	fmt.Fprintln(w)

	if len(result.Assertions) > 0 {
		fmt.Fprintf(w, "Assertions:\n")
		for i, assertion := range result.Assertions {
			assertSymbol := "✓"
			if !assertion.Passed {
				assertSymbol = "✗"
			}
			fmt.Fprintf(w, "  %d. %s %s\n", i+1, assertSymbol, assertion.Name)
			if !assertion.Passed {
				fmt.Fprintf(w, "     Expected: %v\n", assertion.Expected)
				fmt.Fprintf(w, "     Actual: %v\n", assertion.Actual)
				if assertion.Message != "" {
					fmt.Fprintf(w, "     %s\n", assertion.Message)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(result.Metrics) > 0 {
		keys := make([]string, 0, len(result.Metrics))
		for k := range result.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "Metrics:\n")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, result.Metrics[k])
		}
		fmt.Fprintln(w)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "Errors:\n")
		for i, err := range result.Errors {
			fmt.Fprintf(w, "  %d. %s\n", i+1, err)
		}
		fmt.Fprintln(w)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings:\n")
		for i, warning := range result.Warnings {
			fmt.Fprintf(w, "  %d. %s\n", i+1, warning)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
}

// PrintJSON prints results as JSON to the writer.
func (r *TestReport) PrintJSON(w io.Writer) error {
	return json.MarshalWrite(w, r, jsontext.WithIndent("  "))
}

// PrintMarkdown prints results as Markdown to the writer.
func (r *TestReport) PrintMarkdown(w io.Writer) {
	fmt.Fprintf(w, "# %s\n\n", r.SuiteName)
	fmt.Fprintf(w, "**Date**: %s\n", r.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "**Duration**: %s\n\n", r.Duration)

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n")
	fmt.Fprintf(w, "|--------|-------|\n")
	fmt.Fprintf(w, "| Total Scenarios | %d |\n", r.TotalTests())
	fmt.Fprintf(w, "| Passed | %d |\n", r.PassedTests())
	fmt.Fprintf(w, "| Failed | %d |\n", r.FailedTests())
	fmt.Fprintf(w, "| Pass Rate | %.1f%% |\n\n", r.PassRate())

	names, categories := r.byCategory()
	for _, category := range names {
		fmt.Fprintf(w, "## %s\n\n", category)
		fmt.Fprintf(w, "| Scenario | Status | Duration |\n")
		fmt.Fprintf(w, "|----------|--------|----------|\n")
		for _, result := range categories[category] {
			status := "PASS"
			if !result.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(w, "| %s | %s | %s |\n", result.TestName, status, result.Duration)
		}
		fmt.Fprintln(w)
	}

	if r.FailedTests() == 0 {
		fmt.Fprintf(w, "## Result\n\n**All scenarios PASSED**\n")
	} else {
		fmt.Fprintf(w, "## Result\n\n**%d scenario(s) FAILED**\n", r.FailedTests())
	}
}
