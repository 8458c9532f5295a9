package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

type report struct {
	targets         []string
	variants        []checkVariant
	resultsByTarget map[string]map[string]checkResult
	totalChecks     int
	failedCount     int
}

// buildReport aggregates raw check results by target and variant.
func buildReport(targets []string, variants []checkVariant, results []checkResult) report {
	byTarget := make(map[string]map[string]checkResult, len(targets))
	for _, target := range targets {
		byTarget[target] = make(map[string]checkResult)
	}

	failed := 0
	for _, res := range results {
		if res.Target == "" {
			continue
		}
		targetMap, ok := byTarget[res.Target]
		if !ok {
			targetMap = make(map[string]checkResult)
			byTarget[res.Target] = targetMap
		}
		targetMap[res.Variant] = res
		if !res.Success {
			failed++
		}
	}

	return report{
		targets:         targets,
		variants:        variants,
		resultsByTarget: byTarget,
		totalChecks:     len(results),
		failedCount:     failed,
	}
}

// renderReport prints the matrix view and summaries to stdout.
func renderReport(rep report) {
	if len(rep.targets) == 0 || len(rep.variants) == 0 {
		fmt.Println("nothing to report")
		return
	}

	fmt.Println()
	fmt.Println("=== Gateway Smoke Matrix ===")
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(append([]string{"Check"}, rep.targets...))
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, variant := range rep.variants {
		row := []string{variant.Header}
		for _, target := range rep.targets {
			row = append(row, formatMatrixCell(rep.resultsByTarget[target][variant.Key]))
		}
		table.Append(row)
	}
	table.Render()

	fmt.Println()
	fmt.Printf("Totals  | Checks: %d | Passed: %d | Failed: %d\n",
		rep.totalChecks,
		rep.totalChecks-rep.failedCount,
		rep.failedCount,
	)

	if failures := gatherFailures(rep); len(failures) > 0 {
		fmt.Println()
		fmt.Println("Failures:")
		for _, res := range failures {
			fmt.Printf("- %s · %s → %s\n", res.Target, res.Label, shorten(res.ErrorReason, 200))
		}
	}

	fmt.Println()
}

func formatMatrixCell(res checkResult) string {
	if res.Target == "" {
		return "—"
	}

	duration := res.Duration.Truncate(10 * time.Millisecond)
	if res.Success {
		return fmt.Sprintf("PASS %.2fs", duration.Seconds())
	}

	reason := res.ErrorReason
	if reason == "" {
		reason = duration.String()
	}
	return fmt.Sprintf("FAIL %s", shorten(reason, 32))
}

func gatherFailures(rep report) []checkResult {
	var failures []checkResult
	for _, target := range rep.targets {
		entry := rep.resultsByTarget[target]
		for _, variant := range rep.variants {
			res, ok := entry[variant.Key]
			if !ok || res.Target == "" || res.Success {
				continue
			}
			failures = append(failures, res)
		}
	}

	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Target == failures[j].Target {
			return failures[i].Label < failures[j].Label
		}
		return failures[i].Target < failures[j].Target
	})

	return failures
}
