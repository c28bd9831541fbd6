package analyzer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fluxbase-eu/outpack/internal/depgraph"
)

// DisplayAnalysis prints the analysis in a readable layout
func DisplayAnalysis(w io.Writer, result *AnalysisResult, showDetails bool) {
	_, _ = fmt.Fprintf(w, "\n=== Compatibility Analysis: %s@%s ===\n", result.Package.Name, result.Package.Version)
	_, _ = fmt.Fprintf(w, "Score: %.2f  Errors: %d  Warnings: %d\n",
		result.CompatibilityScore, result.ErrorCount(), result.WarningCount())
	_, _ = fmt.Fprintf(w, "Verdict: %s\n", result.Verdict())

	if len(result.Issues) > 0 {
		_, _ = fmt.Fprintln(w, "\nIssues:")

		maxIssues := 10
		if showDetails {
			maxIssues = len(result.Issues)
		}
		for i, issue := range result.Issues {
			if i >= maxIssues {
				_, _ = fmt.Fprintf(w, "  ... and %d more issues\n", len(result.Issues)-maxIssues)
				break
			}
			location := ""
			if issue.Location != nil {
				location = truncatePath(issue.Location.String(), 50) + "  "
			}
			_, _ = fmt.Fprintf(w, "  %-7s  %s%s\n", strings.ToUpper(issue.Level.String()), location, issue.Message)
			if showDetails && issue.Suggestion != "" {
				_, _ = fmt.Fprintf(w, "           hint: %s\n", issue.Suggestion)
			}
		}
	}

	if len(result.RequiredPolyfills) > 0 {
		_, _ = fmt.Fprintf(w, "\nRequired polyfills: %s\n", strings.Join(result.RequiredPolyfills, ", "))
	}

	deps := result.Dependencies
	_, _ = fmt.Fprintf(w, "\nDependencies: %d total\n", deps.Total)
	printList(w, "problematic", deps.Problematic)
	printList(w, "browser compatible", deps.BrowserCompatible)
	printList(w, "needs polyfills", deps.NeedsPolyfill)
	for _, cycle := range deps.Circular {
		_, _ = fmt.Fprintf(w, "  circular: %s\n", depgraph.FormatCycle(cycle))
	}

	size := result.EstimatedSize
	_, _ = fmt.Fprintln(w, "\nEstimated size:")
	_, _ = fmt.Fprintf(w, "  min %s  max %s  with polyfills %s  minified %s\n",
		FormatBytes(size.Min),
		FormatBytes(size.Max),
		FormatBytes(size.WithPolyfills),
		FormatBytes(size.Minified),
	)
	_, _ = fmt.Fprintln(w)
}

func printList(w io.Writer, label string, names []string) {
	if len(names) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(names, ", "))
}

// FormatBytes formats bytes in human-readable format
func FormatBytes(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// truncatePath shortens a path if it's too long
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
