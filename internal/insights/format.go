package insights

import (
	"fmt"
	"strings"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/models"
)

const Disclaimer = "**Disclaimer:** This analysis is AI-generated. Supply chain analysts should verify all insights and recommendations before taking action."

// FormatMarkdown renders a finished run for chat clients.
func FormatMarkdown(result *Result) string {
	if result == nil || result.Report == nil {
		return "No insights generated."
	}

	var builder strings.Builder
	builder.WriteString("# AI-Generated Supply Chain Insights\n\n")
	builder.WriteString(fmt.Sprintf("Analysed %d rows in %d chunk(s).\n", result.Rows, result.Chunks))

	if result.Partial {
		builder.WriteString(fmt.Sprintf("\n> %d chunk(s) could not be analysed:\n", len(result.ChunkErrors)))
		for _, ce := range result.ChunkErrors {
			builder.WriteString(fmt.Sprintf("> - Chunk %d: %s\n", ce.Chunk, ce.Message))
		}
	}

	builder.WriteString(FormatReport(result.Report))
	return builder.String()
}

// FormatReport renders the three report sections followed by the disclaimer.
// Empty sections are left out.
func FormatReport(report *models.Report) string {
	var builder strings.Builder

	if len(report.BiggestMoves) > 0 {
		builder.WriteString("\n## Biggest Demand Movements\n")
		for _, m := range report.BiggestMoves {
			builder.WriteString(fmt.Sprintf("\n**%s**\n", m.SKUChannel))
			if m.PercentChangeMoM != nil {
				builder.WriteString(fmt.Sprintf("- Change: %.1f%% %s\n", *m.PercentChangeMoM, m.Direction))
			}
			writeDrivers(&builder, m.LikelyDrivers)
			builder.WriteString(fmt.Sprintf("- Explanation: %s\n", m.Explanation))
			builder.WriteString(fmt.Sprintf("- Action: %s\n", m.PlannerAction))
		}
	}

	if len(report.SteadyTrends) > 0 {
		builder.WriteString("\n## Steady Growth/Decline Trends\n")
		for _, s := range report.SteadyTrends {
			builder.WriteString(fmt.Sprintf("\n**%s**\n", s.SKUChannel))
			if s.CAGR6P != nil {
				builder.WriteString(fmt.Sprintf("- 6-Period CAGR: %.1f%% (%s)\n", *s.CAGR6P, s.Trend))
			}
			writeDrivers(&builder, s.LikelyDrivers)
			builder.WriteString(fmt.Sprintf("- Explanation: %s\n", s.Explanation))
			builder.WriteString(fmt.Sprintf("- Action: %s\n", s.PlannerAction))
		}
	}

	if len(report.HistoricalAnomalies) > 0 {
		builder.WriteString("\n## Historical Anomalies\n")
		for _, a := range report.HistoricalAnomalies {
			builder.WriteString(fmt.Sprintf("\n**%s**\n", a.SKUChannel))
			builder.WriteString(fmt.Sprintf("- Pattern: %s\n", a.Pattern))
			builder.WriteString(fmt.Sprintf("- Possible Cause: %s\n", a.PossibleCause))
			builder.WriteString(fmt.Sprintf("- Explanation: %s\n", a.Explanation))
			builder.WriteString(fmt.Sprintf("- Action: %s\n", a.PlannerAction))
		}
	}

	if report.Findings() == 0 {
		builder.WriteString("\nNo notable movements, trends or anomalies were found.\n")
	}

	builder.WriteString("\n---\n\n")
	builder.WriteString(Disclaimer)
	builder.WriteString("\n")
	return builder.String()
}

// KnownDrivers drops placeholder drivers the model emits when it has no
// evidence.
func KnownDrivers(drivers []string) []string {
	var out []string
	for _, d := range drivers {
		d = strings.TrimSpace(d)
		if d == "" || strings.Contains(strings.ToLower(d), "driver unknown") {
			continue
		}
		out = append(out, d)
	}
	return out
}

func writeDrivers(builder *strings.Builder, drivers []string) {
	known := KnownDrivers(drivers)
	if len(known) == 0 {
		return
	}
	builder.WriteString(fmt.Sprintf("- Drivers: %s\n", strings.Join(known, ", ")))
}
