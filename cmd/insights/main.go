// Command insights runs the CSV insights pipeline and the trends lookups from
// a terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/logger"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	verbose bool
	noColor bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "insights",
		Short: "CPG demand insights from forecast CSVs",
		Long: `insights turns demand forecast CSVs into supply chain insights and
looks up search and video trends for CPG keywords.

Example usage:
  insights chunks forecast.csv            # Show how the CSV will be split
  insights analyze forecast.csv -o out.md # Generate the insights report
  insights summarize forecast.csv -g Milk # Short summary for one SKU group
  insights trends Beverages "oat milk"    # Interest over time
  insights dashboard --group 1            # Keyword group dashboard`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newAnalyzeCmd(a),
		newChunksCmd(a),
		newSummarizeCmd(a),
		newCategoriesCmd(a),
		newTrendsCmd(a),
		newDashboardCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	a.log = logger.NewWithWriter(os.Stderr, level)
	a.log.Debug("configuration loaded",
		"trends_url", cfg.TrendsBaseURL,
		"model", cfg.GeminiModel,
		"merge_mode", cfg.Insights.MergeMode,
	)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
