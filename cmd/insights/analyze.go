package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/gemini"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/insights"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		outFile    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <forecast.csv>",
		Short: "Generate the insights report for a forecast CSV",
		Long: `Split the CSV into chunks, analyse each chunk with the generative model and
merge the results into one report. Requests are spaced out to stay inside the
API rate limit, so large files take a while. Press Ctrl-C to cancel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pipeline, closeFn, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			p := newPrinter(cmd.ErrOrStderr(), a.noColor)
			result, err := pipeline.Run(ctx, data, func(progress insights.Progress) {
				p.Info("[%3d%%] %s", progress.Percent, progress.Status)
			})
			if err != nil {
				p.Fail("%s", err)
				return err
			}
			if result.Partial {
				p.Warn("%d of %d chunks failed; the report covers the rest", len(result.ChunkErrors), result.Chunks)
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("creating %s: %w", outFile, err)
				}
				defer f.Close()
				out = f
			}

			if jsonOutput {
				if err := newPrinter(out, true).JSON(result); err != nil {
					return err
				}
			} else if _, err := fmt.Fprintln(out, insights.FormatMarkdown(result)); err != nil {
				return err
			}

			if outFile != "" {
				p.Success("report written to %s", outFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the structured result as JSON")
	return cmd
}

func newChunksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <forecast.csv>",
		Short: "Show how a forecast CSV will be split into chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			table, err := csvchunk.Parse(f)
			if err != nil {
				return err
			}
			opts := insights.OptionsFromConfig(a.cfg.Insights)
			sizing := opts.Sizing
			chunks, err := sizing.Split(table.Rows)
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), a.noColor)
			p.Header("Chunk plan")
			p.Plain("Columns:        %d", len(table.Header))
			p.Plain("Rows:           %d", len(table.Rows))
			p.Plain("Rows per chunk: %d", sizing.RowsPerChunk())
			p.Plain("Overlap rows:   %d", sizing.OverlapRows())
			p.Plain("Chunks:         %d", len(chunks))
			for _, c := range chunks {
				p.Plain("  chunk %d: rows %d-%d (%d rows)", c.Index+1, c.Start+1, c.End, c.Len())
			}
			switch {
			case len(chunks) > 1 && opts.MergeMode == config.MergeModel:
				p.Info("%d requests including the merge", len(chunks)+1)
			case len(chunks) > 1:
				p.Info("%d requests, reports concatenated locally", len(chunks))
			}
			return nil
		},
	}
}

func newSummarizeCmd(a *app) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "summarize <forecast.csv>",
		Short: "Summarize the demand trends of one SKU group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			pipeline, closeFn, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := pipeline.SummarizeGroup(cmd.Context(), group, data)
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), a.noColor)
			p.Header(out.SKUGroup)
			for _, item := range out.Insights {
				p.Plain("- %s", item.Trend)
				p.Plain("  %s", item.Explanation)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "SKU group name")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

// pipeline builds the generative client and the pipeline around it. The
// returned func closes the client.
func (a *app) pipeline(ctx context.Context) (*insights.Pipeline, func(), error) {
	client, err := gemini.NewClient(ctx, gemini.Options{
		APIKey: a.cfg.GeminiAPIKey,
		Model:  a.cfg.GeminiModel,
	})
	if err != nil {
		return nil, nil, err
	}
	pipeline := insights.NewPipeline(client, insights.OptionsFromConfig(a.cfg.Insights), a.log)
	return pipeline, func() { _ = client.Close() }, nil
}
