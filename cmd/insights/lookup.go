package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/dashboard"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
	"github.com/spf13/cobra"
)

func (a *app) trendsClient() *trends.Client {
	return trends.NewClient(trends.Options{
		BaseURL:    a.cfg.TrendsBaseURL,
		Timeout:    a.cfg.TrendsTimeout,
		RatePerSec: a.cfg.TrendsRatePerSec,
	}, a.log)
}

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the product categories known to the trends backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := a.trendsClient().Categories(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cats))
			for name := range cats {
				names = append(names, name)
			}
			sort.Strings(names)

			p := newPrinter(cmd.OutOrStdout(), a.noColor)
			p.Header("Categories")
			for _, name := range names {
				cat := cats[name]
				p.Plain("%-28s %4d  %s", name, cat.ID, strings.Join(cat.Subcategories, ", "))
			}
			return nil
		},
	}
}

func newTrendsCmd(a *app) *cobra.Command {
	var (
		timeframe  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "trends <category> <keyword>",
		Short: "Show search interest over time for a keyword",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := trends.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			resp, err := a.trendsClient().Trends(cmd.Context(), args[0], args[1], tf)
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), a.noColor)
			if jsonOutput {
				return p.JSON(resp)
			}

			keyword := args[1]
			series, ok := resp.InterestOverTime[keyword]
			if !ok {
				p.Warn("no interest data for %q", keyword)
				return nil
			}
			p.Header(fmt.Sprintf("%s (%s)", keyword, tf))
			for _, point := range series.Series() {
				p.Plain("%s  %3d  %s", point.Date, point.Value, strings.Repeat("█", point.Value/5))
			}
			regions := dashboard.TopRegions(resp.InterestByRegion[keyword], 5)
			if len(regions) > 0 {
				p.Info("Top regions:")
				for _, r := range regions {
					p.Plain("  %-16s %3d", r.Name, r.Interest)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", string(trends.DefaultTimeframe), "one of: today 6-m, today 12-m, today 3-y, today 5-y")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the raw response as JSON")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	var (
		groupID    int
		timeframe  string
		source     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard for a keyword group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := trends.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			if source == "" {
				source = a.cfg.DashboardDataSource
			}

			var provider dashboard.Provider
			switch source {
			case config.DataSourceMock:
				provider = dashboard.NewMockProvider()
			case config.DataSourceBackend:
				provider = dashboard.NewBackendProvider(a.trendsClient())
			default:
				return fmt.Errorf("unknown data source %q", source)
			}

			svc := dashboard.NewService(provider, a.cfg.KeywordGroups, a.cfg.DashboardSources, a.cfg.DashboardCategory, a.log)
			view, err := svc.Build(cmd.Context(), groupID, tf)
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), a.noColor)
			if jsonOutput {
				return p.JSON(view)
			}

			p.Header(fmt.Sprintf("%s (%s)", view.Group.Name, view.Timeframe))
			for _, kw := range view.Keywords {
				if kw.Error != "" {
					p.Fail("%s: %s", kw.Keyword, kw.Error)
					continue
				}
				line := fmt.Sprintf("%-16s current %3d  change %s%%", kw.Keyword, kw.Current, kw.Change)
				switch kw.Direction {
				case "up":
					p.Success("%s", line)
				case "down":
					p.Warn("%s", line)
				default:
					p.Plain("  %s", line)
				}
				if kw.YouTube != nil && len(kw.YouTube.Videos) > 0 {
					p.Plain("    top video: %s (%d views)", kw.YouTube.Videos[0].Title, kw.YouTube.Videos[0].Views)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&groupID, "group", "g", 1, "keyword group id")
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", string(trends.DefaultTimeframe), "trends window")
	cmd.Flags().StringVar(&source, "source", "", "data source: mock or backend (default from DASHBOARD_DATA_SOURCE)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the view as JSON")
	return cmd
}
