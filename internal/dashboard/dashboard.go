package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/models"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
	"golang.org/x/sync/errgroup"
)

const (
	SourceGoogle  = "google"
	SourceYouTube = "youtube"

	// DefaultCategory is the backend category plant-based milk keywords live in.
	DefaultCategory = "Dairy & Alternatives"

	topRegions     = 5
	maxConcurrency = 4
)

var ErrUnknownGroup = errors.New("unknown keyword group")

// TrendRow is one date of the interest chart with a value per keyword.
type TrendRow struct {
	Date   string         `json:"date"`
	Values map[string]int `json:"values"`
}

type RegionInterest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Interest int    `json:"interest"`
}

type YouTubeStats struct {
	Videos    []models.Video    `json:"videos,omitempty"`
	Sentiment *models.Sentiment `json:"sentiment,omitempty"`
	Tags      []models.Tag      `json:"tags,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type KeywordStats struct {
	Keyword    string                 `json:"keyword"`
	Current    int                    `json:"current"`
	Change     string                 `json:"change"`
	Direction  string                 `json:"direction"`
	TopRegions []RegionInterest       `json:"top_regions,omitempty"`
	Related    *models.RelatedQueries `json:"related,omitempty"`
	YouTube    *YouTubeStats          `json:"youtube,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// View is everything the dashboard shows for one keyword group.
type View struct {
	Group     config.KeywordGroup `json:"group"`
	Timeframe trends.Timeframe    `json:"timeframe"`
	Sources   []string            `json:"sources"`
	Keywords  []KeywordStats      `json:"keywords"`
	Series    []TrendRow          `json:"series,omitempty"`
}

type Service struct {
	provider Provider
	groups   []config.KeywordGroup
	sources  map[string]bool
	category string
	logger   *slog.Logger
}

// NewService builds a dashboard over provider. sources switches data sources
// on for every group; a group can narrow them further.
func NewService(provider Provider, groups []config.KeywordGroup, sources []string, category string, logger *slog.Logger) *Service {
	enabled := make(map[string]bool, len(sources))
	for _, s := range sources {
		enabled[s] = true
	}
	if category == "" {
		category = DefaultCategory
	}
	return &Service{
		provider: provider,
		groups:   groups,
		sources:  enabled,
		category: category,
		logger:   logger,
	}
}

func (s *Service) Groups() []config.KeywordGroup {
	return s.groups
}

// SourceEnabled reports whether source is switched on for group.
func (s *Service) SourceEnabled(group config.KeywordGroup, source string) bool {
	if !s.sources[source] {
		return false
	}
	if len(group.Sources) == 0 {
		return true
	}
	for _, gs := range group.Sources {
		if gs == source {
			return true
		}
	}
	return false
}

// Build fetches every keyword of the group concurrently. A failing keyword is
// reported on its own stats; only cancellation fails the whole view.
func (s *Service) Build(ctx context.Context, groupID int, timeframe trends.Timeframe) (*View, error) {
	group, ok := config.FindGroup(s.groups, groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, groupID)
	}
	if !timeframe.Valid() {
		return nil, fmt.Errorf("%w %q", trends.ErrInvalidTimeframe, timeframe)
	}

	view := &View{
		Group:     group,
		Timeframe: timeframe,
		Keywords:  make([]KeywordStats, len(group.Keywords)),
	}
	google := s.SourceEnabled(group, SourceGoogle)
	youtube := s.SourceEnabled(group, SourceYouTube)
	if google {
		view.Sources = append(view.Sources, SourceGoogle)
	}
	if youtube {
		view.Sources = append(view.Sources, SourceYouTube)
	}

	var (
		mu     sync.Mutex
		series = make(map[string]models.TimeSeries, len(group.Keywords))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, keyword := range group.Keywords {
		g.Go(func() error {
			stats := KeywordStats{Keyword: keyword, Change: "0", Direction: "flat"}
			if google {
				ts, err := s.googleStats(gctx, keyword, timeframe, &stats)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					stats.Error = err.Error()
					s.logger.Warn("dashboard keyword lookup failed", "keyword", keyword, "error", err)
				} else if ts != nil {
					mu.Lock()
					series[keyword] = *ts
					mu.Unlock()
				}
			}
			if youtube {
				stats.YouTube = s.youtubeStats(gctx, keyword)
			}
			view.Keywords[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build dashboard: %w", err)
	}

	if google {
		view.Series = PivotSeries(group.Keywords, series)
	}
	return view, nil
}

func (s *Service) googleStats(ctx context.Context, keyword string, timeframe trends.Timeframe, stats *KeywordStats) (*models.TimeSeries, error) {
	resp, err := s.provider.Trends(ctx, s.category, keyword, timeframe)
	if err != nil {
		return nil, err
	}

	ts, ok := resp.InterestOverTime[keyword]
	if ok {
		rows := PivotSeries([]string{keyword}, map[string]models.TimeSeries{keyword: ts})
		stats.Change = ChangePercentage(rows, keyword)
		stats.Direction = direction(stats.Change)
		if n := len(rows); n > 0 {
			stats.Current = rows[n-1].Values[keyword]
		}
	}
	stats.TopRegions = TopRegions(resp.InterestByRegion[keyword], topRegions)

	related, err := s.provider.RelatedQueries(ctx, keyword)
	switch {
	case err == nil:
		stats.Related = related
	case !errors.Is(err, ErrNotSupported):
		s.logger.Debug("related queries unavailable", "keyword", keyword, "error", err)
	}

	if !ok {
		return nil, nil
	}
	return &ts, nil
}

// youtubeStats collects each YouTube section independently; one failing
// section does not hide the others.
func (s *Service) youtubeStats(ctx context.Context, keyword string) *YouTubeStats {
	out := &YouTubeStats{}
	record := func(section string, err error) {
		if errors.Is(err, ErrNotSupported) {
			return
		}
		if out.Errors == nil {
			out.Errors = map[string]string{}
		}
		out.Errors[section] = err.Error()
	}

	if videos, err := s.provider.TopVideos(ctx, keyword); err != nil {
		record("videos", err)
	} else {
		out.Videos = videos.Videos
	}
	if sentiment, err := s.provider.Sentiment(ctx, keyword); err != nil {
		record("sentiment", err)
	} else {
		out.Sentiment = sentiment
	}
	if tags, err := s.provider.TrendingTags(ctx, keyword); err != nil {
		record("tags", err)
	} else {
		out.Tags = tags.Tags
	}
	return out
}

// ChangePercentage compares keyword's value in the last two rows:
// (current-previous)/previous*100 with one decimal. It is "0" when there are
// fewer than two rows, either value is missing or previous is zero.
func ChangePercentage(rows []TrendRow, keyword string) string {
	if len(rows) < 2 {
		return "0"
	}
	current, okCur := rows[len(rows)-1].Values[keyword]
	previous, okPrev := rows[len(rows)-2].Values[keyword]
	if !okCur || !okPrev || previous == 0 {
		return "0"
	}
	return formatTenths(float64(current-previous) / float64(previous) * 100)
}

// formatTenths renders v with one decimal, rounding the exact binary value of
// |v| half up the way the dashboard front-end's toFixed(1) does. Ties such as
// 6.25 become 6.3, while 1.45 (stored just below the tie) stays 1.4.
func formatTenths(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	r := new(big.Rat).SetFloat64(v)
	r.Mul(r, big.NewRat(10, 1))
	r.Add(r, big.NewRat(1, 2))
	tenths := new(big.Int).Quo(r.Num(), r.Denom())
	whole, frac := new(big.Int).QuoRem(tenths, big.NewInt(10), new(big.Int))
	return sign + whole.String() + "." + frac.String()
}

func direction(change string) string {
	switch {
	case change == "0" || change == "0.0" || change == "-0.0":
		return "flat"
	case change[0] == '-':
		return "down"
	default:
		return "up"
	}
}

// PivotSeries turns per-keyword series into chart rows ordered by date.
func PivotSeries(keywords []string, series map[string]models.TimeSeries) []TrendRow {
	byDate := map[string]map[string]int{}
	for _, kw := range keywords {
		ts, ok := series[kw]
		if !ok {
			continue
		}
		for _, p := range ts.Series() {
			if byDate[p.Date] == nil {
				byDate[p.Date] = map[string]int{}
			}
			byDate[p.Date][kw] = p.Value
		}
	}

	rows := make([]TrendRow, 0, len(byDate))
	for date, values := range byDate {
		rows = append(rows, TrendRow{Date: date, Values: values})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}

// TopRegions returns up to n regions with positive interest, highest first.
func TopRegions(byRegion map[string]int, n int) []RegionInterest {
	out := make([]RegionInterest, 0, len(byRegion))
	for code, v := range byRegion {
		if v <= 0 {
			continue
		}
		out = append(out, RegionInterest{Code: code, Name: StateName(code), Interest: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interest != out[j].Interest {
			return out[i].Interest > out[j].Interest
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
