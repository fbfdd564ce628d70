package trends

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	return NewClient(opts, logger.Discard())
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("")
	require.NoError(t, err)
	assert.Equal(t, Timeframe12Months, tf)

	tf, err = ParseTimeframe("today 5-y")
	require.NoError(t, err)
	assert.Equal(t, Timeframe5Years, tf)

	_, err = ParseTimeframe("today 1-m")
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestClientCategories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/categories", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Beverages": {"id": 71, "subcategories": ["Coffee & Tea", "Plant-based Milk"]}}`))
	}), Options{})

	cats, err := client.Categories(context.Background())
	require.NoError(t, err)
	require.Contains(t, cats, "Beverages")
	assert.Equal(t, 71, cats["Beverages"].ID)
	assert.Equal(t, []string{"Coffee & Tea", "Plant-based Milk"}, cats["Beverages"].Subcategories)
}

func TestClientTrends(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trends/Dairy & Alternatives/oat milk", r.URL.Path)
		assert.Equal(t, "today 3-y", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "US", r.URL.Query().Get("geo"))
		_, _ = w.Write([]byte(`{
			"interest_over_time": {"oat milk": {"dates": ["2024-01-29", "2024-02-05"], "values": [60, 66]}},
			"interest_by_region": {"oat milk": {"CA": 100, "NY": 92}}
		}`))
	}), Options{})

	resp, err := client.Trends(context.Background(), "Dairy & Alternatives", "oat milk", Timeframe3Years)
	require.NoError(t, err)

	series := resp.InterestOverTime["oat milk"].Series()
	require.Len(t, series, 2)
	assert.Equal(t, "2024-02-05", series[1].Date)
	assert.Equal(t, 66, series[1].Value)
	assert.Equal(t, 92, resp.InterestByRegion["oat milk"]["NY"])
}

func TestClientRejectsInvalidTimeframeWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), Options{})

	_, err := client.Trends(context.Background(), "Beverages", "cold brew", Timeframe("today 2-d"))
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
	assert.Zero(t, hits.Load())
}

func TestClientErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusBadRequest, `{"detail": "Invalid category. Must be one of: Beverages"}`, "Invalid category. Must be one of: Beverages"},
		{"list detail", http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}]}`, `[{"msg": "field required"}]`},
		{"no detail", http.StatusBadGateway, `upstream down`, "request failed: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), Options{})

			_, err := client.Categories(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestClientCachesSuccessfulResponses(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"tags": [{"tag": "#oatmilk", "count": 42}]}`))
	}), Options{CacheSize: 8, CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		tags, err := client.TrendingTags(context.Background(), "oat milk")
		require.NoError(t, err)
		require.Len(t, tags.Tags, 1)
		assert.Equal(t, "#oatmilk", tags.Tags[0].Tag)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientDoesNotCacheErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"total_analyzed": 10, "sentiment_percentages": {"positive": 60, "neutral": 30, "negative": 10}}`))
	}), Options{CacheSize: 8, CacheTTL: time.Minute})

	_, err := client.Sentiment(context.Background(), "soy milk")
	require.Error(t, err)

	sentiment, err := client.Sentiment(context.Background(), "soy milk")
	require.NoError(t, err)
	assert.Equal(t, 10, sentiment.TotalAnalyzed)
	assert.InDelta(t, 60.0, sentiment.SentimentPercentages["positive"], 0.001)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientYouTubeVideos(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/top-videos/almond milk", r.URL.Path)
		_, _ = w.Write([]byte(`{"videos": [{"videoId": "abc", "title": "Almond milk at home", "channel": "Kitchen", "views": 1200}]}`))
	}), Options{})

	videos, err := client.TopVideos(context.Background(), "almond milk")
	require.NoError(t, err)
	require.Len(t, videos.Videos, 1)
	assert.Equal(t, int64(1200), videos.Videos[0].Views)
}

func TestClientHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), Options{Timeout: 20 * time.Millisecond})
	defer close(release)

	_, err := client.Categories(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientSharedFetchSurvivesCallerCancel(t *testing.T) {
	var hits atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(entered)
		}
		<-release
		_, _ = w.Write([]byte(`{"Beverages": {"id": 71, "subcategories": ["Coffee"]}}`))
	}), Options{Timeout: 5 * time.Second, CacheSize: 8, CacheTTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Categories(ctx)
		firstErr <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("backend was never called")
	}

	type result struct {
		cats int
		err  error
	}
	second := make(chan result, 1)
	go func() {
		cats, err := client.Categories(context.Background())
		second <- result{len(cats), err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, 1, res.cats)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), hits.Load())
}
