package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/a2a"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/dashboard"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/insights"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/logger"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/retry"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "sheet,item,model,ds,forecast\nAcmeCo,SKU1,prophet,2025-07-01,120\n"

const sampleReport = `{"biggest_moves":[],"steady_trends":[],"historical_anomalies":[]}`

const sampleSummary = `{"skuGroup":"Milk","insights":[{"trend":"Oat is rising","explanation":"Promotions."}]}`

type stubGenerator struct {
	text  string
	block chan struct{}
}

func (g *stubGenerator) GenerateJSON(ctx context.Context, _ string, _ *genai.Schema) (string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.text, nil
}

func (g *stubGenerator) CountTokens(context.Context, string) (int, error) { return 0, nil }

type testServer struct {
	router  *gin.Engine
	runner  *insights.Runner
	backend *httptest.Server
}

func newTestServer(t *testing.T, gen insights.Generator) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/categories":
			_, _ = w.Write([]byte(`{"Beverages": {"id": 71, "subcategories": ["Coffee"]}}`))
		case strings.HasPrefix(r.URL.Path, "/trends/"):
			if strings.HasSuffix(r.URL.Path, "/missing") {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail": "No data found"}`))
				return
			}
			_, _ = w.Write([]byte(`{"interest_over_time": {}}`))
		case strings.HasPrefix(r.URL.Path, "/youtube/top-videos/"):
			_, _ = w.Write([]byte(`{"videos": [{"videoId": "x", "title": "Oat latte", "channel": "Cafe", "views": 10}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail": "boom"}`))
		}
	}))
	t.Cleanup(backend.Close)

	opts := insights.Options{
		Sizing:      csvchunk.DefaultSizing(),
		MaxAttempts: 3,
		MergeMode:   config.MergeModel,
		Sleep:       retry.NoSleep,
	}
	pipeline := insights.NewPipeline(gen, opts, logger.Discard())
	runner, err := insights.NewRunner(pipeline, 8, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	client := trends.NewClient(trends.Options{BaseURL: backend.URL, Timeout: 5 * time.Second}, logger.Discard())
	dash := dashboard.NewService(dashboard.NewMockProvider(), config.DefaultKeywordGroups(),
		[]string{dashboard.SourceGoogle, dashboard.SourceYouTube}, dashboard.DefaultCategory, logger.Discard())
	handlers := NewHandlers(runner, pipeline, client, dash, logger.Discard())
	a2aHandler := a2a.NewA2AHandler(runner, logger.Discard(), "", 5*time.Second)

	return &testServer{
		router:  NewRouter(handlers, a2aHandler, logger.Discard()),
		runner:  runner,
		backend: backend,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = s.do(t, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})
	s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cpgtrends_http_requests_total")
}

func TestInsightsLifecycle(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/insights", strings.NewReader(sampleCSV)))
	require.Equal(t, http.StatusAccepted, w.Code)
	id, _ := decodeBody(t, w)["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/insights/"+id, w.Header().Get("Location"))

	run, ok := s.runner.Get(id)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := run.Wait(ctx)
	require.NoError(t, err)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/insights/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "done", body["state"])
	assert.Equal(t, float64(100), body["percent"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/insights/"+id+"?format=markdown", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), insights.Disclaimer)
}

func TestStartInsightsMultipart(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "forecast.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/insights", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := s.do(t, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestStartInsightsRejectsEmptyCSV(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/insights", strings.NewReader("sheet,item\n")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, csvchunk.ErrEmptyCSV.Error(), decodeBody(t, w)["error"])
}

func TestStartInsightsConflictAndCancel(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport, block: make(chan struct{})})

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/insights", strings.NewReader(sampleCSV)))
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decodeBody(t, w)["id"].(string)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/insights", strings.NewReader(sampleCSV)))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, id, decodeBody(t, w)["active_id"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/insights/"+id+"?format=markdown", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/insights/"+id, nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	run, _ := s.runner.Get(id)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Cancelled)
}

func TestCancelFinishedInsightsReturnsRun(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/insights", strings.NewReader(sampleCSV)))
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decodeBody(t, w)["id"].(string)

	run, ok := s.runner.Get(id)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := run.Wait(ctx)
	require.NoError(t, err)

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/insights/"+id, nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "done", body["state"])
	assert.Nil(t, body["cancelled"])
}

func TestInsightsNotFound(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/insights/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/insights/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummarizeGroup(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleSummary})

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/summaries", strings.NewReader(sampleCSV)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/summaries?group=Milk", strings.NewReader(sampleCSV)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Milk", decodeBody(t, w)["skuGroup"])
}

func TestTrendsProxy(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)
	beverages, ok := decodeBody(t, w)["Beverages"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(71), beverages["id"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/trends/Beverages/oat%20milk?timeframe=today%203-m", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/trends/Beverages/oat?timeframe=today%205-y", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/trends/Beverages/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No data found", decodeBody(t, w)["error"])
}

func TestYouTubeProxy(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/youtube/top-videos/oat", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/youtube/sentiment/oat", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/youtube/comments/oat", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardEndpoints(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/keyword-groups", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["groups"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard?group=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		query string
		want  int
	}{
		{"group=abc", http.StatusBadRequest},
		{"group=999", http.StatusNotFound},
		{"group=1&timeframe=bogus", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard?"+tt.query, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAgentCardRoute(t *testing.T) {
	s := newTestServer(t, &stubGenerator{text: sampleReport})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
