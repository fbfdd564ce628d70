package a2a

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/insights"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/logger"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/retry"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "sheet,item,model,ds,forecast,hist_june_2025\nAcmeCo,SKU1,prophet,2025-07-01,120,100\n"

const sampleReport = `{
  "biggest_moves": [{"sku_channel": "SKU 1 - Amazon.com", "percent_change_mom": 20, "direction": "increase",
    "likely_drivers": ["promo_flag"], "explanation": "Promo.", "planner_action": "Stock up"}],
  "steady_trends": [],
  "historical_anomalies": []
}`

type staticGenerator struct {
	text  string
	block chan struct{}
}

func (g *staticGenerator) GenerateJSON(ctx context.Context, _ string, _ *genai.Schema) (string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.text, nil
}

func (g *staticGenerator) CountTokens(context.Context, string) (int, error) { return 0, nil }

func newTestHandler(t *testing.T, gen insights.Generator) (*A2AHandler, *insights.Runner) {
	t.Helper()
	opts := insights.Options{
		Sizing:      csvchunk.DefaultSizing(),
		MaxAttempts: 3,
		MergeMode:   config.MergeModel,
		Sleep:       retry.NoSleep,
	}
	runner, err := insights.NewRunner(insights.NewPipeline(gen, opts, logger.Discard()), 8, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})
	return NewA2AHandler(runner, logger.Discard(), "", 5*time.Second), runner
}

func rpc(t *testing.T, h *A2AHandler, body any) JSONRPCResponse {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/a2a/insights", h.HandleInsights)

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/a2a/insights", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      any             `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *RPCError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	out := JSONRPCResponse{JSONRPC: resp.JSONRPC, ID: resp.ID, Error: resp.Error}
	if len(resp.Result) > 0 {
		var task TaskResult
		require.NoError(t, json.Unmarshal(resp.Result, &task))
		out.Result = task
	}
	return out
}

func sendRequest(id string, blocking bool, parts ...MessagePart) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "message/send",
		"params": MessageParams{
			Message:       A2AMessage{Kind: "message", Role: RoleUser, Parts: parts},
			Configuration: MessageConfiguration{Blocking: blocking},
		},
	}
}

func TestMessageSendBlockingCompletes(t *testing.T) {
	h, _ := newTestHandler(t, &staticGenerator{text: sampleReport})

	resp := rpc(t, h, sendRequest("req-1", true, TextPart(sampleCSV)))
	require.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.ID)

	task := resp.Result.(TaskResult)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "task", task.Kind)
	assert.Equal(t, StateCompleted, task.Status.State)
	require.NotNil(t, task.Status.Message)
	assert.Contains(t, task.Status.Message.Parts[0].Text, "## Biggest Demand Movements")
	assert.Contains(t, task.Status.Message.Parts[0].Text, "SKU 1 - Amazon.com")

	require.Len(t, task.Artifacts, 2)
	assert.Equal(t, "text", task.Artifacts[0].Parts[0].Kind)
	assert.Equal(t, "data", task.Artifacts[1].Parts[0].Kind)
}

func TestMessageSendAcceptsFilePart(t *testing.T) {
	h, _ := newTestHandler(t, &staticGenerator{text: sampleReport})

	part := MessagePart{Kind: "file", File: &FileContent{
		Name:     "forecast.csv",
		MimeType: "text/csv",
		Bytes:    base64.StdEncoding.EncodeToString([]byte(sampleCSV)),
	}}
	resp := rpc(t, h, sendRequest("req-file", true, part))
	require.Nil(t, resp.Error)
	assert.Equal(t, StateCompleted, resp.Result.(TaskResult).Status.State)
}

func TestMessageSendRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		part MessagePart
		want string
	}{
		{"no csv", TextPart("   "), "Please provide forecast CSV data to analyse."},
		{"header only", TextPart("sheet,item,ds\n"), "CSV parsing failed or file is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &staticGenerator{text: sampleReport})

			resp := rpc(t, h, sendRequest("req-bad", false, tt.part))
			require.Nil(t, resp.Error)
			task := resp.Result.(TaskResult)
			assert.Equal(t, StateFailed, task.Status.State)
			assert.Equal(t, "req-bad", task.ID)
			assert.Equal(t, tt.want, task.Status.Message.Parts[0].Text)
		})
	}
}

func TestTasksGetAndCancel(t *testing.T) {
	gen := &staticGenerator{text: sampleReport, block: make(chan struct{})}
	h, runner := newTestHandler(t, gen)

	resp := rpc(t, h, sendRequest("req-2", false, TextPart(sampleCSV)))
	require.Nil(t, resp.Error)
	task := resp.Result.(TaskResult)
	assert.Equal(t, StateWorking, task.Status.State)

	second := rpc(t, h, sendRequest("req-3", false, TextPart(sampleCSV)))
	assert.Equal(t, StateFailed, second.Result.(TaskResult).Status.State)
	assert.Contains(t, second.Result.(TaskResult).Status.Message.Parts[0].Text, "already running")

	got := rpc(t, h, map[string]any{"jsonrpc": "2.0", "id": 7, "method": "tasks/get", "params": TaskQueryParams{ID: task.ID}})
	require.Nil(t, got.Error)
	assert.Equal(t, task.ID, got.Result.(TaskResult).ID)
	assert.Equal(t, StateWorking, got.Result.(TaskResult).Status.State)

	cancelled := rpc(t, h, map[string]any{"jsonrpc": "2.0", "id": 8, "method": "tasks/cancel", "params": TaskQueryParams{ID: task.ID}})
	require.Nil(t, cancelled.Error)
	assert.Equal(t, StateCanceled, cancelled.Result.(TaskResult).Status.State)

	_, active := runner.Active()
	assert.False(t, active)
}

func TestRPCErrors(t *testing.T) {
	h, _ := newTestHandler(t, &staticGenerator{text: sampleReport})

	resp := rpc(t, h, map[string]any{"jsonrpc": "2.0", "id": "x", "method": "tasks/get", "params": map[string]string{"id": "missing"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)

	resp = rpc(t, h, map[string]any{"jsonrpc": "2.0", "id": "x", "method": "tasks/get", "params": map[string]string{}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpc(t, h, map[string]any{"jsonrpc": "2.0", "id": "x", "method": "profiles/generate"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	resp = rpc(t, h, map[string]any{"jsonrpc": "1.0", "id": "x", "method": "message/send"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	resp = rpc(t, h, map[string]any{"hello": "world"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestExtractCSV(t *testing.T) {
	h, _ := newTestHandler(t, &staticGenerator{})

	msg := A2AMessage{Parts: []MessagePart{
		TextPart("<p>sheet,item</p>"),
		DataPart(map[string]any{"csv": "a,b"}),
		DataPart(42),
	}}
	assert.Equal(t, "sheet,item\na,b", h.extractCSV(msg))
}

func TestServeAgentCard(t *testing.T) {
	h, _ := newTestHandler(t, &staticGenerator{})
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/.well-known/agent.json", h.ServeAgentCard)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var card map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	for _, field := range []string{"name", "description", "version", "capabilities", "endpoints"} {
		assert.Contains(t, card, field)
	}
}
