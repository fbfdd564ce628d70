// Package api exposes the insights runner, the trends backend and the
// dashboard over HTTP.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/dashboard"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/insights"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 64 << 20

type Handlers struct {
	runner    *insights.Runner
	pipeline  *insights.Pipeline
	trends    *trends.Client
	dashboard *dashboard.Service
	logger    *slog.Logger
}

func NewHandlers(runner *insights.Runner, pipeline *insights.Pipeline, trendsClient *trends.Client, dash *dashboard.Service, logger *slog.Logger) *Handlers {
	return &Handlers{
		runner:    runner,
		pipeline:  pipeline,
		trends:    trendsClient,
		dashboard: dash,
		logger:    logger,
	}
}

func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// StartInsights accepts a CSV as multipart field "file" or as the raw body.
func (h *Handlers) StartInsights(c *gin.Context) {
	data, err := readCSV(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.runner.Start(data)
	switch {
	case errors.Is(err, csvchunk.ErrEmptyCSV):
		c.JSON(http.StatusBadRequest, gin.H{"error": csvchunk.ErrEmptyCSV.Error()})
		return
	case errors.Is(err, insights.ErrRunInProgress):
		body := gin.H{"error": err.Error()}
		if active, ok := h.runner.Active(); ok {
			body["active_id"] = active.ID()
		}
		c.JSON(http.StatusConflict, body)
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start insights run"})
		return
	}

	c.Header("Location", "/api/insights/"+run.ID())
	c.JSON(http.StatusAccepted, run.Snapshot())
}

func (h *Handlers) GetInsights(c *gin.Context) {
	run, ok := h.runner.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": insights.ErrRunNotFound.Error()})
		return
	}

	snap := run.Snapshot()
	if c.Query("format") == "markdown" {
		if snap.State != insights.StateDone {
			c.JSON(http.StatusConflict, gin.H{"error": "report is not ready", "state": snap.State})
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(insights.FormatMarkdown(snap.Result)))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) CancelInsights(c *gin.Context) {
	run, err := h.runner.Cancel(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, run.Snapshot())
}

// SummarizeGroup runs the short per-group summary synchronously.
func (h *Handlers) SummarizeGroup(c *gin.Context) {
	group := strings.TrimSpace(c.Query("group"))
	if group == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter group is required"})
		return
	}
	data, err := readCSV(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.pipeline.SummarizeGroup(c.Request.Context(), group, data)
	if err != nil {
		if errors.Is(err, csvchunk.ErrEmptyCSV) {
			c.JSON(http.StatusBadRequest, gin.H{"error": csvchunk.ErrEmptyCSV.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("group summary generated", "group", group, "insights", len(out.Insights))
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) Categories(c *gin.Context) {
	cats, err := h.trends.Categories(c.Request.Context())
	if err != nil {
		h.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *Handlers) Trends(c *gin.Context) {
	timeframe, err := trends.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.trends.Trends(c.Request.Context(), c.Param("category"), c.Param("keyword"), timeframe)
	if err != nil {
		h.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) YouTube(c *gin.Context) {
	ctx := c.Request.Context()
	keyword := c.Param("keyword")

	var (
		out any
		err error
	)
	switch c.Param("kind") {
	case "top-videos":
		out, err = h.trends.TopVideos(ctx, keyword)
	case "sentiment":
		out, err = h.trends.Sentiment(ctx, keyword)
	case "trending-tags":
		out, err = h.trends.TrendingTags(ctx, keyword)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown youtube data %q", c.Param("kind"))})
		return
	}
	if err != nil {
		h.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) KeywordGroups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.dashboard.Groups()})
}

func (h *Handlers) Dashboard(c *gin.Context) {
	groupID := 1
	if raw := c.Query("group"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group must be a number"})
			return
		}
		groupID = id
	}
	timeframe, err := trends.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.dashboard.Build(c.Request.Context(), groupID, timeframe)
	switch {
	case errors.Is(err, dashboard.ErrUnknownGroup):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build dashboard"})
	default:
		c.JSON(http.StatusOK, view)
	}
}

// backendError passes the backend's 4xx answers through and reports anything
// else as a bad gateway.
func (h *Handlers) backendError(c *gin.Context, err error) {
	_ = c.Error(err)
	var apiErr *trends.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func readCSV(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart field file is required: %w", err)
		}
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxUploadBytes))
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return data, nil
}
