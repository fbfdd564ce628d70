package a2a

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/agent"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/insights"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 20

type A2AHandler struct {
	runner    *insights.Runner
	logger    *slog.Logger
	publicURL string
	// blockTimeout bounds how long a blocking message/send waits for the run.
	blockTimeout time.Duration
}

func NewA2AHandler(runner *insights.Runner, logger *slog.Logger, publicURL string, blockTimeout time.Duration) *A2AHandler {
	return &A2AHandler{
		runner:       runner,
		logger:       logger,
		publicURL:    publicURL,
		blockTimeout: blockTimeout,
	}
}

// HandleInsights processes A2A JSON-RPC messages.
func (h *A2AHandler) HandleInsights(c *gin.Context) {
	bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("failed to read request body", "error", err)
		h.sendErrorResponse(c, nil, "Failed to read request body", CodeParseError)
		return
	}

	var rpcReq JSONRPCRequest
	if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil || rpcReq.Method == "" {
		h.logger.Warn("request is not JSON-RPC, trying direct message", "error", err)
		h.handleDirectMessage(c, bodyBytes)
		return
	}

	h.logger.Info("a2a request", "id", rpcReq.ID, "method", rpcReq.Method, "bytes", len(bodyBytes))

	if rpcReq.JSONRPC != "2.0" {
		h.sendErrorResponse(c, rpcReq.ID, "Invalid JSON-RPC version", CodeInvalidRequest)
		return
	}

	switch rpcReq.Method {
	case "message/send", "agent/task":
		h.handleSend(c, rpcReq)
	case "tasks/get":
		h.handleGet(c, rpcReq)
	case "tasks/cancel":
		h.handleCancel(c, rpcReq)
	default:
		h.sendErrorResponse(c, rpcReq.ID, fmt.Sprintf("Method not found: %s", rpcReq.Method), CodeMethodNotFound)
	}
}

// handleDirectMessage accepts a bare MessageParams body without the JSON-RPC
// envelope.
func (h *A2AHandler) handleDirectMessage(c *gin.Context, bodyBytes []byte) {
	var msgParams MessageParams
	if err := json.Unmarshal(bodyBytes, &msgParams); err != nil || len(msgParams.Message.Parts) == 0 {
		h.sendErrorResponse(c, nil, "Invalid request format", CodeParseError)
		return
	}
	h.sendSuccessResponse(c, "direct-message", h.startTask(c.Request.Context(), "direct-message", msgParams))
}

func (h *A2AHandler) handleSend(c *gin.Context, rpcReq JSONRPCRequest) {
	var msgParams MessageParams
	if err := json.Unmarshal(rpcReq.Params, &msgParams); err != nil {
		h.logger.Warn("invalid message params", "error", err)
		h.sendErrorResponse(c, rpcReq.ID, "Invalid parameters", CodeInvalidParams)
		return
	}
	h.sendSuccessResponse(c, rpcReq.ID, h.startTask(c.Request.Context(), idString(rpcReq.ID), msgParams))
}

func (h *A2AHandler) startTask(ctx context.Context, fallbackID string, msgParams MessageParams) TaskResult {
	csvText := h.extractCSV(msgParams.Message)
	if csvText == "" {
		return h.createErrorTaskResult(fallbackID, "Please provide forecast CSV data to analyse.")
	}

	run, err := h.runner.Start([]byte(csvText))
	switch {
	case errors.Is(err, csvchunk.ErrEmptyCSV):
		return h.createErrorTaskResult(fallbackID, csvchunk.ErrEmptyCSV.Error())
	case errors.Is(err, insights.ErrRunInProgress):
		active := ""
		if activeRun, ok := h.runner.Active(); ok {
			active = " (task " + activeRun.ID() + ")"
		}
		return h.createErrorTaskResult(fallbackID, "Another analysis is already running"+active+". Try again when it finishes.")
	case err != nil:
		h.logger.Error("failed to start insights run", "error", err)
		return h.createErrorTaskResult(fallbackID, fmt.Sprintf("Failed to start analysis: %v", err))
	}

	h.logger.Info("insights task started", "task_id", run.ID(), "blocking", msgParams.Configuration.Blocking)
	if !msgParams.Configuration.Blocking {
		return h.taskResult(run.Snapshot(), msgParams.Message.ContextID)
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.blockTimeout)
	defer cancel()
	snap, err := run.Wait(waitCtx)
	if err != nil {
		h.logger.Info("blocking wait ended before the run finished", "task_id", run.ID(), "error", err)
	}
	return h.taskResult(snap, msgParams.Message.ContextID)
}

func (h *A2AHandler) handleGet(c *gin.Context, rpcReq JSONRPCRequest) {
	params, ok := h.taskParams(c, rpcReq)
	if !ok {
		return
	}
	run, found := h.runner.Get(params.ID)
	if !found {
		h.sendErrorResponse(c, rpcReq.ID, "Task not found", CodeTaskNotFound)
		return
	}
	h.sendSuccessResponse(c, rpcReq.ID, h.taskResult(run.Snapshot(), ""))
}

func (h *A2AHandler) handleCancel(c *gin.Context, rpcReq JSONRPCRequest) {
	params, ok := h.taskParams(c, rpcReq)
	if !ok {
		return
	}
	run, err := h.runner.Cancel(params.ID)
	if err != nil {
		h.sendErrorResponse(c, rpcReq.ID, "Task not found", CodeTaskNotFound)
		return
	}

	// Cancellation is prompt; give the run a moment to settle.
	waitCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	snap, _ := run.Wait(waitCtx)
	h.logger.Info("insights task cancelled", "task_id", params.ID)
	h.sendSuccessResponse(c, rpcReq.ID, h.taskResult(snap, ""))
}

func (h *A2AHandler) taskParams(c *gin.Context, rpcReq JSONRPCRequest) (TaskQueryParams, bool) {
	var params TaskQueryParams
	if err := json.Unmarshal(rpcReq.Params, &params); err != nil || params.ID == "" {
		h.sendErrorResponse(c, rpcReq.ID, "Invalid parameters: task id is required", CodeInvalidParams)
		return params, false
	}
	return params, true
}

// ServeAgentCard serves the agent card using Gin
func (h *A2AHandler) ServeAgentCard(c *gin.Context) {
	if err := agent.LoadAgentCard(h.publicURL); err != nil {
		h.logger.Error("error loading agent card", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Agent card not available"})
		return
	}
	c.Data(http.StatusOK, "application/json", agent.AgentCardData)
}

// extractCSV collects CSV text from the message. Text parts are joined with
// newlines; data parts may carry the CSV as a string or under a "csv" key;
// file parts carry it base64 encoded.
func (h *A2AHandler) extractCSV(msg A2AMessage) string {
	var texts []string

	for _, part := range msg.Parts {
		switch part.Kind {
		case "text":
			if text := cleanText(part.Text); text != "" {
				texts = append(texts, text)
			}
		case "data":
			switch v := part.Data.(type) {
			case string:
				if text := cleanText(v); text != "" {
					texts = append(texts, text)
				}
			case map[string]any:
				if csvText, ok := v["csv"].(string); ok && strings.TrimSpace(csvText) != "" {
					texts = append(texts, strings.TrimSpace(csvText))
				}
			}
		case "file":
			if part.File == nil || part.File.Bytes == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(part.File.Bytes)
			if err != nil {
				h.logger.Warn("failed to decode file part", "name", part.File.Name, "error", err)
				continue
			}
			texts = append(texts, strings.TrimSpace(string(decoded)))
		}
	}

	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// cleanText strips the paragraph tags some chat clients wrap messages in.
func cleanText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "<p>", "")
	text = strings.ReplaceAll(text, "</p>", "\n")
	text = strings.ReplaceAll(text, "<br>", "\n")
	return strings.TrimSpace(text)
}

func (h *A2AHandler) taskResult(snap insights.RunSnapshot, contextID string) TaskResult {
	result := TaskResult{
		ID:        snap.ID,
		ContextID: contextID,
		Kind:      "task",
	}

	switch {
	case snap.State == insights.StateDone:
		responseText := insights.FormatMarkdown(snap.Result)
		result.Status = TaskStatus{
			State:     StateCompleted,
			Timestamp: Timestamp(),
			Message:   agentMessage(snap.ID, responseText),
		}
		result.Artifacts = []Artifact{
			{
				ArtifactID: uuid.New().String(),
				Name:       "Supply Chain Insights",
				Parts:      []MessagePart{TextPart(responseText)},
			},
			{
				ArtifactID: uuid.New().String(),
				Name:       "Supply Chain Insights Data",
				Parts:      []MessagePart{DataPart(snap.Result)},
			},
		}
	case snap.Cancelled:
		result.Status = TaskStatus{
			State:     StateCanceled,
			Timestamp: Timestamp(),
			Message:   agentMessage(snap.ID, "Analysis cancelled."),
		}
	case snap.State == insights.StateFailed:
		result.Status = TaskStatus{
			State:     StateFailed,
			Timestamp: Timestamp(),
			Message:   agentMessage(snap.ID, failureText(snap)),
		}
	default:
		result.Status = TaskStatus{
			State:     StateWorking,
			Timestamp: Timestamp(),
			Message:   agentMessage(snap.ID, fmt.Sprintf("%s (%d%%)", snap.Status, snap.Percent)),
		}
	}
	return result
}

func failureText(snap insights.RunSnapshot) string {
	text := "Failed to generate insights: " + snap.Error
	if snap.Result != nil && len(snap.Result.ChunkErrors) > 0 {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n")
		for _, ce := range snap.Result.ChunkErrors {
			b.WriteString(fmt.Sprintf("\n- Chunk %d: %s", ce.Chunk, ce.Message))
		}
		return b.String()
	}
	return text
}

func agentMessage(taskID, text string) *A2AMessage {
	return &A2AMessage{
		Kind:      "message",
		Role:      RoleAgent,
		MessageID: uuid.New().String(),
		TaskID:    taskID,
		Parts:     []MessagePart{TextPart(text)},
	}
}

func (h *A2AHandler) createErrorTaskResult(taskID string, errorMsg string) TaskResult {
	h.logger.Warn("insights task rejected", "task_id", taskID, "reason", errorMsg)
	return TaskResult{
		ID:   taskID,
		Kind: "task",
		Status: TaskStatus{
			State:     StateFailed,
			Timestamp: Timestamp(),
			Message:   agentMessage(taskID, errorMsg),
		},
	}
}

func (h *A2AHandler) sendSuccessResponse(c *gin.Context, id any, result any) {
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendErrorResponse answers with a JSON-RPC error. JSON-RPC errors are sent
// with 200 OK.
func (h *A2AHandler) sendErrorResponse(c *gin.Context, id any, message string, code int) {
	h.logger.Warn("a2a error response", "id", id, "code", code, "message", message)
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
