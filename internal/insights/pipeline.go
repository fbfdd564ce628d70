// Package insights turns a forecast CSV into a structured supply-chain
// insight report by analysing overlapping row chunks with a generative model
// and merging the per-chunk findings.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/gemini"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/metrics"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/models"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/retry"
	"github.com/google/generative-ai-go/genai"
)

var (
	ErrAllChunksFailed = errors.New("no chunk produced insights")
	ErrMergeFailed     = errors.New("failed to merge insights")
)

// Generator is the generative API as seen by the pipeline.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
	CountTokens(ctx context.Context, prompt string) (int, error)
}

type Options struct {
	Sizing            csvchunk.Sizing
	RequestDelay      time.Duration
	RateLimitCooldown time.Duration
	MaxAttempts       int
	RequestTimeout    time.Duration
	MergeMode         string
	CountTokens       bool

	// Sleep waits between requests and during rate-limit cooldowns.
	Sleep retry.Sleeper
	// Retryable decides which request errors earn another attempt.
	Retryable func(error) bool
}

func DefaultOptions() Options {
	return Options{
		Sizing:            csvchunk.DefaultSizing(),
		RequestDelay:      90 * time.Second,
		RateLimitCooldown: 90 * time.Second,
		MaxAttempts:       3,
		RequestTimeout:    2 * time.Minute,
		MergeMode:         config.MergeModel,
		Sleep:             retry.ContextSleep,
		Retryable:         gemini.IsRateLimited,
	}
}

func OptionsFromConfig(cfg config.Insights) Options {
	opts := DefaultOptions()
	opts.Sizing = csvchunk.Sizing{
		TokenBudget:  cfg.TokenBudget,
		TokensPerRow: cfg.TokensPerRow,
		OverlapRatio: cfg.OverlapRatio,
	}
	opts.RequestDelay = cfg.RequestDelay
	opts.RateLimitCooldown = cfg.RateLimitCooldown
	opts.MaxAttempts = cfg.MaxAttempts
	opts.RequestTimeout = cfg.RequestTimeout
	opts.MergeMode = cfg.MergeMode
	opts.CountTokens = cfg.CountTokens
	return opts
}

// ChunkError is a user-visible failure of one chunk request.
type ChunkError struct {
	Chunk   int    `json:"chunk"`
	Message string `json:"message"`
}

type Result struct {
	Report      *models.Report `json:"report"`
	Chunks      int            `json:"chunks"`
	Rows        int            `json:"rows"`
	ChunkErrors []ChunkError   `json:"chunk_errors,omitempty"`
	// Partial is set when some chunks failed but the rest were reported.
	Partial bool `json:"partial"`
	Merged  bool `json:"merged"`
}

type Pipeline struct {
	gen    Generator
	opts   Options
	logger *slog.Logger
}

func NewPipeline(gen Generator, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Sleep == nil {
		opts.Sleep = retry.ContextSleep
	}
	if opts.Retryable == nil {
		opts.Retryable = gemini.IsRateLimited
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.MergeMode == "" {
		opts.MergeMode = config.MergeModel
	}
	return &Pipeline{gen: gen, opts: opts, logger: logger}
}

type fragment struct {
	raw    string
	report *models.Report
}

// Run executes parse -> chunk -> analyse each chunk -> merge. It issues one
// request at a time and waits RequestDelay between requests. Chunk failures
// are recorded and skipped; the run fails only when the CSV is unusable, no
// chunk succeeds, the merge fails, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, csvData []byte, onProgress ProgressFunc) (*Result, error) {
	t := newTracker(onProgress)
	result, err := p.run(ctx, csvData, t)
	if err != nil {
		status := err.Error()
		if ctx.Err() != nil {
			status = "Cancelled"
		}
		t.status(StateFailed, status)
		return result, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, csvData []byte, t *tracker) (*Result, error) {
	t.set(StateParsing, 0, "Parsing and chunking CSV...")
	table, err := csvchunk.ParseBytes(csvData)
	if err != nil {
		return nil, err
	}

	t.status(StateChunking, fmt.Sprintf("Chunking %d rows...", len(table.Rows)))
	chunks, err := p.opts.Sizing.Split(table.Rows)
	if err != nil {
		return nil, err
	}

	total := len(chunks)
	merging := p.opts.MergeMode == config.MergeModel && total > 1
	steps := total
	if merging {
		steps++
	}

	p.logger.Info("insights run started",
		"rows", len(table.Rows),
		"chunks", total,
		"rows_per_chunk", p.opts.Sizing.RowsPerChunk(),
		"overlap_rows", p.opts.Sizing.OverlapRows(),
		"merge_mode", p.opts.MergeMode)

	result := &Result{Chunks: total, Rows: len(table.Rows)}
	fragments := make([]fragment, 0, total)

	for i, chunk := range chunks {
		t.update(func(pr *Progress) {
			pr.State = StateProcessingChunk
			pr.Percent = percent(i, steps)
			pr.Status = fmt.Sprintf("Processing chunk %d of %d...", i+1, total)
			pr.Chunk = i + 1
			pr.TotalChunks = total
		})

		frag, err := p.analyzeChunk(ctx, table, chunk, total, t)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("insights run cancelled: %w", ctx.Err())
			}
			msg := userMessage(err)
			result.ChunkErrors = append(result.ChunkErrors, ChunkError{Chunk: i + 1, Message: msg})
			p.logger.Warn("chunk failed", "chunk", i+1, "total", total, "error", err)
		} else {
			fragments = append(fragments, *frag)
			p.logger.Info("chunk processed", "chunk", i+1, "total", total, "findings", frag.report.Findings())
		}

		t.update(func(pr *Progress) { pr.Percent = percent(i+1, steps) })

		if i < total-1 {
			if err := p.wait(ctx, t, "next request"); err != nil {
				return result, err
			}
		}
	}

	if len(fragments) == 0 {
		last := result.ChunkErrors[len(result.ChunkErrors)-1]
		return result, fmt.Errorf("%w: %s", ErrAllChunksFailed, last.Message)
	}
	result.Partial = len(result.ChunkErrors) > 0

	switch {
	case len(fragments) == 1:
		result.Report = fragments[0].report
	case p.opts.MergeMode == config.MergeConcat:
		result.Report = models.Empty()
		for _, f := range fragments {
			result.Report.Append(f.report)
		}
	default:
		if err := p.wait(ctx, t, "merge request"); err != nil {
			return result, err
		}
		t.status(StateMerging, "Merging all chunk insights...")
		report, err := p.merge(ctx, fragments, t)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("insights run cancelled: %w", ctx.Err())
			}
			return result, fmt.Errorf("%w: %s", ErrMergeFailed, userMessage(err))
		}
		result.Report = report
		result.Merged = true
	}

	done := "All chunks processed and merged."
	if result.Partial {
		done = fmt.Sprintf("Finished with %d of %d chunks failed.", len(result.ChunkErrors), total)
	}
	t.set(StateDone, 100, done)
	p.logger.Info("insights run finished",
		"chunks", total,
		"failed_chunks", len(result.ChunkErrors),
		"merged", result.Merged,
		"findings", result.Report.Findings())
	return result, nil
}

func (p *Pipeline) analyzeChunk(ctx context.Context, table *csvchunk.Table, chunk csvchunk.Chunk, total int, t *tracker) (*fragment, error) {
	chunkCSV, err := table.Encode(chunk)
	if err != nil {
		return nil, err
	}
	prompt := chunkPrompt(string(chunkCSV), chunk.Index+1, total)

	if p.opts.CountTokens {
		p.countTokens(ctx, prompt, chunk.Index+1)
	}

	raw, report, err := p.request(ctx, "chunk", prompt, t)
	metrics.RecordAIRequest("chunk", err)
	if err != nil {
		return nil, err
	}
	return &fragment{raw: raw, report: report}, nil
}

func (p *Pipeline) merge(ctx context.Context, fragments []fragment, t *tracker) (*models.Report, error) {
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.raw
	}
	_, report, err := p.request(ctx, "merge", mergePrompt(texts), t)
	metrics.RecordAIRequest("merge", err)
	return report, err
}

// request sends prompt under the retry policy and decodes the report. A body
// that fails to decode is not retried.
func (p *Pipeline) request(ctx context.Context, kind, prompt string, t *tracker) (string, *models.Report, error) {
	type answer struct {
		raw    string
		report *models.Report
	}

	policy := p.policy(kind, t)
	out, err := retry.Do(ctx, policy, func(ctx context.Context) (answer, error) {
		reqCtx, cancel := p.withTimeout(ctx)
		defer cancel()

		raw, err := p.gen.GenerateJSON(reqCtx, prompt, gemini.ReportSchema())
		if err != nil {
			return answer{}, err
		}
		report, err := models.DecodeReport(raw)
		if err != nil {
			return answer{}, err
		}
		return answer{raw: raw, report: report}, nil
	})
	if err != nil {
		return "", nil, err
	}
	return out.raw, out.report, nil
}

func (p *Pipeline) policy(kind string, t *tracker) retry.Policy {
	return retry.Policy{
		MaxAttempts: p.opts.MaxAttempts,
		Cooldown:    p.opts.RateLimitCooldown,
		Retryable:   p.opts.Retryable,
		Sleep:       p.opts.Sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.RateLimitedTotal.Inc()
			p.logger.Warn("rate limited, cooling down",
				"kind", kind,
				"attempt", attempt,
				"max_attempts", p.opts.MaxAttempts,
				"wait", wait,
				"error", err)
			if t != nil {
				t.status(StateWaiting, fmt.Sprintf("Rate limited (429). Waiting %s before retrying... (Attempt %d/%d)",
					formatWait(wait), attempt, p.opts.MaxAttempts))
			}
		},
	}
}

func (p *Pipeline) wait(ctx context.Context, t *tracker, next string) error {
	if p.opts.RequestDelay <= 0 {
		return nil
	}
	t.status(StateWaiting, fmt.Sprintf("Waiting %s before %s...", formatWait(p.opts.RequestDelay), next))
	if err := p.opts.Sleep(ctx, p.opts.RequestDelay); err != nil {
		return fmt.Errorf("insights run cancelled: %w", err)
	}
	return nil
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.RequestTimeout)
}

// countTokens logs the prompt size. Failures are ignored.
func (p *Pipeline) countTokens(ctx context.Context, prompt string, chunk int) {
	reqCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	tokens, err := p.gen.CountTokens(reqCtx, prompt)
	if err != nil {
		p.logger.Debug("token count unavailable", "chunk", chunk, "error", err)
		return
	}
	p.logger.Debug("token count for chunk prompt", "chunk", chunk, "tokens", tokens)
}

// SummarizeGroup asks for a compact trend summary of one SKU group. Only the
// first chunk of the file is sent.
func (p *Pipeline) SummarizeGroup(ctx context.Context, group string, csvData []byte) (*models.SKUGroupInsights, error) {
	table, err := csvchunk.ParseBytes(csvData)
	if err != nil {
		return nil, err
	}
	chunks, err := p.opts.Sizing.Split(table.Rows)
	if err != nil {
		return nil, err
	}
	chunkCSV, err := table.Encode(chunks[0])
	if err != nil {
		return nil, err
	}
	prompt := skuGroupPrompt(group, string(chunkCSV))

	out, err := retry.Do(ctx, p.policy("summary", nil), func(ctx context.Context) (*models.SKUGroupInsights, error) {
		reqCtx, cancel := p.withTimeout(ctx)
		defer cancel()

		raw, err := p.gen.GenerateJSON(reqCtx, prompt, gemini.SKUGroupSchema())
		if err != nil {
			return nil, err
		}
		return models.DecodeSKUGroupInsights(raw)
	})
	metrics.RecordAIRequest("summary", err)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize group %q: %s: %w", group, userMessage(err), err)
	}
	return out, nil
}

// userMessage turns a request error into the text shown to the user.
func userMessage(err error) string {
	var status *gemini.StatusError
	switch {
	case retry.IsExhausted(err):
		var exhausted *retry.ExhaustedError
		errors.As(err, &exhausted)
		return fmt.Sprintf("Failed to generate insights after %d attempts. Last error: %v", exhausted.Attempts, exhausted.Err)
	case errors.Is(err, models.ErrInvalidResponse):
		return "Received invalid response format from AI service."
	case errors.Is(err, gemini.ErrNoContent):
		return "No valid response received from AI service."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request to AI service timed out."
	case errors.As(err, &status):
		return status.Error()
	default:
		return err.Error()
	}
}

func formatWait(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
