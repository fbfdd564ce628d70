package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")
	ErrNoContent     = errors.New("no content generated")
)

const DefaultModel = "gemini-2.0-flash-exp"

type Options struct {
	APIKey      string
	Model       string
	Temperature float32
	TopP        float32
	// Endpoint overrides the API host; used for local fakes.
	Endpoint string
}

// Client issues JSON-constrained generation and token counting requests.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	topP        float32
}

// NewClient fails fast when no API key is configured so that no request is
// ever attempted without credentials.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.4
	}
	if opts.TopP == 0 {
		opts.TopP = 0.95
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:      client,
		model:       opts.Model,
		temperature: opts.Temperature,
		topP:        opts.TopP,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Model() string { return c.model }

// GenerateJSON sends prompt and asks for a JSON body matching schema. The raw
// JSON text of the first candidate is returned.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	model.SetTopP(c.topP)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = schema

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", classify(err))
	}

	return responseText(resp)
}

// CountTokens reports how many input tokens prompt costs for the model.
func (c *Client) CountTokens(ctx context.Context, prompt string) (int, error) {
	model := c.client.GenerativeModel(c.model)
	resp, err := model.CountTokens(ctx, genai.Text(prompt))
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", classify(err))
	}
	return int(resp.TotalTokens), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoContent
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", ErrNoContent
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrNoContent
	}
	return b.String(), nil
}
