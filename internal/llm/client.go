package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultEndpoint is the OpenRouter chat completions URL.
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxToolRounds caps tool-call round trips per completion.
	DefaultMaxToolRounds = 5

	// resultPreviewLen bounds tool result previews in tool call records.
	resultPreviewLen = 200
)

// maxToolRoundsContent is returned as the completion content when a model
// keeps calling tools past the round limit.
const maxToolRoundsContent = "Max tool calls reached without final response."

// Client is the OpenRouter API client. It implements Gateway.
type Client struct {
	endpoint      string
	apiKey        string
	appTitle      string
	httpClient    *http.Client
	maxToolRounds int
	log           zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the chat completions URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxToolRounds overrides the tool-call round limit.
func WithMaxToolRounds(n int) Option {
	return func(c *Client) { c.maxToolRounds = n }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "llm").Logger() }
}

// NewClient creates an OpenRouter client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:      DefaultEndpoint,
		apiKey:        apiKey,
		appTitle:      "Quorum",
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		maxToolRounds: DefaultMaxToolRounds,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenRouter API types (OpenAI-compatible)
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []ToolDef `json:"tools,omitempty"`
	Stream   bool      `json:"stream,omitempty"`
}

type chatCompletion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends a plain completion request.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key not configured")
	}

	start := time.Now()
	completion, err := c.complete(ctx, chatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, err
	}

	var content, finishReason string
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
		finishReason = completion.Choices[0].FinishReason
	}

	return &ChatResponse{
		Content:          content,
		Model:            completion.Model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TokensUsed:       completion.Usage.TotalTokens,
		Duration:         time.Since(start),
		FinishReason:     finishReason,
	}, nil
}

// ChatWithTools runs a completion with tool-call resolution. Tool execution
// failures are surfaced to the model as result text so it can recover;
// round-trip limit exhaustion yields a sentinel content string rather than
// an error.
func (c *Client) ChatWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, exec ToolExecutor) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key not configured")
	}

	start := time.Now()
	conversation := append([]Message(nil), messages...)
	var made []ToolCallRecord

	for round := 0; round < c.maxToolRounds; round++ {
		completion, err := c.complete(ctx, chatRequest{Model: model, Messages: conversation, Tools: tools})
		if err != nil {
			return nil, err
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("model %s returned no choices", model)
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return &ChatResponse{
				Content:          msg.Content,
				Model:            completion.Model,
				PromptTokens:     completion.Usage.PromptTokens,
				CompletionTokens: completion.Usage.CompletionTokens,
				TokensUsed:       completion.Usage.TotalTokens,
				Duration:         time.Since(start),
				FinishReason:     completion.Choices[0].FinishReason,
				ToolCallsMade:    made,
			}, nil
		}

		conversation = append(conversation, msg)
		for _, call := range msg.ToolCalls {
			record, resultMsg := c.resolveToolCall(ctx, call, exec)
			made = append(made, record)
			conversation = append(conversation, resultMsg)
		}
	}

	c.log.Warn().Str("model", model).Int("rounds", c.maxToolRounds).
		Msg("tool round limit reached")

	return &ChatResponse{
		Content:       maxToolRoundsContent,
		Model:         model,
		Duration:      time.Since(start),
		ToolCallsMade: made,
	}, nil
}

// resolveToolCall executes one tool call and packages both the audit record
// and the tool-role message to feed back to the model.
func (c *Client) resolveToolCall(ctx context.Context, call ToolCall, exec ToolExecutor) (ToolCallRecord, Message) {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		args = map[string]any{}
	}

	var result string
	if exec == nil {
		result = fmt.Sprintf("Unknown tool: %s", call.Function.Name)
	} else if out, err := exec(ctx, call.Function.Name, args); err != nil {
		result = fmt.Sprintf("Error executing tool: %v", err)
	} else {
		result = out
	}

	c.log.Debug().Str("tool", call.Function.Name).Int("result_len", len(result)).
		Msg("tool call resolved")

	return ToolCallRecord{
			Tool:          call.Function.Name,
			Args:          args,
			ResultPreview: previewOf(result),
		}, Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    result,
		}
}

func previewOf(result string) string {
	if len(result) > resultPreviewLen {
		return result[:resultPreviewLen] + "..."
	}
	return result
}

// complete performs one non-streaming completion round trip.
func (c *Client) complete(ctx context.Context, req chatRequest) (*chatCompletion, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var completion chatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &completion, nil
}

// post issues the HTTP request shared by streaming and non-streaming paths.
func (c *Client) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", c.appTitle)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}
