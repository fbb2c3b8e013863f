package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicBaseURL      = "https://api.anthropic.com/v1/messages"
	anthropicDefaultModel = "claude-sonnet-4-5"
)

// Anthropic Messages API wire types.

type anthropicRequest struct {
	Model     string               `json:"model"`
	Messages  []anthropicMessage   `json:"messages"`
	System    []anthropicSystemBlk `json:"system,omitempty"`
	MaxTokens int                  `json:"max_tokens"`
	Tools     []anthropicToolDef   `json:"tools,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type anthropicSystemBlk struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicCacheControl struct {
	Type string `json:"type"` // must be "ephemeral"
}

type anthropicToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// anthropicMessage carries structured content blocks. Plain text messages
// use a single text block; tool interactions use tool_use/tool_result
// blocks; binary documents use document blocks with base64 sources.
type anthropicMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicDocumentBlock struct {
	Type   string                  `json:"type"`
	Source anthropicDocumentSource `json:"source"`
}

type anthropicDocumentSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicResponse struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Content    []json.RawMessage `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      anthropicUsage    `json:"usage"`
	Error      *anthropicError   `json:"error,omitempty"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicAdapter calls the Anthropic Messages API directly over HTTP and
// implements ProviderAdapter. Tool use, document blocks, and stop reasons
// are passed through natively.
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an AnthropicAdapter.
type AnthropicOption func(*AnthropicAdapter)

// WithBaseURL overrides the API endpoint, for tests and proxies.
func WithBaseURL(url string) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.baseURL = url
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.httpClient = client
	}
}

// NewAnthropicAdapter creates an adapter authenticated with the given key.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicOption) *AnthropicAdapter {
	a := &AnthropicAdapter{
		apiKey:     apiKey,
		baseURL:    anthropicBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends a blocking request and returns the full response.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	payload, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	slog.Debug("anthropic request",
		slog.String("model", payload.Model),
		slog.Int("messages", len(payload.Messages)),
		slog.Int("tools", len(payload.Tools)),
	)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, &NetworkError{SDKError: SDKError{Message: "anthropic request failed", Cause: err}}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "reading anthropic response", Cause: err}}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, a.translateHTTPError(resp.StatusCode, respBody)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("anthropic: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, &ProviderError{
			SDKError:  SDKError{Message: apiResp.Error.Message},
			Provider:  "anthropic",
			ErrorCode: apiResp.Error.Type,
		}
	}

	return a.translateResponse(apiResp), nil
}

// translateRequest converts a unified Request into the Anthropic wire format.
func (a *AnthropicAdapter) translateRequest(req Request) (*anthropicRequest, error) {
	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	out := &anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			blk := anthropicSystemBlk{Type: "text", Text: msg.TextContent()}
			// Long system prompts are marked cacheable to cut input cost
			// across the iterative turn loop.
			if len(blk.Text) > 1024 {
				blk.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
			}
			out.System = append(out.System, blk)

		case RoleTool:
			// Tool results travel as user messages with tool_result blocks.
			var blocks []interface{}
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					blocks = append(blocks, anthropicToolResultBlock{
						Type:      "tool_result",
						ToolUseID: part.ToolResult.ToolCallID,
						Content:   part.ToolResult.Content,
						IsError:   part.ToolResult.IsError,
					})
				}
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, anthropicMessage{Role: "user", Content: blocks})
			}

		case RoleUser, RoleAssistant:
			var blocks []interface{}
			for _, part := range msg.Content {
				switch part.Kind {
				case ContentText:
					if part.Text != "" {
						blocks = append(blocks, anthropicTextBlock{Type: "text", Text: part.Text})
					}
				case ContentDocument:
					if part.Document != nil {
						blocks = append(blocks, anthropicDocumentBlock{
							Type: "document",
							Source: anthropicDocumentSource{
								Type:      "base64",
								MediaType: part.Document.MediaType,
								Data:      base64.StdEncoding.EncodeToString(part.Document.Data),
							},
						})
					}
				case ContentToolCall:
					if part.ToolCall != nil {
						input := part.ToolCall.Arguments
						if len(input) == 0 {
							input = json.RawMessage(`{}`)
						}
						blocks = append(blocks, anthropicToolUseBlock{
							Type:  "tool_use",
							ID:    part.ToolCall.ID,
							Name:  part.ToolCall.Name,
							Input: input,
						})
					}
				}
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, anthropicMessage{Role: string(msg.Role), Content: blocks})
			}
		}
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, anthropicToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	return out, nil
}

// translateResponse converts an Anthropic response into the unified shape.
func (a *AnthropicAdapter) translateResponse(apiResp anthropicResponse) *Response {
	var parts []ContentPart
	for _, raw := range apiResp.Content {
		var block anthropicContentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			slog.Warn("anthropic: skipping unparseable content block", "error", err)
			continue
		}
		switch block.Type {
		case "text":
			parts = append(parts, TextPart(block.Text))
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			parts = append(parts, ToolCallPart(block.ID, block.Name, input))
		}
	}

	return &Response{
		ID:       apiResp.ID,
		Model:    apiResp.Model,
		Provider: "anthropic",
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		StopReason: StopReason(apiResp.StopReason),
		RawStop:    apiResp.StopReason,
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
	}
}

// translateHTTPError maps a non-200 response to the error hierarchy,
// preferring the API's own error type and message when the body parses.
func (a *AnthropicAdapter) translateHTTPError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	errorCode := ""

	var envelope struct {
		Error *anthropicError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		message = envelope.Error.Message
		errorCode = envelope.Error.Type
	}
	if errorCode == "overloaded_error" && status != 529 {
		status = 529
	}

	return ErrorFromStatusCode(status, message, "anthropic", errorCode)
}
