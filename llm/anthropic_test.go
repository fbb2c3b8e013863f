package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicTestServer(t *testing.T, status int, response string, captured *anthropicRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("expected x-api-key header %q, got %q", "test-key", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("expected anthropic-version %q, got %q", anthropicAPIVersion, got)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decoding request body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
}

func TestAnthropicCompleteText(t *testing.T) {
	var captured anthropicRequest
	srv := anthropicTestServer(t, 200, `{
		"id": "msg_01",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "The portfolio is well diversified."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 120, "output_tokens": 45}
	}`, &captured)
	defer srv.Close()

	adapter := NewAnthropicAdapter("test-key", WithBaseURL(srv.URL))
	resp, err := adapter.Complete(context.Background(), Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			SystemMessage("You are an analyst."),
			UserMessage("Analyze this."),
		},
		MaxTokens: 2048,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text() != "The portfolio is well diversified." {
		t.Errorf("unexpected text: %q", resp.Text())
	}
	if resp.StopReason != StopEndTurn {
		t.Errorf("expected stop reason %q, got %q", StopEndTurn, resp.StopReason)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 45 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}

	// System prompt travels as a top-level system block, not a message.
	if len(captured.System) != 1 {
		t.Fatalf("expected 1 system block, got %d", len(captured.System))
	}
	if captured.System[0].Text != "You are an analyst." {
		t.Errorf("unexpected system text: %q", captured.System[0].Text)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "user" {
		t.Errorf("expected user role, got %q", captured.Messages[0].Role)
	}
	if captured.MaxTokens != 2048 {
		t.Errorf("expected max_tokens 2048, got %d", captured.MaxTokens)
	}
}

func TestAnthropicCompleteToolUse(t *testing.T) {
	srv := anthropicTestServer(t, 200, `{
		"id": "msg_02",
		"model": "claude-sonnet-4-5",
		"content": [
			{"type": "text", "text": "Let me look that up."},
			{"type": "tool_use", "id": "toolu_01", "name": "get_asset_class_metrics", "input": {"asset_class": "us_bonds"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 200, "output_tokens": 30}
	}`, nil)
	defer srv.Close()

	adapter := NewAnthropicAdapter("test-key", WithBaseURL(srv.URL))
	resp, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{UserMessage("What are bond returns?")},
		Tools: []ToolDefinition{{
			Name:        "get_asset_class_metrics",
			Description: "Look up metrics",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.StopReason != StopToolUse {
		t.Errorf("expected stop reason %q, got %q", StopToolUse, resp.StopReason)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "toolu_01" || calls[0].Name != "get_asset_class_metrics" {
		t.Errorf("unexpected tool call: %+v", calls[0])
	}

	var args map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("parsing tool arguments: %v", err)
	}
	if args["asset_class"] != "us_bonds" {
		t.Errorf("expected asset_class us_bonds, got %q", args["asset_class"])
	}
}

func TestAnthropicToolResultRoundTrip(t *testing.T) {
	var captured anthropicRequest
	srv := anthropicTestServer(t, 200, `{
		"id": "msg_03",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "done"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`, &captured)
	defer srv.Close()

	adapter := NewAnthropicAdapter("test-key", WithBaseURL(srv.URL))
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{
			UserMessage("Analyze"),
			{
				Role: RoleAssistant,
				Content: []ContentPart{
					ToolCallPart("toolu_01", "get_asset_class_metrics", json.RawMessage(`{"asset_class":"cash"}`)),
				},
			},
			ToolResultMessage("toolu_01", "cash: 2.5% return", false),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}
	// Tool results travel as a user message.
	if captured.Messages[2].Role != "user" {
		t.Errorf("expected tool results as user role, got %q", captured.Messages[2].Role)
	}
}

func TestAnthropicDocumentBlock(t *testing.T) {
	var captured anthropicRequest
	srv := anthropicTestServer(t, 200, `{
		"id": "msg_04",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "read it"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 500, "output_tokens": 5}
	}`, &captured)
	defer srv.Close()

	adapter := NewAnthropicAdapter("test-key", WithBaseURL(srv.URL))
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{{
			Role: RoleUser,
			Content: []ContentPart{
				TextPart("Analyze the attached statement."),
				DocumentPart([]byte("%PDF-1.4 fake"), "application/pdf", "statement.pdf"),
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(captured.Messages))
	}
	if len(captured.Messages[0].Content) != 2 {
		t.Errorf("expected 2 content blocks, got %d", len(captured.Messages[0].Content))
	}
}

func TestAnthropicErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "authentication",
			status: 401,
			body:   `{"error": {"type": "authentication_error", "message": "invalid x-api-key"}}`,
			check: func(t *testing.T, err error) {
				var target *AuthenticationError
				if !errors.As(err, &target) {
					t.Errorf("expected AuthenticationError, got %T", err)
				}
			},
		},
		{
			name:   "rate limit",
			status: 429,
			body:   `{"error": {"type": "rate_limit_error", "message": "slow down"}}`,
			check: func(t *testing.T, err error) {
				var target *RateLimitError
				if !errors.As(err, &target) {
					t.Errorf("expected RateLimitError, got %T", err)
				}
			},
		},
		{
			name:   "overloaded",
			status: 529,
			body:   `{"error": {"type": "overloaded_error", "message": "overloaded"}}`,
			check: func(t *testing.T, err error) {
				var target *OverloadedError
				if !errors.As(err, &target) {
					t.Errorf("expected OverloadedError, got %T", err)
				}
			},
		},
		{
			name:   "overloaded type on different status",
			status: 500,
			body:   `{"error": {"type": "overloaded_error", "message": "overloaded"}}`,
			check: func(t *testing.T, err error) {
				var target *OverloadedError
				if !errors.As(err, &target) {
					t.Errorf("expected OverloadedError for overloaded_error type, got %T", err)
				}
			},
		},
		{
			name:   "invalid request",
			status: 400,
			body:   `{"error": {"type": "invalid_request_error", "message": "max_tokens required"}}`,
			check: func(t *testing.T, err error) {
				var target *InvalidRequestError
				if !errors.As(err, &target) {
					t.Errorf("expected InvalidRequestError, got %T", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := anthropicTestServer(t, tt.status, tt.body, nil)
			defer srv.Close()

			adapter := NewAnthropicAdapter("test-key", WithBaseURL(srv.URL))
			_, err := adapter.Complete(context.Background(), Request{
				Messages: []Message{UserMessage("hi")},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestAnthropicSystemPromptCaching(t *testing.T) {
	var captured anthropicRequest
	srv := anthropicTestServer(t, 200, `{
		"id": "msg_05",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "ok"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 2}
	}`, &captured)
	defer srv.Close()

	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'a'
	}

	adapter := NewAnthropicAdapter("test-key", WithBaseURL(srv.URL))
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{
			SystemMessage(string(long)),
			UserMessage("hi"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured.System) != 1 {
		t.Fatalf("expected 1 system block, got %d", len(captured.System))
	}
	if captured.System[0].CacheControl == nil || captured.System[0].CacheControl.Type != "ephemeral" {
		t.Error("expected long system prompt to carry ephemeral cache control")
	}
}
