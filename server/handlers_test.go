package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolens/foliolens/analysis"
	"github.com/foliolens/foliolens/llm"
	"github.com/foliolens/foliolens/refdata"
	"github.com/foliolens/foliolens/sse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedAdapter plays canned responses in order.
type scriptedAdapter struct {
	responses []*llm.Response
	errs      []error
	calls     int
	idx       int
}

func (s *scriptedAdapter) Name() string { return "mock" }

func (s *scriptedAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.calls++
	i := s.idx
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.idx++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

const finalAnswer = "```json\n" + `{
	"markdown": "# Analysis",
	"chartData": {
		"allocation": [{"name": "Stocks", "value": 60}],
		"riskComparison": [{"label": "Volatility", "portfolio": 12, "benchmark": 14}]
	}
}` + "\n```"

func answerResponse() *llm.Response {
	return &llm.Response{
		ID:         "resp",
		Provider:   "mock",
		Message:    llm.AssistantMessage(finalAnswer),
		StopReason: llm.StopEndTurn,
		RawStop:    "end_turn",
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 300},
	}
}

func toolThenAnswer() *scriptedAdapter {
	return &scriptedAdapter{responses: []*llm.Response{
		{
			ID:       "resp_tool",
			Provider: "mock",
			Message: llm.Message{
				Role: llm.RoleAssistant,
				Content: []llm.ContentPart{
					llm.ToolCallPart("t1", analysis.ToolAssetClassMetrics, json.RawMessage(`{"asset_class":"us_large_cap"}`)),
				},
			},
			StopReason: llm.StopToolUse,
			RawStop:    "tool_use",
			Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
		},
		answerResponse(),
	}}
}

func testRouter(adapter llm.ProviderAdapter) (*gin.Engine, *Handlers) {
	cfg := Config{
		Addr:             ":0",
		Provider:         "mock",
		MaxOutputTokens:  8192,
		Temperature:      -1,
		RequestTimeout:   time.Minute,
		MaxDocumentBytes: 1 << 20,
		MaxDocuments:     5,
		StreamGraceDelay: 0,
		BatchWindow:      2,
	}

	client := llm.NewClient(llm.WithProvider("mock", adapter))
	table := refdata.NewTable()
	registry := analysis.NewToolRegistry()
	analysis.RegisterMarketDataTools(registry, table)

	handlers := NewHandlers(cfg, client, registry, table, nil)
	router := gin.New()
	RegisterRoutes(router, handlers)
	return router, handlers
}

func analyzeBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(AnalyzeRequest{
		Documents: []DocumentPayload{{Name: "portfolio.txt", Text: "60% VTI, 40% BND"}},
		Profile:   InvestorProfile{RiskTolerance: "balanced", HorizonYears: 20},
	})
	require.NoError(t, err)
	return body
}

func postSSE(t *testing.T, router *gin.Engine, body []byte) []sse.Event {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	events, err := sse.NewReader(rec.Body, nil).ReadAll(context.Background())
	require.NoError(t, err)
	return events
}

func TestStreamingAnalysisEndToEnd(t *testing.T) {
	router, _ := testRouter(toolThenAnswer())
	events := postSSE(t, router, analyzeBody(t))

	// Opening progress, one per tool call, terminal result.
	require.Len(t, events, 4)
	assert.Equal(t, sse.TypeProgress, events[0].Type)
	assert.Equal(t, 0, events[0].Step)
	assert.Equal(t, sse.TypeProgress, events[1].Type)
	assert.Contains(t, events[1].Label, "us large cap")
	assert.Equal(t, 100, events[2].Step)

	terminal := events[3]
	require.Equal(t, sse.TypeResult, terminal.Type)

	var payload resultPayload
	require.NoError(t, json.Unmarshal(terminal.Data, &payload))
	assert.True(t, payload.Analysis.Valid())
	assert.Equal(t, 2, payload.Metadata.Iterations)
	assert.Equal(t, 1, payload.Metadata.ToolCalls)
}

func TestStreamingExactlyOneTerminalEvent(t *testing.T) {
	router, _ := testRouter(&scriptedAdapter{
		responses: []*llm.Response{nil},
		errs:      []error{llm.ErrorFromStatusCode(529, "overloaded", "anthropic", "overloaded_error")},
	})
	events := postSSE(t, router, analyzeBody(t))

	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	last := events[len(events)-1]
	assert.Equal(t, sse.TypeError, last.Type)
	assert.Contains(t, last.Error, "overloaded")
}

func TestStreamingValidationFailureNoBackendCall(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{answerResponse()}}
	router, _ := testRouter(adapter)

	tests := []struct {
		name string
		body string
	}{
		{"no documents", `{"documents":[],"profile":{"riskTolerance":"balanced","horizonYears":20}}`},
		{"bad risk tolerance", `{"documents":[{"name":"a.txt","text":"x"}],"profile":{"riskTolerance":"yolo","horizonYears":20}}`},
		{"text and binary both set", `{"documents":[{"name":"a.txt","text":"x","base64Data":"eA=="}],"profile":{"riskTolerance":"balanced","horizonYears":20}}`},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze/stream", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Zero(t, adapter.calls, "validation failures must not reach the backend")
}

func TestNonStreamingAnalysis(t *testing.T) {
	router, _ := testRouter(&scriptedAdapter{responses: []*llm.Response{answerResponse()}})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(analyzeBody(t)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool          `json:"success"`
		Data    resultPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "# Analysis", envelope.Data.Analysis.Markdown)
}

func TestNonStreamingFailureStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantClass  analysis.FailureClass
	}{
		{
			name:       "backend unavailable",
			err:        llm.ErrorFromStatusCode(401, "bad key", "anthropic", ""),
			wantStatus: http.StatusServiceUnavailable,
			wantClass:  analysis.FailBackendUnavailable,
		},
		{
			name:       "server error",
			err:        llm.ErrorFromStatusCode(500, "oops", "anthropic", ""),
			wantStatus: http.StatusBadGateway,
			wantClass:  analysis.FailBackend,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := testRouter(&scriptedAdapter{
				responses: []*llm.Response{nil},
				errs:      []error{tt.err},
			})

			req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(analyzeBody(t)))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.wantClass), resp.Class)
		})
	}
}

func TestBulkReturnsEndpoint(t *testing.T) {
	router, _ := testRouter(&scriptedAdapter{responses: []*llm.Response{answerResponse()}})

	body := `{"assetClasses":["us_large_cap","us_bonds","not_a_class"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/returns/bulk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool        `json:"success"`
		Data    []bulkEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 3)
	assert.Equal(t, "us_large_cap", envelope.Data[0].AssetClass)
	assert.False(t, envelope.Data[0].Error)
	assert.True(t, envelope.Data[2].Error, "unknown class surfaces as a per-entry error")
}

func TestBulkReturnsValidation(t *testing.T) {
	router, _ := testRouter(&scriptedAdapter{responses: []*llm.Response{answerResponse()}})

	req := httptest.NewRequest(http.MethodPost, "/v1/returns/bulk", strings.NewReader(`{"assetClasses":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(&scriptedAdapter{responses: []*llm.Response{answerResponse()}})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string   `json:"status"`
		Tools  []string `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Contains(t, body.Tools, analysis.ToolAssetClassMetrics)
}

func TestAssetClassesEndpoint(t *testing.T) {
	router, _ := testRouter(&scriptedAdapter{responses: []*llm.Response{answerResponse()}})

	req := httptest.NewRequest(http.MethodGet, "/v1/asset-classes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "us_large_cap")
}
