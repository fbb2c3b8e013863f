package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/foliolens/foliolens/analysis"
	"github.com/foliolens/foliolens/llm"
	"github.com/foliolens/foliolens/sse"
)

// Handlers carries the wiring the HTTP endpoints need. One instance serves
// all requests; per-request state lives in the handler frames.
type Handlers struct {
	cfg      Config
	client   *llm.Client
	registry *analysis.ToolRegistry
	refdata  analysis.ReferenceData
	logger   *slog.Logger
}

// NewHandlers builds the handler set. logger may be nil.
func NewHandlers(cfg Config, client *llm.Client, registry *analysis.ToolRegistry, data analysis.ReferenceData, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{cfg: cfg, client: client, registry: registry, refdata: data, logger: logger}
}

// resultPayload is the data field of the terminal result event and the
// body of a successful non-streaming response.
type resultPayload struct {
	Analysis *analysis.AnalysisResult `json:"analysis"`
	Metadata *analysis.RunMetadata    `json:"metadata"`
}

// HandleAnalyzeStream runs an analysis and streams progress and the
// terminal event over SSE. Exactly one terminal event is always written,
// including on an internal panic, so callers never hang on a silent
// stream.
func (h *Handlers) HandleAnalyzeStream(c *gin.Context) {
	analysisRequests.WithLabelValues("stream").Inc()

	req, ok := h.bindAnalyzeRequest(c)
	if !ok {
		return
	}

	writer, err := sse.NewWriter(c.Writer, sse.WithGraceDelay(h.cfg.StreamGraceDelay))
	if err != nil {
		h.logger.Error("stream unsupported by response writer", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}
	defer writer.Close()

	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID, "mode", req.ModeName())

	terminalSent := false
	sendTerminal := func(ev sse.Event, class string) {
		if terminalSent {
			return
		}
		terminalSent = true
		terminalEvents.WithLabelValues(class).Inc()
		if err := writer.Send(ev); err != nil {
			logger.Warn("writing terminal event", "error", err)
		}
	}

	// Guarantee the terminal event even if the pipeline panics.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("analysis panicked", "panic", r)
			sendTerminal(sse.Error("internal error"), "panic")
		}
	}()

	progress := func(step, total int, label string) {
		if err := writer.Send(sse.Progress(step, total, label)); err != nil {
			logger.Warn("writing progress event", "error", err)
		}
	}

	result, meta, runErr := h.runAnalysis(c.Request.Context(), req, progress)
	if runErr != nil {
		class := string(analysis.ClassOf(runErr))
		logger.Warn("analysis failed", "class", class, "error", runErr)
		sendTerminal(sse.Error(runErr.Error()), class)
		return
	}

	h.recordRun(meta)
	payload, err := json.Marshal(resultPayload{Analysis: result, Metadata: meta})
	if err != nil {
		logger.Error("encoding result payload", "error", err)
		sendTerminal(sse.Error("internal error encoding result"), "encode_failure")
		return
	}
	logger.Info("analysis complete",
		"iterations", meta.Iterations,
		"tool_calls", meta.ToolCalls,
		"input_tokens", meta.InputTokens,
		"output_tokens", meta.OutputTokens,
		"duration_ms", meta.DurationMs)
	sendTerminal(sse.Result(payload), "ok")
}

// HandleAnalyze runs an analysis and returns the result as one JSON
// envelope. Progress events are dropped; the shape of the data matches
// the streaming endpoint's terminal result event.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	analysisRequests.WithLabelValues("json").Inc()

	req, ok := h.bindAnalyzeRequest(c)
	if !ok {
		return
	}

	result, meta, runErr := h.runAnalysis(c.Request.Context(), req, nil)
	if runErr != nil {
		class := analysis.ClassOf(runErr)
		terminalEvents.WithLabelValues(string(class)).Inc()
		c.JSON(statusForClass(class), ErrorResponse{
			Error: runErr.Error(),
			Class: string(class),
		})
		return
	}

	h.recordRun(meta)
	terminalEvents.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resultPayload{Analysis: result, Metadata: meta},
	})
}

func (h *Handlers) bindAnalyzeRequest(c *gin.Context) (*AnalyzeRequest, bool) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		terminalEvents.WithLabelValues(string(analysis.FailValidation)).Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Class: string(analysis.FailValidation),
		})
		return nil, false
	}
	if err := req.Validate(h.cfg); err != nil {
		terminalEvents.WithLabelValues(string(analysis.FailValidation)).Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Class: string(analysis.FailValidation),
		})
		return nil, false
	}
	return &req, true
}

// runAnalysis assembles the controller for one request and executes it
// under the configured timeout.
func (h *Handlers) runAnalysis(ctx context.Context, req *AnalyzeRequest, progress analysis.ProgressFunc) (*analysis.AnalysisResult, *analysis.RunMetadata, error) {
	initial, err := req.InitialContent()
	if err != nil {
		return nil, nil, &analysis.Error{Class: analysis.FailValidation, Message: "decoding documents", Cause: err}
	}

	cfg := analysis.LoopConfig{
		Model:     h.cfg.Model,
		Provider:  h.cfg.Provider,
		MaxTokens: h.cfg.MaxOutputTokens,
	}
	if h.cfg.TemperatureSet() {
		t := h.cfg.Temperature
		cfg.Temperature = &t
	}

	ctrl := analysis.NewController(h.client, h.registry, analysis.ModeByName(req.ModeName()), cfg)

	runCtx := ctx
	if h.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
	}

	started := time.Now()
	result, meta, runErr := ctrl.Run(runCtx, initial, progress)
	analysisDuration.Observe(time.Since(started).Seconds())
	return result, meta, runErr
}

func (h *Handlers) recordRun(meta *analysis.RunMetadata) {
	backendTokens.WithLabelValues("input").Add(float64(meta.InputTokens))
	backendTokens.WithLabelValues("output").Add(float64(meta.OutputTokens))
	toolCalls.Add(float64(meta.ToolCalls))
}

// statusForClass maps a failure class onto an HTTP status for the
// non-streaming endpoint.
func statusForClass(class analysis.FailureClass) int {
	switch class {
	case analysis.FailValidation:
		return http.StatusBadRequest
	case analysis.FailBackendUnavailable:
		return http.StatusServiceUnavailable
	case analysis.FailNonConvergent:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// bulkEntry is one row of the bulk returns response.
type bulkEntry struct {
	AssetClass string `json:"assetClass"`
	Result     string `json:"result"`
	Error      bool   `json:"error,omitempty"`
}

// HandleBulkReturns serves reference metrics for several asset classes in
// one call, dispatched through the windowed batch executor rather than the
// conversation loop.
func (h *Handlers) HandleBulkReturns(c *gin.Context) {
	var req BulkReturnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	calls := make([]llm.ToolCall, len(req.AssetClasses))
	for i, class := range req.AssetClasses {
		args, err := json.Marshal(map[string]string{"asset_class": class})
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "encoding lookup arguments"})
			return
		}
		calls[i] = llm.ToolCall{
			ID:        uuid.NewString(),
			Name:      analysis.ToolAssetClassMetrics,
			Arguments: args,
		}
	}

	results := analysis.ExecuteBatched(c.Request.Context(), h.registry, calls, h.cfg.BatchWindow)

	entries := make([]bulkEntry, len(results))
	for i, res := range results {
		entries[i] = bulkEntry{
			AssetClass: req.AssetClasses[i],
			Result:     res.Content,
			Error:      res.IsError,
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}

// HandleAssetClasses lists the asset class identifiers known to the
// reference tables.
func (h *Handlers) HandleAssetClasses(c *gin.Context) {
	classes, err := h.refdata.Classes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": classes})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"tools":  h.registry.Names(),
	})
}
