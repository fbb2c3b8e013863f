package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foliolens/foliolens/llm"
)

// loopState tracks where the bounded conversation state machine is.
type loopState string

const (
	stateAwaitingBackend  loopState = "awaiting_backend"
	stateDispatchingTools loopState = "dispatching_tools"
	stateDone             loopState = "done"
)

// LoopConfig carries the per-deployment backend parameters.
type LoopConfig struct {
	Model       string
	Provider    string
	MaxTokens   int // output-token ceiling per backend call
	Temperature *float64
}

// Controller drives the turn-by-turn exchange with the generative backend
// for one or more analysis requests. It holds no per-request state; all
// mutable state lives in Run's frame, so one Controller serves concurrent
// requests.
type Controller struct {
	client   *llm.Client
	registry *ToolRegistry
	mode     Mode
	cfg      LoopConfig
}

// NewController creates a Controller for the given backend client, tool
// registry, and analysis mode.
func NewController(client *llm.Client, registry *ToolRegistry, mode Mode, cfg LoopConfig) *Controller {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	return &Controller{
		client:   client,
		registry: registry,
		mode:     mode,
		cfg:      cfg,
	}
}

// Run executes the full analysis conversation: backend turns interleaved
// with sequential tool dispatch, bounded by the mode's iteration ceiling,
// ending in a validated result or a classified failure.
//
// progress receives one event before the first backend call, one per
// individual tool call, and a final 100% event immediately before a
// successful return. It may be nil.
func (c *Controller) Run(ctx context.Context, initial []llm.ContentPart, progress ProgressFunc) (*AnalysisResult, *RunMetadata, error) {
	started := time.Now()
	conv := NewConversation(c.mode.SystemPrompt, initial)

	var totalUsage llm.Usage
	toolCount := 0
	iterations := 0
	ceiling := c.mode.IterationCeiling(c.registry.Has(ToolWebSearch))
	state := stateAwaitingBackend

	meta := func() *RunMetadata {
		return &RunMetadata{
			Model:        c.cfg.Model,
			Provider:     c.cfg.Provider,
			Iterations:   iterations,
			ToolCalls:    toolCount,
			InputTokens:  totalUsage.InputTokens,
			OutputTokens: totalUsage.OutputTokens,
			DurationMs:   time.Since(started).Milliseconds(),
		}
	}

	progress.emit(0, "Reading portfolio documents")

	for iterations = 0; iterations < ceiling; iterations++ {
		if err := ctx.Err(); err != nil {
			return nil, meta(), &Error{
				Class:   FailBackend,
				Message: fmt.Sprintf("request cancelled while %s", state),
				Cause:   err,
			}
		}

		state = stateAwaitingBackend
		resp, err := c.client.Complete(ctx, llm.Request{
			Model:       c.cfg.Model,
			Provider:    c.cfg.Provider,
			Messages:    conv.Messages(),
			Tools:       c.registry.Definitions(),
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		})
		if err != nil {
			return nil, meta(), classifyBackendError(err)
		}

		totalUsage = totalUsage.Add(resp.Usage)
		slog.Debug("backend turn",
			slog.String("mode", c.mode.Name),
			slog.Int("iteration", iterations),
			slog.String("stop_reason", string(resp.StopReason)),
			slog.Int("output_tokens", resp.Usage.OutputTokens),
		)

		switch resp.StopReason {
		case llm.StopEndTurn, llm.StopMaxTokens:
			state = stateDone
			result, err := Extract(resp.Text(), resp.StopReason, resp.Usage.OutputTokens, c.cfg.MaxTokens)
			if err != nil {
				return nil, meta(), err
			}
			progress.emit(100, "Analysis complete")
			iterations++
			m := meta()
			m.Iterations = iterations
			return result, m, nil

		case llm.StopToolUse:
			calls := resp.ToolCalls()
			if len(calls) == 0 {
				return nil, meta(), &Error{
					Class:   FailUnexpectedState,
					Message: "backend signaled tool use but requested no tools",
				}
			}

			// The backend's turn is appended verbatim so it can observe
			// the requests it made.
			conv.AppendAssistant(resp.Message.Content)

			state = stateDispatchingTools
			results := make([]llm.ToolResult, 0, len(calls))
			// Strictly sequential, in emission order: later calls in one
			// turn may depend on earlier ones.
			for _, call := range calls {
				toolCount++
				progress.emit(Percent(toolCount, c.mode.Progress), ProgressLabel(call.Name, call.Arguments))
				results = append(results, runToolCall(ctx, c.registry, call))
			}
			conv.AppendToolResults(results)

		default:
			return nil, meta(), &Error{
				Class:   FailUnexpectedState,
				Message: fmt.Sprintf("backend stopped for unexpected reason %q", resp.RawStop),
			}
		}
	}

	return nil, meta(), &Error{
		Class: FailNonConvergent,
		Message: fmt.Sprintf(
			"the backend did not settle on an answer within %d turns; the conversation never converged", ceiling),
	}
}
