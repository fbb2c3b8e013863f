package analysis

import (
	"context"
	"sync"

	"github.com/foliolens/foliolens/llm"
)

// DefaultBatchWindow is the number of tool executions run concurrently by
// the batch dispatcher. Small enough to cap load on downstream providers,
// large enough to beat fully sequential latency.
const DefaultBatchWindow = 2

// ExecuteBatched runs tool calls in fixed-size concurrent windows: each
// window is awaited fully before the next one starts. It shares a single
// execution path with the conversation loop's inline dispatch (runToolCall)
// but is used only by the standalone bulk endpoint, which never involves
// the backend. Results are returned in call order regardless of completion
// order within a window.
func ExecuteBatched(ctx context.Context, reg *ToolRegistry, calls []llm.ToolCall, window int) []llm.ToolResult {
	if window <= 0 {
		window = DefaultBatchWindow
	}

	results := make([]llm.ToolResult, len(calls))
	for start := 0; start < len(calls); start += window {
		end := start + window
		if end > len(calls) {
			end = len(calls)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = runToolCall(ctx, reg, calls[idx])
			}(i)
		}
		wg.Wait()
	}
	return results
}
