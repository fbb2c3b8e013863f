// Package analysis implements the tool-augmented conversation orchestration
// core for portfolio analysis.
//
// It drives a bounded multi-turn exchange with a generative backend that may
// request tool invocations mid-conversation, dispatches those invocations
// through a registry, reports heuristic progress across an unknown number of
// turns, and converts the backend's free-form final text into a validated
// structured result.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Controller: the conversation loop. Owns the append-only conversation
//     state for one request, enforces iteration and token ceilings, and
//     classifies failures.
//   - ToolRegistry: registration and dispatch of tool definitions; parameter
//     schemas are derived from typed argument structs.
//   - Mode: an analysis profile carrying the system prompt, progress policy,
//     and iteration ceiling.
//   - Percent: the pure asymptotic progress estimator.
//   - Extract: the pure final-text parser and validator with failure
//     classification.
//   - ExecuteBatched: the bounded-concurrency dispatcher used by the bulk
//     returns path, which never involves the backend.
//
// # Quick Start
//
//	reg := analysis.NewToolRegistry()
//	analysis.RegisterMarketDataTools(reg, refTable)
//	ctrl := analysis.NewController(client, reg, analysis.StandardMode(), analysis.LoopConfig{
//	    Model: "claude-sonnet-4-5",
//	})
//	result, meta, err := ctrl.Run(ctx, content, func(step, total int, label string) {
//	    fmt.Printf("%d%% %s\n", step, label)
//	})
package analysis
