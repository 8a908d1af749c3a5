// Package runner drives the agent turn loop against the Messages API and
// dispatches tool calls.
//
// Invariants:
//   - every tool_use is followed by its tool_result before the next request, so
//     pairs stay adjacent within a turn.
//   - stale screenshot payloads are pruned from history after each response
//     (windowing.Compact); the newest result still reaches the model once.
//   - a stop request is honoured at two checkpoints only: right after a response
//     arrives, and after each tool_result is appended.
//
// Flow:
//
//	user(text) -> assistant(tool_use) -> user(tool_result) -> ... -> assistant(text)
package runner
