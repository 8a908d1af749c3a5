// Package windowing shapes the conversation before it is sent upstream.
//
// Rules:
//   - Compact drops image payloads from historical tool_result blocks. Only the first
//     block of each message is inspected since one tool runs per turn.
//   - CheckPairs verifies every tool_result answers an earlier tool_use and every
//     tool_use has exactly one result.
//   - Measure gives a deterministic size estimate of the outgoing history.
package windowing
