// Package tools defines the tool handler contract and the local handlers.
//
// Includes:
//   - Handler / HandlerFunc: run one tool_use and return its outcome.
//   - Router: dispatch by tool name.
//   - Bash: the bash tool, run inside a sandbox root.
//   - Unsupported: an always-failing handler for tools with no local driver.
//
// Outcome convention: (nil, nil) is no content, a non-nil error is an error
// result, anything else is the result content.
package tools
