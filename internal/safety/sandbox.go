// Package safety provides guards for locally executed tools.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ToolError is a machine-readable error body for surfacing back to the agent as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool_result payloads small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

const (
	CodeInvalidInput  = "ERR_INVALID_INPUT"
	CodeDeniedCommand = "ERR_DENIED_COMMAND"
	CodeExitStatus    = "ERR_EXIT_STATUS"
	CodeUnsupported   = "ERR_UNSUPPORTED_TOOL"
	CodeRootNotUsable = "ERR_SANDBOX_ROOT"
)

// ResolveRoot returns the absolute, symlink-resolved sandbox root. An empty root
// means the current working directory. The root must exist and be a directory.
func ResolveRoot(root string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(root): %w", err)
	}
	// Resolve symlinks so protected-path checks compare real locations.
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", ToolError{Code: CodeRootNotUsable, Message: err.Error()}
	}
	if !fi.IsDir() {
		return "", ToolError{Code: CodeRootNotUsable, Message: "sandbox root is not a directory"}
	}
	return abs, nil
}

// CheckCommand rejects shell commands that reference any protected path. Protected
// entries are matched both as given and by base name with a trailing slash
// (".agent" also blocks ".agent/conversation.json").
func CheckCommand(command string, protected ...string) error {
	if strings.TrimSpace(command) == "" {
		return ToolError{Code: CodeInvalidInput, Message: "command must not be empty"}
	}
	for _, p := range protected {
		if p == "" {
			continue
		}
		needles := []string{p}
		if base := filepath.Base(p); base != p && base != "." && base != string(filepath.Separator) {
			needles = append(needles, base+"/")
		}
		for _, n := range needles {
			if strings.Contains(command, n) {
				return ToolError{Code: CodeDeniedCommand, Message: fmt.Sprintf("commands touching %s are not allowed", p)}
			}
		}
	}
	return nil
}
