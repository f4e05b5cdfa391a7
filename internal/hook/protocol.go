// Package hook implements the host agent's hook protocol boundary: a
// JSON payload on stdin describing the triggering tool call, a JSON
// decision on stdout. The protocol shapes are fixed by the host
// runtime; everything here is a pass-through around the policy engine.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
)

// Hook event names as delivered by the host.
const (
	EventPreToolUse  = "PreToolUse"
	EventPostToolUse = "PostToolUse"
	EventStop        = "Stop"
)

// Input is the stdin payload of a hook invocation.
type Input struct {
	SessionID     string          `json:"session_id"`
	Cwd           string          `json:"cwd"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
}

// ParseInput decodes a hook payload.
func ParseInput(r io.Reader) (*Input, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hook input: %w", err)
	}
	var input Input
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse hook input: %w", err)
	}
	return &input, nil
}

// Path extracts the file path from the tool input. The host uses
// "file_path" for file tools; other agents may use "path".
func (in *Input) Path() string {
	if len(in.ToolInput) == 0 {
		return ""
	}
	var params struct {
		FilePath string `json:"file_path"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(in.ToolInput, &params); err != nil {
		return ""
	}
	if params.FilePath != "" {
		return params.FilePath
	}
	return params.Path
}

// readOnlyTools never trigger policy evaluation: no side effects, or a
// separate UX flow handles them.
var readOnlyTools = map[string]bool{
	"Read":            true,
	"Glob":            true,
	"Grep":            true,
	"WebFetch":        true,
	"WebSearch":       true,
	"AskUserQuestion": true,
	"TodoWrite":       true,
	"Task":            true,
}

// SkipTool reports whether the tool bypasses evaluation.
func SkipTool(toolName string) bool {
	return readOnlyTools[toolName]
}

// Result is the aggregated outcome of one hook invocation.
type Result struct {
	Allowed bool
	Reason  string
}

// allowResult is the universal fail-open result.
var allowResult = Result{Allowed: true}

// hookSpecificOutput is the PreToolUse response envelope.
type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

type preToolUseResponse struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// stopResponse is the Stop response shape; an empty decision means
// "let the agent stop".
type stopResponse struct {
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// WriteResponse encodes the result in the protocol shape for the given
// event. PostToolUse and unknown events share the Stop shape: empty
// object for allow.
func WriteResponse(w io.Writer, event string, result Result) error {
	encoder := json.NewEncoder(w)

	if event == EventPreToolUse {
		decision := "allow"
		if !result.Allowed {
			decision = "deny"
		}
		return encoder.Encode(preToolUseResponse{
			HookSpecificOutput: hookSpecificOutput{
				HookEventName:            EventPreToolUse,
				PermissionDecision:       decision,
				PermissionDecisionReason: result.Reason,
			},
		})
	}

	response := stopResponse{}
	if !result.Allowed {
		response.Decision = "block"
		response.Reason = result.Reason
	}
	return encoder.Encode(response)
}
