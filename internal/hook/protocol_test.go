package hook

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	payload := `{
		"session_id": "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
		"cwd": "/work/project",
		"hook_event_name": "PreToolUse",
		"tool_name": "Edit",
		"tool_input": {"file_path": "src/main.go", "old_string": "a", "new_string": "b"}
	}`

	input, err := ParseInput(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "f81d4fae-7dec-11d0-a765-00a0c91e6bf6", input.SessionID)
	assert.Equal(t, "Edit", input.ToolName)
	assert.Equal(t, "/work/project", input.Cwd)
	assert.Equal(t, "src/main.go", input.Path())
}

func TestParseInputInvalid(t *testing.T) {
	_, err := ParseInput(strings.NewReader("{truncated"))
	assert.Error(t, err)
}

func TestInputPathFallbacks(t *testing.T) {
	input := &Input{ToolInput: json.RawMessage(`{"path": "/etc/hosts"}`)}
	assert.Equal(t, "/etc/hosts", input.Path())

	input = &Input{ToolInput: json.RawMessage(`{"command": "ls"}`)}
	assert.Equal(t, "", input.Path())

	input = &Input{}
	assert.Equal(t, "", input.Path())
}

func TestSkipTool(t *testing.T) {
	assert.True(t, SkipTool("Read"))
	assert.True(t, SkipTool("Glob"))
	assert.False(t, SkipTool("Edit"))
	assert.False(t, SkipTool("Bash"))
}

func TestWriteResponsePreToolUse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, EventPreToolUse, Result{Allowed: false, Reason: "no plan"}))

	var response map[string]map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	specific := response["hookSpecificOutput"]
	assert.Equal(t, "PreToolUse", specific["hookEventName"])
	assert.Equal(t, "deny", specific["permissionDecision"])
	assert.Equal(t, "no plan", specific["permissionDecisionReason"])
}

func TestWriteResponsePreToolUseAllow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, EventPreToolUse, Result{Allowed: true}))
	assert.Contains(t, buf.String(), `"permissionDecision":"allow"`)
}

func TestWriteResponseStop(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, EventStop, Result{Allowed: false, Reason: "unresolved"}))

	var response map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "block", response["decision"])
	assert.Equal(t, "unresolved", response["reason"])
}

func TestWriteResponseStopAllowIsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, EventStop, Result{Allowed: true}))
	assert.Equal(t, "{}", strings.TrimSpace(buf.String()))
}
