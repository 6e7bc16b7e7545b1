package mcp

import (
	"encoding/json"

	docerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// MCPError is the error value every tool handler returns on failure. Its
// Error() string IS the wire body described for tool error replies:
// {"error": true, "code": <Tag>, "message": ..., "details": ...}. The MCP
// SDK surfaces a handler's returned error as the tool's error content, so
// shaping Error() this way means callers always see the tagged envelope
// regardless of how the SDK renders it.
type MCPError struct {
	Tag     docerrors.Tag
	Message string
	Details map[string]any
}

type errorEnvelope struct {
	Error   bool           `json:"error"`
	Code    docerrors.Tag  `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *MCPError) Error() string {
	body, err := json.Marshal(errorEnvelope{Error: true, Code: e.Tag, Message: e.Message, Details: e.Details})
	if err != nil {
		return e.Message
	}
	return string(body)
}

// MapError converts any error returned by the docserver internals into the
// tagged MCPError every tool handler returns. Errors that aren't already a
// *DocError are folded into TagInternal: a handler should never leak a bare
// Go error string to an MCP client.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	de, ok := err.(*docerrors.DocError)
	if !ok {
		de = docerrors.Wrap(docerrors.TagInternal, err.Error(), err)
	}
	mapped := &MCPError{Tag: de.Tag, Message: de.Message, Details: de.Details}
	if de.Retryable {
		if mapped.Details == nil {
			mapped.Details = map[string]any{}
		}
		mapped.Details["retryable"] = true
	}
	return mapped
}

// invalidArgument is a convenience constructor for parameter validation
// failures caught before any internal call is made.
func invalidArgument(message string) *MCPError {
	return &MCPError{Tag: docerrors.TagInvalidArgument, Message: message}
}

// notActivated is returned by every tool except activate_project when no
// project has been activated yet.
func notActivated() *MCPError {
	return &MCPError{Tag: docerrors.TagProjectNotActivated, Message: "no project is activated; call activate_project first"}
}
