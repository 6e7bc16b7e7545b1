package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a short, user-facing rendering of err. Stack traces
// and internal detail never appear here; those go to stderr logs only.
func FormatForUser(err error) string {
	if err == nil {
		return ""
	}

	de, ok := err.(*DocError)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString(de.Message)
	if de.Suggestion != "" {
		sb.WriteString(" ")
		sb.WriteString(de.Suggestion)
	}
	return sb.String()
}

// FormatForCLI formats an error for terminal display, including the tag.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	de, ok := err.(*DocError)
	if !ok {
		de = Wrap(TagInternal, err.Error(), err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", de.Message))
	if de.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", de.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", de.Tag))
	return sb.String()
}

// jsonError is the wire representation of a DocError in a tool error reply.
type jsonError struct {
	Error   bool           `json:"error"`
	Code    Tag            `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// FormatJSON renders err as the tagged error object described for tool
// replies: {error, code, message, details}.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	de, ok := err.(*DocError)
	if !ok {
		de = Wrap(TagInternal, err.Error(), err)
	}

	return json.Marshal(jsonError{
		Error:   true,
		Code:    de.Tag,
		Message: de.Message,
		Details: de.Details,
	})
}

// FormatForLog returns slog-friendly key-value attributes for err.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	de, ok := err.(*DocError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	result := map[string]any{
		"error_tag": string(de.Tag),
		"message":   de.Message,
		"retryable": de.Retryable,
	}
	if de.Cause != nil {
		result["cause"] = de.Cause.Error()
	}
	if de.Suggestion != "" {
		result["suggestion"] = de.Suggestion
	}
	for k, v := range de.Details {
		result["detail_"+k] = v
	}
	return result
}
