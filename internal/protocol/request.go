package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Request is the JSON body of every command/data message. Args stays raw so
// each handler can decode its own shape (object or array, per command).
type Request struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args"`
}

// ErrEmptyCommand reports a request body whose command field is missing or blank.
var ErrEmptyCommand = errors.New("request has no command")

// ParseRequest decodes and validates a request body.
func ParseRequest(body []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return Request{}, ErrEmptyCommand
	}
	if len(req.Args) == 0 {
		req.Args = json.RawMessage("null")
	}
	return req, nil
}

// NewRequest builds the wire body for a command with the given args.
func NewRequest(command string, args any) ([]byte, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	raw, ok := args.(json.RawMessage)
	if !ok {
		if args == nil {
			args = map[string]any{}
		}
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode args for %q: %w", command, err)
		}
		raw = encoded
	}
	body, err := json.Marshal(Request{Command: command, Args: raw})
	if err != nil {
		return nil, fmt.Errorf("encode request %q: %w", command, err)
	}
	return body, nil
}

// DecodeArgs decodes a request's args value into dst. Unknown keys are
// rejected so an argument typo surfaces as an error instead of a silently
// dropped setting.
func DecodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// errorEnvelope is the response shape for handler failures.
type errorEnvelope struct {
	Error string `json:"error"`
}

// EncodeError serializes a handler failure as the {"error": ...} envelope.
func EncodeError(msg string) []byte {
	body, err := json.Marshal(errorEnvelope{Error: msg})
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return body
}

// DecodeError reports whether a response body is the handler-failure envelope
// and returns its message when it is.
func DecodeError(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", false
	}
	raw, ok := probe["error"]
	if !ok || len(probe) != 1 {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	return msg, true
}

// EncodeValue serializes a handler result for the wire.
func EncodeValue(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return body, nil
}

// DecodeStatus reports whether a response body is the JSON literal for the
// given status string.
func DecodeStatus(body []byte, status string) bool {
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return false
	}
	return s == status
}
