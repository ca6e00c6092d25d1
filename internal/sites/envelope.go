package sites

import (
	"bytes"
	"encoding/json"

	"github.com/wolfdevsllc/rocketctl/internal/output"
)

// Envelope is one of SuccessEnvelope, FlatEnvelope, or ErrorEnvelope.
type Envelope interface {
	envelope()
}

// SuccessEnvelope is {"success": true, "result": ...}.
type SuccessEnvelope struct {
	Result json.RawMessage
}

// FlatEnvelope is a bare record carrying an "id".
type FlatEnvelope struct {
	Record json.RawMessage
}

// ErrorEnvelope is {"success": false, "message": ...} or similar.
type ErrorEnvelope struct {
	Message string
}

func (SuccessEnvelope) envelope() {}
func (FlatEnvelope) envelope()    {}
func (ErrorEnvelope) envelope()   {}

// ParseEnvelope classifies a provider response body. Invalid JSON is a
// parse_error; valid JSON of no known shape is invalid_response.
func ParseEnvelope(body []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if json.Valid(body) {
			return nil, output.ErrInvalidResponse("Invalid API response: expected a JSON object")
		}
		return nil, output.ErrParse(err)
	}

	success, hasSuccess := boolField(fields, "success")
	result, hasResult := fields["result"]
	hasResult = hasResult && !isNull(result)

	switch {
	case hasResult && (!hasSuccess || success):
		return SuccessEnvelope{Result: result}, nil
	case hasID(fields):
		return FlatEnvelope{Record: body}, nil
	}

	if msg := messageField(fields); msg != "" || (hasSuccess && !success) {
		return ErrorEnvelope{Message: msg}, nil
	}
	return nil, output.ErrInvalidResponse("Invalid API response")
}

// SuccessFlag reports whether body carries "success": true.
func SuccessFlag(body []byte) (ok bool, message string, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if json.Valid(body) {
			return false, "", nil
		}
		return false, "", output.ErrParse(err)
	}
	success, _ := boolField(fields, "success")
	return success, messageField(fields), nil
}

func boolField(fields map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := fields[key]
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	// Tolerate 1/0 and "true"/"false".
	switch string(bytes.Trim(raw, `"`)) {
	case "1", "true":
		return true, true
	}
	return false, true
}

func hasID(fields map[string]json.RawMessage) bool {
	raw, ok := fields["id"]
	if !ok || isNull(raw) {
		return false
	}
	return idString(raw) != ""
}

func messageField(fields map[string]json.RawMessage) string {
	for _, key := range []string{"message", "error", "errors"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// idString renders a JSON string or number id as a string.
func idString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
