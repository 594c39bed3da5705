package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the value of the "v" field on every response body.
// Clients check it before reading anything else.
const EnvelopeVersion = 1

// Envelope wraps a successful response body.
type Envelope struct {
	Version int  `json:"v"`
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope wraps an error response body.
type ErrorEnvelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps every body in an envelope.
// It does not use ctx, so it may be called with a nil context.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	switch body := v.(type) {
	case *Envelope, *ErrorEnvelope:
		return v, nil
	case *APIError:
		return errorEnvelope(body.Code, body.Message, body.Details), nil
	case error:
		code, _ := strconv.Atoi(status)
		return errorEnvelope(statusToCode(code), body.Error(), nil), nil
	}

	if code, err := strconv.Atoi(status); err == nil && code >= 400 {
		return errorEnvelope(statusToCode(code), "request failed", v), nil
	}
	return &Envelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
}

func errorEnvelope(code, message string, details any) *ErrorEnvelope {
	return &ErrorEnvelope{
		Version: EnvelopeVersion,
		Success: false,
		Error:   message,
		Code:    code,
		Message: message,
		Details: details,
	}
}
