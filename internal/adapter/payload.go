package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Return codes with a meaning outside the plain success case.
const (
	ReturnCodeSuccess    = "0000"
	ReturnCodeAuthorized = "0110"
)

// Payload is a decoded provider response. Numbers are kept as json.Number
// when the payload came off the wire so long identifiers keep every digit.
type Payload map[string]any

// ReturnCode returns the provider's returnCode, or "" when absent.
func (p Payload) ReturnCode() string {
	s, _ := p.String("returnCode")
	return s
}

// ReturnMessage returns the provider's returnMessage, or "" when absent.
func (p Payload) ReturnMessage() string {
	s, _ := p.String("returnMessage")
	return s
}

// Info returns the nested info object, or nil if there is none.
func (p Payload) Info() Payload {
	v, ok := p.Lookup("info")
	if !ok {
		return nil
	}
	return asPayload(v)
}

// Lookup walks nested objects along path.
func (p Payload) Lookup(path ...string) (any, bool) {
	var cur any = p
	for _, key := range path {
		obj := asPayload(cur)
		if obj == nil {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// String resolves path and renders scalar values as strings. Numbers are
// rendered without exponent so transaction ids stay intact.
func (p Payload) String(path ...string) (string, bool) {
	v, ok := p.Lookup(path...)
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func asPayload(v any) Payload {
	switch t := v.(type) {
	case Payload:
		return t
	case map[string]any:
		return Payload(t)
	default:
		return nil
	}
}

// APIError is a failed provider call. Response holds the provider's error
// payload as received, or a synthesized one when nothing came back.
type APIError struct {
	Operation  string
	StatusCode int     // HTTP status, 0 when the request never completed
	Response   Payload // raw error payload
	Err        error   // underlying cause, if any
}

func (e *APIError) Error() string {
	code := e.Response.ReturnCode()
	msg := e.Response.ReturnMessage()
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	case code != "":
		return fmt.Sprintf("%s: provider returned %s: %s", e.Operation, code, msg)
	default:
		return fmt.Sprintf("%s: provider request failed with HTTP %d", e.Operation, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewTransportError builds an APIError for calls that produced no provider
// payload. The synthesized payload has an empty returnCode and the cause as
// returnMessage.
func NewTransportError(operation string, err error) *APIError {
	return &APIError{
		Operation: operation,
		Response:  Payload{"returnCode": "", "returnMessage": err.Error()},
		Err:       err,
	}
}
