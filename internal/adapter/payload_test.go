package adapter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) Payload {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var p Payload
	require.NoError(t, dec.Decode(&p))
	return p
}

func TestPayload_ReturnCodeAndMessage(t *testing.T) {
	p := decode(t, `{"returnCode":"0110","returnMessage":"Authorized."}`)
	assert.Equal(t, "0110", p.ReturnCode())
	assert.Equal(t, "Authorized.", p.ReturnMessage())

	var empty Payload
	assert.Empty(t, empty.ReturnCode())
	assert.Empty(t, empty.ReturnMessage())
}

func TestPayload_LongTransactionIDKeepsDigits(t *testing.T) {
	p := decode(t, `{"returnCode":"0000","info":{"transactionId":2024101912345678901}}`)
	id, ok := p.String("info", "transactionId")
	require.True(t, ok)
	assert.Equal(t, "2024101912345678901", id)
}

func TestPayload_Info(t *testing.T) {
	p := decode(t, `{"info":{"regKey":"RK123"}}`)
	require.NotNil(t, p.Info())
	regKey, ok := p.Info().String("regKey")
	assert.True(t, ok)
	assert.Equal(t, "RK123", regKey)

	assert.Nil(t, Payload{"info": "not-an-object"}.Info())
	assert.Nil(t, Payload{}.Info())
}

func TestPayload_LookupMissing(t *testing.T) {
	p := Payload{"info": map[string]any{"transactionId": "1"}}
	_, ok := p.Lookup("info", "regKey")
	assert.False(t, ok)
	_, ok = p.Lookup("info", "transactionId", "deeper")
	assert.False(t, ok)
	_, ok = p.String("info")
	assert.False(t, ok, "objects are not rendered as strings")
}

func TestPayload_StringScalars(t *testing.T) {
	p := Payload{"f": float64(50), "i": 7, "b": true, "n": nil}
	s, ok := p.String("f")
	assert.True(t, ok)
	assert.Equal(t, "50", s)
	s, _ = p.String("i")
	assert.Equal(t, "7", s)
	s, _ = p.String("b")
	assert.Equal(t, "true", s)
	_, ok = p.String("n")
	assert.False(t, ok)
}

func TestAPIError(t *testing.T) {
	apiErr := &APIError{
		Operation:  "confirm",
		StatusCode: 200,
		Response:   Payload{"returnCode": "1172", "returnMessage": "Existing same orderId."},
	}
	assert.Equal(t, "confirm: provider returned 1172: Existing same orderId.", apiErr.Error())
	assert.Nil(t, apiErr.Unwrap())

	cause := errors.New("dial tcp: connection refused")
	transportErr := NewTransportError("reserve", cause)
	assert.ErrorIs(t, transportErr, cause)
	assert.Equal(t, "", transportErr.Response.ReturnCode())
	assert.Equal(t, cause.Error(), transportErr.Response.ReturnMessage())
	assert.Contains(t, transportErr.Error(), "reserve: dial tcp")

	bare := &APIError{Operation: "void", StatusCode: 502}
	assert.Equal(t, "void: provider request failed with HTTP 502", bare.Error())
}
