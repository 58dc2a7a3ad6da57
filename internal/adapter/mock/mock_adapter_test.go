package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
)

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func TestMockGateway_DefaultBehavior(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()

	reserved, err := m.Reserve(ctx, adapter.ReserveRequest{OrderID: "o-1"})
	require.NoError(t, err)
	txID, ok := reserved.String("info", "transactionId")
	require.True(t, ok)
	assert.NotEmpty(t, txID)

	status, err := m.CheckPaymentStatus(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, adapter.ReturnCodeAuthorized, status.ReturnCode())

	confirmed, err := m.Confirm(ctx, txID, decimal.Zero, "THB")
	require.NoError(t, err)
	regKey, ok := confirmed.String("info", "regKey")
	require.True(t, ok)
	assert.NotEmpty(t, regKey)

	_, err = m.ExpireRegKey(ctx, regKey)
	require.NoError(t, err)

	assert.Equal(t, []string{"reserve", "status", "confirm", "expire"}, m.Calls)
	assert.Equal(t, 1, m.Count("status"))
	assert.Equal(t, 0, m.Count("void"))
}

func TestMockGateway_WithCustomFunc_Error(t *testing.T) {
	m := NewMockGateway()
	expected := &adapter.APIError{Operation: "void", Response: adapter.Payload{"returnCode": "1150"}}
	m.VoidFunc = func(ctx context.Context, transactionID string) (adapter.Payload, error) {
		return nil, expected
	}

	_, err := m.Void(context.Background(), "tx")
	require.Error(t, err)
	var apiErr *adapter.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "1150", apiErr.Response.ReturnCode())
	assert.Equal(t, []string{"void"}, m.Calls)
}
