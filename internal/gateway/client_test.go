package gateway_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
	"github.com/yourorg/linepay-preapproval/internal/adapter/linepay"
	adaptermock "github.com/yourorg/linepay-preapproval/internal/adapter/mock"
	"github.com/yourorg/linepay-preapproval/internal/gateway"
)

var errBoom = errors.New("connection reset by peer")

func providerError(op, code, msg string) error {
	return &adapter.APIError{
		Operation:  op,
		StatusCode: 200,
		Response:   adapter.Payload{"returnCode": code, "returnMessage": msg},
	}
}

func TestNewClient_PanicsOnNilGateway(t *testing.T) {
	assert.Panics(t, func() { gateway.NewClient(nil) })
}

func TestNewLinePay_MissingCredentials(t *testing.T) {
	_, err := gateway.NewLinePay(linepay.Config{ChannelID: "only-id"})
	assert.ErrorIs(t, err, linepay.ErrMissingCredentials)

	client, err := gateway.NewLinePay(linepay.Config{ChannelID: "id", ChannelSecret: "secret", Sandbox: true})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestClient_Reserve(t *testing.T) {
	t.Run("success returns the provider payload untouched", func(t *testing.T) {
		gw := adaptermock.NewMockGateway()
		var seen adapter.ReserveRequest
		payload := adapter.Payload{
			"returnCode":    "0000",
			"returnMessage": "Success.",
			"info":          map[string]any{"transactionId": "2024101900000000042"},
		}
		gw.ReserveFunc = func(_ context.Context, req adapter.ReserveRequest) (adapter.Payload, error) {
			seen = req
			return payload, nil
		}

		res := gateway.NewClient(gw).Reserve(context.Background(), gateway.ReserveInput{
			OrderID: "order-1", ProductID: "1", ProductName: "Sample product",
		})

		assert.True(t, res.OK)
		assert.Equal(t, "Success.", res.Message)
		assert.Equal(t, payload, res.Payload)
		assert.Equal(t, "order-1", seen.OrderID)
		assert.Equal(t, "THB", seen.Currency)
		assert.True(t, seen.Amount.IsZero())
		require.NotNil(t, seen.Options)
		assert.Equal(t, "PREAPPROVED", seen.Options.Payment.PayType)
		assert.True(t, seen.Options.Payment.Capture)
	})

	t.Run("provider error becomes failure result", func(t *testing.T) {
		gw := adaptermock.NewMockGateway()
		gw.ReserveFunc = func(context.Context, adapter.ReserveRequest) (adapter.Payload, error) {
			return nil, providerError(adapter.OpReserve, "1172", "Existing same orderId.")
		}

		res := gateway.NewClient(gw).Reserve(context.Background(), gateway.ReserveInput{
			OrderID: "dup", ProductID: "1", ProductName: "Sample product",
		})

		assert.False(t, res.OK)
		assert.Equal(t, "Existing same orderId.", res.Message)
		assert.Equal(t, adapter.Payload{"returnCode": "1172", "returnMessage": "Existing same orderId."}, res.Payload)
	})

	t.Run("invalid input never reaches the provider", func(t *testing.T) {
		gw := adaptermock.NewMockGateway()
		res := gateway.NewClient(gw).Reserve(context.Background(), gateway.ReserveInput{ProductID: "1", ProductName: "x"})

		assert.False(t, res.OK)
		assert.Contains(t, res.Message, "invalid order")
		assert.Empty(t, gw.Calls)
	})
}

func TestClient_CheckPaymentStatus(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		wantOK bool
	}{
		{name: "authorized", code: "0110", wantOK: true},
		{name: "not yet authorized", code: "0000", wantOK: false},
		{name: "cancelled", code: "0121", wantOK: false},
		{name: "failed", code: "0122", wantOK: false},
		{name: "completed", code: "0123", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := adaptermock.NewMockGateway()
			gw.CheckPaymentStatusFunc = func(context.Context, string) (adapter.Payload, error) {
				return adapter.Payload{"returnCode": tt.code, "returnMessage": "msg-" + tt.code}, nil
			}
			res := gateway.NewClient(gw).CheckPaymentStatus(context.Background(), "tx")
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, "msg-"+tt.code, res.Message)
			assert.Equal(t, tt.code, res.Payload.ReturnCode())
		})
	}

	t.Run("transport error", func(t *testing.T) {
		gw := adaptermock.NewMockGateway()
		gw.CheckPaymentStatusFunc = func(context.Context, string) (adapter.Payload, error) {
			return nil, errBoom
		}
		res := gateway.NewClient(gw).CheckPaymentStatus(context.Background(), "tx")
		assert.False(t, res.OK)
		assert.Equal(t, errBoom.Error(), res.Message)
	})
}

func TestClient_Confirm_UsesZeroAmountInTHB(t *testing.T) {
	gw := adaptermock.NewMockGateway()
	var gotAmount decimal.Decimal
	var gotCurrency string
	gw.ConfirmFunc = func(_ context.Context, _ string, amount decimal.Decimal, currency string) (adapter.Payload, error) {
		gotAmount, gotCurrency = amount, currency
		return adapter.Payload{"returnCode": "0000", "returnMessage": "OK", "info": map[string]any{"regKey": "RK1"}}, nil
	}

	res := gateway.NewClient(gw).Confirm(context.Background(), "tx")

	assert.True(t, res.OK)
	assert.True(t, gotAmount.IsZero())
	assert.Equal(t, "THB", gotCurrency)
	regKey, ok := res.Payload.String("info", "regKey")
	assert.True(t, ok)
	assert.Equal(t, "RK1", regKey)
}

func TestClient_PayPreapproved(t *testing.T) {
	var got adapter.PreapprovedPayment
	gw := adaptermock.NewMockGateway()
	gw.PayPreapprovedFunc = func(_ context.Context, p adapter.PreapprovedPayment) (adapter.Payload, error) {
		got = p
		return adapter.Payload{"returnCode": "0000", "returnMessage": "Success."}, nil
	}
	client := gateway.NewClient(gw)

	res := client.PayPreapproved(context.Background(), "RK1", decimal.NewFromInt(50), "Sample product", "order-1")
	assert.True(t, res.OK)
	assert.True(t, got.Capture, "payments capture by default")
	assert.Equal(t, "THB", got.Currency)
	assert.Equal(t, "RK1", got.RegKey)
	assert.True(t, decimal.NewFromInt(50).Equal(got.Amount))

	client.PayPreapproved(context.Background(), "RK1", decimal.NewFromInt(50), "Sample product", "order-1", gateway.WithoutCapture())
	assert.False(t, got.Capture)
}

func TestClient_Capture_DefaultsCurrency(t *testing.T) {
	var gotCurrency string
	gw := adaptermock.NewMockGateway()
	gw.CaptureFunc = func(_ context.Context, _ string, _ decimal.Decimal, currency string) (adapter.Payload, error) {
		gotCurrency = currency
		return adapter.Payload{"returnCode": "0000", "returnMessage": "Success."}, nil
	}
	client := gateway.NewClient(gw)

	assert.True(t, client.Capture(context.Background(), "tx", decimal.NewFromInt(10), "").OK)
	assert.Equal(t, "THB", gotCurrency)
	client.Capture(context.Background(), "tx", decimal.NewFromInt(10), "JPY")
	assert.Equal(t, "JPY", gotCurrency)
}

// The three flagless operations hand back a bare payload on both paths, so
// callers cannot tell success from failure without reading returnCode.
func TestClient_FlaglessOperations(t *testing.T) {
	failure := adapter.Payload{"returnCode": "1190", "returnMessage": "regKey does not exist."}
	gw := adaptermock.NewMockGateway()
	gw.PaymentDetailsFunc = func(context.Context, string, string) (adapter.Payload, error) {
		return nil, &adapter.APIError{Operation: adapter.OpPaymentDetails, Response: failure}
	}
	gw.CheckRegKeyFunc = func(context.Context, string) (adapter.Payload, error) {
		return nil, &adapter.APIError{Operation: adapter.OpCheckRegKey, Response: failure}
	}
	gw.ExpireRegKeyFunc = func(context.Context, string) (adapter.Payload, error) {
		return nil, errBoom
	}
	client := gateway.NewClient(gw)
	ctx := context.Background()

	assert.Equal(t, failure, client.PaymentDetails(ctx, "tx", "order"))
	assert.Equal(t, failure, client.CheckRegKey(ctx, "RK"))
	expired := client.ExpireRegKey(ctx, "RK")
	assert.Equal(t, "", expired.ReturnCode())
	assert.Equal(t, errBoom.Error(), expired.ReturnMessage())

	ok := adaptermock.NewMockGateway()
	okClient := gateway.NewClient(ok)
	assert.Equal(t, "0000", okClient.PaymentDetails(ctx, "tx", "order").ReturnCode())
	assert.Equal(t, "0000", okClient.CheckRegKey(ctx, "RK").ReturnCode())
	assert.Equal(t, "0000", okClient.ExpireRegKey(ctx, "RK").ReturnCode())
}

func TestClient_NeverReturnsErrors(t *testing.T) {
	gw := &adaptermock.MockGateway{
		ReserveFunc: func(context.Context, adapter.ReserveRequest) (adapter.Payload, error) { return nil, errBoom },
		PaymentDetailsFunc: func(context.Context, string, string) (adapter.Payload, error) {
			return nil, errBoom
		},
		CheckPaymentStatusFunc: func(context.Context, string) (adapter.Payload, error) { return nil, errBoom },
		ConfirmFunc: func(context.Context, string, decimal.Decimal, string) (adapter.Payload, error) {
			return nil, errBoom
		},
		VoidFunc:           func(context.Context, string) (adapter.Payload, error) { return nil, errBoom },
		PayPreapprovedFunc: func(context.Context, adapter.PreapprovedPayment) (adapter.Payload, error) { return nil, errBoom },
		CaptureFunc: func(context.Context, string, decimal.Decimal, string) (adapter.Payload, error) {
			return nil, errBoom
		},
		CheckRegKeyFunc:  func(context.Context, string) (adapter.Payload, error) { return nil, errBoom },
		ExpireRegKeyFunc: func(context.Context, string) (adapter.Payload, error) { return nil, errBoom },
	}
	client := gateway.NewClient(gw)
	ctx := context.Background()

	results := []gateway.Result{
		client.Reserve(ctx, gateway.ReserveInput{OrderID: "o", ProductID: "1", ProductName: "p"}),
		client.CheckPaymentStatus(ctx, "tx"),
		client.Confirm(ctx, "tx"),
		client.Void(ctx, "tx"),
		client.PayPreapproved(ctx, "RK", decimal.NewFromInt(1), "p", "o"),
		client.Capture(ctx, "tx", decimal.NewFromInt(1), ""),
	}
	for _, res := range results {
		assert.False(t, res.OK)
		assert.Equal(t, errBoom.Error(), res.Message)
		assert.Equal(t, errBoom.Error(), res.Payload.ReturnMessage())
	}
	for _, p := range []adapter.Payload{
		client.PaymentDetails(ctx, "tx", "o"),
		client.CheckRegKey(ctx, "RK"),
		client.ExpireRegKey(ctx, "RK"),
	} {
		assert.Equal(t, errBoom.Error(), p.ReturnMessage())
	}
	assert.Len(t, gw.Calls, 9)
}

func TestClient_Metrics(t *testing.T) {
	okBefore := testutil.ToFloat64(gateway.GetCallsTotal().WithLabelValues(adapter.OpVoid, "ok"))
	provBefore := testutil.ToFloat64(gateway.GetCallsTotal().WithLabelValues(adapter.OpVoid, "provider_error"))
	transBefore := testutil.ToFloat64(gateway.GetCallsTotal().WithLabelValues(adapter.OpVoid, "transport_error"))
	latencyBefore := voidLatencySamples(t)

	gw := adaptermock.NewMockGateway()
	client := gateway.NewClient(gw)
	client.Void(context.Background(), "tx")

	gw.VoidFunc = func(context.Context, string) (adapter.Payload, error) {
		return nil, providerError(adapter.OpVoid, "1150", "Transaction record not found.")
	}
	client.Void(context.Background(), "tx")

	gw.VoidFunc = func(context.Context, string) (adapter.Payload, error) {
		return nil, adapter.NewTransportError(adapter.OpVoid, errBoom)
	}
	client.Void(context.Background(), "tx")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(gateway.GetCallsTotal().WithLabelValues(adapter.OpVoid, "ok")))
	assert.Equal(t, provBefore+1, testutil.ToFloat64(gateway.GetCallsTotal().WithLabelValues(adapter.OpVoid, "provider_error")))
	assert.Equal(t, transBefore+1, testutil.ToFloat64(gateway.GetCallsTotal().WithLabelValues(adapter.OpVoid, "transport_error")))
	assert.Equal(t, latencyBefore+3, voidLatencySamples(t), "every call is timed, whatever its outcome")
}

func voidLatencySamples(t *testing.T) uint64 {
	t.Helper()
	h, ok := gateway.GetCallDurationSeconds().WithLabelValues(adapter.OpVoid).(prometheus.Histogram)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}
