package mock

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
)

// MockGateway is a mock implementation of adapter.PaymentGateway for testing.
// Each operation calls its Func field when set and otherwise answers with a
// canned success payload. Every call is recorded in Calls by operation name.
type MockGateway struct {
	ReserveFunc            func(ctx context.Context, req adapter.ReserveRequest) (adapter.Payload, error)
	PaymentDetailsFunc     func(ctx context.Context, transactionID, orderID string) (adapter.Payload, error)
	CheckPaymentStatusFunc func(ctx context.Context, transactionID string) (adapter.Payload, error)
	ConfirmFunc            func(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (adapter.Payload, error)
	VoidFunc               func(ctx context.Context, transactionID string) (adapter.Payload, error)
	PayPreapprovedFunc     func(ctx context.Context, req adapter.PreapprovedPayment) (adapter.Payload, error)
	CaptureFunc            func(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (adapter.Payload, error)
	CheckRegKeyFunc        func(ctx context.Context, regKey string) (adapter.Payload, error)
	ExpireRegKeyFunc       func(ctx context.Context, regKey string) (adapter.Payload, error)

	Calls []string
}

// NewMockGateway creates a new MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Count returns how many times operation was called.
func (m *MockGateway) Count(operation string) int {
	n := 0
	for _, c := range m.Calls {
		if c == operation {
			n++
		}
	}
	return n
}

func success(info map[string]any) adapter.Payload {
	p := adapter.Payload{"returnCode": adapter.ReturnCodeSuccess, "returnMessage": "Success."}
	if info != nil {
		p["info"] = info
	}
	return p
}

func (m *MockGateway) Reserve(ctx context.Context, req adapter.ReserveRequest) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpReserve)
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, req)
	}
	return success(map[string]any{
		"transactionId":      "2024101900000000001",
		"paymentAccessToken": uuid.NewString(),
	}), nil
}

func (m *MockGateway) PaymentDetails(ctx context.Context, transactionID, orderID string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpPaymentDetails)
	if m.PaymentDetailsFunc != nil {
		return m.PaymentDetailsFunc(ctx, transactionID, orderID)
	}
	return success(map[string]any{"transactionId": transactionID, "orderId": orderID}), nil
}

func (m *MockGateway) CheckPaymentStatus(ctx context.Context, transactionID string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpCheckStatus)
	if m.CheckPaymentStatusFunc != nil {
		return m.CheckPaymentStatusFunc(ctx, transactionID)
	}
	return adapter.Payload{"returnCode": adapter.ReturnCodeAuthorized, "returnMessage": "Authorized."}, nil
}

func (m *MockGateway) Confirm(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpConfirm)
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, transactionID, amount, currency)
	}
	return success(map[string]any{"transactionId": transactionID, "regKey": "RK" + uuid.NewString()[:8]}), nil
}

func (m *MockGateway) Void(ctx context.Context, transactionID string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpVoid)
	if m.VoidFunc != nil {
		return m.VoidFunc(ctx, transactionID)
	}
	return success(nil), nil
}

func (m *MockGateway) PayPreapproved(ctx context.Context, req adapter.PreapprovedPayment) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpPayPreapproved)
	if m.PayPreapprovedFunc != nil {
		return m.PayPreapprovedFunc(ctx, req)
	}
	return success(map[string]any{"transactionId": "2024101900000000002", "orderId": req.OrderID}), nil
}

func (m *MockGateway) Capture(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpCapture)
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, transactionID, amount, currency)
	}
	return success(map[string]any{"transactionId": transactionID}), nil
}

func (m *MockGateway) CheckRegKey(ctx context.Context, regKey string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpCheckRegKey)
	if m.CheckRegKeyFunc != nil {
		return m.CheckRegKeyFunc(ctx, regKey)
	}
	return success(nil), nil
}

func (m *MockGateway) ExpireRegKey(ctx context.Context, regKey string) (adapter.Payload, error) {
	m.Calls = append(m.Calls, adapter.OpExpireRegKey)
	if m.ExpireRegKeyFunc != nil {
		return m.ExpireRegKeyFunc(ctx, regKey)
	}
	return success(nil), nil
}
