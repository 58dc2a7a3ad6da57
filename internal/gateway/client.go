// Package gateway wraps a payment provider so that every operation reports
// failures as values. Provider and transport errors never leave this package
// as Go errors; callers branch on Result.OK instead.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
	"github.com/yourorg/linepay-preapproval/internal/adapter/linepay"
	"github.com/yourorg/linepay-preapproval/internal/reservation"
)

// Result is the normalized outcome of a provider operation. On success
// Payload is the provider's response; on failure it is the provider's error
// payload. Message carries the provider's returnMessage.
type Result struct {
	OK      bool
	Message string
	Payload adapter.Payload
}

// ReserveInput describes a single-product pre-approval reservation.
type ReserveInput struct {
	OrderID     string
	ProductID   string
	ProductName string
	Currency    string // defaults to THB
	ImageURL    string
}

// Client exposes one method per lifecycle operation.
type Client struct {
	gateway adapter.PaymentGateway
	builder *reservation.Builder
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for per-call diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReservationBuilder replaces the builder used by Reserve.
func WithReservationBuilder(b *reservation.Builder) Option {
	return func(c *Client) { c.builder = b }
}

// NewClient wraps gw.
func NewClient(gw adapter.PaymentGateway, opts ...Option) *Client {
	if gw == nil {
		panic("payment gateway cannot be nil")
	}
	c := &Client{
		gateway: gw,
		builder: reservation.NewBuilder("", ""),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewLinePay builds a Client backed by the LINE Pay HTTP adapter. Missing
// credentials are returned as an error; callers treat it as fatal.
func NewLinePay(cfg linepay.Config, opts ...Option) (*Client, error) {
	gw, err := linepay.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(gw, opts...), nil
}

// Reserve reserves a single-product, zero-amount order.
func (c *Client) Reserve(ctx context.Context, in ReserveInput) Result {
	order := reservation.NewOrder(in.OrderID, in.ProductID, in.ProductName, in.Currency, in.ImageURL)
	return c.ReserveOrder(ctx, order)
}

// ReserveOrder reserves an arbitrary order. An order that fails validation
// yields a failure result without contacting the provider.
func (c *Client) ReserveOrder(ctx context.Context, order reservation.Order) Result {
	req, err := c.builder.Build(order)
	if err != nil {
		payload := adapter.Payload{"returnCode": "", "returnMessage": err.Error()}
		return Result{OK: false, Message: err.Error(), Payload: payload}
	}
	ok, payload := c.invoke(ctx, adapter.OpReserve, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.Reserve(ctx, req)
	})
	return newResult(ok, payload)
}

// PaymentDetails returns the provider's payment details, or its error
// payload. Unlike the other operations it carries no success flag; callers
// inspect the payload's return code.
func (c *Client) PaymentDetails(ctx context.Context, transactionID, orderID string) adapter.Payload {
	_, payload := c.invoke(ctx, adapter.OpPaymentDetails, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.PaymentDetails(ctx, transactionID, orderID)
	})
	return payload
}

// CheckPaymentStatus reports OK only when the customer has authorized the
// payment (return code 0110). Message is the provider's returnMessage.
func (c *Client) CheckPaymentStatus(ctx context.Context, transactionID string) Result {
	ok, payload := c.invoke(ctx, adapter.OpCheckStatus, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.CheckPaymentStatus(ctx, transactionID)
	})
	authorized := ok && payload.ReturnCode() == adapter.ReturnCodeAuthorized
	return Result{OK: authorized, Message: payload.ReturnMessage(), Payload: payload}
}

// Confirm confirms an authorized transaction for a zero amount, which
// yields the reg key for later charges.
func (c *Client) Confirm(ctx context.Context, transactionID string) Result {
	ok, payload := c.invoke(ctx, adapter.OpConfirm, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.Confirm(ctx, transactionID, decimal.Zero, adapter.DefaultCurrency)
	})
	return newResult(ok, payload)
}

// Void cancels an authorized but uncaptured payment.
func (c *Client) Void(ctx context.Context, transactionID string) Result {
	ok, payload := c.invoke(ctx, adapter.OpVoid, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.Void(ctx, transactionID)
	})
	return newResult(ok, payload)
}

// PayOption adjusts a pre-approved payment.
type PayOption func(*adapter.PreapprovedPayment)

// WithoutCapture leaves the pre-approved payment authorized but uncaptured.
func WithoutCapture() PayOption {
	return func(p *adapter.PreapprovedPayment) { p.Capture = false }
}

// PayPreapproved charges amount against regKey. Payments are captured
// unless WithoutCapture is given, and are always made in THB.
func (c *Client) PayPreapproved(ctx context.Context, regKey string, amount decimal.Decimal, productName, orderID string, opts ...PayOption) Result {
	payment := adapter.PreapprovedPayment{
		RegKey:      regKey,
		ProductName: productName,
		Amount:      amount,
		Currency:    adapter.DefaultCurrency,
		OrderID:     orderID,
		Capture:     true,
	}
	for _, opt := range opts {
		opt(&payment)
	}
	ok, payload := c.invoke(ctx, adapter.OpPayPreapproved, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.PayPreapproved(ctx, payment)
	})
	return newResult(ok, payload)
}

// Capture captures a previously authorized amount. An empty currency means THB.
func (c *Client) Capture(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) Result {
	if currency == "" {
		currency = adapter.DefaultCurrency
	}
	ok, payload := c.invoke(ctx, adapter.OpCapture, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.Capture(ctx, transactionID, amount, currency)
	})
	return newResult(ok, payload)
}

// CheckRegKey returns the provider's answer for regKey. Like PaymentDetails
// it carries no success flag.
func (c *Client) CheckRegKey(ctx context.Context, regKey string) adapter.Payload {
	_, payload := c.invoke(ctx, adapter.OpCheckRegKey, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.CheckRegKey(ctx, regKey)
	})
	return payload
}

// ExpireRegKey expires regKey so it can no longer be charged. It carries no
// success flag.
func (c *Client) ExpireRegKey(ctx context.Context, regKey string) adapter.Payload {
	_, payload := c.invoke(ctx, adapter.OpExpireRegKey, func(ctx context.Context) (adapter.Payload, error) {
		return c.gateway.ExpireRegKey(ctx, regKey)
	})
	return payload
}

func newResult(ok bool, payload adapter.Payload) Result {
	return Result{OK: ok, Message: payload.ReturnMessage(), Payload: payload}
}

// invoke runs one provider call and folds any error into a failure payload.
func (c *Client) invoke(ctx context.Context, op string, fn func(ctx context.Context) (adapter.Payload, error)) (bool, adapter.Payload) {
	ctx, span := c.tracer.Start(ctx, "Gateway."+op, trace.WithAttributes(attribute.String("linepay.operation", op)))
	defer span.End()

	start := time.Now()
	payload, err := fn(ctx)
	elapsed := time.Since(start)
	callDurationSeconds.WithLabelValues(op).Observe(elapsed.Seconds())

	if err == nil {
		callsTotal.WithLabelValues(op, outcomeOK).Inc()
		span.SetAttributes(attribute.String("linepay.return_code", payload.ReturnCode()))
		c.logger.Debug("provider call succeeded",
			zap.String("operation", op),
			zap.String("return_code", payload.ReturnCode()),
			zap.Duration("elapsed", elapsed),
			zap.Any("payload", payload),
		)
		return true, payload
	}

	outcome := outcomeTransportError
	var failure adapter.Payload
	var apiErr *adapter.APIError
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		failure = apiErr.Response
		if apiErr.Err == nil {
			outcome = outcomeProviderError
		}
	} else {
		failure = adapter.Payload{"returnCode": "", "returnMessage": err.Error()}
	}

	callsTotal.WithLabelValues(op, outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("linepay.return_code", failure.ReturnCode()))
	c.logger.Warn("provider call failed",
		zap.String("operation", op),
		zap.String("outcome", outcome),
		zap.String("return_code", failure.ReturnCode()),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
		zap.Any("payload", failure),
	)
	return false, failure
}
