// Package orchestrator drives a pre-approved payment through its lifecycle:
// reserve, wait for the customer to authorize, confirm for a reg key, charge
// the real amount against it, expire it and report its final status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
	"github.com/yourorg/linepay-preapproval/internal/gateway"
	"github.com/yourorg/linepay-preapproval/internal/monitor"
	"github.com/yourorg/linepay-preapproval/internal/policy"
	"github.com/yourorg/linepay-preapproval/internal/reporting"
	"github.com/yourorg/linepay-preapproval/internal/reservation"
)

// Gateway is the subset of gateway.Client the driver needs.
type Gateway interface {
	ReserveOrder(ctx context.Context, order reservation.Order) gateway.Result
	PaymentDetails(ctx context.Context, transactionID, orderID string) adapter.Payload
	CheckPaymentStatus(ctx context.Context, transactionID string) gateway.Result
	Confirm(ctx context.Context, transactionID string) gateway.Result
	PayPreapproved(ctx context.Context, regKey string, amount decimal.Decimal, productName, orderID string, opts ...gateway.PayOption) gateway.Result
	ExpireRegKey(ctx context.Context, regKey string) adapter.Payload
	CheckRegKey(ctx context.Context, regKey string) adapter.Payload
}

// ChargePolicy decides whether a charge may go ahead.
type ChargePolicy interface {
	Evaluate(req policy.ChargeRequest) (policy.PolicyDecision, error)
}

// Config bounds the authorization wait. A zero MaxPollAttempts or
// PollTimeout leaves that dimension unbounded.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts uint
	PollTimeout     time.Duration
}

// DefaultConfig polls every 10 seconds for up to 15 minutes.
func DefaultConfig() Config {
	return Config{
		PollInterval:    10 * time.Second,
		MaxPollAttempts: 90,
		PollTimeout:     15 * time.Minute,
	}
}

// Outcome records what a run achieved, including partial progress when Run
// returns an error.
type Outcome struct {
	OrderID       string
	TransactionID string
	RegKey        string
	PollAttempts  int
	Charged       bool
	Charge        gateway.Result
	RegKeyExpired bool
	RegKeyStatus  adapter.Payload
	Steps         []reporting.StepRecord
	Report        *reporting.RunReport
}

// LifecycleDriver runs one order at a time through the provider.
type LifecycleDriver struct {
	gw          Gateway
	cfg         Config
	contracts   *monitor.ResponseContracts
	contractDir string
	policy      ChargePolicy
	reporter    *reporting.RunReporter
	logger      *zap.Logger
	tracer      trace.Tracer
}

// DriverOption configures a LifecycleDriver.
type DriverOption func(*LifecycleDriver)

// WithLogger sets the logger that receives step banners and run reports.
func WithLogger(logger *zap.Logger) DriverOption {
	return func(d *LifecycleDriver) { d.logger = logger }
}

// WithContractDir adds or replaces response contracts with the *.json
// schemas found in dir.
func WithContractDir(dir string) DriverOption {
	return func(d *LifecycleDriver) { d.contractDir = dir }
}

// WithChargePolicy consults p before every charge.
func WithChargePolicy(p ChargePolicy) DriverOption {
	return func(d *LifecycleDriver) { d.policy = p }
}

// NewLifecycleDriver creates a driver. A non-positive PollInterval is an error.
func NewLifecycleDriver(gw Gateway, cfg Config, opts ...DriverOption) (*LifecycleDriver, error) {
	if gw == nil {
		panic("gateway cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidInput, cfg.PollInterval)
	}
	d := &LifecycleDriver{
		gw:       gw,
		cfg:      cfg,
		reporter: reporting.NewRunReporter(adapter.OpCheckStatus),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("orchestrator"),
	}
	for _, opt := range opts {
		opt(d)
	}
	contracts, err := monitor.LoadResponseContracts(d.contractDir)
	if err != nil {
		return nil, fmt.Errorf("load response contracts: %w", err)
	}
	d.contracts = contracts
	return d, nil
}

// Run drives order through the full lifecycle and charges amount against the
// resulting reg key. The returned Outcome is never nil.
//
// A failed or denied charge does not stop the run: the reg key is still
// expired and checked, and the charge error is returned afterwards. Nothing
// is rolled back once the reservation has succeeded.
func (d *LifecycleDriver) Run(ctx context.Context, order reservation.Order, amount decimal.Decimal) (*Outcome, error) {
	ctx, span := d.tracer.Start(ctx, "LifecycleDriver.Run", trace.WithAttributes(attribute.String("linepay.order_id", order.ID)))
	defer span.End()

	out := &Outcome{OrderID: order.ID}
	err := d.run(ctx, out, order, amount)

	out.Report = d.reporter.Generate(order.ID, out.Steps)
	out.PollAttempts = out.Report.PollAttempts
	runsTotal.WithLabelValues(Kind(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("lifecycle run failed", zap.String("order_id", order.ID), zap.String("kind", Kind(err)), zap.Error(err))
	}
	d.logger.Info("lifecycle run report", zap.Object("report", out.Report))
	return out, err
}

func (d *LifecycleDriver) run(ctx context.Context, out *Outcome, order reservation.Order, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: charge amount must be positive, got %s", ErrInvalidInput, amount)
	}

	d.logger.Info("===== Reserve Payment", zap.String("order_id", order.ID))
	start := time.Now()
	reserved := d.gw.ReserveOrder(ctx, order)
	d.record(out, adapter.OpReserve, reserved.OK, reserved.Payload, start)
	if !reserved.OK {
		return fmt.Errorf("%w: %s (%s)", ErrReservationFailed, reserved.Message, reserved.Payload.ReturnCode())
	}
	if err := d.contracts.Check(adapter.OpReserve, reserved.Payload); err != nil {
		return &DataShapeError{Operation: adapter.OpReserve, Field: "info.transactionId", Payload: reserved.Payload, Err: err}
	}
	out.TransactionID, _ = reserved.Payload.String("info", "transactionId")
	if out.TransactionID == "" {
		return &DataShapeError{Operation: adapter.OpReserve, Field: "info.transactionId", Payload: reserved.Payload, Err: errors.New("empty transaction id")}
	}

	d.logger.Info("===== Check Status", zap.String("transaction_id", out.TransactionID))
	if _, err := d.awaitAuthorization(ctx, out, out.TransactionID, order.ID); err != nil {
		return err
	}

	d.logger.Info("===== Confirm", zap.String("transaction_id", out.TransactionID))
	start = time.Now()
	confirmed := d.gw.Confirm(ctx, out.TransactionID)
	d.record(out, adapter.OpConfirm, confirmed.OK, confirmed.Payload, start)
	if !confirmed.OK {
		return &DataShapeError{
			Operation: adapter.OpConfirm,
			Field:     "info.regKey",
			Payload:   confirmed.Payload,
			Err:       fmt.Errorf("confirm failed: %s (%s)", confirmed.Message, confirmed.Payload.ReturnCode()),
		}
	}
	if err := d.contracts.Check(adapter.OpConfirm, confirmed.Payload); err != nil {
		return &DataShapeError{Operation: adapter.OpConfirm, Field: "info.regKey", Payload: confirmed.Payload, Err: err}
	}
	out.RegKey, _ = confirmed.Payload.String("info", "regKey")

	d.logger.Info(fmt.Sprintf("===== But charge %s %s", amount, adapter.DefaultCurrency), zap.String("order_id", order.ID))
	chargeErr := d.charge(ctx, out, order, amount)

	d.logger.Info("===== Expire RegKey")
	start = time.Now()
	expired := d.gw.ExpireRegKey(ctx, out.RegKey)
	out.RegKeyExpired = expired.ReturnCode() == adapter.ReturnCodeSuccess
	d.record(out, adapter.OpExpireRegKey, out.RegKeyExpired, expired, start)

	d.logger.Info("===== Status after expiration")
	start = time.Now()
	out.RegKeyStatus = d.gw.CheckRegKey(ctx, out.RegKey)
	d.record(out, adapter.OpCheckRegKey, out.RegKeyStatus.ReturnCode() == adapter.ReturnCodeSuccess, out.RegKeyStatus, start)
	d.logger.Info("reg key status after expiration",
		zap.String("return_code", out.RegKeyStatus.ReturnCode()),
		zap.String("return_message", out.RegKeyStatus.ReturnMessage()),
	)

	return chargeErr
}

func (d *LifecycleDriver) charge(ctx context.Context, out *Outcome, order reservation.Order, amount decimal.Decimal) error {
	if d.policy != nil {
		decision, err := d.policy.Evaluate(policy.ChargeRequest{
			Amount:   amount,
			Currency: adapter.DefaultCurrency,
			OrderID:  order.ID,
			RegKey:   out.RegKey,
		})
		if err != nil {
			return fmt.Errorf("evaluate charge policy: %w", err)
		}
		if !decision.AllowCharge {
			d.logger.Warn("charge denied by policy", zap.String("rule", decision.RuleID), zap.String("reason", decision.Reason))
			return &policy.DeniedError{Decision: decision}
		}
	}

	start := time.Now()
	out.Charge = d.gw.PayPreapproved(ctx, out.RegKey, amount, order.ProductName(), order.ID)
	d.record(out, adapter.OpPayPreapproved, out.Charge.OK, out.Charge.Payload, start)
	out.Charged = out.Charge.OK
	if !out.Charge.OK {
		return fmt.Errorf("%w: %s (%s)", ErrChargeFailed, out.Charge.Message, out.Charge.Payload.ReturnCode())
	}
	return nil
}

var errNotAuthorized = errors.New("payment not authorized yet")

// AwaitAuthorization polls the payment status until the customer authorizes
// it, fetching payment details after every unauthorized check. It returns the
// number of status checks made.
//
// The wait ends with ErrAuthorizationTimedOut when MaxPollAttempts or
// PollTimeout is reached, and with the context's error when ctx is done.
func (d *LifecycleDriver) AwaitAuthorization(ctx context.Context, transactionID, orderID string) (int, error) {
	return d.awaitAuthorization(ctx, &Outcome{}, transactionID, orderID)
}

func (d *LifecycleDriver) awaitAuthorization(ctx context.Context, out *Outcome, transactionID, orderID string) (int, error) {
	ctx, span := d.tracer.Start(ctx, "LifecycleDriver.AwaitAuthorization")
	defer span.End()

	attempts := 0
	check := func() (gateway.Result, error) {
		attempts++
		pollAttemptsTotal.Inc()

		start := time.Now()
		status := d.gw.CheckPaymentStatus(ctx, transactionID)
		d.record(out, adapter.OpCheckStatus, status.OK, status.Payload, start)
		if status.OK {
			return status, nil
		}

		start = time.Now()
		details := d.gw.PaymentDetails(ctx, transactionID, orderID)
		d.record(out, adapter.OpPaymentDetails, details.ReturnCode() == adapter.ReturnCodeSuccess, details, start)
		return status, fmt.Errorf("%w: %s (%s)", errNotAuthorized, status.Message, status.Payload.ReturnCode())
	}

	_, err := backoff.Retry(ctx, check,
		backoff.WithBackOff(backoff.NewConstantBackOff(d.cfg.PollInterval)),
		backoff.WithMaxTries(d.cfg.MaxPollAttempts),
		backoff.WithMaxElapsedTime(d.cfg.PollTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Debug("waiting for authorization", zap.Error(err), zap.Duration("next_check", next))
		}),
	)
	span.SetAttributes(attribute.Int("linepay.poll_attempts", attempts))

	switch {
	case err == nil:
		return attempts, nil
	case ctx.Err() != nil:
		return attempts, fmt.Errorf("awaiting authorization: %w", ctx.Err())
	case errors.Is(err, errNotAuthorized):
		return attempts, fmt.Errorf("%w after %d status checks: %v", ErrAuthorizationTimedOut, attempts, err)
	default:
		return attempts, fmt.Errorf("awaiting authorization: %w", err)
	}
}

func (d *LifecycleDriver) record(out *Outcome, step string, ok bool, payload adapter.Payload, start time.Time) {
	out.Steps = append(out.Steps, reporting.StepRecord{
		Timestamp:  start,
		Step:       step,
		OK:         ok,
		ReturnCode: payload.ReturnCode(),
		Message:    payload.ReturnMessage(),
		Duration:   time.Since(start),
	})
	d.logger.Debug("provider response", zap.String("step", step), zap.Bool("ok", ok), zap.Any("payload", payload))
}
