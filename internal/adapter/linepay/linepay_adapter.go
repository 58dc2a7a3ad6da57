// Package linepay implements adapter.PaymentGateway against the LINE Pay v3
// online API. It signs every request, decodes responses without touching
// their contents and maps provider failures to *adapter.APIError.
package linepay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
)

const (
	SandboxBaseURL    = "https://sandbox-api-pay.line.me"
	ProductionBaseURL = "https://api-pay.line.me"

	defaultTimeout = 20 * time.Second

	// Breaker settings follow the old in-house breaker: five consecutive
	// failures open it for 30s, two successes in half-open close it.
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
	breakerHalfOpenRequests = 2
)

const (
	headerChannelID     = "X-LINE-ChannelId"
	headerNonce         = "X-LINE-Authorization-Nonce"
	headerAuthorization = "X-LINE-Authorization"
)

// Status codes the check endpoint may answer with besides 0000.
var checkStatusCodes = []string{
	adapter.ReturnCodeSuccess,
	adapter.ReturnCodeAuthorized,
	"0121", // cancelled by the customer or timed out
	"0122", // payment failed
	"0123", // payment completed
}

// ErrMissingCredentials is returned by New when the channel id or secret is empty.
var ErrMissingCredentials = errors.New("linepay: channel id and channel secret are required")

// Config configures an Adapter.
type Config struct {
	ChannelID     string
	ChannelSecret string
	Sandbox       bool
	BaseURL       string // overrides the sandbox/production endpoint when set
	Timeout       time.Duration
}

// Adapter talks to LINE Pay over HTTP.
type Adapter struct {
	client        *resty.Client
	breaker       *gobreaker.CircuitBreaker
	channelID     string
	channelSecret string
	nonce         func() string
}

// New creates an Adapter. Missing credentials are a configuration error.
func New(cfg Config) (*Adapter, error) {
	if cfg.ChannelID == "" || cfg.ChannelSecret == "" {
		return nil, ErrMissingCredentials
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ProductionBaseURL
		if cfg.Sandbox {
			baseURL = SandboxBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader(headerChannelID, cfg.ChannelID)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "linepay",
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	})

	return &Adapter{
		client:        client,
		breaker:       breaker,
		channelID:     cfg.ChannelID,
		channelSecret: cfg.ChannelSecret,
		nonce:         uuid.NewString,
	}, nil
}

// BaseURL returns the endpoint the adapter sends requests to.
func (a *Adapter) BaseURL() string {
	return a.client.BaseURL
}

// BreakerState reports the circuit breaker state, for health endpoints.
func (a *Adapter) BreakerState() gobreaker.State {
	return a.breaker.State()
}

// Sign computes the X-LINE-Authorization value for a request. payload is the
// JSON body for POST requests and the encoded query string for GET requests.
func Sign(channelSecret, path, payload, nonce string) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write([]byte(channelSecret + path + payload + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Reserve(ctx context.Context, req adapter.ReserveRequest) (adapter.Payload, error) {
	currency := req.Currency
	if currency == "" {
		currency = adapter.DefaultCurrency
	}
	body := reserveBody{
		Amount:   number(req.Amount),
		Currency: currency,
		OrderID:  req.OrderID,
		RedirectURLs: redirectBody{
			ConfirmURL: req.RedirectURLs.ConfirmURL,
			CancelURL:  req.RedirectURLs.CancelURL,
		},
	}
	for _, pkg := range req.Packages {
		pb := packageBody{ID: pkg.ID, Amount: number(pkg.Amount), Name: pkg.Name}
		for _, p := range pkg.Products {
			pb.Products = append(pb.Products, productBody{
				ID:       p.ID,
				Name:     p.Name,
				ImageURL: p.ImageURL,
				Quantity: p.Quantity,
				Price:    number(p.Price),
			})
		}
		body.Packages = append(body.Packages, pb)
	}
	if req.Options != nil {
		body.Options = &optionsBody{Payment: paymentBody{
			PayType: req.Options.Payment.PayType,
			Capture: req.Options.Payment.Capture,
		}}
	}
	return a.post(ctx, adapter.OpReserve, "/v3/payments/request", body)
}

func (a *Adapter) PaymentDetails(ctx context.Context, transactionID, orderID string) (adapter.Payload, error) {
	query := url.Values{}
	query.Set("transactionId", transactionID)
	if orderID != "" {
		query.Set("orderId", orderID)
	}
	return a.get(ctx, adapter.OpPaymentDetails, "/v3/payments", query)
}

func (a *Adapter) CheckPaymentStatus(ctx context.Context, transactionID string) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/requests/%s/check", url.PathEscape(transactionID))
	return a.do(ctx, adapter.OpCheckStatus, http.MethodGet, path, nil, url.Values{}, checkStatusCodes)
}

func (a *Adapter) Confirm(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/%s/confirm", url.PathEscape(transactionID))
	return a.post(ctx, adapter.OpConfirm, path, amountBody{Amount: number(amount), Currency: orDefault(currency)})
}

func (a *Adapter) Void(ctx context.Context, transactionID string) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/authorizations/%s/void", url.PathEscape(transactionID))
	return a.post(ctx, adapter.OpVoid, path, struct{}{})
}

func (a *Adapter) PayPreapproved(ctx context.Context, req adapter.PreapprovedPayment) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/preapprovedPay/%s/payment", url.PathEscape(req.RegKey))
	return a.post(ctx, adapter.OpPayPreapproved, path, preapprovedBody{
		ProductName: req.ProductName,
		Amount:      number(req.Amount),
		Currency:    orDefault(req.Currency),
		OrderID:     req.OrderID,
		Capture:     req.Capture,
	})
}

func (a *Adapter) Capture(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/authorizations/%s/capture", url.PathEscape(transactionID))
	return a.post(ctx, adapter.OpCapture, path, amountBody{Amount: number(amount), Currency: orDefault(currency)})
}

func (a *Adapter) CheckRegKey(ctx context.Context, regKey string) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/preapprovedPay/%s/check", url.PathEscape(regKey))
	query := url.Values{}
	query.Set("creditCardAuth", "false")
	return a.get(ctx, adapter.OpCheckRegKey, path, query)
}

func (a *Adapter) ExpireRegKey(ctx context.Context, regKey string) (adapter.Payload, error) {
	path := fmt.Sprintf("/v3/payments/preapprovedPay/%s/expire", url.PathEscape(regKey))
	return a.post(ctx, adapter.OpExpireRegKey, path, struct{}{})
}

func (a *Adapter) post(ctx context.Context, op, path string, body any) (adapter.Payload, error) {
	return a.do(ctx, op, http.MethodPost, path, body, nil, nil)
}

func (a *Adapter) get(ctx context.Context, op, path string, query url.Values) (adapter.Payload, error) {
	return a.do(ctx, op, http.MethodGet, path, nil, query, nil)
}

// errServerStatus marks responses that count against the breaker.
var errServerStatus = errors.New("linepay: server error status")

func (a *Adapter) do(
	ctx context.Context,
	op, method, path string,
	body any,
	query url.Values,
	accepted []string,
) (adapter.Payload, error) {
	var signed string
	var bodyBytes []byte
	if method == http.MethodGet {
		signed = query.Encode()
	} else {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, adapter.NewTransportError(op, fmt.Errorf("linepay: failed to encode request body: %w", err))
		}
		signed = string(bodyBytes)
	}

	nonce := a.nonce()
	req := a.client.R().
		SetContext(ctx).
		SetHeader(headerNonce, nonce).
		SetHeader(headerAuthorization, Sign(a.channelSecret, path, signed, nonce))
	if method == http.MethodGet {
		if signed != "" {
			req.SetQueryString(signed)
		}
	} else {
		req.SetBody(bodyBytes)
	}

	out, err := a.breaker.Execute(func() (interface{}, error) {
		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})

	resp, _ := out.(*resty.Response)
	if err != nil && !errors.Is(err, errServerStatus) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, adapter.NewTransportError(op, fmt.Errorf("linepay: circuit breaker rejected call: %w", err))
		}
		return nil, adapter.NewTransportError(op, fmt.Errorf("linepay: http request failed: %w", err))
	}

	payload, decodeErr := decodePayload(resp.Body())
	if decodeErr != nil {
		return nil, &adapter.APIError{
			Operation:  op,
			StatusCode: resp.StatusCode(),
			Response: adapter.Payload{
				"returnCode":    "",
				"returnMessage": fmt.Sprintf("undecodable response body: %s", string(resp.Body())),
			},
			Err: fmt.Errorf("linepay: failed to decode response: %w", decodeErr),
		}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &adapter.APIError{Operation: op, StatusCode: resp.StatusCode(), Response: payload}
	}
	if accepted == nil {
		accepted = []string{adapter.ReturnCodeSuccess}
	}
	if !slices.Contains(accepted, payload.ReturnCode()) {
		return nil, &adapter.APIError{Operation: op, StatusCode: resp.StatusCode(), Response: payload}
	}
	return payload, nil
}

func decodePayload(raw []byte) (adapter.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload adapter.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("empty payload")
	}
	return payload, nil
}

func orDefault(currency string) string {
	if currency == "" {
		return adapter.DefaultCurrency
	}
	return currency
}
