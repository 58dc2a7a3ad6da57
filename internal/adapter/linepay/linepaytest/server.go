// Package linepaytest provides an in-process fake of the LINE Pay v3 API for
// tests. It checks request signatures, keeps transaction and reg key state in
// memory and lets tests script authorization and one-shot failures.
package linepaytest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
	"github.com/yourorg/linepay-preapproval/internal/adapter/linepay"
)

const firstTransactionID int64 = 2024101900000000000

type transaction struct {
	id         string
	orderID    string
	checks     int
	authorized bool
	confirmed  bool
	voided     bool
	regKey     string
}

type failure struct {
	status  int
	payload adapter.Payload
}

// Request is a recorded call, in arrival order.
type Request struct {
	Method    string
	Path      string
	Operation string
	Body      string
}

// Server is a fake LINE Pay endpoint backed by gin.
type Server struct {
	*httptest.Server

	ChannelID     string
	ChannelSecret string

	// AuthorizeAfter is how many status checks answer "not yet authorized"
	// before a transaction reports 0110.
	AuthorizeAfter int

	mu       sync.Mutex
	nextTx   int64
	txs      map[string]*transaction
	orders   map[string]string
	regKeys  map[string]bool // reg key -> expired
	failures map[string]failure
	requests []Request
}

// NewServer starts a fake accepting the given credentials.
func NewServer(channelID, channelSecret string) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		ChannelID:     channelID,
		ChannelSecret: channelSecret,
		nextTx:        firstTransactionID,
		txs:           make(map[string]*transaction),
		orders:        make(map[string]string),
		regKeys:       make(map[string]bool),
		failures:      make(map[string]failure),
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.verifySignature)
	engine.Any("/*path", s.route)
	s.Server = httptest.NewServer(engine)
	return s
}

// Fail makes the next call to operation answer with the given HTTP status
// and a provider error payload.
func (s *Server) Fail(operation string, status int, returnCode, returnMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = failure{
		status:  status,
		payload: adapter.Payload{"returnCode": returnCode, "returnMessage": returnMessage},
	}
}

// Authorize marks a transaction as authorized by the customer.
func (s *Server) Authorize(transactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.txs[transactionID]; ok {
		tx.authorized = true
	}
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Operations returns the operation names of the calls received so far.
func (s *Server) Operations() []string {
	var ops []string
	for _, r := range s.Requests() {
		ops = append(ops, r.Operation)
	}
	return ops
}

// RegKeyExpired reports whether regKey exists and has been expired.
func (s *Server) RegKeyExpired(regKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regKeys[regKey]
}

func (s *Server) verifySignature(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody("1104", "Unreadable request body."))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	signed := string(body)
	if c.Request.Method == http.MethodGet {
		signed = c.Request.URL.RawQuery
	}
	nonce := c.GetHeader("X-LINE-Authorization-Nonce")
	want := linepay.Sign(s.ChannelSecret, c.Request.URL.Path, signed, nonce)
	if c.GetHeader("X-LINE-ChannelId") != s.ChannelID || nonce == "" || c.GetHeader("X-LINE-Authorization") != want {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("1106", "Header information error."))
		return
	}
	c.Next()
}

func (s *Server) route(c *gin.Context) {
	segments := strings.Split(strings.Trim(c.Param("path"), "/"), "/")
	if len(segments) < 2 || segments[0] != "v3" || segments[1] != "payments" {
		c.JSON(http.StatusNotFound, errorBody("1104", "Unknown endpoint."))
		return
	}
	rest := segments[2:]
	method := c.Request.Method

	switch {
	case method == http.MethodPost && len(rest) == 1 && rest[0] == "request":
		s.handle(c, adapter.OpReserve, s.reserve)
	case method == http.MethodGet && len(rest) == 0:
		s.handle(c, adapter.OpPaymentDetails, s.details)
	case method == http.MethodGet && len(rest) == 3 && rest[0] == "requests" && rest[2] == "check":
		s.handle(c, adapter.OpCheckStatus, func(c *gin.Context) (int, gin.H) { return s.checkStatus(rest[1]) })
	case method == http.MethodPost && len(rest) == 2 && rest[1] == "confirm":
		s.handle(c, adapter.OpConfirm, func(c *gin.Context) (int, gin.H) { return s.confirm(rest[0]) })
	case method == http.MethodPost && len(rest) == 3 && rest[0] == "authorizations" && rest[2] == "void":
		s.handle(c, adapter.OpVoid, func(c *gin.Context) (int, gin.H) { return s.authorization(rest[1], true) })
	case method == http.MethodPost && len(rest) == 3 && rest[0] == "authorizations" && rest[2] == "capture":
		s.handle(c, adapter.OpCapture, func(c *gin.Context) (int, gin.H) { return s.authorization(rest[1], false) })
	case method == http.MethodPost && len(rest) == 3 && rest[0] == "preapprovedPay" && rest[2] == "payment":
		s.handle(c, adapter.OpPayPreapproved, func(c *gin.Context) (int, gin.H) { return s.payPreapproved(c, rest[1]) })
	case method == http.MethodGet && len(rest) == 3 && rest[0] == "preapprovedPay" && rest[2] == "check":
		s.handle(c, adapter.OpCheckRegKey, func(c *gin.Context) (int, gin.H) { return s.regKeyCall(rest[1], false) })
	case method == http.MethodPost && len(rest) == 3 && rest[0] == "preapprovedPay" && rest[2] == "expire":
		s.handle(c, adapter.OpExpireRegKey, func(c *gin.Context) (int, gin.H) { return s.regKeyCall(rest[1], true) })
	default:
		c.JSON(http.StatusNotFound, errorBody("1104", "Unknown endpoint."))
	}
}

func (s *Server) handle(c *gin.Context, op string, fn func(c *gin.Context) (int, gin.H)) {
	body, _ := c.GetRawData()
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Operation: op,
		Body:      string(body),
	})
	f, failing := s.failures[op]
	if failing {
		delete(s.failures, op)
	}
	s.mu.Unlock()

	if failing {
		c.JSON(f.status, f.payload)
		return
	}
	status, resp := fn(c)
	c.JSON(status, resp)
}

func (s *Server) reserve(c *gin.Context) (int, gin.H) {
	var req struct {
		OrderID  string `json:"orderId"`
		Currency string `json:"currency"`
		Packages []struct {
			ID string `json:"id"`
		} `json:"packages"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" || len(req.Packages) == 0 {
		return http.StatusOK, errorBody("1104", "Invalid request parameters.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.orders[req.OrderID]; dup {
		return http.StatusOK, errorBody("1172", "Existing same orderId.")
	}
	s.nextTx++
	id := fmt.Sprintf("%d", s.nextTx)
	s.txs[id] = &transaction{id: id, orderID: req.OrderID}
	s.orders[req.OrderID] = id

	return http.StatusOK, gin.H{
		"returnCode":    adapter.ReturnCodeSuccess,
		"returnMessage": "Success.",
		"info": gin.H{
			"transactionId":      json.Number(id),
			"paymentAccessToken": "187568751124",
			"paymentUrl": gin.H{
				"web": s.URL + "/web/pay?transactionId=" + id,
				"app": "line://pay/payment/" + id,
			},
		},
	}
}

func (s *Server) details(c *gin.Context) (int, gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[c.Query("transactionId")]
	if !ok || (c.Query("orderId") != "" && tx.orderID != c.Query("orderId")) {
		return http.StatusOK, errorBody("1150", "Transaction record not found.")
	}
	payStatus := "AUTH_READY"
	if tx.authorized {
		payStatus = "AUTHORIZED"
	}
	return http.StatusOK, gin.H{
		"returnCode":    adapter.ReturnCodeSuccess,
		"returnMessage": "Success.",
		"info": []gin.H{{
			"transactionId": json.Number(tx.id),
			"orderId":       tx.orderID,
			"payStatus":     payStatus,
		}},
	}
}

func (s *Server) checkStatus(id string) (int, gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return http.StatusOK, errorBody("1150", "Transaction record not found.")
	}
	tx.checks++
	if !tx.authorized && tx.checks > s.AuthorizeAfter {
		tx.authorized = true
	}
	if tx.confirmed {
		return http.StatusOK, gin.H{"returnCode": "0123", "returnMessage": "Payment completed."}
	}
	if tx.authorized {
		return http.StatusOK, gin.H{"returnCode": adapter.ReturnCodeAuthorized, "returnMessage": "Authorization completed."}
	}
	return http.StatusOK, gin.H{"returnCode": adapter.ReturnCodeSuccess, "returnMessage": "Authorization not completed."}
}

func (s *Server) confirm(id string) (int, gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	switch {
	case !ok:
		return http.StatusOK, errorBody("1150", "Transaction record not found.")
	case !tx.authorized:
		return http.StatusOK, errorBody("1139", "Authorization not completed.")
	case tx.confirmed:
		return http.StatusOK, errorBody("1172", "Existing same orderId.")
	}
	tx.confirmed = true
	tx.regKey = "RK" + tx.id[len(tx.id)-8:]
	s.regKeys[tx.regKey] = false
	return http.StatusOK, gin.H{
		"returnCode":    adapter.ReturnCodeSuccess,
		"returnMessage": "Success.",
		"info": gin.H{
			"orderId":       tx.orderID,
			"transactionId": json.Number(tx.id),
			"regKey":        tx.regKey,
			"payInfo":       []gin.H{{"method": "CREDIT_CARD", "amount": 0}},
		},
	}
}

func (s *Server) authorization(id string, void bool) (int, gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return http.StatusOK, errorBody("1150", "Transaction record not found.")
	}
	if tx.voided {
		return http.StatusOK, errorBody("1165", "Transaction already voided.")
	}
	info := gin.H{"transactionId": json.Number(tx.id), "orderId": tx.orderID}
	if void {
		tx.voided = true
		info = nil
	}
	resp := gin.H{"returnCode": adapter.ReturnCodeSuccess, "returnMessage": "Success."}
	if info != nil {
		resp["info"] = info
	}
	return http.StatusOK, resp
}

func (s *Server) payPreapproved(c *gin.Context, regKey string) (int, gin.H) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	_ = c.ShouldBindJSON(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if status, resp, ok := s.regKeyUsable(regKey); !ok {
		return status, resp
	}
	s.nextTx++
	return http.StatusOK, gin.H{
		"returnCode":    adapter.ReturnCodeSuccess,
		"returnMessage": "Success.",
		"info": gin.H{
			"transactionId":   json.Number(fmt.Sprintf("%d", s.nextTx)),
			"orderId":         req.OrderID,
			"transactionDate": "2024-10-19T07:51:00Z",
		},
	}
}

func (s *Server) regKeyCall(regKey string, expire bool) (int, gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, resp, ok := s.regKeyUsable(regKey); !ok {
		return status, resp
	}
	if expire {
		s.regKeys[regKey] = true
	}
	return http.StatusOK, gin.H{"returnCode": adapter.ReturnCodeSuccess, "returnMessage": "Success."}
}

// regKeyUsable must be called with s.mu held.
func (s *Server) regKeyUsable(regKey string) (int, gin.H, bool) {
	expired, known := s.regKeys[regKey]
	switch {
	case !known:
		return http.StatusOK, errorBody("1190", "regKey does not exist."), false
	case expired:
		return http.StatusOK, errorBody("1193", "regKey expired."), false
	}
	return 0, nil, true
}

func errorBody(code, message string) gin.H {
	return gin.H{"returnCode": code, "returnMessage": message}
}
