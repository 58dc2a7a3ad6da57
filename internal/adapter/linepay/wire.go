package linepay

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Request bodies as LINE Pay expects them. Amounts go out as JSON numbers.

type reserveBody struct {
	Amount       json.Number   `json:"amount"`
	Currency     string        `json:"currency"`
	OrderID      string        `json:"orderId"`
	Packages     []packageBody `json:"packages"`
	Options      *optionsBody  `json:"options,omitempty"`
	RedirectURLs redirectBody  `json:"redirectUrls"`
}

type packageBody struct {
	ID       string        `json:"id"`
	Amount   json.Number   `json:"amount"`
	Name     string        `json:"name"`
	Products []productBody `json:"products"`
}

type productBody struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	ImageURL string      `json:"imageUrl"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type optionsBody struct {
	Payment paymentBody `json:"payment"`
}

type paymentBody struct {
	PayType string `json:"payType"`
	Capture bool   `json:"capture"`
}

type redirectBody struct {
	ConfirmURL string `json:"confirmUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type amountBody struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

type preapprovedBody struct {
	ProductName string      `json:"productName"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	OrderID     string      `json:"orderId"`
	Capture     bool        `json:"capture"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
