package reservation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
)

// Order is what the caller wants reserved. Its ID must be unique per
// reservation attempt.
type Order struct {
	ID       string
	Currency string
	Packages []Package
}

// Package groups products under one provider package.
type Package struct {
	ID       string
	Name     string
	Products []Product
}

// Product is a line item. Price and Quantity may both be zero: the
// reservation only registers the pre-approval and the real amount is charged
// later.
type Product struct {
	ID       string
	Name     string
	ImageURL string
	Quantity int
	Price    decimal.Decimal
}

// NewOrder builds the single-product, zero-amount order used for
// pre-approval reservations.
func NewOrder(orderID, productID, productName, currency, imageURL string) Order {
	if currency == "" {
		currency = adapter.DefaultCurrency
	}
	return Order{
		ID:       orderID,
		Currency: currency,
		Packages: []Package{{
			ID:   "package-" + productID,
			Name: "Package " + productName,
			Products: []Product{{
				ID:       productID,
				Name:     productName,
				ImageURL: imageURL,
			}},
		}},
	}
}

// Amount is the sum of price times quantity over all products.
func (p Package) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, prod := range p.Products {
		total = total.Add(prod.Price.Mul(decimal.NewFromInt(int64(prod.Quantity))))
	}
	return total
}

// Amount is the sum of all package amounts.
func (o Order) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, pkg := range o.Packages {
		total = total.Add(pkg.Amount())
	}
	return total
}

// Validate checks the order has an id and at least one product per package.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if len(o.Packages) == 0 {
		return fmt.Errorf("order %s has no packages", o.ID)
	}
	for i, pkg := range o.Packages {
		if pkg.ID == "" {
			return fmt.Errorf("order %s: package %d has no id", o.ID, i)
		}
		if len(pkg.Products) == 0 {
			return fmt.Errorf("order %s: package %s has no products", o.ID, pkg.ID)
		}
		for _, prod := range pkg.Products {
			if prod.Quantity < 0 || prod.Price.IsNegative() {
				return fmt.Errorf("order %s: product %s has a negative quantity or price", o.ID, prod.ID)
			}
		}
	}
	return nil
}

// ProductName is the name of the first product, used to label later charges.
func (o Order) ProductName() string {
	for _, pkg := range o.Packages {
		for _, prod := range pkg.Products {
			return prod.Name
		}
	}
	return ""
}
