// Package reservation turns a caller's order into the reservation request
// sent to the provider.
package reservation

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
)

// PayTypePreapproved asks the provider to issue a reg key on confirm.
const PayTypePreapproved = "PREAPPROVED"

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linepay_reservation_builds_total",
		Help: "Reservation requests built, by outcome.",
	}, []string{"outcome"})
	buildDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linepay_reservation_build_duration_seconds",
		Help:    "Time spent building reservation requests.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
	})
)

// GetBuildsTotal exposes the builds counter for tests.
func GetBuildsTotal() *prometheus.CounterVec { return buildsTotal }

// GetBuildDurationSeconds exposes the build duration histogram for tests.
func GetBuildDurationSeconds() prometheus.Histogram { return buildDurationSeconds }

// Builder constructs reservation requests.
type Builder struct {
	redirects adapter.RedirectURLs
	payType   string
	capture   bool
}

// NewBuilder creates a Builder issuing pre-approved reservations that capture
// on charge and redirect the customer to the given URLs.
func NewBuilder(confirmURL, cancelURL string) *Builder {
	return &Builder{
		redirects: adapter.RedirectURLs{ConfirmURL: confirmURL, CancelURL: cancelURL},
		payType:   PayTypePreapproved,
		capture:   true,
	}
}

// Build validates order and copies it into a reservation request. The
// request shares no slices with order, so later changes to order do not leak
// into a reservation already handed out.
func (b *Builder) Build(order Order) (adapter.ReserveRequest, error) {
	start := time.Now()
	defer func() { buildDurationSeconds.Observe(time.Since(start).Seconds()) }()

	if err := order.Validate(); err != nil {
		buildsTotal.WithLabelValues("invalid").Inc()
		return adapter.ReserveRequest{}, fmt.Errorf("invalid order: %w", err)
	}

	currency := order.Currency
	if currency == "" {
		currency = adapter.DefaultCurrency
	}
	req := adapter.ReserveRequest{
		Amount:       order.Amount(),
		Currency:     currency,
		OrderID:      order.ID,
		Packages:     make([]adapter.Package, 0, len(order.Packages)),
		Options:      &adapter.Options{Payment: adapter.PaymentOptions{PayType: b.payType, Capture: b.capture}},
		RedirectURLs: b.redirects,
	}
	for _, pkg := range order.Packages {
		wire := adapter.Package{
			ID:       pkg.ID,
			Amount:   pkg.Amount(),
			Name:     pkg.Name,
			Products: make([]adapter.Product, 0, len(pkg.Products)),
		}
		for _, p := range pkg.Products {
			wire.Products = append(wire.Products, adapter.Product{
				ID:       p.ID,
				Name:     p.Name,
				ImageURL: p.ImageURL,
				Quantity: p.Quantity,
				Price:    p.Price,
			})
		}
		req.Packages = append(req.Packages, wire)
	}

	buildsTotal.WithLabelValues("ok").Inc()
	return req, nil
}
