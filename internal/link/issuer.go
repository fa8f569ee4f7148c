// Package link orchestrates price resolution and payment-link issuance.
package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tg_payment_link_bot/internal/domain"
	"tg_payment_link_bot/internal/logging"
)

// Backend is the payments-backend surface the issuer depends on.
type Backend interface {
	ListPrices(ctx context.Context, productID string) ([]domain.Price, error)
	GetPrice(ctx context.Context, priceID string) (domain.Price, error)
	CreatePrice(ctx context.Context, productID, currency string, unitAmount int64) (domain.Price, error)
	CreatePaymentLink(ctx context.Context, priceID string) (domain.PaymentLink, error)
}

// Issuer resolves or creates a price for a product and issues a payment link
// for it. It performs no retries; a single backend error terminates the
// attempt and the user resubmits to try again.
type Issuer struct {
	backend  Backend
	currency string
	logger   *logrus.Entry
}

// Result carries the issued link together with the price it references.
type Result struct {
	Link        domain.PaymentLink
	Price       domain.Price
	ReusedPrice bool
}

// NewIssuer constructs an Issuer creating prices in the given currency.
func NewIssuer(backend Backend, currency string, logger *logrus.Entry) *Issuer {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Issuer{
		backend:  backend,
		currency: currency,
		logger:   logger,
	}
}

// Issue resolves a price for the product at the requested minor-unit amount,
// reusing the first existing price with an equal unit_amount in backend
// iteration order, and creates a payment link referencing it.
func (i *Issuer) Issue(ctx context.Context, productID string, minorUnits int64) (Result, error) {
	if i == nil || i.backend == nil {
		return Result{}, errors.New("link issuer is not initialized")
	}
	if productID == "" {
		return Result{}, errors.New("product id is required")
	}

	prices, err := i.backend.ListPrices(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve existing prices: %w", err)
	}

	var price domain.Price
	reused := false
	for _, candidate := range prices {
		if candidate.UnitAmount == minorUnits {
			price, err = i.backend.GetPrice(ctx, candidate.ID)
			if err != nil {
				return Result{}, fmt.Errorf("retrieve existing price: %w", err)
			}
			reused = true
			break
		}
	}

	if !reused {
		price, err = i.backend.CreatePrice(ctx, productID, i.currency, minorUnits)
		if err != nil {
			return Result{}, fmt.Errorf("create price: %w", err)
		}
	}

	paymentLink, err := i.backend.CreatePaymentLink(ctx, price.ID)
	if err != nil {
		return Result{}, fmt.Errorf("create payment link: %w", err)
	}

	i.logger.WithFields(logging.Fields{
		"event":       "payment_link_issued",
		"product_id":  productID,
		"price_id":    price.ID,
		"unit_amount": minorUnits,
		"price_reuse": reused,
	}).Info("issued payment link")

	return Result{
		Link:        paymentLink,
		Price:       price,
		ReusedPrice: reused,
	}, nil
}
