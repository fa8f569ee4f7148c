// Package domain defines shared domain types for the payment-link bot.
package domain

// Product is a catalog product owned by the payments backend. The bot only
// ever reads it.
type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Price binds a product to a currency and a fixed amount in minor units
// (cents for USD).
type Price struct {
	ID         string `json:"id"`
	ProductID  string `json:"product"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Active     bool   `json:"active"`
}

// PaymentLink is a backend-hosted checkout URL bound to a single price.
type PaymentLink struct {
	URL     string `json:"url"`
	PriceID string `json:"-"`
}
