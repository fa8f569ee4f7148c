// Package stripe implements the payments-backend gateway over the Stripe
// REST API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"tg_payment_link_bot/internal/config"
	"tg_payment_link_bot/internal/domain"
	"tg_payment_link_bot/internal/logging"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	requestTimeout = 30 * time.Second

	// pageLimit is the per-page size requested from list endpoints; pages
	// are followed transparently until has_more is false.
	pageLimit = "100"
)

// Client is an explicitly constructed Stripe API client. It is safe for
// concurrent use and holds no mutable state beyond the underlying HTTP client.
type Client struct {
	http   *resty.Client
	logger *logrus.Entry
}

// Option customizes client construction.
type Option func(*Client)

// WithBaseURL overrides the API base URL; used in tests against a local server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
	}
}

// NewClient constructs a Stripe client authenticated with the configured
// secret key.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if cfg.StripeAPIKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	httpClient := resty.New().
		SetBaseURL(defaultBaseURL).
		SetBasicAuth(cfg.StripeAPIKey, "").
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")

	client := &Client{
		http:   httpClient,
		logger: logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type productPage struct {
	Data    []domain.Product `json:"data"`
	HasMore bool             `json:"has_more"`
}

type pricePage struct {
	Data    []domain.Price `json:"data"`
	HasMore bool           `json:"has_more"`
}

type paymentLinkPayload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ListProducts returns every active product, following pagination cursors
// until the listing is exhausted. Order reflects backend iteration order.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	startingAfter := ""

	for {
		params := map[string]string{
			"active": "true",
			"limit":  pageLimit,
		}
		if startingAfter != "" {
			params["starting_after"] = startingAfter
		}

		var page productPage
		var apiErr errorEnvelope

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&page).
			SetError(&apiErr).
			Get("/products")
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("list products: %w", mapAPIError(resp.StatusCode(), &apiErr))
		}

		products = append(products, page.Data...)

		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}

	c.logger.WithFields(logging.Fields{
		"event": "stripe_products_listed",
		"count": len(products),
	}).Debug("listed active products")

	return products, nil
}

// GetProduct retrieves a single product by id.
func (c *Client) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if productID == "" {
		return domain.Product{}, errors.New("product id is required")
	}

	var product domain.Product
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&product).
		SetError(&apiErr).
		Get("/products/" + productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if resp.IsError() {
		return domain.Product{}, fmt.Errorf("get product: %w", mapAPIError(resp.StatusCode(), &apiErr))
	}

	return product, nil
}

// ListPrices returns the active prices of a product, fully paginated.
func (c *Client) ListPrices(ctx context.Context, productID string) ([]domain.Price, error) {
	if productID == "" {
		return nil, errors.New("product id is required")
	}

	var prices []domain.Price
	startingAfter := ""

	for {
		params := map[string]string{
			"product": productID,
			"active":  "true",
			"limit":   pageLimit,
		}
		if startingAfter != "" {
			params["starting_after"] = startingAfter
		}

		var page pricePage
		var apiErr errorEnvelope

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&page).
			SetError(&apiErr).
			Get("/prices")
		if err != nil {
			return nil, fmt.Errorf("list prices: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("list prices: %w", mapAPIError(resp.StatusCode(), &apiErr))
		}

		prices = append(prices, page.Data...)

		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}

	c.logger.WithFields(logging.Fields{
		"event":      "stripe_prices_listed",
		"product_id": productID,
		"count":      len(prices),
	}).Debug("listed product prices")

	return prices, nil
}

// CreatePrice creates a new price binding the product to the given currency
// and minor-unit amount. The backend assigns the price id.
func (c *Client) CreatePrice(ctx context.Context, productID, currency string, unitAmount int64) (domain.Price, error) {
	if productID == "" {
		return domain.Price{}, errors.New("product id is required")
	}

	var price domain.Price
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"currency":    currency,
			"unit_amount": strconv.FormatInt(unitAmount, 10),
			"product":     productID,
		}).
		SetResult(&price).
		SetError(&apiErr).
		Post("/prices")
	if err != nil {
		return domain.Price{}, fmt.Errorf("create price: %w", err)
	}
	if resp.IsError() {
		return domain.Price{}, fmt.Errorf("create price: %w", mapAPIError(resp.StatusCode(), &apiErr))
	}

	c.logger.WithFields(logging.Fields{
		"event":       "stripe_price_created",
		"product_id":  productID,
		"price_id":    price.ID,
		"unit_amount": unitAmount,
	}).Info("created price")

	return price, nil
}

// GetPrice retrieves a single price by id.
func (c *Client) GetPrice(ctx context.Context, priceID string) (domain.Price, error) {
	if priceID == "" {
		return domain.Price{}, errors.New("price id is required")
	}

	var price domain.Price
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&price).
		SetError(&apiErr).
		Get("/prices/" + priceID)
	if err != nil {
		return domain.Price{}, fmt.Errorf("get price: %w", err)
	}
	if resp.IsError() {
		return domain.Price{}, fmt.Errorf("get price: %w", mapAPIError(resp.StatusCode(), &apiErr))
	}

	return price, nil
}

// CreatePaymentLink creates a checkout link for a single line item of the
// given price with quantity 1.
func (c *Client) CreatePaymentLink(ctx context.Context, priceID string) (domain.PaymentLink, error) {
	if priceID == "" {
		return domain.PaymentLink{}, errors.New("price id is required")
	}

	var payload paymentLinkPayload
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"line_items[0][price]":    priceID,
			"line_items[0][quantity]": "1",
		}).
		SetResult(&payload).
		SetError(&apiErr).
		Post("/payment_links")
	if err != nil {
		return domain.PaymentLink{}, fmt.Errorf("create payment link: %w", err)
	}
	if resp.IsError() {
		return domain.PaymentLink{}, fmt.Errorf("create payment link: %w", mapAPIError(resp.StatusCode(), &apiErr))
	}

	c.logger.WithFields(logging.Fields{
		"event":    "stripe_payment_link_created",
		"price_id": priceID,
	}).Info("created payment link")

	return domain.PaymentLink{URL: payload.URL, PriceID: priceID}, nil
}

// Ping verifies API reachability and key validity with a minimal listing call.
func (c *Client) Ping(ctx context.Context) error {
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		SetError(&apiErr).
		Get("/products")
	if err != nil {
		return fmt.Errorf("ping stripe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ping stripe: %w", mapAPIError(resp.StatusCode(), &apiErr))
	}

	return nil
}
