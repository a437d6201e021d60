package gateway

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"marketplace/internal/config"
	"marketplace/pkg/apperr"
)

// GatewayOrder order created at the payment gateway for a checkout
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client payment gateway client interface
type Client interface {
	// CreateOrder registers a checkout with the gateway and returns the
	// gateway order the client uses for the redirect
	CreateOrder(ctx context.Context, amountCents int64, receipt string) (*GatewayOrder, error)

	// VerifyWebhookSignature verifies the HMAC signature over the raw payload
	VerifyWebhookSignature(payload []byte, signature string) error
}

// client razorpay-style REST client
type client struct {
	http          *resty.Client
	webhookSecret string
}

// NewClient creates a gateway client
func NewClient(cfg config.GatewayConfig) Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.Key, cfg.Secret).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &client{
		http:          httpClient,
		webhookSecret: cfg.WebhookSecret,
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// CreateOrder registers a checkout with the gateway
func (c *client) CreateOrder(ctx context.Context, amountCents int64, receipt string) (*GatewayOrder, error) {
	var gatewayOrder GatewayOrder

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createOrderRequest{
			Amount:   amountCents,
			Currency: "INR",
			Receipt:  receipt,
		}).
		SetResult(&gatewayOrder).
		Post("/v1/orders")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindDatabase, "payment gateway unreachable")
	}

	if resp.IsError() {
		return nil, apperr.Wrap(
			fmt.Errorf("gateway returned %d: %s", resp.StatusCode(), resp.String()),
			apperr.KindDatabase,
			"payment gateway rejected order creation",
		)
	}

	return &gatewayOrder, nil
}

// VerifyWebhookSignature verifies the webhook HMAC
func (c *client) VerifyWebhookSignature(payload []byte, signature string) error {
	return VerifySignature(payload, signature, c.webhookSecret)
}
