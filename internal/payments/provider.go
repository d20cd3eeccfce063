package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// ProviderOrder is the gateway's view of a created order.
type ProviderOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Provider creates orders with the payment gateway.
type Provider interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (ProviderOrder, error)
}

// RazorpayProvider talks to the Razorpay orders API with basic auth.
type RazorpayProvider struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

// NewRazorpayProvider constructs a provider. Both key parts are required.
func NewRazorpayProvider(keyID, keySecret string) (*RazorpayProvider, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("payment key id and secret are required")
	}
	return &RazorpayProvider{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   razorpayBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder creates a gateway order. Amounts are in the currency's minor
// unit (paise for INR).
func (p *RazorpayProvider) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (ProviderOrder, error) {
	payload, err := json.Marshal(orderRequest{
		Amount:   amountPaise,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return ProviderOrder{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return ProviderOrder{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.keyID, p.keySecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ProviderOrder{}, fmt.Errorf("%w: status %d: %s", ErrProviderBadRequest, resp.StatusCode, truncateBody(body))
	default:
		return ProviderOrder{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var order ProviderOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return ProviderOrder{}, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if order.ID == "" {
		return ProviderOrder{}, fmt.Errorf("%w: response missing order id", ErrProviderUnavailable)
	}
	return order, nil
}

func truncateBody(body []byte) string {
	const maxLen = 300
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return string(body)
}

var _ Provider = (*RazorpayProvider)(nil)
