package btcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-satstore/internal/common"
)

// satsPerBTC is the number of satoshis in one bitcoin.
const satsPerBTC = 100_000_000

// upstreamBodyExcerptLimit caps how much of an error response body is carried
// into error messages.
const upstreamBodyExcerptLimit = 512

// Doer abstracts the outbound HTTP call so the resilience wrapper (or a test
// double) can be injected.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the BTCPay Server Greenfield API for a single store.
type Client struct {
	BaseURL string
	APIKey  string
	StoreID string
	HTTP    Doer
}

// CreateInvoiceInput captures an internal order description to be turned into
// a processor invoice.
type CreateInvoiceInput struct {
	AmountSats  int64
	OrderID     string
	ProductID   string
	BuyerEmail  string
	RedirectURL string
}

// Invoice is the processor response reduced to the fields this system needs.
// Everything else BTCPay returns is discarded at this boundary.
type Invoice struct {
	ID           string `json:"id"`
	CheckoutLink string `json:"checkoutLink"`
}

type invoiceMetadata struct {
	OrderID    string  `json:"orderId"`
	ProductID  string  `json:"productId"`
	BuyerEmail *string `json:"buyerEmail"`
}

type invoiceCheckout struct {
	RedirectURL           string `json:"redirectURL"`
	RedirectAutomatically bool   `json:"redirectAutomatically"`
}

type createInvoiceRequest struct {
	Amount   string           `json:"amount"`
	Currency string           `json:"currency"`
	Metadata invoiceMetadata  `json:"metadata"`
	Checkout *invoiceCheckout `json:"checkout,omitempty"`
}

// CreateInvoice opens an invoice with the processor. It performs a single
// attempt; retry policy belongs to the caller. Returned errors carry an
// AppError with the status the boundary should surface.
func (c *Client) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	var zero Invoice
	if strings.TrimSpace(c.BaseURL) == "" || strings.TrimSpace(c.APIKey) == "" || strings.TrimSpace(c.StoreID) == "" {
		return zero, common.NewAppError(common.CodeConfigMissing,
			"BTCPAY_URL, BTCPAY_API_KEY, BTCPAY_STORE_ID must be set",
			http.StatusInternalServerError, nil)
	}
	if c.HTTP == nil {
		return zero, common.NewAppError(common.CodeConfigMissing,
			"btcpay client not configured", http.StatusInternalServerError, nil)
	}

	ctx, span := otel.Tracer("btcpay.Client").Start(ctx, "BTCPayClient.CreateInvoice")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", input.OrderID),
		attribute.Int64("invoice.amount_sats", input.AmountSats),
	)

	payload := createInvoiceRequest{
		Amount:   SatsToBTC(input.AmountSats),
		Currency: "BTC",
		Metadata: invoiceMetadata{
			OrderID:    input.OrderID,
			ProductID:  input.ProductID,
			BuyerEmail: optionalString(input.BuyerEmail),
		},
	}
	if strings.TrimSpace(input.RedirectURL) != "" {
		payload.Checkout = &invoiceCheckout{
			RedirectURL:           input.RedirectURL,
			RedirectAutomatically: true,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return zero, common.NewAppError(common.CodeUpstreamError, "encode invoice request", http.StatusInternalServerError, err)
	}

	url := fmt.Sprintf("%s/api/v1/stores/%s/invoices", strings.TrimRight(c.BaseURL, "/"), c.StoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return zero, common.NewAppError(common.CodeUpstreamError, "build invoice request", http.StatusInternalServerError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+c.APIKey)

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, common.NewAppError(common.CodeUpstreamTimeout, "btcpay request timed out", http.StatusGatewayTimeout, err)
		}
		return zero, common.NewAppError(common.CodeUpstreamError, "btcpay request failed", http.StatusBadGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := readExcerpt(resp.Body)
		err := fmt.Errorf("btcpay create invoice failed: %d %s %s", resp.StatusCode, http.StatusText(resp.StatusCode), excerpt)
		span.RecordError(err)
		return zero, common.NewAppError(common.CodeUpstreamError, err.Error(), http.StatusBadGateway, err)
	}

	var invoice Invoice
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return zero, common.NewAppError(common.CodeUpstreamError, "decode invoice response", http.StatusBadGateway, err)
	}
	span.SetAttributes(attribute.String("invoice.id", invoice.ID))
	return invoice, nil
}

// SatsToBTC renders a satoshi amount as a BTC decimal string with exactly
// eight fraction digits. Integer math keeps small amounts exact.
func SatsToBTC(sats int64) string {
	if sats < 0 {
		sats = 0
	}
	return fmt.Sprintf("%d.%08d", sats/satsPerBTC, sats%satsPerBTC)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// readExcerpt reads a bounded prefix of the response body; read failures yield
// an empty excerpt rather than a secondary error.
func readExcerpt(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, upstreamBodyExcerptLimit))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
