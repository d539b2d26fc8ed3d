package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-satstore/internal/btcpay"
	"github.com/noah-isme/backend-satstore/internal/common"
	"github.com/noah-isme/backend-satstore/internal/download"
	"github.com/noah-isme/backend-satstore/internal/obs"
)

// eventInvoiceSettled is the BTCPay event marking an invoice as fully paid.
const eventInvoiceSettled = "InvoiceSettled"

// signatureHeaders are checked in priority order; the first non-empty value
// wins. Header lookup is case-insensitive, so this also covers btcpay-sig and
// btcpay-signature.
var signatureHeaders = []string{"BTCPay-Sig", "BTCPay-Signature"}

// Webhook handles asynchronous payment notifications from BTCPay. The
// processor only ever sees 200 or 401 from this endpoint: once the signature
// checks out, a malformed payload is absorbed rather than rejected so BTCPay
// does not retry a delivery we cannot use anyway.
type Webhook struct {
	Secret string
	Tokens download.Issuer
	Logger zerolog.Logger
}

type webhookEvent struct {
	Type     string `json:"type"`
	Metadata struct {
		OrderID   string `json:"orderId"`
		ProductID string `json:"productId"`
	} `json:"metadata"`
}

// Handle processes POST /api/webhooks/btcpay.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	// The raw body is required for signature computation; parsing first
	// would invalidate the digest.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		recordWebhook("read_error")
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "unable to read payload", nil)
		return
	}

	if !btcpay.VerifySignature(h.Secret, body, signatureHeader(r)) {
		recordWebhook("invalid_signature")
		h.Logger.Warn().
			Str("body_sha256", common.Sha256Hex(body)).
			Msg("webhook signature rejected")
		common.JSONError(w, http.StatusUnauthorized, common.CodeInvalidSig, "invalid signature", nil)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Signature already proved origin; treat the payload as empty.
		event = webhookEvent{}
	}

	evt := h.Logger.Info().Str("event_type", event.Type)
	if event.Metadata.OrderID != "" {
		evt = evt.Str("order_id", event.Metadata.OrderID)
	}

	if event.Type == eventInvoiceSettled && event.Metadata.ProductID != "" {
		if token, err := h.Tokens.Mint(event.Metadata.ProductID, event.Metadata.OrderID); err == nil {
			// With no order store, the logged token is the fulfillment
			// record for this settlement.
			evt = evt.Str("download_token", token)
		} else {
			h.Logger.Error().Err(err).
				Str("order_id", event.Metadata.OrderID).
				Msg("mint download token")
		}
	}
	evt.Msg("webhook accepted")
	recordWebhook("accepted")

	common.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func signatureHeader(r *http.Request) string {
	for _, name := range signatureHeaders {
		if value := strings.TrimSpace(r.Header.Get(name)); value != "" {
			return value
		}
	}
	return ""
}

func recordWebhook(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
	}
}
