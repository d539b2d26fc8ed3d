// Package payment exposes the HTTP boundary in front of the BTCPay invoice
// client: purchase requests coming in from the storefront and webhook
// notifications coming back from the processor.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-satstore/internal/btcpay"
	"github.com/noah-isme/backend-satstore/internal/common"
	"github.com/noah-isme/backend-satstore/internal/obs"
	"github.com/noah-isme/backend-satstore/internal/order"
)

// defaultAmountSats is charged when the storefront does not name a price.
const defaultAmountSats = 10_000

// Handler accepts purchase requests and opens processor invoices for them.
type Handler struct {
	Client   *btcpay.Client
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type purchaseReq struct {
	ProductID  string `json:"productId" validate:"required"`
	AmountSats int64  `json:"amountSats" validate:"omitempty,gt=0"`
	BuyerEmail string `json:"buyerEmail" validate:"omitempty,email"`
	OrderID    string `json:"orderId"`
}

type purchaseResp struct {
	InvoiceID   string `json:"invoiceId"`
	CheckoutURL string `json:"checkoutUrl"`
	Status      string `json:"status"`
	OrderID     string `json:"orderId"`
}

// CreateInvoice handles POST /api/payments/btcpay.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeConfigMissing, "payment handler unavailable", nil)
		return
	}
	var req purchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid body", nil)
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "productId required", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, validationMessage(err), nil)
			return
		}
	}
	if req.AmountSats <= 0 {
		req.AmountSats = defaultAmountSats
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		orderID = order.NewID()
	}

	redirectURL := ""
	if origin := common.RequestOrigin(r); origin != "" {
		redirectURL = fmt.Sprintf("%s/products/%s?paid=1", origin, req.ProductID)
	}

	invoice, err := h.Client.CreateInvoice(r.Context(), btcpay.CreateInvoiceInput{
		AmountSats:  req.AmountSats,
		OrderID:     orderID,
		ProductID:   req.ProductID,
		BuyerEmail:  req.BuyerEmail,
		RedirectURL: redirectURL,
	})
	if err != nil {
		recordInvoice(invoiceResult(err))
		h.Logger.Error().Err(err).
			Str("order_id", orderID).
			Str("product_id", req.ProductID).
			Msg("create invoice")
		common.JSONAppError(w, err)
		return
	}
	recordInvoice("success")

	h.Logger.Info().
		Str("order_id", orderID).
		Str("invoice_id", invoice.ID).
		Int64("amount_sats", req.AmountSats).
		Msg("invoice created")

	common.JSON(w, http.StatusOK, purchaseResp{
		InvoiceID:   invoice.ID,
		CheckoutURL: invoice.CheckoutLink,
		Status:      "new",
		OrderID:     orderID,
	})
}

func validationMessage(err error) string {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return "invalid body"
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Field() {
		case "ProductID":
			return "productId required"
		case "AmountSats":
			return "amountSats must be a positive integer"
		case "BuyerEmail":
			return "buyerEmail must be a valid email"
		}
	}
	return "invalid body"
}

func invoiceResult(err error) string {
	if appErr, ok := common.AsAppError(err); ok {
		switch appErr.Code {
		case common.CodeConfigMissing:
			return "config_missing"
		case common.CodeUpstreamTimeout:
			return "timeout"
		}
	}
	return "upstream_error"
}

func recordInvoice(result string) {
	if obs.InvoiceCreateTotal != nil {
		obs.InvoiceCreateTotal.WithLabelValues(result).Inc()
	}
}
