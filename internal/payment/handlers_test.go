package payment_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-satstore/internal/btcpay"
	"github.com/noah-isme/backend-satstore/internal/common"
	"github.com/noah-isme/backend-satstore/internal/payment"
	"github.com/noah-isme/backend-satstore/internal/resilience"
)

type processorStub struct {
	calls int32
	body  map[string]any
	srv   *httptest.Server
}

func newProcessorStub(t *testing.T, invoiceID, checkoutLink string) *processorStub {
	t.Helper()
	stub := &processorStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&stub.calls, 1)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &stub.body)
		common.JSON(w, http.StatusOK, map[string]any{"id": invoiceID, "checkoutLink": checkoutLink})
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *processorStub) client() *btcpay.Client {
	return &btcpay.Client{
		BaseURL: s.srv.URL,
		APIKey:  "api-key",
		StoreID: "store-1",
		HTTP:    resilience.HTTPClient{Client: s.srv.Client()},
	}
}

func newHandler(client *btcpay.Client) *payment.Handler {
	return &payment.Handler{
		Client:   client,
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}
}

func postPurchase(h *payment.Handler, payload string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/btcpay", bytes.NewBufferString(payload))
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	rr := httptest.NewRecorder()
	h.CreateInvoice(rr, req)
	return rr
}

func TestCreateInvoiceEndToEnd(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	rr := postPurchase(h, `{"productId":"p1","amountSats":50000}`, http.Header{"Origin": []string{"https://shop.example"}})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "inv1", resp["invoiceId"])
	require.Equal(t, "https://pay/inv1", resp["checkoutUrl"])
	require.Equal(t, "new", resp["status"])
	require.NotEmpty(t, resp["orderId"])

	require.Equal(t, "0.00050000", stub.body["amount"])
	checkout := stub.body["checkout"].(map[string]any)
	require.Equal(t, "https://shop.example/products/p1?paid=1", checkout["redirectURL"])
}

func TestMissingProductIDNeverCallsProcessor(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	for _, payload := range []string{`{}`, `{"productId":""}`, `{"productId":"   "}`} {
		rr := postPurchase(h, payload, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, "payload %s", payload)
		require.Contains(t, rr.Body.String(), "productId required")
	}
	require.EqualValues(t, 0, atomic.LoadInt32(&stub.calls))
}

func TestAmountDefaultsToTenThousandSats(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	rr := postPurchase(h, `{"productId":"p1"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "0.00010000", stub.body["amount"])
}

func TestOrderIDPassthrough(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	rr := postPurchase(h, `{"productId":"p1","orderId":"ord_custom"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "ord_custom", resp["orderId"])
	meta := stub.body["metadata"].(map[string]any)
	require.Equal(t, "ord_custom", meta["orderId"])
}

func TestGeneratedOrderIDsDiffer(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	ids := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		rr := postPurchase(h, `{"productId":"p1"}`, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.NotEmpty(t, resp["orderId"])
		ids[resp["orderId"]] = struct{}{}
	}
	require.Len(t, ids, 5)
}

func TestRedirectFallsBackToRequestHost(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	req := httptest.NewRequest(http.MethodPost, "http://shop.local/api/payments/btcpay", bytes.NewBufferString(`{"productId":"p1"}`))
	rr := httptest.NewRecorder()
	h.CreateInvoice(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	checkout := stub.body["checkout"].(map[string]any)
	require.Equal(t, "http://shop.local/products/p1?paid=1", checkout["redirectURL"])
}

func TestConfigMissingSurfacesAs500(t *testing.T) {
	h := newHandler(&btcpay.Client{HTTP: resilience.HTTPClient{Client: http.DefaultClient}})
	rr := postPurchase(h, `{"productId":"p1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), common.CodeConfigMissing)
}

func TestUpstreamFailureSurfacesAs502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	h := newHandler(&btcpay.Client{
		BaseURL: srv.URL,
		APIKey:  "api-key",
		StoreID: "store-1",
		HTTP:    resilience.HTTPClient{Client: srv.Client()},
	})
	rr := postPurchase(h, `{"productId":"p1"}`, nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), common.CodeUpstreamError)
}

func TestInvalidEmailRejected(t *testing.T) {
	stub := newProcessorStub(t, "inv1", "https://pay/inv1")
	h := newHandler(stub.client())

	rr := postPurchase(h, `{"productId":"p1","buyerEmail":"not-an-email"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.EqualValues(t, 0, atomic.LoadInt32(&stub.calls))
}
