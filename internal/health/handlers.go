package health

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	UploadPath       string
	BTCPayConfigured bool
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness. The upload directory must exist; a missing BTCPay
// configuration is reported but does not fail readiness, since the storefront
// can serve the catalog without a processor.
func (h Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	uploadsStatus := "ok"
	if err := h.checkUploads(); err != nil {
		uploadsStatus = err.Error()
	}
	btcpayStatus := "ok"
	if !h.BTCPayConfigured {
		btcpayStatus = "not configured"
	}
	status := map[string]string{
		"uploads": uploadsStatus,
		"btcpay":  btcpayStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	if uploadsStatus != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) checkUploads() error {
	path := strings.TrimSpace(h.UploadPath)
	if path == "" {
		return os.ErrNotExist
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}
	return nil
}
