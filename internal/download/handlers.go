package download

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-satstore/internal/common"
	"github.com/noah-isme/backend-satstore/internal/obs"
)

// Handler streams product files to buyers presenting a valid token.
type Handler struct {
	Issuer     Issuer
	UploadPath string
	Logger     zerolog.Logger
}

// Get validates the token from the URL and streams the product file.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" {
		recordDownload("invalid_token")
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "token required", nil)
		return
	}

	claims, err := h.Issuer.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConfigured):
			recordDownload("not_configured")
			common.JSONError(w, http.StatusInternalServerError, common.CodeConfigMissing, "downloads unavailable", nil)
		case errors.Is(err, ErrExpired):
			recordDownload("expired")
			common.JSONError(w, http.StatusUnauthorized, common.CodeInvalidToken, "token expired", nil)
		default:
			recordDownload("invalid_token")
			common.JSONError(w, http.StatusUnauthorized, common.CodeInvalidToken, "invalid token", nil)
		}
		return
	}

	path, err := h.resolveFile(claims.ProductID)
	if err != nil {
		recordDownload("not_found")
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "file not found", nil)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		recordDownload("not_found")
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "file not found", nil)
		return
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		recordDownload("not_found")
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "file not found", nil)
		return
	}

	h.Logger.Info().
		Str("product_id", claims.ProductID).
		Str("order_id", claims.OrderID).
		Int64("bytes", info.Size()).
		Msg("download served")
	recordDownload("ok")

	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), file)
}

// resolveFile maps a product id onto a file under the upload directory,
// rejecting anything that escapes it.
func (h *Handler) resolveFile(productID string) (string, error) {
	base, err := filepath.Abs(h.UploadPath)
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(base, filepath.Clean("/"+productID))
	if candidate != base && !strings.HasPrefix(candidate, base+string(os.PathSeparator)) {
		return "", os.ErrNotExist
	}
	if _, err := os.Stat(candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

func recordDownload(result string) {
	if obs.DownloadTotal != nil {
		obs.DownloadTotal.WithLabelValues(result).Inc()
	}
}
