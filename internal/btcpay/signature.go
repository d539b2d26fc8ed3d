package btcpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const sigPrefix = "sha256="

// VerifySignature reports whether the webhook signature header matches the
// HMAC-SHA256 of the raw body under the shared secret. An unset secret or a
// missing header fails closed. The comparison is constant time.
func VerifySignature(secret string, rawBody []byte, sigHeader string) bool {
	key := strings.TrimSpace(secret)
	if key == "" {
		return false
	}
	presented := strings.TrimSpace(sigHeader)
	if presented == "" {
		return false
	}
	if len(presented) >= len(sigPrefix) && strings.EqualFold(presented[:len(sigPrefix)], sigPrefix) {
		presented = strings.TrimSpace(presented[len(sigPrefix):])
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(presented), []byte(expected))
}

// SignBody computes the signature header value BTCPay would send for the
// given body. Used by tests and local tooling.
func SignBody(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return sigPrefix + hex.EncodeToString(mac.Sum(nil))
}
