package btcpay_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/noah-isme/backend-satstore/internal/btcpay"
)

func hexDigest(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureValid(t *testing.T) {
	secret := "whsec"
	body := []byte(`{"type":"InvoiceSettled"}`)
	digest := hexDigest(secret, body)

	if !btcpay.VerifySignature(secret, body, "sha256="+digest) {
		t.Fatal("prefixed signature must verify")
	}
	if !btcpay.VerifySignature(secret, body, digest) {
		t.Fatal("bare signature must verify")
	}
	if !btcpay.VerifySignature(secret, body, "SHA256="+digest) {
		t.Fatal("prefix match must be case-insensitive")
	}
}

func TestVerifySignatureRejections(t *testing.T) {
	secret := "whsec"
	body := []byte(`{"type":"InvoiceSettled"}`)
	digest := hexDigest(secret, body)

	cases := map[string]struct {
		secret string
		body   []byte
		header string
	}{
		"unset secret":       {"", body, "sha256=" + digest},
		"missing header":     {secret, body, ""},
		"wrong digest":       {secret, body, "sha256=" + strings.Repeat("0", 64)},
		"body off by a byte": {secret, []byte(`{"type":"InvoiceSettled" }`), "sha256=" + digest},
		"wrong secret":       {"other", body, "sha256=" + digest},
	}
	for name, tc := range cases {
		if btcpay.VerifySignature(tc.secret, tc.body, tc.header) {
			t.Fatalf("%s: verification must fail", name)
		}
	}
}

func TestSignBodyRoundTrip(t *testing.T) {
	secret := "whsec"
	body := []byte(`{"type":"InvoiceExpired"}`)
	header := btcpay.SignBody(secret, body)
	if !strings.HasPrefix(header, "sha256=") {
		t.Fatalf("unexpected header %q", header)
	}
	if !btcpay.VerifySignature(secret, body, header) {
		t.Fatal("signed body must verify")
	}
}
