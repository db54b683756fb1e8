package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw body, keyed with the app secret.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks an X-Hub-Signature-256 value ("sha256=<hex>") against body.
func VerifySignature(body []byte, secret, signature string) bool {
	expected, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || expected == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(Sign(body, secret)))
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
