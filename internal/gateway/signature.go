package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"marketplace/pkg/apperr"
)

// VerifySignature recomputes the HMAC-SHA256 of the raw payload and compares
// it against the hex signature from the webhook header. The comparison is
// constant-time and runs before any parsing of the payload; a mismatch fails
// closed with no state change.
func VerifySignature(payload []byte, signature, secret string) error {
	if signature == "" {
		return apperr.Signature("missing webhook signature")
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return apperr.Signature("malformed webhook signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return apperr.Signature("webhook signature mismatch")
	}
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature of a payload. Used by
// tests and by outbound callback verification tooling.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
