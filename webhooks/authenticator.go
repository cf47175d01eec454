// Package webhooks is the intake edge: it authenticates webhook
// deliveries, claims them exactly once, and walks each one through
// trust, extraction, and dispatch.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HeaderSignature is the header the chat platform signs deliveries
// with when the webhook was registered with a secret.
const HeaderSignature = "X-Spark-Signature"

// HeaderToken authenticates alert API callers.
const HeaderToken = "Token"

// SignatureVerifier checks the platform's HMAC-SHA1 body signature.
// An empty secret disables verification entirely, the explicit
// insecure opt-out for webhooks registered without one.
type SignatureVerifier struct {
	Secret string
}

// Enabled reports whether a secret is configured.
func (v SignatureVerifier) Enabled() bool {
	return strings.TrimSpace(v.Secret) != ""
}

func (v SignatureVerifier) Verify(body []byte, signatureHeader string) error {
	if !v.Enabled() {
		return nil
	}
	signature := strings.TrimSpace(signatureHeader)
	if signature == "" {
		return signatureRequiredError()
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return signatureMismatchError()
	}

	mac := hmac.New(sha1.New, []byte(strings.TrimSpace(v.Secret)))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return signatureMismatchError()
	}
	return nil
}

// TokenVerifier guards the alert API with a static shared token. An
// unset token rejects every caller; there is no insecure opt-out on
// this surface.
type TokenVerifier struct {
	Token string
}

func (v TokenVerifier) Verify(tokenHeader string) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return tokenUnsetError()
	}
	actual := strings.TrimSpace(tokenHeader)
	if actual == "" {
		return tokenRequiredError()
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return tokenMismatchError()
	}
	return nil
}
