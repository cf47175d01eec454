package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureVerifierAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"id":"wh-1"}`)
	verifier := SignatureVerifier{Secret: "hunter2"}

	if err := verifier.Verify(body, signBody("hunter2", body)); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}
}

func TestSignatureVerifierRejectsMismatch(t *testing.T) {
	body := []byte(`{"id":"wh-1"}`)
	verifier := SignatureVerifier{Secret: "hunter2"}

	if err := verifier.Verify(body, signBody("wrong-secret", body)); err == nil {
		t.Fatal("expected wrong-key signature to fail")
	}
	if err := verifier.Verify(body, ""); err == nil {
		t.Fatal("expected missing header to fail with a secret configured")
	}
	if err := verifier.Verify(body, "zzzz-not-hex"); err == nil {
		t.Fatal("expected malformed signature to fail")
	}
	tampered := append([]byte(nil), body...)
	tampered[0] = '['
	if err := verifier.Verify(tampered, signBody("hunter2", body)); err == nil {
		t.Fatal("expected tampered body to fail")
	}
}

func TestSignatureVerifierDisabledWithoutSecret(t *testing.T) {
	verifier := SignatureVerifier{}
	if verifier.Enabled() {
		t.Fatal("no secret means verification disabled")
	}
	if err := verifier.Verify([]byte("anything"), ""); err != nil {
		t.Fatalf("disabled verifier must accept, got %v", err)
	}
}

func TestTokenVerifier(t *testing.T) {
	verifier := TokenVerifier{Token: "alert-token"}

	if err := verifier.Verify("alert-token"); err != nil {
		t.Fatalf("expected matching token to pass, got %v", err)
	}
	if err := verifier.Verify("  alert-token  "); err != nil {
		t.Fatalf("expected trimmed token to pass, got %v", err)
	}
	if err := verifier.Verify("wrong"); err == nil {
		t.Fatal("expected mismatched token to fail")
	}
	if err := verifier.Verify(""); err == nil {
		t.Fatal("expected missing token to fail")
	}
}

func TestTokenVerifierUnsetRejectsAll(t *testing.T) {
	verifier := TokenVerifier{}
	if err := verifier.Verify("anything"); err == nil {
		t.Fatal("unset token must reject every caller")
	}
}
