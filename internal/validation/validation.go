// Package validation provides functionality for validating webhook signatures to verify request authenticity.
package validation

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader is the lower-cased name of the request header carrying the
// hex-encoded HMAC-SHA256 signature of the raw request body.
const SignatureHeader = "x-webhook-hmac"

// ErrSignatureMismatch is returned when the received signature does not match
// the HMAC computed over the body with the configured secret.
var ErrSignatureMismatch = errors.New("webhook signature mismatch")

// WebhookSecret represents a secret used to validate webhook signatures for verifying request authenticity.
type WebhookSecret string

// NewWebhookSecret creates a new WebhookSecret instance from the provided secret string and returns its address.
func NewWebhookSecret(secret string) *WebhookSecret {
	s := WebhookSecret(secret)
	return &s
}

// Enabled reports whether a non-empty secret is configured.
func (s *WebhookSecret) Enabled() bool {
	return s != nil && *s != ""
}

// Sign computes the hex-encoded HMAC-SHA256 signature of body under the secret.
func (s *WebhookSecret) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(*s))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature validates the HMAC-SHA256 signature of a webhook request
// using the provided raw body and lower-cased headers. When no secret is
// configured the check is skipped entirely; this is a deliberate opt-out for
// gateways deployed without signing.
func (s *WebhookSecret) ValidateSignature(body []byte, headers map[string]string) error {
	if !s.Enabled() {
		return nil
	}
	signature, found := headers[SignatureHeader]
	if !found {
		return errors.New("missing HMAC-SHA256 signature")
	}
	if !secureCompare(strings.ToLower(signature), s.Sign(body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
