package validation_test

import (
	"encoding/hex"
	"testing"

	"github.com/isometry/waha-pipeline/internal/validation"
	"github.com/stretchr/testify/assert"
)

func TestWebhookSecret_ValidateSignature(t *testing.T) {
	secret := validation.NewWebhookSecret("key")
	body := []byte(`{"event":"message","session":"default","payload":{}}`)
	valid := secret.Sign(body)

	testCases := []struct {
		Name        string
		Secret      *validation.WebhookSecret
		Headers     map[string]string
		Body        []byte
		ExpectError bool
	}{
		{
			Name:        "missing_signature_header",
			Secret:      secret,
			Headers:     map[string]string{},
			Body:        body,
			ExpectError: true,
		},
		{
			Name:   "invalid_signature_value",
			Secret: secret,
			Headers: map[string]string{
				validation.SignatureHeader: "invalid",
			},
			Body:        body,
			ExpectError: true,
		},
		{
			Name:   "signature_for_different_body",
			Secret: secret,
			Headers: map[string]string{
				validation.SignatureHeader: secret.Sign([]byte(`{"event":"other"}`)),
			},
			Body:        body,
			ExpectError: true,
		},
		{
			Name:   "wrong_secret",
			Secret: secret,
			Headers: map[string]string{
				validation.SignatureHeader: validation.NewWebhookSecret("other").Sign(body),
			},
			Body:        body,
			ExpectError: true,
		},
		{
			Name:   "valid_signature",
			Secret: secret,
			Headers: map[string]string{
				validation.SignatureHeader: valid,
			},
			Body: body,
		},
		{
			Name:   "valid_signature_uppercase_hex",
			Secret: secret,
			Headers: map[string]string{
				validation.SignatureHeader: upperHex(valid),
			},
			Body: body,
		},
		{
			Name:    "no_secret_configured_bypasses_verification",
			Secret:  validation.NewWebhookSecret(""),
			Headers: map[string]string{},
			Body:    body,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			err := tc.Secret.ValidateSignature(tc.Body, tc.Headers)
			if tc.ExpectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Every single-bit mutation of a valid signature must be rejected.
func TestWebhookSecret_ValidateSignature_BitFlips(t *testing.T) {
	secret := validation.NewWebhookSecret("key")
	body := []byte(`{"event":"message.ack","session":"default","payload":{"ack":3}}`)

	raw, err := hex.DecodeString(secret.Sign(body))
	assert.NoError(t, err)

	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			mutated[i] ^= 1 << bit
			headers := map[string]string{validation.SignatureHeader: hex.EncodeToString(mutated)}
			assert.Error(t, secret.ValidateSignature(body, headers), "byte %d bit %d", i, bit)
		}
	}
}

func upperHex(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
