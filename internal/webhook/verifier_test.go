package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signSHA256(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signSHA512(secret string, timestamp string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(now time.Time) *Verifier {
	verifier := NewVerifier(map[string]string{
		"paysera":   "paysera-secret",
		"santander": "santander-secret",
	})
	verifier.now = func() time.Time { return now }
	return verifier
}

func TestVerifyPaysera(t *testing.T) {
	verifier := newTestVerifier(time.Now())
	payload := []byte(`{"event_id":"evt-1","event_type":"payment.completed"}`)

	require.NoError(t, verifier.Verify("paysera", payload, signSHA256("paysera-secret", payload), ""))

	err := verifier.Verify("paysera", payload, signSHA256("wrong-secret", payload), "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = verifier.Verify("paysera", []byte(`{"tampered":true}`), signSHA256("paysera-secret", payload), "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = verifier.Verify("paysera", payload, "", "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	err = verifier.Verify("paysera", payload, "not-hex", "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySantander(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)
	payload := []byte(`{"event_id":"evt-2","event_type":"transfer.completed"}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)

	require.NoError(t, verifier.Verify("santander", payload, signSHA512("santander-secret", timestamp, payload), timestamp))

	err := verifier.Verify("santander", payload, signSHA512("wrong-secret", timestamp, payload), timestamp)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySantanderTimestampTolerance(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)
	payload := []byte(`{"event_id":"evt-3"}`)

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"fresh", 0, true},
		{"4 minutes old", -4 * time.Minute, true},
		{"exactly at tolerance", -5 * time.Minute, true},
		{"too old", -6 * time.Minute, false},
		{"slightly in the future", 2 * time.Minute, true},
		{"too far in the future", 6 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timestamp := strconv.FormatInt(now.Add(tt.offset).Unix(), 10)
			err := verifier.Verify("santander", payload, signSHA512("santander-secret", timestamp, payload), timestamp)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrStaleTimestamp)
			}
		})
	}
}

func TestVerifySantanderMalformedTimestamp(t *testing.T) {
	verifier := newTestVerifier(time.Now())
	payload := []byte(`{}`)

	err := verifier.Verify("santander", payload, signSHA512("santander-secret", "yesterday", payload), "yesterday")
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerifyTimestampNotInterchangeable(t *testing.T) {
	// A santander signature is bound to its timestamp; replaying the payload
	// with a fresher timestamp must fail.
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)
	payload := []byte(`{"event_id":"evt-4"}`)
	signedAt := strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)
	replayedAt := strconv.FormatInt(now.Unix(), 10)

	signature := signSHA512("santander-secret", signedAt, payload)
	err := verifier.Verify("santander", payload, signature, replayedAt)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyMockAlwaysPasses(t *testing.T) {
	verifier := NewVerifier(nil)
	assert.NoError(t, verifier.Verify("mock", []byte(`{}`), "", ""))
}

func TestVerifyUnknownCustodian(t *testing.T) {
	verifier := newTestVerifier(time.Now())
	err := verifier.Verify("deutsche_bank", []byte(`{}`), "sig", "")
	assert.ErrorIs(t, err, ErrUnknownCustodian)
}

func TestVerifyMissingSecret(t *testing.T) {
	verifier := NewVerifier(map[string]string{})
	payload := []byte(`{}`)
	err := verifier.Verify("paysera", payload, signSHA256("any", payload), "")
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}

func TestVerifierErrorsNeverContainSecrets(t *testing.T) {
	verifier := newTestVerifier(time.Now())
	payload := []byte(`{}`)
	err := verifier.Verify("paysera", payload, "deadbeef", "")
	require.Error(t, err)
	assert.NotContains(t, fmt.Sprint(err), "paysera-secret")
}
