package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrUnknownCustodian  = errors.New("no webhook verification configured for custodian")
	ErrInvalidSignature  = errors.New("webhook signature verification failed")
	ErrStaleTimestamp    = errors.New("webhook timestamp outside tolerance window")
	ErrMissingSignature  = errors.New("webhook signature header missing")
	ErrSecretUnavailable = errors.New("webhook secret not configured")
)

// timestampTolerance bounds how far a signed timestamp may drift from the
// server clock before the delivery is rejected as a potential replay.
const timestampTolerance = 5 * time.Minute

// Verifier checks webhook authenticity per custodian. Secrets are injected
// at construction and must never appear in logs or errors.
type Verifier struct {
	secrets map[string]string
	now     func() time.Time
}

func NewVerifier(secrets map[string]string) *Verifier {
	return &Verifier{secrets: secrets, now: time.Now}
}

// Verify validates the raw payload against the custodian's signature scheme.
//
//   - paysera: hex HMAC-SHA256 over the raw payload
//   - santander: hex HMAC-SHA512 over "<timestamp>.<payload>", with the
//     timestamp additionally checked against the tolerance window
//   - mock: accepted unconditionally, for local development
func (v *Verifier) Verify(custodianName string, payload []byte, signature string, timestamp string) error {
	switch custodianName {
	case "mock":
		return nil
	case "paysera":
		secret, ok := v.secrets[custodianName]
		if !ok || secret == "" {
			return ErrSecretUnavailable
		}
		if signature == "" {
			return ErrMissingSignature
		}
		return verifyDigest(hmacSHA256(secret, payload), signature)
	case "santander":
		secret, ok := v.secrets[custodianName]
		if !ok || secret == "" {
			return ErrSecretUnavailable
		}
		if signature == "" {
			return ErrMissingSignature
		}
		if err := v.checkTimestamp(timestamp); err != nil {
			return err
		}
		signed := append([]byte(timestamp+"."), payload...)
		return verifyDigest(hmacSHA512(secret, signed), signature)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCustodian, custodianName)
	}
}

func (v *Verifier) checkTimestamp(timestamp string) error {
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	drift := v.now().Sub(time.Unix(seconds, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > timestampTolerance {
		return ErrStaleTimestamp
	}
	return nil
}

func verifyDigest(expected []byte, signature string) error {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(expected, provided) {
		return ErrInvalidSignature
	}
	return nil
}

func hmacSHA256(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func hmacSHA512(secret string, payload []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
