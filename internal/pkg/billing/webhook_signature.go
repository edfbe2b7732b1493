package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how old a timestamped signature may be.
const signatureTolerance = 5 * time.Minute

var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
)

// VerifyStripeWebhookSignature checks the provider signature header against
// an HMAC-SHA256 over the raw request bytes. The header is either the
// schemed form "t=<unix>,v1=<hex>" (the HMAC then covers "<unix>.<body>"
// and the timestamp must be within tolerance of now) or a bare hex digest
// over the body alone, which carries no freshness information.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string, now time.Time) error {
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return ErrMissingSignature
	}
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return errors.New("webhook secret is not configured")
	}

	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	signed := payload
	if timestamp != nil {
		if d := now.Sub(*timestamp); d > signatureTolerance || d < -signatureTolerance {
			return ErrSignatureExpired
		}
		signed = []byte(fmt.Sprintf("%d.%s", timestamp.Unix(), payload))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(signed)
	expected := mac.Sum(nil)
	for _, candidate := range candidates {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func parseSignatureHeader(header string) (*time.Time, [][]byte, error) {
	// Bare hex digest without scheme elements.
	if !strings.Contains(header, "=") {
		sig, err := hex.DecodeString(strings.ToLower(header))
		if err != nil || len(sig) == 0 {
			return nil, nil, ErrMalformedSignature
		}
		return nil, [][]byte{sig}, nil
	}

	var timestamp *time.Time
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, nil, ErrMalformedSignature
		}
		switch kv[0] {
		case "t":
			sec, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return nil, nil, ErrMalformedSignature
			}
			t := time.Unix(sec, 0)
			timestamp = &t
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(kv[1]))
			if err != nil || len(sig) == 0 {
				return nil, nil, ErrMalformedSignature
			}
			candidates = append(candidates, sig)
		default:
			// Unknown scheme elements (v0 etc.) are skipped.
		}
	}
	if len(candidates) == 0 {
		return nil, nil, ErrMalformedSignature
	}
	return timestamp, candidates, nil
}

// HashPayload returns the hex SHA-256 digest of the raw body, used to tell
// a routine redelivery apart from a different payload under the same event id.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
