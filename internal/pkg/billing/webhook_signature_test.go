package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func signBody(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signSchemed(t *testing.T, secret string, ts time.Time, body []byte) string {
	t.Helper()
	signed := fmt.Sprintf("%d.%s", ts.Unix(), body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeWebhookSignatureBareDigest(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	now := time.Now()

	header := signBody(t, testSecret, body)
	if err := VerifyStripeWebhookSignature(body, header, testSecret, now); err != nil {
		t.Fatalf("valid bare digest rejected: %v", err)
	}

	// A bare digest carries no timestamp, so freshness never applies.
	if err := VerifyStripeWebhookSignature(body, header, testSecret, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("bare digest must not expire: %v", err)
	}
}

func TestVerifyStripeWebhookSignatureSchemed(t *testing.T) {
	body := []byte(`{"id":"evt_2","type":"checkout.session.completed"}`)
	now := time.Now()

	header := signSchemed(t, testSecret, now, body)
	if err := VerifyStripeWebhookSignature(body, header, testSecret, now); err != nil {
		t.Fatalf("valid schemed signature rejected: %v", err)
	}

	// Unknown scheme elements before v1 are skipped.
	withV0 := "v0=deadbeef," + header
	if err := VerifyStripeWebhookSignature(body, withV0, testSecret, now); err != nil {
		t.Fatalf("v0 element must be ignored: %v", err)
	}
}

func TestVerifyStripeWebhookSignatureMutations(t *testing.T) {
	body := []byte(`{"id":"evt_3","type":"invoice.payment_failed","amount":4900}`)
	now := time.Now()
	header := signBody(t, testSecret, body)

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		want    error
	}{
		{"body mutated", []byte(`{"id":"evt_3","type":"invoice.payment_failed","amount":4901}`), header, testSecret, ErrSignatureMismatch},
		{"wrong secret", body, header, "whsec_other", ErrSignatureMismatch},
		{"signature bit flipped", body, flipLastHexChar(header), testSecret, ErrSignatureMismatch},
		{"missing header", body, "", testSecret, ErrMissingSignature},
		{"garbage header", body, "not-hex-at-all!", testSecret, ErrMalformedSignature},
		{"schemed without v1", body, fmt.Sprintf("t=%d", now.Unix()), testSecret, ErrMalformedSignature},
		{"schemed bad timestamp", body, "t=abc,v1=" + header, testSecret, ErrMalformedSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyStripeWebhookSignature(tt.payload, tt.header, tt.secret, now)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyStripeWebhookSignatureFreshness(t *testing.T) {
	body := []byte(`{"id":"evt_4","type":"invoice.paid"}`)
	now := time.Now()

	stale := signSchemed(t, testSecret, now.Add(-6*time.Minute), body)
	if err := VerifyStripeWebhookSignature(body, stale, testSecret, now); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("stale timestamp: got %v, want ErrSignatureExpired", err)
	}

	future := signSchemed(t, testSecret, now.Add(6*time.Minute), body)
	if err := VerifyStripeWebhookSignature(body, future, testSecret, now); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("future timestamp: got %v, want ErrSignatureExpired", err)
	}

	within := signSchemed(t, testSecret, now.Add(-4*time.Minute), body)
	if err := VerifyStripeWebhookSignature(body, within, testSecret, now); err != nil {
		t.Errorf("timestamp within tolerance rejected: %v", err)
	}
}

func flipLastHexChar(sig string) string {
	last := sig[len(sig)-1]
	replace := byte('0')
	if last == '0' {
		replace = '1'
	}
	return sig[:len(sig)-1] + string(replace)
}

func TestHashPayloadDistinguishesBodies(t *testing.T) {
	a := HashPayload([]byte(`{"a":1}`))
	b := HashPayload([]byte(`{"a":2}`))
	if a == b {
		t.Fatal("different payloads must not share a hash")
	}
	if a != HashPayload([]byte(`{"a":1}`)) {
		t.Fatal("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 length 64, got %d", len(a))
	}
}
