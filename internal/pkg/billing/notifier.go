package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sitesmith/sitesmith/internal/pkg/env"
)

// SaleSignatureHeader carries the hex HMAC-SHA256 of the exact serialized
// notification body.
const SaleSignatureHeader = "X-SiteSmith-Signature"

const defaultNotifyAttempts = 3

// HTTPSaleNotifier delivers sale notifications to a configured endpoint.
// An empty URL is a valid, silent no-op: not every deployment has a
// downstream consumer. Sleep is injectable so tests do not wait on real
// backoff delays.
type HTTPSaleNotifier struct {
	URL         string
	Secret      string
	Client      *http.Client
	MaxAttempts int
	Sleep       func(time.Duration)
}

func NewSaleNotifierFromEnv() *HTTPSaleNotifier {
	return &HTTPSaleNotifier{
		URL:         strings.TrimSpace(env.GetEnv("SALE_WEBHOOK_URL", "")),
		Secret:      strings.TrimSpace(env.GetEnv("SALE_WEBHOOK_SECRET", "")),
		Client:      &http.Client{Timeout: 10 * time.Second},
		MaxAttempts: defaultNotifyAttempts,
		Sleep:       time.Sleep,
	}
}

// NotifySale posts the signed notification, retrying on any network failure
// or non-2xx response with exponential backoff (1s, then 2s). Exhausting
// the attempts returns an error that callers log and swallow: the recorded
// purchase is the source of truth, the notification is best-effort.
func (n *HTTPSaleNotifier) NotifySale(ctx context.Context, sale *SaleNotification) error {
	if n.URL == "" {
		return nil
	}

	body, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("serialize sale notification: %w", err)
	}
	signature := SignSalePayload(body, n.Secret)

	attempts := n.MaxAttempts
	if attempts <= 0 {
		attempts = defaultNotifyAttempts
	}
	sleep := n.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			sleep(notifyBackoff(attempt))
		}
		if err := n.post(ctx, body, signature); err != nil {
			lastErr = err
			log.Warnf("[SaleNotifier] attempt %d/%d failed: %v", attempt, attempts, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("sale notification failed after %d attempts: %w", attempts, lastErr)
}

// notifyBackoff returns the delay before the given attempt: 1s before the
// second, 2s before the third.
func notifyBackoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-2)) * time.Second
}

func (n *HTTPSaleNotifier) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SaleSignatureHeader, signature)

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sale notification rejected: status=%d", resp.StatusCode)
	}
	return nil
}

// SignSalePayload computes the hex HMAC-SHA256 of the serialized body.
func SignSalePayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
