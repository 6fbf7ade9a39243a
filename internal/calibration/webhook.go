package calibration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/config"
)

// AlertLevel distinguishes a warn from a critical drift alert.
type AlertLevel string

const (
	AlertWarn     AlertLevel = "warn"
	AlertCritical AlertLevel = "critical"
)

// Alert is the payload posted to the configured drift webhook.
type Alert struct {
	Level          AlertLevel `json:"level"`
	SampleSize     int        `json:"sample_size"`
	BrierMean      float64    `json:"brier_mean"`
	MaxBucketError float64    `json:"max_bucket_error"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// Notifier delivers drift alerts to an optional webhook with bounded
// retry/backoff — spec.md §4.7 "delivered via an optional webhook with
// bounded retry/backoff".
type Notifier struct {
	httpClient *http.Client
	cfg        config.CalibrationSettings
	log        zerolog.Logger
}

func NewNotifier(httpClient *http.Client, cfg config.CalibrationSettings, log zerolog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Notifier{httpClient: httpClient, cfg: cfg, log: log.With().Str("component", "calibration_webhook").Logger()}
}

// Notify posts an alert if a webhook URL is configured. A missing URL
// is a silent no-op, not an error — the webhook is optional.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if n.cfg.WebhookURL == "" {
		return nil
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("calibration: marshal alert: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.cfg.WebhookBaseInterval
	bo.MaxInterval = n.cfg.WebhookMaxInterval
	retrying := backoff.WithMaxRetries(bo, uint64(n.cfg.WebhookMaxRetries))

	attempts := 0
	err = backoff.Retry(func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return err // network error, retryable
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("calibration: webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("calibration: webhook returned %d", resp.StatusCode))
		}
		return nil
	}, backoff.WithContext(retrying, ctx))

	if err != nil {
		n.log.Error().Err(err).Int("attempts", attempts).Str("level", string(a.Level)).Msg("drift alert delivery failed")
		return err
	}
	return nil
}
