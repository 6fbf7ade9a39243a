package llmpolicy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/metrics"
)

// invokeBackoff returns a bounded exponential backoff policy for
// primary-model retries — grounded on the teacher pack's
// cenkalti/backoff usage for transient connection errors, narrowed
// here to a short elapsed-time ceiling since a stuck Tier-1/Tier-2
// call should fail over to the secondary model quickly rather than
// hold the pipeline worker.
func invokeBackoff(cfg retryConfig) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.baseInterval
	bo.MaxInterval = cfg.maxInterval
	bo.MaxElapsedTime = cfg.maxInterval * time.Duration(cfg.maxRetries+1)
	return bo
}

type retryConfig struct {
	maxRetries   int
	baseInterval time.Duration
	maxInterval  time.Duration
}

// invokeWithFailover runs the request built by newReq (one per model,
// since the primary and secondary models are rarely the same name)
// against the primary model with bounded retries on transient errors,
// then fails over to the secondary model on exhaustion — spec.md §4.4
// step 4. Each transition is logged with its reason. Returns the
// model name that actually produced the response, for pricing lookup.
func (p *Policy) invokeWithFailover(ctx context.Context, tier string, newReq func(model string) *llm.ChatRequest) (*llm.ChatResponse, string, error) {
	rc := retryConfig{
		maxRetries:   p.cfg.MaxRetries,
		baseInterval: p.cfg.RetryBaseInterval,
		maxInterval:  p.cfg.RetryMaxInterval,
	}

	start := time.Now()
	resp, err := p.failover.Call(p.primary.Name(), func() (*llm.ChatResponse, error) {
		return p.callWithRetry(ctx, p.primary, newReq(p.cfg.PrimaryModel), rc)
	})
	metrics.RecordLLMCall(p.primary.Name(), tier, time.Since(start), err)
	if err == nil {
		return resp, p.cfg.PrimaryModel, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		p.log.Warn().Str("primary", p.primary.Name()).Msg("primary circuit open, skipping straight to secondary")
	} else {
		p.log.Warn().Err(err).Str("primary", p.primary.Name()).Str("secondary", p.secondary.Name()).
			Msg("primary model exhausted retries, failing over to secondary")
	}

	start = time.Now()
	resp, err = p.failover.Call(p.secondary.Name(), func() (*llm.ChatResponse, error) {
		return p.callWithRetry(ctx, p.secondary, newReq(p.cfg.SecondaryModel), rc)
	})
	metrics.RecordLLMCall(p.secondary.Name(), tier, time.Since(start), err)
	if err != nil {
		return nil, "", fmt.Errorf("both primary (%s) and secondary (%s) models failed: %w", p.primary.Name(), p.secondary.Name(), err)
	}
	return resp, p.cfg.SecondaryModel, nil
}

func (p *Policy) callWithRetry(ctx context.Context, provider llm.Provider, req *llm.ChatRequest, rc retryConfig) (*llm.ChatResponse, error) {
	var resp *llm.ChatResponse
	attempt := 0
	op := func() error {
		attempt++
		r, err := provider.ChatCompletion(ctx, req)
		if err != nil {
			if isRetryableLLMError(err) && attempt <= rc.maxRetries {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(invokeBackoff(rc), ctx))
	return resp, err
}

// isRetryableLLMError matches HTTP 429/5xx and timeout conditions out
// of the adapters' wrapped error strings (anthropic.go/openai.go
// report "returned status %d" rather than a typed status code).
func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "connection refused") {
		return true
	}
	if idx := strings.Index(msg, "status "); idx >= 0 {
		rest := msg[idx+len("status "):]
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end > 0 {
			if code, convErr := strconv.Atoi(rest[:end]); convErr == nil {
				return code == 429 || code >= 500
			}
		}
	}
	return false
}
