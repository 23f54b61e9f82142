package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/docverify/internal/resilience"
	"github.com/sells-group/docverify/pkg/anthropic"
)

// Options tunes the Anthropic gateway.
type Options struct {
	RequestsPerSecond float64
	Retry             resilience.RetryPolicy
	Breaker           resilience.BreakerConfig
}

// Anthropic implements Model over the Anthropic Messages API. It rate-limits
// calls, retries transient transport failures, and trips a circuit breaker
// when the endpoint keeps failing.
type Anthropic struct {
	client  anthropic.Client
	limiter *rate.Limiter
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
}

// NewAnthropic wraps client as a Model.
func NewAnthropic(client anthropic.Client, opts Options) *Anthropic {
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(int(opts.RequestsPerSecond), 1))
	}
	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic.create_message")
	}
	breakerCfg := opts.Breaker
	if breakerCfg.Counts == nil {
		breakerCfg.Counts = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &Anthropic{
		client:  client,
		limiter: limiter,
		retry:   retry,
		breaker: resilience.NewBreaker("anthropic", breakerCfg),
	}
}

// Generate implements Model.
func (a *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", classify(ctx, eris.Wrap(err, "llm: rate limiter"))
		}
	}

	temp := req.Temperature
	msgReq := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}

	start := time.Now()
	resp, err := resilience.Retry(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.Call(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			r, err := a.client.CreateMessage(ctx, msgReq)
			if err != nil {
				if code := anthropic.StatusCode(err); resilience.IsTransientStatus(code) {
					return nil, resilience.Transient(err, code)
				}
				return nil, err
			}
			return r, nil
		})
	})
	if err != nil {
		return "", classify(ctx, err)
	}

	resp.Usage.LogCost(req.Model, req.Phase)
	zap.L().Debug("llm: generate complete",
		zap.String("phase", req.Phase),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("stop_reason", resp.StopReason),
	)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Wrap(ErrModelUnavailable, "llm: empty completion")
	}
	return text, nil
}

// classify maps a failed call onto the error taxonomy. A deadline on the
// caller's context is a timeout; everything else is an unavailable endpoint.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return eris.Wrap(ErrModelTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return eris.Wrap(ErrModelUnavailable, err.Error())
}
