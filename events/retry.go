package events

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryingPublisher wraps a Publisher and retries transient publish failures.
// The engine publishes best-effort; this decorator owns the redelivery
// policy so the engine never has to.
type RetryingPublisher struct {
	delegate     Publisher
	buildBackoff func() backoff.BackOff
}

// NewRetryingPublisher decorates delegate with a bounded retry policy.
func NewRetryingPublisher(delegate Publisher, factory func() backoff.BackOff) *RetryingPublisher {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		}
	}
	return &RetryingPublisher{delegate: delegate, buildBackoff: factory}
}

func (p *RetryingPublisher) Publish(ctx context.Context, evt Event) error {
	b := backoff.WithContext(p.buildBackoff(), ctx)
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if err := p.delegate.Publish(ctx, evt); err != nil {
			log.Warn().Err(err).Str("type", string(evt.EventType())).Str("requestId", evt.Key()).Int("attempt", attempts).Msg("publish failed; retrying")
			return err
		}
		return nil
	}, b)
	return err
}

var _ Publisher = (*RetryingPublisher)(nil)
