package events

import (
	"context"
	"errors"
	"testing"

	backoff "github.com/cenkalti/backoff/v4"
)

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(ctx context.Context, evt Event) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("transient publish failure")
	}
	return nil
}

func zeroRetries(max uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, max)
	}
}

func TestRetryingPublisher_RecoversAfterTransientFailures(t *testing.T) {
	delegate := &flakyPublisher{failures: 2}
	pub := NewRetryingPublisher(delegate, zeroRetries(5))

	err := pub.Publish(context.Background(), &MatchingStatusChanged{RequestID: "req-1"})
	if err != nil {
		t.Fatalf("Publish() error = %#v", err)
	}
	if delegate.calls != 3 {
		t.Errorf("delegate called %d times, want 3 (2 failures + 1 success)", delegate.calls)
	}
}

func TestRetryingPublisher_GivesUpWhenExhausted(t *testing.T) {
	delegate := &flakyPublisher{failures: 10}
	pub := NewRetryingPublisher(delegate, zeroRetries(2))

	err := pub.Publish(context.Background(), &MatchingStatusChanged{RequestID: "req-1"})
	if err == nil {
		t.Fatal("Publish() = nil, want the final delegate error")
	}
	if delegate.calls != 3 {
		t.Errorf("delegate called %d times, want 3 (initial + 2 retries)", delegate.calls)
	}
}

func TestRetryingPublisher_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	delegate := &flakyPublisher{failures: 100}
	pub := NewRetryingPublisher(delegate, zeroRetries(50))

	err := pub.Publish(ctx, &MatchingStatusChanged{RequestID: "req-1"})
	if err == nil {
		t.Fatal("Publish() = nil, want an error on a cancelled context")
	}
	if delegate.calls > 1 {
		t.Errorf("delegate called %d times on a cancelled context, want at most 1", delegate.calls)
	}
}
