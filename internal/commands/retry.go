package commands

import (
	"context"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
)

// RetryPolicy retries a call with exponential backoff starting at Delay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		observability.WriteRetriesTotal.Inc()
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
