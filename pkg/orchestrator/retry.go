package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/pkg/agent"
)

// maxProviderAttempts bounds retries of one provider call.
const maxProviderAttempts = 3

// callProvider invokes the reasoning provider, retrying transient
// faults with exponential backoff. Permanent errors return immediately.
func callProvider(ctx context.Context, provider agent.Provider, req agent.Request, logger zerolog.Logger) (*agent.Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxProviderAttempts; attempt++ {
		response, err := provider.Call(ctx, req)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !agent.IsRetryableError(err) {
			return nil, err
		}
		if attempt == maxProviderAttempts-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying provider call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxProviderAttempts, lastErr)
}
