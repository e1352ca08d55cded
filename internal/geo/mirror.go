package geo

import (
	"context"
	"log/slog"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

// DefaultMirrorTimeout bounds one index write made from a store observer.
const DefaultMirrorTimeout = 500 * time.Millisecond

// Mirror returns a store observer that copies rider locations into g. Store
// observers run inline with every store mutation, so each write gets at most
// timeout; failures are logged and dropped.
func Mirror(g Geo, timeout time.Duration, logger *slog.Logger) state.Observer {
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}
	return state.ObserverFunc(func(c state.Change) {
		if c.Kind != state.ChangeLocation || c.Location == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := g.Upsert(ctx, *c.Location); err != nil {
			logger.Warn("geo upsert failed", "rider_id", c.Location.RiderID, "error", err)
		}
	})
}
