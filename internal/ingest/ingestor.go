package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/farzanaafroz998-source/FASTgo/internal/backend"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

// Source is the read side of the system of record.
type Source interface {
	Select(ctx context.Context, table string, q backend.Query) ([]models.Row, error)
	Subscribe(ctx context.Context, table string, types ...models.EventType) (backend.Subscription, error)
}

// Ingestor keeps a Store in step with the system of record: one snapshot
// followed by the live change feeds.
type Ingestor struct {
	src    Source
	store  *state.Store
	logger *slog.Logger
}

func NewIngestor(src Source, store *state.Store, logger *slog.Logger) *Ingestor {
	return &Ingestor{src: src, store: store, logger: logger}
}

// Snapshot reads every order, newest first, and replaces the store's order
// list. On failure the store is left untouched.
func (i *Ingestor) Snapshot(ctx context.Context) error {
	rows, err := i.src.Select(ctx, models.TableOrders, backend.Query{OrderBy: "created_at", Descending: true})
	if err != nil {
		observability.SnapshotsTotal.WithLabelValues("error").Inc()
		i.store.MarkFailure("orders.snapshot", err)
		return fmt.Errorf("snapshot orders: %w", err)
	}
	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, MapOrder(r))
	}
	i.store.ReplaceOrders(orders)
	observability.SnapshotsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Apply merges one change event into the store.
func (i *Ingestor) Apply(ev models.ChangeEvent) {
	outcome := "applied"
	switch {
	case ev.Table == models.TableOrders && ev.New == nil && ev.Type != models.EventDelete:
		outcome = "malformed"
	case ev.Table == models.TableOrders && ev.Type == models.EventInsert:
		o := MapOrder(ev.New)
		i.store.UpsertOrder(o)
		i.store.Notify(fmt.Sprintf("New Order: %s", shortID(o.ID, 8)))
	case ev.Table == models.TableOrders && ev.Type == models.EventUpdate:
		o := MapOrder(ev.New)
		if !i.store.ReplaceOrder(o) {
			outcome = "unknown_order"
			break
		}
		i.store.Notify(fmt.Sprintf("Status: Order %s is %s", shortID(o.ID, 4), o.Status))
	case ev.Table == models.TableRiderLocations && ev.New != nil:
		loc, ok := MapRiderLocation(ev.New)
		if !ok {
			outcome = "malformed"
			break
		}
		if !i.store.SetRiderLocation(loc) {
			outcome = "stale"
		}
	default:
		outcome = "ignored"
	}
	observability.FeedEventsTotal.WithLabelValues(ev.Table, string(ev.Type), outcome).Inc()
	if outcome != "applied" {
		i.logger.Debug("change event not applied", "table", ev.Table, "type", ev.Type, "outcome", outcome)
	}
}

// Run subscribes to both feeds, takes the snapshot and applies events until
// ctx is done or both feeds end. Subscribing before the snapshot means
// changes made while it is read are replayed on top of it. Failures are
// logged and leave the store stale; Run itself only returns ctx errors.
func (i *Ingestor) Run(ctx context.Context) error {
	orders := i.subscribe(ctx, models.TableOrders, models.EventInsert, models.EventUpdate)
	locations := i.subscribe(ctx, models.TableRiderLocations)
	defer func() {
		for _, s := range []backend.Subscription{orders, locations} {
			if s != nil {
				_ = s.Close()
			}
		}
	}()

	if err := i.Snapshot(ctx); err != nil {
		i.logger.Error("initial snapshot failed", "error", err)
	} else {
		i.logger.Info("initial snapshot loaded", "orders", i.store.Len())
	}

	orderCh, locCh := events(orders), events(locations)
	for orderCh != nil || locCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-orderCh:
			if !ok {
				orderCh = nil
				i.logger.Warn("orders feed closed")
				continue
			}
			i.Apply(ev)
		case ev, ok := <-locCh:
			if !ok {
				locCh = nil
				i.logger.Warn("rider locations feed closed")
				continue
			}
			i.Apply(ev)
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (i *Ingestor) subscribe(ctx context.Context, table string, types ...models.EventType) backend.Subscription {
	sub, err := i.src.Subscribe(ctx, table, types...)
	if err != nil {
		i.store.MarkFailure(table+".subscribe", err)
		i.logger.Error("subscribe failed", "table", table, "error", err)
		return nil
	}
	return sub
}

func events(s backend.Subscription) <-chan models.ChangeEvent {
	if s == nil {
		return nil
	}
	return s.Events()
}

func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
