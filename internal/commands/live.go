package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farzanaafroz998-source/FASTgo/internal/backend"
	"github.com/farzanaafroz998-source/FASTgo/internal/ingest"
	"github.com/farzanaafroz998-source/FASTgo/internal/lifecycle"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
	"github.com/farzanaafroz998-source/FASTgo/internal/payments"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

// LocationPublisher fans accepted rider locations out to other consumers.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, loc models.RiderLocation) error
}

type LiveOptions struct {
	Retry     RetryPolicy
	Timeout   time.Duration // per write-through, retries included
	Payments  payments.Processor
	Currency  string
	Publisher LocationPublisher
}

// Live applies every command to the Store first and then writes it through
// to the Backend. Write failures are logged and flip the store into the
// degraded state; the local change is kept and the caller never sees the
// error.
type Live struct {
	backend backend.Backend
	store   *state.Store
	logger  *slog.Logger
	opts    LiveOptions
	newID   func() string
	now     func() time.Time
}

func NewLive(b backend.Backend, store *state.Store, logger *slog.Logger, opts LiveOptions) *Live {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &Live{
		backend: b,
		store:   store,
		logger:  logger,
		opts:    opts,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

func (l *Live) Mode() string { return ModeLive }

func (l *Live) PlaceOrder(ctx context.Context, in models.NewOrder) (models.Order, error) {
	o, err := buildOrder(l.newID(), in, l.now())
	if err != nil {
		return models.Order{}, err
	}
	o.PaymentIntentID = l.hold(ctx, o)

	l.store.UpsertOrder(o)
	observability.OrdersPlaced.Inc()
	l.logger.Info("order placed", "order_id", o.ID, "store_id", o.StoreID, "total", o.Total)

	row := ingest.OrderRow(o)
	l.writeThrough(ctx, "orders.insert", func(ctx context.Context) error {
		return l.backend.Insert(ctx, models.TableOrders, row)
	})
	return o, nil
}

func (l *Live) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	if err := checkStatus(orderID, status); err != nil {
		return err
	}
	return l.changeStatus(ctx, orderID, status, nil, false)
}

func (l *Live) AdvanceOrder(ctx context.Context, orderID string, status models.OrderStatus) error {
	if err := checkStatus(orderID, status); err != nil {
		return err
	}
	return l.changeStatus(ctx, orderID, status, transitionGuard(status), true)
}

// changeStatus applies the status locally, writes it through and settles
// the payment. Orders the store does not hold are still written through
// unless strict is set.
func (l *Live) changeStatus(ctx context.Context, orderID string, status models.OrderStatus, g guard, strict bool) error {
	prev, next, found, err := setStatus(l.store, orderID, status, g)
	if err != nil {
		return err
	}
	if !found && strict {
		return ErrUnknownOrder
	}
	l.writeThrough(ctx, "orders.update_status", func(ctx context.Context) error {
		return l.backend.Update(ctx, models.TableOrders, models.Row{"status": string(status)}, models.Row{"id": orderID})
	})
	if found {
		l.settle(ctx, prev, next)
	}
	return nil
}

func (l *Live) AssignRider(ctx context.Context, orderID, riderID string) error {
	if err := checkAssign(orderID, riderID); err != nil {
		return err
	}
	l.store.UpdateOrder(orderID, func(o *models.Order) {
		o.RiderID = riderID
		o.Status = models.StatusPreparing
	})

	patch := models.Row{"rider_id": riderID, "status": string(models.StatusPreparing)}
	l.writeThrough(ctx, "orders.assign_rider", func(ctx context.Context) error {
		return l.backend.Update(ctx, models.TableOrders, patch, models.Row{"id": orderID})
	})
	return nil
}

func (l *Live) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrInvalidArgument
	}
	return l.changeStatus(ctx, orderID, models.StatusCancelled, cancelGuard, false)
}

func (l *Live) UpdateRiderLocation(ctx context.Context, riderID string, lat, lng float64) error {
	if err := checkLocation(lat, lng); err != nil {
		return err
	}
	if riderID == "" {
		riderID = DefaultRiderID
	}
	loc := models.RiderLocation{RiderID: riderID, Lat: lat, Lng: lng, UpdatedAt: l.now()}
	l.store.SetRiderLocation(loc)
	observability.LocationsSent.Inc()

	row := ingest.RiderLocationRow(loc)
	l.writeThrough(ctx, "rider_locations.upsert", func(ctx context.Context) error {
		return l.backend.Upsert(ctx, models.TableRiderLocations, row, "rider_id")
	})
	if l.opts.Publisher != nil {
		if err := l.opts.Publisher.PublishLocation(context.WithoutCancel(ctx), loc); err != nil {
			l.logger.Warn("location publish failed", "rider_id", riderID, "error", err)
		}
	}
	return nil
}

// writeThrough runs fn under the retry policy. It outlives a cancelled
// caller context so an abandoned request still reaches the backend.
func (l *Live) writeThrough(ctx context.Context, op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := l.opts.Retry.Do(ctx, fn)
	observability.WriteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.WritesTotal.WithLabelValues(op, "error").Inc()
		l.logger.Error("write-through failed", "op", op, "error", err)
		l.store.MarkFailure(op, err)
		return
	}
	observability.WritesTotal.WithLabelValues(op, "ok").Inc()
	l.store.MarkHealthy()
}

func (l *Live) hold(ctx context.Context, o models.Order) string {
	if l.opts.Payments == nil || o.Total <= 0 {
		return ""
	}
	id, err := l.opts.Payments.Hold(ctx, payments.Hold{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Amount:     o.Total,
		Currency:   l.opts.Currency,
	})
	if err != nil {
		observability.PaymentsTotal.WithLabelValues("hold", "error").Inc()
		l.logger.Error("payment hold failed", "order_id", o.ID, "error", err)
		return ""
	}
	observability.PaymentsTotal.WithLabelValues("hold", "ok").Inc()
	return id
}

// settle captures the hold on delivery and releases it on cancellation.
// Only the change that first finishes an order settles it.
func (l *Live) settle(ctx context.Context, prev, o models.Order) {
	if l.opts.Payments == nil || o.PaymentIntentID == "" || lifecycle.IsTerminal(prev.Status) {
		return
	}
	var (
		action string
		err    error
	)
	switch o.Status {
	case models.StatusDelivered:
		action, err = "capture", l.opts.Payments.Capture(ctx, o.PaymentIntentID)
	case models.StatusCancelled:
		action, err = "cancel", l.opts.Payments.Cancel(ctx, o.PaymentIntentID)
	default:
		return
	}
	if err != nil {
		observability.PaymentsTotal.WithLabelValues(action, "error").Inc()
		l.logger.Error("payment settle failed", "order_id", o.ID, "action", action, "error", err)
		return
	}
	observability.PaymentsTotal.WithLabelValues(action, "ok").Inc()
}
