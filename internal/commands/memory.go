package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

// Memory is mock mode: commands change the Store and nothing else.
type Memory struct {
	store  *state.Store
	logger *slog.Logger
	seq    atomic.Int64
	now    func() time.Time
}

func NewMemory(store *state.Store, logger *slog.Logger) *Memory {
	return &Memory{store: store, logger: logger, now: time.Now}
}

func (m *Memory) Mode() string { return ModeMock }

func (m *Memory) PlaceOrder(ctx context.Context, in models.NewOrder) (models.Order, error) {
	ts := m.now()
	id := fmt.Sprintf("MOCK-%d-%d", ts.UnixMilli(), m.seq.Add(1))
	o, err := buildOrder(id, in, ts)
	if err != nil {
		return models.Order{}, err
	}
	m.store.UpsertOrder(o)
	m.store.Notify(fmt.Sprintf("New Order: %s (Mock Mode)", o.ID))
	observability.OrdersPlaced.Inc()
	m.logger.Debug("mock order placed", "order_id", o.ID)
	return o, nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	if err := checkStatus(orderID, status); err != nil {
		return err
	}
	return m.changeStatus(orderID, status, nil, false)
}

func (m *Memory) AdvanceOrder(ctx context.Context, orderID string, status models.OrderStatus) error {
	if err := checkStatus(orderID, status); err != nil {
		return err
	}
	return m.changeStatus(orderID, status, transitionGuard(status), true)
}

func (m *Memory) changeStatus(orderID string, status models.OrderStatus, g guard, strict bool) error {
	_, _, found, err := setStatus(m.store, orderID, status, g)
	switch {
	case err != nil:
		return err
	case !found && strict:
		return ErrUnknownOrder
	case found:
		m.store.Notify(fmt.Sprintf("Status: Order %s is %s (Mock Mode)", short(orderID), status))
	}
	return nil
}

func (m *Memory) AssignRider(ctx context.Context, orderID, riderID string) error {
	if err := checkAssign(orderID, riderID); err != nil {
		return err
	}
	_, ok := m.store.UpdateOrder(orderID, func(o *models.Order) {
		o.RiderID = riderID
		o.Status = models.StatusPreparing
	})
	if ok {
		m.store.Notify(fmt.Sprintf("Rider %s assigned to Order %s (Mock Mode)", riderID, short(orderID)))
	}
	return nil
}

func (m *Memory) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrInvalidArgument
	}
	return m.changeStatus(orderID, models.StatusCancelled, cancelGuard, false)
}

func (m *Memory) UpdateRiderLocation(ctx context.Context, riderID string, lat, lng float64) error {
	if err := checkLocation(lat, lng); err != nil {
		return err
	}
	if riderID == "" {
		riderID = DefaultRiderID
	}
	m.store.SetRiderLocation(models.RiderLocation{RiderID: riderID, Lat: lat, Lng: lng, UpdatedAt: m.now()})
	observability.LocationsSent.Inc()
	return nil
}

// short returns the sequence part of a mock id.
func short(id string) string {
	return id[strings.LastIndex(id, "-")+1:]
}
