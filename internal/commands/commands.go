package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/farzanaafroz998-source/FASTgo/internal/lifecycle"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

const (
	ModeLive = "live"
	ModeMock = "mock"
)

// DefaultRiderID is used when a location update names no rider.
const DefaultRiderID = "RIDER-01"

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotCancellable    = errors.New("order already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownOrder      = errors.New("unknown order")
)

// Commands is the single write path for orders and rider locations. Live
// and Memory implement it; the choice is made once at startup.
type Commands interface {
	PlaceOrder(ctx context.Context, in models.NewOrder) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error
	// AdvanceOrder moves a locally known order to status only when the
	// lifecycle allows it from the order's current status.
	AdvanceOrder(ctx context.Context, orderID string, status models.OrderStatus) error
	AssignRider(ctx context.Context, orderID, riderID string) error
	CancelOrder(ctx context.Context, orderID string) error
	UpdateRiderLocation(ctx context.Context, riderID string, lat, lng float64) error
	Mode() string
}

var validate = validator.New()

// buildOrder validates in and fills the server-assigned fields. A zero
// quantity counts as one.
func buildOrder(id string, in models.NewOrder, ts time.Time) (models.Order, error) {
	if err := validate.Struct(in); err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	items := make([]models.OrderItem, len(in.Items))
	var total float64
	for i, it := range in.Items {
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		if !finite(it.Price) {
			return models.Order{}, fmt.Errorf("%w: item %q has no usable price", ErrInvalidOrder, it.Name)
		}
		items[i] = it
		total += it.Price * float64(it.Quantity)
	}
	return models.Order{
		ID:         id,
		CustomerID: in.CustomerID,
		StoreID:    in.StoreID,
		Status:     models.StatusPending,
		Total:      math.Round(total*100) / 100,
		Items:      items,
		Timestamp:  ts,
		Location:   in.Location,
	}, nil
}

func checkStatus(orderID string, status models.OrderStatus) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", ErrInvalidArgument)
	}
	if _, ok := models.ParseStatus(string(status)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	return nil
}

func checkAssign(orderID, riderID string) error {
	if orderID == "" || riderID == "" {
		return fmt.Errorf("%w: order and rider ids are required", ErrInvalidArgument)
	}
	return nil
}

func checkLocation(lat, lng float64) error {
	if !finite(lat) || !finite(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: coordinate %v,%v", ErrInvalidArgument, lat, lng)
	}
	return nil
}

type guard func(cur models.Order) error

func cancelGuard(cur models.Order) error {
	if lifecycle.IsTerminal(cur.Status) {
		return ErrNotCancellable
	}
	return nil
}

func transitionGuard(next models.OrderStatus) guard {
	return func(cur models.Order) error {
		if !lifecycle.CanTransition(cur.Status, next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur.Status, next)
		}
		return nil
	}
}

// setStatus changes the status of a stored order, checking g under the
// store's lock. found is false when the store does not hold the order.
func setStatus(store *state.Store, orderID string, status models.OrderStatus, g guard) (prev, next models.Order, found bool, err error) {
	prev, next, err = store.SwapOrder(orderID, func(o *models.Order) error {
		if g != nil {
			if err := g(*o); err != nil {
				return err
			}
		}
		o.Status = status
		return nil
	})
	if errors.Is(err, state.ErrOrderNotFound) {
		return prev, next, false, nil
	}
	return prev, next, true, err
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
