package lifecycle

import (
	"slices"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:        {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:      {models.StatusOutForDelivery, models.StatusCancelled},
	models.StatusOutForDelivery: {models.StatusDelivered, models.StatusCancelled},
}

var forward = []models.OrderStatus{
	models.StatusPending,
	models.StatusPreparing,
	models.StatusOutForDelivery,
	models.StatusDelivered,
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusDelivered || s == models.StatusCancelled
}

// IsActive is the single definition of an actionable order. Every view that
// filters by activity goes through it.
func IsActive(o models.Order) bool { return !IsTerminal(o.Status) }

// CanTransition reports whether an actor may move an order from one status
// to the other.
func CanTransition(from, to models.OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Rank is the position of s on the forward path, or -1 for Cancelled and
// unknown statuses.
func Rank(s models.OrderStatus) int { return slices.Index(forward, s) }

// Next returns the forward successor of s.
func Next(s models.OrderStatus) (models.OrderStatus, bool) {
	i := Rank(s)
	if i < 0 || i+1 >= len(forward) {
		return "", false
	}
	return forward[i+1], true
}

func filter(orders []models.Order, keep func(models.Order) bool) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// ActiveForCustomer returns the customer's active orders in input order.
func ActiveForCustomer(orders []models.Order, customerID string) []models.Order {
	return filter(orders, func(o models.Order) bool { return o.CustomerID == customerID && IsActive(o) })
}

// ActiveForStore returns the store's incoming queue.
func ActiveForStore(orders []models.Order, storeID string) []models.Order {
	return filter(orders, func(o models.Order) bool { return o.StoreID == storeID && IsActive(o) })
}

// ActiveForRider returns active orders assigned to the rider.
func ActiveForRider(orders []models.Order, riderID string) []models.Order {
	return filter(orders, func(o models.Order) bool { return o.RiderID == riderID && IsActive(o) })
}

// Unassigned returns active orders still waiting for a rider.
func Unassigned(orders []models.Order) []models.Order {
	return filter(orders, func(o models.Order) bool { return o.RiderID == "" && IsActive(o) })
}

type Stats struct {
	TotalOrders  int     `json:"totalOrders"`
	ActiveOrders int     `json:"activeOrders"`
	Revenue      float64 `json:"revenue"`
}

// Summarize computes the admin counters. Revenue sums every order total,
// including cancelled ones, matching what the dashboards have always shown.
func Summarize(orders []models.Order) Stats {
	st := Stats{TotalOrders: len(orders)}
	for _, o := range orders {
		if IsActive(o) {
			st.ActiveOrders++
		}
		st.Revenue += o.Total
	}
	return st
}
