package models

import "time"

// OrderStatus is the lifecycle position of an order. The wire strings are
// shared with the orders table and the dashboards.
type OrderStatus string

const (
	StatusPending        OrderStatus = "Pending"
	StatusPreparing      OrderStatus = "Preparing"
	StatusOutForDelivery OrderStatus = "Out for Delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []OrderStatus{StatusPending, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled}

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (OrderStatus, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OrderItem struct {
	Name     string  `json:"name" validate:"required"`
	Quantity int     `json:"quantity" validate:"gte=0"`
	Price    float64 `json:"price" validate:"gte=0"`
}

type Order struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customerId"`
	StoreID         string      `json:"storeId"`
	RiderID         string      `json:"riderId,omitempty"` // empty until assignment
	Status          OrderStatus `json:"status"`
	Total           float64     `json:"total"`
	Items           []OrderItem `json:"items"`
	Timestamp       time.Time   `json:"timestamp"`
	Location        Coord       `json:"location"`
	PaymentIntentID string      `json:"paymentIntentId,omitempty"`
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

// NewOrder is the customer-supplied part of an order. Everything else is
// assigned when the order is placed.
type NewOrder struct {
	CustomerID string      `json:"customerId" validate:"required"`
	StoreID    string      `json:"storeId" validate:"required"`
	Items      []OrderItem `json:"items" validate:"required,min=1,dive"`
	Location   Coord       `json:"location"`
}

type RiderLocation struct {
	RiderID   string    `json:"riderId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Table names of the system of record.
const (
	TableOrders         = "orders"
	TableRiderLocations = "rider_locations"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Row is a raw record in the external snake_case shape. Values are whatever
// the transport decoded; nothing is type-checked at this boundary.
type Row map[string]any

// ChangeEvent is one record delivered by a table change feed. Feeds that
// only carry the primary key in Key have New filled in by the backend.
type ChangeEvent struct {
	Table string    `json:"table"`
	Type  EventType `json:"type"`
	Key   Row       `json:"key,omitempty"`
	Old   Row       `json:"old,omitempty"`
	New   Row       `json:"new,omitempty"`
}

// SyncStatus describes how well the local projection tracks the system of
// record.
type SyncStatus struct {
	Mode        string    `json:"mode"`
	Degraded    bool      `json:"degraded"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitempty"`
	Failures    int       `json:"failures"`
}
