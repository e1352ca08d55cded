package ingest

import (
	"math"
	"testing"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

func TestMapOrder_FullRow(t *testing.T) {
	row := models.Row{
		"id":           "7f0c2a91-aaaa",
		"customer_id":  "CUST-1",
		"store_id":     "STORE-9",
		"rider_id":     "RIDER-01",
		"status":       "Out for Delivery",
		"total":        "25.50",
		"items":        `[{"name":"Whopper Meal","quantity":2,"price":12.75}]`,
		"delivery_lat": 23.81,
		"delivery_lng": 90.41,
		"created_at":   "2024-05-01T10:00:00Z",
	}
	o := MapOrder(row)
	if o.ID != "7f0c2a91-aaaa" || o.CustomerID != "CUST-1" || o.StoreID != "STORE-9" || o.RiderID != "RIDER-01" {
		t.Fatalf("ids not mapped: %+v", o)
	}
	if o.Status != models.StatusOutForDelivery {
		t.Fatalf("status = %q", o.Status)
	}
	if o.Total != 25.5 {
		t.Fatalf("total = %v", o.Total)
	}
	if len(o.Items) != 1 || o.Items[0].Name != "Whopper Meal" || o.Items[0].Quantity != 2 {
		t.Fatalf("items = %+v", o.Items)
	}
	if o.Location != (models.Coord{Lat: 23.81, Lng: 90.41}) {
		t.Fatalf("location = %+v", o.Location)
	}
	if !o.Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", o.Timestamp)
	}
}

func TestMapOrder_Defaults(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	o := MapOrder(models.Row{"id": "o1", "total": "abc", "items": 42})
	if o.Status != models.StatusPending {
		t.Fatalf("missing status should default to Pending, got %q", o.Status)
	}
	if o.Total != 0 {
		t.Fatalf("non-numeric total should become 0, got %v", o.Total)
	}
	if o.Items == nil || len(o.Items) != 0 {
		t.Fatalf("non-list items should become empty, got %#v", o.Items)
	}
	if !o.Timestamp.Equal(fixed) {
		t.Fatalf("missing created_at should default to now, got %v", o.Timestamp)
	}
	if o.RiderID != "" {
		t.Fatalf("absent rider should stay unset, got %q", o.RiderID)
	}
}

func TestMapOrder_UnknownStatusFallsBackToPending(t *testing.T) {
	for _, raw := range []any{"shipped", "delivered", 3, true} {
		o := MapOrder(models.Row{"id": "o1", "status": raw})
		if o.Status != models.StatusPending {
			t.Fatalf("status %v mapped to %q, want Pending", raw, o.Status)
		}
		if _, known := models.ParseStatus(string(o.Status)); !known {
			t.Fatalf("status %q is outside the lifecycle", o.Status)
		}
	}
}

func TestMapOrder_NonFiniteNumbers(t *testing.T) {
	o := MapOrder(models.Row{"id": "o1", "total": math.NaN(), "delivery_lat": math.Inf(1)})
	if o.Total != 0 || o.Location.Lat != 0 {
		t.Fatalf("non-finite values should become 0: %+v", o)
	}
}

func TestMapOrder_ItemShapes(t *testing.T) {
	cases := []struct {
		name  string
		items any
	}{
		{"decoded json", []any{map[string]any{"name": "Fries", "quantity": float64(1), "price": 2.5}}},
		{"maps", []map[string]any{{"name": "Fries", "quantity": 1, "price": 2.5}}},
		{"bytes", []byte(`[{"name":"Fries","quantity":1,"price":2.5}]`)},
		{"typed", []models.OrderItem{{Name: "Fries", Quantity: 1, Price: 2.5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := MapOrder(models.Row{"id": "o1", "items": tc.items})
			if len(o.Items) != 1 || o.Items[0] != (models.OrderItem{Name: "Fries", Quantity: 1, Price: 2.5}) {
				t.Fatalf("items = %+v", o.Items)
			}
		})
	}
	if o := MapOrder(models.Row{"id": "o1", "items": "not json"}); len(o.Items) != 0 {
		t.Fatalf("malformed json should give empty items, got %+v", o.Items)
	}
}

func TestMapRiderLocation(t *testing.T) {
	loc, ok := MapRiderLocation(models.Row{"rider_id": "RIDER-01", "lat": 23.81, "lng": "90.41", "updated_at": "2024-05-01T10:00:00Z"})
	if !ok {
		t.Fatalf("expected valid location")
	}
	if loc.RiderID != "RIDER-01" || loc.Lat != 23.81 || loc.Lng != 90.41 || loc.UpdatedAt.IsZero() {
		t.Fatalf("unexpected location %+v", loc)
	}
	for _, row := range []models.Row{
		{"lat": 1.0, "lng": 2.0},
		{"rider_id": "r1", "lng": 2.0},
		{"rider_id": "r1", "lat": 1.0},
	} {
		if _, ok := MapRiderLocation(row); ok {
			t.Fatalf("row %v should be rejected", row)
		}
	}
}

func TestOrderRow_RoundTrip(t *testing.T) {
	o := models.Order{
		ID: "o1", CustomerID: "c1", StoreID: "s1", Status: models.StatusPreparing,
		Total: 12.99, Items: []models.OrderItem{{Name: "Whopper Meal", Quantity: 1, Price: 12.99}},
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Location: models.Coord{Lat: 1, Lng: 2},
	}
	row := OrderRow(o)
	if _, ok := row["rider_id"]; ok {
		t.Fatalf("unset rider must not be written")
	}
	got := MapOrder(row)
	if got.ID != o.ID || got.Status != o.Status || got.Total != o.Total || !got.Timestamp.Equal(o.Timestamp) || len(got.Items) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
