package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

// now is swapped in tests.
var now = time.Now

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

// MapOrder turns a raw orders row into an Order. It never fails: absent or
// malformed fields fall back to zero values, and a missing or unknown status
// to Pending, so a bad row cannot poison the projection.
func MapOrder(row models.Row) models.Order {
	o := models.Order{
		ID:              toString(row["id"]),
		CustomerID:      toString(row["customer_id"]),
		StoreID:         toString(row["store_id"]),
		RiderID:         toString(row["rider_id"]),
		Status:          models.StatusPending,
		Total:           toFloat(row["total"]),
		Items:           toItems(row["items"]),
		Location:        models.Coord{Lat: toFloat(row["delivery_lat"]), Lng: toFloat(row["delivery_lng"])},
		PaymentIntentID: toString(row["payment_intent_id"]),
	}
	if st, ok := models.ParseStatus(toString(row["status"])); ok {
		o.Status = st
	}
	if ts, ok := toTime(row["created_at"]); ok {
		o.Timestamp = ts
	} else {
		o.Timestamp = now()
	}
	return o
}

// MapRiderLocation turns a raw rider_locations row into a RiderLocation.
// Rows without a rider id or without coordinates are rejected.
func MapRiderLocation(row models.Row) (models.RiderLocation, bool) {
	riderID := toString(row["rider_id"])
	if riderID == "" || row["lat"] == nil || row["lng"] == nil {
		return models.RiderLocation{}, false
	}
	loc := models.RiderLocation{
		RiderID: riderID,
		Lat:     toFloat(row["lat"]),
		Lng:     toFloat(row["lng"]),
	}
	if ts, ok := toTime(row["updated_at"]); ok {
		loc.UpdatedAt = ts
	}
	return loc, true
}

// OrderRow is the inverse of MapOrder, used for write-through.
func OrderRow(o models.Order) models.Row {
	row := models.Row{
		"id":           o.ID,
		"customer_id":  o.CustomerID,
		"store_id":     o.StoreID,
		"status":       string(o.Status),
		"total":        o.Total,
		"items":        o.Items,
		"delivery_lat": o.Location.Lat,
		"delivery_lng": o.Location.Lng,
		"created_at":   o.Timestamp,
	}
	if o.RiderID != "" {
		row["rider_id"] = o.RiderID
	}
	if o.PaymentIntentID != "" {
		row["payment_intent_id"] = o.PaymentIntentID
	}
	return row
}

// RiderLocationRow is the inverse of MapRiderLocation.
func RiderLocationRow(l models.RiderLocation) models.Row {
	return models.Row{"rider_id": l.RiderID, "lat": l.Lat, "lng": l.Lng, "updated_at": l.UpdatedAt}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func toFloat(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		f, _ = t.Float64()
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case []byte:
		f, _ = strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func toItems(v any) []models.OrderItem {
	switch t := v.(type) {
	case []models.OrderItem:
		out := make([]models.OrderItem, len(t))
		copy(out, t)
		return out
	case string:
		return decodeItems([]byte(t))
	case []byte:
		return decodeItems(t)
	case []map[string]any:
		out := make([]models.OrderItem, 0, len(t))
		for _, m := range t {
			out = append(out, toItem(m))
		}
		return out
	case []any:
		out := make([]models.OrderItem, 0, len(t))
		for _, e := range t {
			m, _ := e.(map[string]any)
			out = append(out, toItem(m))
		}
		return out
	default:
		return []models.OrderItem{}
	}
}

func decodeItems(b []byte) []models.OrderItem {
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return []models.OrderItem{}
	}
	return toItems(raw)
}

func toItem(m map[string]any) models.OrderItem {
	return models.OrderItem{
		Name:     toString(m["name"]),
		Quantity: int(toFloat(m["quantity"])),
		Price:    toFloat(m["price"]),
	}
}
