package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

// ErrUnknownTable is returned for tables or columns outside the schema.
var ErrUnknownTable = errors.New("backend: unknown table or column")

// Query narrows a Select.
type Query struct {
	Filter     models.Row
	OrderBy    string
	Descending bool
	Limit      int
}

// Subscription is a live change feed for one table. Close stops delivery
// and closes the Events channel.
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Close() error
}

// Backend is the hosted system of record: row CRUD plus table change feeds.
type Backend interface {
	Select(ctx context.Context, table string, q Query) ([]models.Row, error)
	Insert(ctx context.Context, table string, row models.Row) error
	Update(ctx context.Context, table string, patch, filter models.Row) error
	Upsert(ctx context.Context, table string, row models.Row, conflictKey string) error
	Subscribe(ctx context.Context, table string, types ...models.EventType) (Subscription, error)
}

// columns whitelists what callers may name in rows, filters and ordering.
var columns = map[string][]string{
	models.TableOrders: {
		"id", "customer_id", "store_id", "rider_id", "status", "total", "items",
		"delivery_lat", "delivery_lng", "created_at", "payment_intent_id",
	},
	models.TableRiderLocations: {"rider_id", "lat", "lng", "updated_at"},
}

func checkColumns(table string, names ...string) error {
	cols, ok := columns[table]
	if !ok {
		return ErrUnknownTable
	}
	for _, n := range names {
		if !slices.Contains(cols, n) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownTable, table, n)
		}
	}
	return nil
}

// wants reports whether t is in types. An empty list matches everything.
func wants(types []models.EventType, t models.EventType) bool {
	return len(types) == 0 || slices.Contains(types, t)
}
