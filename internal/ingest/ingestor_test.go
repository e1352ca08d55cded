package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/backend"
	"github.com/farzanaafroz998-source/FASTgo/internal/logging"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

type fakeSub struct {
	ch     chan models.ChangeEvent
	once   sync.Once
	closed chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan models.ChangeEvent, 8), closed: make(chan struct{})}
}

func (s *fakeSub) Events() <-chan models.ChangeEvent { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeSource struct {
	rows      []models.Row
	selectErr error
	subErr    error
	subs      map[string]*fakeSub
}

func (f *fakeSource) Select(ctx context.Context, table string, q backend.Query) ([]models.Row, error) {
	return f.rows, f.selectErr
}

func (f *fakeSource) Subscribe(ctx context.Context, table string, types ...models.EventType) (backend.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.subs[table], nil
}

func newIngestor(src Source) (*Ingestor, *state.Store) {
	st := state.New("live")
	return NewIngestor(src, st, logging.Discard()), st
}

func TestSnapshot_ReplacesStore(t *testing.T) {
	src := &fakeSource{rows: []models.Row{
		{"id": "o2", "status": "Preparing", "created_at": "2024-05-01T11:00:00Z"},
		{"id": "o1", "status": "Pending", "created_at": "2024-05-01T10:00:00Z"},
	}}
	ing, st := newIngestor(src)
	st.UpsertOrder(models.Order{ID: "stale"})

	if err := ing.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	got := st.Orders()
	if len(got) != 2 || got[0].ID != "o2" || got[1].ID != "o1" {
		t.Fatalf("unexpected orders %+v", got)
	}
}

func TestSnapshot_FailureKeepsStore(t *testing.T) {
	ing, st := newIngestor(&fakeSource{selectErr: errors.New("connection refused")})
	st.UpsertOrder(models.Order{ID: "keep"})

	if err := ing.Snapshot(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if st.Len() != 1 {
		t.Fatalf("store should be unchanged")
	}
	if !st.SyncStatus().Degraded {
		t.Fatalf("failed snapshot should mark the store degraded")
	}
}

func TestApply_InsertPrependsAndNotifies(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	st.UpsertOrder(models.Order{ID: "old"})

	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventInsert, New: models.Row{"id": "abcdef123456", "status": "Pending"}})

	orders := st.Orders()
	if len(orders) != 2 || orders[0].ID != "abcdef123456" {
		t.Fatalf("insert should prepend: %+v", orders)
	}
	if n := st.Notifications(); len(n) != 1 || n[0] != "New Order: abcdef12" {
		t.Fatalf("notifications = %v", n)
	}
}

func TestApply_InsertEchoReplacesInPlace(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	st.UpsertOrder(models.Order{ID: "o1", Status: models.StatusPending})
	st.UpsertOrder(models.Order{ID: "o2", Status: models.StatusPending})

	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventInsert, New: models.Row{"id": "o1", "status": "Pending"}})

	orders := st.Orders()
	if len(orders) != 2 || orders[0].ID != "o2" || orders[1].ID != "o1" {
		t.Fatalf("echo of a known id must not duplicate or reorder: %+v", orders)
	}
}

func TestApply_UpdateReplacesAndNotifies(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	st.UpsertOrder(models.Order{ID: "abcd-1", Status: models.StatusPending})

	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventUpdate, New: models.Row{"id": "abcd-1", "status": "Preparing", "rider_id": "RIDER-01"}})

	o, _ := st.Order("abcd-1")
	if o.Status != models.StatusPreparing || o.RiderID != "RIDER-01" {
		t.Fatalf("order not replaced: %+v", o)
	}
	if n := st.Notifications(); len(n) != 1 || n[0] != "Status: Order abcd is Preparing" {
		t.Fatalf("notifications = %v", n)
	}
}

func TestApply_UpdateUnknownIsDropped(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	st.UpsertOrder(models.Order{ID: "o1"})

	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventUpdate, New: models.Row{"id": "ghost", "status": "Delivered"}})

	if st.Len() != 1 {
		t.Fatalf("order count changed to %d", st.Len())
	}
	if len(st.Notifications()) != 0 {
		t.Fatalf("no notification expected for unknown id")
	}
}

func TestApply_OrderEventWithoutRowIsDropped(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	st.UpsertOrder(models.Order{ID: "o1", Status: models.StatusPreparing})

	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventInsert, Key: models.Row{"id": "o2"}})
	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventUpdate, Key: models.Row{"id": "o1"}})

	if st.Len() != 1 || len(st.Notifications()) != 0 {
		t.Fatalf("store changed: len=%d notes=%v", st.Len(), st.Notifications())
	}
	if o, _ := st.Order("o1"); o.Status != models.StatusPreparing {
		t.Fatalf("status = %q", o.Status)
	}
}

func TestApply_RiderLocation(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	ing.Apply(models.ChangeEvent{Table: models.TableRiderLocations, Type: models.EventUpdate, New: models.Row{"rider_id": "RIDER-01", "lat": 23.81, "lng": 90.41}})
	ing.Apply(models.ChangeEvent{Table: models.TableRiderLocations, Type: models.EventInsert, New: models.Row{"lat": 1.0, "lng": 1.0}})

	loc, ok := st.RiderLocation("RIDER-01")
	if !ok || loc.Lat != 23.81 || loc.Lng != 90.41 {
		t.Fatalf("location = %+v ok=%v", loc, ok)
	}
	if len(st.RiderLocations()) != 1 {
		t.Fatalf("location without rider id must be dropped")
	}
}

func TestApply_IgnoresDeletesAndUnknownTables(t *testing.T) {
	ing, st := newIngestor(&fakeSource{})
	st.UpsertOrder(models.Order{ID: "o1"})
	ing.Apply(models.ChangeEvent{Table: models.TableOrders, Type: models.EventDelete, Old: models.Row{"id": "o1"}})
	ing.Apply(models.ChangeEvent{Table: "profiles", Type: models.EventInsert, New: models.Row{"id": "p1"}})
	if st.Len() != 1 || len(st.Notifications()) != 0 {
		t.Fatalf("store should be untouched")
	}
}

func TestRun_AppliesFeedAndClosesSubscriptions(t *testing.T) {
	orders, locs := newFakeSub(), newFakeSub()
	src := &fakeSource{
		rows: []models.Row{{"id": "o1", "status": "Pending"}},
		subs: map[string]*fakeSub{models.TableOrders: orders, models.TableRiderLocations: locs},
	}
	ing, st := newIngestor(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	orders.ch <- models.ChangeEvent{Table: models.TableOrders, Type: models.EventUpdate, New: models.Row{"id": "o1", "status": "Preparing"}}
	locs.ch <- models.ChangeEvent{Table: models.TableRiderLocations, Type: models.EventInsert, New: models.Row{"rider_id": "r1", "lat": 1.0, "lng": 2.0}}

	deadline := time.Now().Add(2 * time.Second)
	for {
		o, _ := st.Order("o1")
		_, hasLoc := st.RiderLocation("r1")
		if o.Status == models.StatusPreparing && hasLoc {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("feed events not applied: %+v", o)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	for name, s := range map[string]*fakeSub{"orders": orders, "locations": locs} {
		select {
		case <-s.closed:
		default:
			t.Fatalf("%s subscription not closed", name)
		}
	}
}

func TestRun_SubscribeFailureKeepsStoreStale(t *testing.T) {
	src := &fakeSource{subErr: errors.New("listen failed"), rows: []models.Row{{"id": "o1"}}}
	ing, st := newIngestor(src)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := ing.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}
	if st.Len() != 1 {
		t.Fatalf("snapshot should still load")
	}
	if !st.SyncStatus().Degraded {
		t.Fatalf("subscribe failure should mark degraded")
	}
}
