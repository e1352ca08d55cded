package shift

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/logging"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) sink(ctx context.Context, riderID string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, riderID)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestReport_WhileOffline(t *testing.T) {
	m := NewManager((&recorder{}).sink, nil, logging.Discard())
	if err := m.Report("r1", 1, 2); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

func TestOnlineReportOffline(t *testing.T) {
	rec := &recorder{}
	var exited atomic.Int32
	m := NewManager(rec.sink, func(string) { exited.Add(1) }, logging.Discard())

	if !m.GoOnline("r1") {
		t.Fatalf("first GoOnline should start a watch")
	}
	if m.GoOnline("r1") {
		t.Fatalf("second GoOnline should be a no-op")
	}
	if err := m.Report("r1", 23.81, 90.41); err != nil {
		t.Fatalf("report: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("position never reached the sink")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !m.GoOffline("r1") {
		t.Fatalf("GoOffline should stop the watch")
	}
	if exited.Load() != 1 {
		t.Fatalf("watch should have exited before GoOffline returned")
	}
	before := rec.count()
	if err := m.Report("r1", 1, 1); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline after going offline, got %v", err)
	}
	if rec.count() != before {
		t.Fatalf("no update may arrive after GoOffline")
	}
	if m.GoOffline("r1") {
		t.Fatalf("second GoOffline should be a no-op")
	}
}

func TestClose_EndsEveryShift(t *testing.T) {
	m := NewManager((&recorder{}).sink, nil, logging.Discard())
	m.GoOnline("a")
	m.GoOnline("b")
	if m.OnlineCount() != 2 {
		t.Fatalf("online = %d", m.OnlineCount())
	}
	m.Close()
	if m.OnlineCount() != 0 || m.Online("a") {
		t.Fatalf("shifts still open after Close")
	}
}

func TestReport_KeepsNewestWhenBufferFull(t *testing.T) {
	block := make(chan struct{})
	var last atomic.Value
	sink := func(ctx context.Context, riderID string, lat, lng float64) error {
		<-block
		last.Store(lat)
		return nil
	}
	m := NewManager(sink, nil, logging.Discard())
	m.GoOnline("r1")
	for i := 0; i < 100; i++ {
		if err := m.Report("r1", float64(i), 0); err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
	}
	close(block)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, _ := last.Load().(float64); v == 99 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("newest position never delivered, last=%v", last.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Close()
}
