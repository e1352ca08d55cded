package shift

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
)

var ErrOffline = errors.New("rider is offline")

// Sink receives every position reported during a shift.
type Sink func(ctx context.Context, riderID string, lat, lng float64) error

// Manager runs one position watch per online rider. Going offline stops the
// watch and waits for it, so no update is delivered after GoOffline returns.
type Manager struct {
	mu      sync.Mutex
	watches map[string]*watch
	sink    Sink
	onExit  func(riderID string)
	logger  *slog.Logger
}

type watch struct {
	positions chan models.Coord
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewManager builds a Manager. onExit, when set, runs after a watch ends.
func NewManager(sink Sink, onExit func(riderID string), logger *slog.Logger) *Manager {
	return &Manager{watches: make(map[string]*watch), sink: sink, onExit: onExit, logger: logger}
}

// GoOnline starts the rider's watch. It is a no-op when already online.
func (m *Manager) GoOnline(riderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watches[riderID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{positions: make(chan models.Coord, 16), cancel: cancel, done: make(chan struct{})}
	m.watches[riderID] = w
	observability.RidersOnline.Set(float64(len(m.watches)))
	go m.run(ctx, riderID, w)
	m.logger.Info("rider online", "rider_id", riderID)
	return true
}

// GoOffline stops the rider's watch and waits for it to exit.
func (m *Manager) GoOffline(riderID string) bool {
	m.mu.Lock()
	w, ok := m.watches[riderID]
	if ok {
		delete(m.watches, riderID)
		observability.RidersOnline.Set(float64(len(m.watches)))
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	w.cancel()
	<-w.done
	m.logger.Info("rider offline", "rider_id", riderID)
	return true
}

// Report hands a position to the rider's watch. When the buffer is full the
// oldest pending position is discarded.
func (m *Manager) Report(riderID string, lat, lng float64) error {
	m.mu.Lock()
	w, ok := m.watches[riderID]
	m.mu.Unlock()
	if !ok {
		return ErrOffline
	}
	p := models.Coord{Lat: lat, Lng: lng}
	for {
		select {
		case w.positions <- p:
			return nil
		default:
		}
		select {
		case <-w.positions:
		default:
		}
	}
}

func (m *Manager) Online(riderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[riderID]
	return ok
}

func (m *Manager) OnlineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

// Close ends every shift.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.watches))
	for id := range m.watches {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.GoOffline(id)
	}
}

func (m *Manager) run(ctx context.Context, riderID string, w *watch) {
	defer func() {
		if m.onExit != nil {
			m.onExit(riderID)
		}
		close(w.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.positions:
			if err := m.sink(ctx, riderID, p.Lat, p.Lng); err != nil {
				m.logger.Warn("position rejected", "rider_id", riderID, "error", err)
			}
		}
	}
}
