package state

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

// MaxNotifications caps the activity log.
const MaxNotifications = 10

// ErrOrderNotFound is returned by SwapOrder for ids the store does not hold.
var ErrOrderNotFound = errors.New("state: order not found")

type ChangeKind string

const (
	ChangeOrder        ChangeKind = "order"
	ChangeSnapshot     ChangeKind = "snapshot"
	ChangeLocation     ChangeKind = "rider_location"
	ChangeNotification ChangeKind = "notification"
	ChangeSync         ChangeKind = "sync"
)

// Change describes one mutation applied to the Store.
type Change struct {
	Kind         ChangeKind            `json:"kind"`
	Order        *models.Order         `json:"order,omitempty"`
	Location     *models.RiderLocation `json:"location,omitempty"`
	Notification string                `json:"notification,omitempty"`
	Sync         *models.SyncStatus    `json:"sync,omitempty"`
}

// Observer receives every change after it has been applied.
type Observer interface {
	Observe(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

func (f ObserverFunc) Observe(c Change) { f(c) }

// Store is the in-process projection of the system of record: orders
// (most recent first), the last known location of each rider and the
// notification log. It is a cache and never the authority.
type Store struct {
	mu            sync.RWMutex
	orders        []models.Order
	locations     map[string]models.RiderLocation
	latestRider   string
	notifications []string
	sync          models.SyncStatus
	observers     []Observer
	now           func() time.Time
}

// New creates an empty store. mode is reported through SyncStatus.
func New(mode string) *Store {
	return &Store{
		locations: make(map[string]models.RiderLocation),
		sync:      models.SyncStatus{Mode: mode},
		now:       time.Now,
	}
}

// Subscribe registers an observer. Observers are called synchronously in
// registration order, outside the store lock.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Store) emit(c Change) {
	s.mu.RLock()
	obs := slices.Clone(s.observers)
	s.mu.RUnlock()
	for _, o := range obs {
		o.Observe(c)
	}
}

// Orders returns a copy of every order, most recent first.
func (s *Store) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out
}

func (s *Store) Order(id string) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.orders[i].Clone(), true
	}
	return models.Order{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.orders, func(o models.Order) bool { return o.ID == id })
}

// ReplaceOrders swaps the whole order list for a snapshot. Duplicate ids
// keep their first occurrence.
func (s *Store) ReplaceOrders(orders []models.Order) {
	s.mu.Lock()
	seen := make(map[string]struct{}, len(orders))
	next := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		next = append(next, o.Clone())
	}
	s.orders = next
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeSnapshot})
}

// UpsertOrder prepends o when its id is new and replaces the stored order in
// place otherwise. It reports whether the order was new.
func (s *Store) UpsertOrder(o models.Order) bool {
	o = o.Clone()
	s.mu.Lock()
	i := s.indexOf(o.ID)
	if i >= 0 {
		s.orders[i] = o
	} else {
		s.orders = append([]models.Order{o}, s.orders...)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeOrder, Order: &o})
	return i < 0
}

// ReplaceOrder overwrites the order with the same id. Unknown ids are
// ignored.
func (s *Store) ReplaceOrder(o models.Order) bool {
	_, ok := s.UpdateOrder(o.ID, func(cur *models.Order) { *cur = o.Clone() })
	return ok
}

// UpdateOrder applies fn to the stored order with the given id and returns
// the result. fn must not change the id.
func (s *Store) UpdateOrder(id string, fn func(*models.Order)) (models.Order, bool) {
	_, out, err := s.SwapOrder(id, func(o *models.Order) error {
		fn(o)
		return nil
	})
	return out, err == nil
}

// SwapOrder is UpdateOrder with a guard: fn runs under the write lock and
// may refuse the change by returning an error, which is passed back with
// nothing stored. prev is the order as it was before fn ran.
func (s *Store) SwapOrder(id string, fn func(*models.Order) error) (prev, next models.Order, err error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Order{}, models.Order{}, ErrOrderNotFound
	}
	prev = s.orders[i].Clone()
	cur := s.orders[i].Clone()
	if err := fn(&cur); err != nil {
		s.mu.Unlock()
		return prev, models.Order{}, err
	}
	cur.ID = id
	s.orders[i] = cur
	next = cur.Clone()
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeOrder, Order: &next})
	return prev, next, nil
}

// SetRiderLocation records the rider's position. A location carrying an
// update time older than the stored one is dropped and false is returned.
func (s *Store) SetRiderLocation(loc models.RiderLocation) bool {
	s.mu.Lock()
	if cur, ok := s.locations[loc.RiderID]; ok && !loc.UpdatedAt.IsZero() && loc.UpdatedAt.Before(cur.UpdatedAt) {
		s.mu.Unlock()
		return false
	}
	s.locations[loc.RiderID] = loc
	s.latestRider = loc.RiderID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeLocation, Location: &loc})
	return true
}

func (s *Store) RiderLocation(riderID string) (models.RiderLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[riderID]
	return loc, ok
}

// RiderLocations returns every known rider position keyed by rider id.
func (s *Store) RiderLocations() map[string]models.RiderLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.RiderLocation, len(s.locations))
	for k, v := range s.locations {
		out[k] = v
	}
	return out
}

// LatestRiderLocation returns the most recently recorded position of any
// rider.
func (s *Store) LatestRiderLocation() (models.RiderLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[s.latestRider]
	return loc, ok
}

// Notify prepends msg to the notification log, dropping the oldest entries
// beyond MaxNotifications.
func (s *Store) Notify(msg string) {
	s.mu.Lock()
	s.notifications = append([]string{msg}, s.notifications...)
	if len(s.notifications) > MaxNotifications {
		s.notifications = s.notifications[:MaxNotifications]
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeNotification, Notification: msg})
}

// Notifications returns the log, most recent first.
func (s *Store) Notifications() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications)
}

func (s *Store) SyncStatus() models.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sync
}

// MarkFailure flags the projection as degraded after a failed exchange
// with the system of record.
func (s *Store) MarkFailure(op string, err error) {
	s.mu.Lock()
	s.sync.Degraded = true
	s.sync.LastError = op + ": " + err.Error()
	s.sync.LastErrorAt = s.now()
	s.sync.Failures++
	st := s.sync
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeSync, Sync: &st})
}

// MarkHealthy clears the degraded flag. The last error is kept for display.
func (s *Store) MarkHealthy() {
	s.mu.Lock()
	if !s.sync.Degraded {
		s.mu.Unlock()
		return
	}
	s.sync.Degraded = false
	st := s.sync
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeSync, Sync: &st})
}
