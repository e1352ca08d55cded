package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
)

// NotifyChannel is the LISTEN channel the change triggers publish on.
const NotifyChannel = "fastgo_changes"

const (
	subscriptionBuffer = 256
	hydrateTimeout     = 5 * time.Second
)

// Postgres implements Backend on database/sql with lib/pq. Change feeds are
// served from a single pq.Listener shared by all subscriptions.
type Postgres struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger

	mu       sync.Mutex
	listener *pq.Listener
	subs     map[int]*subscription
	nextID   int
}

func NewPostgres(dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db, dsn: dsn, logger: logger, subs: make(map[int]*subscription)}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error {
	p.mu.Lock()
	subs := make([]*subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	l := p.listener
	p.listener = nil
	p.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	if l != nil {
		_ = l.Close()
	}
	return p.db.Close()
}

func (p *Postgres) Select(ctx context.Context, table string, q Query) ([]models.Row, error) {
	const op = "backend.postgres.Select"
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		var row models.Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%s: decode row: %w", op, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating over rows: %w", op, err)
	}
	return out, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, row models.Row) error {
	const op = "backend.postgres.Insert"
	query, args, err := buildInsert(table, row, "")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, table string, patch, filter models.Row) error {
	const op = "backend.postgres.Update"
	query, args, err := buildUpdate(table, patch, filter)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, table string, row models.Row, conflictKey string) error {
	const op = "backend.postgres.Upsert"
	query, args, err := buildInsert(table, row, conflictKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Subscribe registers a feed for table. The subscription closes itself when
// ctx is done.
func (p *Postgres) Subscribe(ctx context.Context, table string, types ...models.EventType) (Subscription, error) {
	const op = "backend.postgres.Subscribe"
	if err := checkColumns(table); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := p.ensureListener(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	p.nextID++
	s := &subscription{
		id:     p.nextID,
		table:  table,
		types:  types,
		events: make(chan models.ChangeEvent, subscriptionBuffer),
		done:   make(chan struct{}),
		owner:  p,
	}
	p.subs[s.id] = s
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (p *Postgres) ensureListener() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return nil
	}
	l := pq.NewListener(p.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn("change feed listener event", "event", int(ev), "error", err)
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return err
	}
	p.listener = l
	go p.pump(l)
	return nil
}

// pump fans notifications out to subscriptions until the listener closes.
func (p *Postgres) pump(l *pq.Listener) {
	for n := range l.Notify {
		if n == nil {
			// nil marks a reconnect; notifications sent while down are lost
			p.logger.Warn("change feed reconnected; events may have been missed")
			continue
		}
		ev, err := decodeNotification(n.Extra)
		if err != nil {
			observability.FeedEventsTotal.WithLabelValues("unknown", "unknown", "malformed").Inc()
			p.logger.Error("malformed change notification", "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
		ev, ok, err := hydrate(ctx, p.Select, ev)
		cancel()
		if err != nil {
			observability.FeedEventsTotal.WithLabelValues(ev.Table, string(ev.Type), "error").Inc()
			p.logger.Error("reading changed row failed", "table", ev.Table, "key", ev.Key, "error", err)
			continue
		}
		if !ok {
			observability.FeedEventsTotal.WithLabelValues(ev.Table, string(ev.Type), "vanished").Inc()
			continue
		}
		p.dispatch(ev)
	}
}

type selectFunc func(ctx context.Context, table string, q Query) ([]models.Row, error)

// hydrate reads the current row for a notification that only names its key.
// ok is false when the row is already gone.
func hydrate(ctx context.Context, sel selectFunc, ev models.ChangeEvent) (models.ChangeEvent, bool, error) {
	if ev.New != nil || len(ev.Key) == 0 {
		return ev, true, nil
	}
	if ev.Type == models.EventDelete {
		if ev.Old == nil {
			ev.Old = ev.Key
		}
		return ev, true, nil
	}
	rows, err := sel(ctx, ev.Table, Query{Filter: ev.Key, Limit: 1})
	if err != nil {
		return ev, false, err
	}
	if len(rows) == 0 {
		return ev, false, nil
	}
	ev.New = rows[0]
	return ev, true, nil
}

func (p *Postgres) dispatch(ev models.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		if s.table != ev.Table || !wants(s.types, ev.Type) {
			continue
		}
		select {
		case s.events <- ev:
		default:
			observability.FeedEventsTotal.WithLabelValues(ev.Table, string(ev.Type), "overflow").Inc()
			p.logger.Error("subscription buffer full, dropping event", "table", ev.Table, "type", ev.Type)
		}
	}
}

func (p *Postgres) remove(s *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[s.id]; ok {
		delete(p.subs, s.id)
		close(s.events)
	}
}

type subscription struct {
	id     int
	table  string
	types  []models.EventType
	events chan models.ChangeEvent
	done   chan struct{}
	once   sync.Once
	owner  *Postgres
}

func (s *subscription) Events() <-chan models.ChangeEvent { return s.events }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.owner.remove(s)
	})
	return nil
}

func decodeNotification(payload string) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.ChangeEvent{}, err
	}
	if ev.Table == "" || ev.Type == "" {
		return models.ChangeEvent{}, fmt.Errorf("notification missing table or type")
	}
	return ev, nil
}

func sortedKeys(r models.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sqlValue converts composite values (item lists) to JSON text for jsonb
// columns. Scalars pass through to the driver.
func sqlValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, []byte, bool, int, int64, float64, time.Time:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func buildSelect(table string, q Query) (string, []any, error) {
	keys := sortedKeys(q.Filter)
	check := keys
	if q.OrderBy != "" {
		check = append(append([]string{}, keys...), q.OrderBy)
	}
	if err := checkColumns(table, check...); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	args := make([]any, 0, len(keys))
	fmt.Fprintf(&b, "SELECT row_to_json(t) FROM (SELECT * FROM %s", pq.QuoteIdentifier(table))
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		v, err := sqlValue(q.Filter[k])
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
		fmt.Fprintf(&b, "%s = $%d", pq.QuoteIdentifier(k), len(args))
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", pq.QuoteIdentifier(q.OrderBy))
		if q.Descending {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	b.WriteString(") t")
	return b.String(), args, nil
}

// buildInsert renders an INSERT, turned into an upsert when conflictKey is
// set.
func buildInsert(table string, row models.Row, conflictKey string) (string, []any, error) {
	keys := sortedKeys(row)
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("empty row")
	}
	check := keys
	if conflictKey != "" {
		check = append(append([]string{}, keys...), conflictKey)
	}
	if err := checkColumns(table, check...); err != nil {
		return "", nil, err
	}
	cols := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		v, err := sqlValue(row[k])
		if err != nil {
			return "", nil, err
		}
		cols[i] = pq.QuoteIdentifier(k)
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = v
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", pq.QuoteIdentifier(table), strings.Join(cols, ", "), strings.Join(params, ", "))
	if conflictKey != "" {
		var sets []string
		for _, k := range keys {
			if k == conflictKey {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pq.QuoteIdentifier(k), pq.QuoteIdentifier(k)))
		}
		if len(sets) == 0 {
			q += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", pq.QuoteIdentifier(conflictKey))
		} else {
			q += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", pq.QuoteIdentifier(conflictKey), strings.Join(sets, ", "))
		}
	}
	return q, args, nil
}

func buildUpdate(table string, patch, filter models.Row) (string, []any, error) {
	setKeys := sortedKeys(patch)
	whereKeys := sortedKeys(filter)
	if len(setKeys) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}
	if len(whereKeys) == 0 {
		return "", nil, fmt.Errorf("update without filter")
	}
	if err := checkColumns(table, append(append([]string{}, setKeys...), whereKeys...)...); err != nil {
		return "", nil, err
	}
	args := make([]any, 0, len(setKeys)+len(whereKeys))
	sets := make([]string, len(setKeys))
	for i, k := range setKeys {
		v, err := sqlValue(patch[k])
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), len(args))
	}
	conds := make([]string, len(whereKeys))
	for i, k := range whereKeys {
		v, err := sqlValue(filter[k])
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
		conds[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), len(args))
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", pq.QuoteIdentifier(table), strings.Join(sets, ", "), strings.Join(conds, " AND "))
	return q, args, nil
}
