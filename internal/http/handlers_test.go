package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/advisor"
	"github.com/farzanaafroz998-source/FASTgo/internal/commands"
	"github.com/farzanaafroz998-source/FASTgo/internal/geo"
	"github.com/farzanaafroz998-source/FASTgo/internal/logging"
	"github.com/farzanaafroz998-source/FASTgo/internal/matcher"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/shift"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

type stubAdvisor struct{}

func (stubAdvisor) Generate(ctx context.Context, prompt, system string) (string, error) {
	return "Hire two more riders.", nil
}

type fixture struct {
	srv    *Server
	store  *state.Store
	cmds   commands.Commands
	shifts *shift.Manager
	index  *geo.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	st := state.New(commands.ModeMock)
	cmds := commands.NewMemory(st, log)
	shifts := shift.NewManager(cmds.UpdateRiderLocation, nil, log)
	t.Cleanup(shifts.Close)
	idx := geo.NewIndex()
	srv := NewServer(Deps{
		Commands: cmds,
		Store:    st,
		Shifts:   shifts,
		Matcher:  &matcher.Service{Geo: idx, TopN: 3},
		Advisor:  advisor.New(stubAdvisor{}, time.Minute, log),
		Logger:   log,
	})
	return &fixture{srv: srv, store: st, cmds: cmds, shifts: shifts, index: idx}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) models.Order {
	t.Helper()
	var o models.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return o
}

const whopperJSON = `{"customerId":"CUST-1","storeId":"STORE-1","items":[{"name":"Whopper Meal","quantity":1,"price":12.99}],"location":{"lat":23.81,"lng":90.41}}`

func (f *fixture) place(t *testing.T) models.Order {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/orders", whopperJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("place: %d %s", rec.Code, rec.Body.String())
	}
	return decodeOrder(t, rec)
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	if o.Status != models.StatusPending || o.Total != 12.99 || o.RiderID != "" {
		t.Fatalf("unexpected order %+v", o)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/orders/"+o.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
}

func TestPlaceOrder_Invalid(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"customerId":"c","storeId":"s","items":[]}`,
		`{"customerId":"c","storeId":"s","items":[{"name":"x","quantity":1,"price":-1}]}`,
		`{"customerId":"c"`,
		`{"customerId":"c","storeId":"s","items":[{"name":"x","quantity":1,"price":1}],"bogus":true}`,
	} {
		if rec := f.do(t, http.MethodPost, "/api/v1/orders", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status %d", body, rec.Code)
		}
	}
	if f.store.Len() != 0 {
		t.Fatalf("invalid orders reached the store")
	}
}

func TestUpdateStatus_GuardsTransitions(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	if rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/status", `{"status":"Delivered"}`); rec.Code != http.StatusConflict {
		t.Fatalf("skip to Delivered: %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/status", `{"status":"Preparing"}`)
	if rec.Code != http.StatusOK || decodeOrder(t, rec).Status != models.StatusPreparing {
		t.Fatalf("to Preparing: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/status", `{"status":"Lost"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/missing/status", `{"status":"Preparing"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order: %d", rec.Code)
	}
}

func TestAssignAndRiderTasks(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/assign", `{"riderId":"RIDER-07"}`)
	got := decodeOrder(t, rec)
	if rec.Code != http.StatusOK || got.RiderID != "RIDER-07" || got.Status != models.StatusPreparing {
		t.Fatalf("assign: %d %+v", rec.Code, got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/riders/RIDER-07/tasks", "")
	var tasks struct {
		Assigned  []models.Order `json:"assigned"`
		Available []models.Order `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks.Assigned) != 1 || len(tasks.Available) != 0 {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", ""); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/assign", `{"riderId":"r1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("assign after cancel: %d", rec.Code)
	}
}

func TestRiderShiftAndLocation(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/v1/riders/RIDER-01/location", `{"lat":23.81,"lng":90.41}`); rec.Code != http.StatusConflict {
		t.Fatalf("location while offline: %d", rec.Code)
	}
	f.do(t, http.MethodPost, "/api/v1/riders/RIDER-01/online", "")
	if rec := f.do(t, http.MethodPost, "/api/v1/riders/RIDER-01/location", `{"lat":23.81,"lng":90.41}`); rec.Code != http.StatusAccepted {
		t.Fatalf("location while online: %d", rec.Code)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if loc, ok := f.store.RiderLocation("RIDER-01"); ok && loc.Lat == 23.81 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("location never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/riders/RIDER-01/location", `{"lat":123,"lng":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad latitude: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/riders/RIDER-01/location", `{"lng":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing latitude: %d", rec.Code)
	}
	f.do(t, http.MethodPost, "/api/v1/riders/RIDER-01/offline", "")
	if f.shifts.Online("RIDER-01") {
		t.Fatalf("rider still online")
	}
}

func TestCustomerTrackingIncludesETA(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	ctx := context.Background()
	_ = f.cmds.AssignRider(ctx, o.ID, "RIDER-01")
	_ = f.cmds.UpdateRiderLocation(ctx, "RIDER-01", 23.80, 90.40)

	rec := f.do(t, http.MethodGet, "/api/v1/customers/CUST-1/orders", "")
	var out []trackedOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Rider == nil || out[0].ETASeconds == nil || *out[0].ETASeconds <= 0 {
		t.Fatalf("tracking = %s", rec.Body.String())
	}
}

func TestSuggestions(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	_ = f.index.Upsert(context.Background(), models.RiderLocation{RiderID: "near", Lat: 23.811, Lng: 90.41})
	_ = f.index.Upsert(context.Background(), models.RiderLocation{RiderID: "far", Lat: 23.9, Lng: 90.41})

	rec := f.do(t, http.MethodGet, "/api/v1/orders/"+o.ID+"/suggestions", "")
	var out []matcher.Suggestion
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].RiderID != "near" {
		t.Fatalf("suggestions = %+v", out)
	}
}

func TestAdminStatsAndNotifications(t *testing.T) {
	f := newFixture(t)
	f.place(t)
	f.place(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/stats", "")
	var stats adminStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalOrders != 2 || stats.ActiveOrders != 2 || stats.Revenue != 25.98 || stats.Insight != "Hire two more riders." {
		t.Fatalf("stats = %+v", stats)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/notifications", "")
	var notes []string
	_ = json.Unmarshal(rec.Body.Bytes(), &notes)
	if len(notes) != 2 || !strings.Contains(notes[0], "Mock Mode") {
		t.Fatalf("notifications = %v", notes)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/sync", "")
	var sync models.SyncStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &sync)
	if sync.Mode != commands.ModeMock || sync.Degraded {
		t.Fatalf("sync = %+v", sync)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("healthz: %d headers=%v", rec.Code, rec.Header())
	}
	if rec := f.do(t, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}
}
