package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farzanaafroz998-source/FASTgo/internal/advisor"
	"github.com/farzanaafroz998-source/FASTgo/internal/commands"
	"github.com/farzanaafroz998-source/FASTgo/internal/dispatch"
	"github.com/farzanaafroz998-source/FASTgo/internal/eta"
	"github.com/farzanaafroz998-source/FASTgo/internal/lifecycle"
	"github.com/farzanaafroz998-source/FASTgo/internal/matcher"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/shift"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

// Deps are the collaborators the API serves from. Matcher, Advisor, Hub,
// ETA and Ready are optional.
type Deps struct {
	Commands commands.Commands
	Store    *state.Store
	Shifts   *shift.Manager
	Matcher  *matcher.Service
	Advisor  *advisor.Advisor
	Hub      *dispatch.Hub
	ETA      eta.Estimator
	Ready    func(ctx context.Context) error
	Logger   *slog.Logger
}

type Server struct {
	Deps
	mux      *mux.Router
	validate *validator.Validate
}

func NewServer(d Deps) *Server {
	if d.ETA == nil {
		d.ETA = eta.StraightLine{}
	}
	if d.Advisor == nil {
		d.Advisor = advisor.New(nil, 0, d.Logger)
	}
	s := &Server{Deps: d, mux: mux.NewRouter(), validate: validator.New()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/assign", s.handleAssign).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/suggestions", s.handleSuggest).Methods(http.MethodGet)

	api.HandleFunc("/customers/{id}/orders", s.handleCustomerOrders).Methods(http.MethodGet)
	api.HandleFunc("/stores/{id}/queue", s.handleStoreQueue).Methods(http.MethodGet)
	api.HandleFunc("/stores/{id}/summary", s.handleStoreSummary).Methods(http.MethodGet)

	api.HandleFunc("/riders/locations", s.handleRiderLocations).Methods(http.MethodGet)
	api.HandleFunc("/riders/{id}/tasks", s.handleRiderTasks).Methods(http.MethodGet)
	api.HandleFunc("/riders/{id}/online", s.handleGoOnline).Methods(http.MethodPost)
	api.HandleFunc("/riders/{id}/offline", s.handleGoOffline).Methods(http.MethodPost)
	api.HandleFunc("/riders/{id}/location", s.handleRiderLocation).Methods(http.MethodPost)

	api.HandleFunc("/admin/stats", s.handleAdminStats).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.Hub != nil {
		s.mux.HandleFunc("/ws", s.Hub.ServeWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var in models.NewOrder
	if !s.decode(w, r, &in) {
		return
	}
	o, err := s.Commands.PlaceOrder(r.Context(), in)
	if err != nil {
		s.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.Store.Orders()
	if st := r.URL.Query().Get("status"); st != "" {
		status, ok := models.ParseStatus(st)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status "+st)
			return
		}
		kept := orders[:0]
		for _, o := range orders {
			if o.Status == status {
				kept = append(kept, o)
			}
		}
		orders = kept
	}
	if r.URL.Query().Get("active") == "true" {
		kept := orders[:0]
		for _, o := range orders {
			if lifecycle.IsActive(o) {
				kept = append(kept, o)
			}
		}
		orders = kept
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := s.Store.Order(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	next, ok := models.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status "+req.Status)
		return
	}
	if _, ok := s.Store.Order(id); !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if next == models.StatusCancelled {
		s.cancel(w, r, id)
		return
	}
	if err := s.Commands.AdvanceOrder(r.Context(), id, next); err != nil {
		s.commandError(w, err)
		return
	}
	s.writeOrder(w, id)
}

type assignRequest struct {
	RiderID string `json:"riderId" validate:"required"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req assignRequest
	if !s.decode(w, r, &req) {
		return
	}
	cur, ok := s.Store.Order(id)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if lifecycle.IsTerminal(cur.Status) {
		writeError(w, http.StatusConflict, "order is "+string(cur.Status))
		return
	}
	if err := s.Commands.AssignRider(r.Context(), id, req.RiderID); err != nil {
		s.commandError(w, err)
		return
	}
	if s.Hub != nil {
		if o, ok := s.Store.Order(id); ok {
			if err := s.Hub.Offer(req.RiderID, o); err != nil && !errors.Is(err, dispatch.ErrNoSession) {
				s.Logger.Warn("rider offer failed", "rider_id", req.RiderID, "error", err)
			}
		}
	}
	s.writeOrder(w, id)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.Store.Order(id); !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	s.cancel(w, r, id)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.Commands.CancelOrder(r.Context(), id); err != nil {
		s.commandError(w, err)
		return
	}
	s.writeOrder(w, id)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.Matcher == nil {
		writeError(w, http.StatusServiceUnavailable, "matcher not configured")
		return
	}
	o, ok := s.Store.Order(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	out, err := s.Matcher.Suggest(r.Context(), o)
	if err != nil {
		s.Logger.Error("suggest failed", "order_id", o.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "rider lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// trackedOrder is an active order as the customer sees it.
type trackedOrder struct {
	models.Order
	Rider      *models.RiderLocation `json:"riderLocation,omitempty"`
	ETASeconds *float64              `json:"etaSeconds,omitempty"`
}

func (s *Server) handleCustomerOrders(w http.ResponseWriter, r *http.Request) {
	active := lifecycle.ActiveForCustomer(s.Store.Orders(), mux.Vars(r)["id"])
	out := make([]trackedOrder, 0, len(active))
	for _, o := range active {
		t := trackedOrder{Order: o}
		if o.RiderID != "" {
			if loc, ok := s.Store.RiderLocation(o.RiderID); ok {
				t.Rider = &loc
				if v, err := s.ETA.EstimateSeconds(r.Context(), models.Coord{Lat: loc.Lat, Lng: loc.Lng}, o.Location); err == nil {
					t.ETASeconds = &v
				}
			}
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStoreQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lifecycle.ActiveForStore(s.Store.Orders(), mux.Vars(r)["id"]))
}

func (s *Server) handleStoreSummary(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = mux.Vars(r)["id"]
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": s.Advisor.StoreSummary(r.Context(), name)})
}

func (s *Server) handleRiderLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.RiderLocations())
}

func (s *Server) handleRiderTasks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	orders := s.Store.Orders()
	writeJSON(w, http.StatusOK, map[string]any{
		"online":    s.Shifts != nil && s.Shifts.Online(id),
		"assigned":  lifecycle.ActiveForRider(orders, id),
		"available": lifecycle.Unassigned(orders),
	})
}

func (s *Server) handleGoOnline(w http.ResponseWriter, r *http.Request) {
	if s.Shifts == nil {
		writeError(w, http.StatusServiceUnavailable, "shifts not configured")
		return
	}
	s.Shifts.GoOnline(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"online": true})
}

func (s *Server) handleGoOffline(w http.ResponseWriter, r *http.Request) {
	if s.Shifts == nil {
		writeError(w, http.StatusServiceUnavailable, "shifts not configured")
		return
	}
	s.Shifts.GoOffline(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"online": false})
}

type locationRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (s *Server) handleRiderLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req locationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.Shifts == nil {
		if err := s.Commands.UpdateRiderLocation(r.Context(), id, *req.Lat, *req.Lng); err != nil {
			s.commandError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.Shifts.Report(id, *req.Lat, *req.Lng); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type adminStats struct {
	lifecycle.Stats
	RidersOnline int    `json:"ridersOnline"`
	Insight      string `json:"insight,omitempty"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	out := adminStats{Stats: lifecycle.Summarize(s.Store.Orders())}
	if s.Shifts != nil {
		out.RidersOnline = s.Shifts.OnlineCount()
	}
	if r.URL.Query().Get("insight") != "false" {
		out.Insight = s.Advisor.AdminInsight(r.Context(), out.Stats)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.Notifications())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.SyncStatus())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) writeOrder(w http.ResponseWriter, id string) {
	if o, ok := s.Store.Order(id); ok {
		writeJSON(w, http.StatusOK, o)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, commands.ErrInvalidOrder), errors.Is(err, commands.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, commands.ErrNotCancellable), errors.Is(err, commands.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, commands.ErrUnknownOrder):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		s.Logger.Error("command failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newID() string { return uuid.NewString() }
