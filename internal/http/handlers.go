package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/dispatch"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/earnings"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/geo"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/mission"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/route"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---- presence ----

func (s *Server) handleGoOnline(w http.ResponseWriter, r *http.Request) {
	ds := s.session(mux.Vars(r)["driver_id"])
	if err := ds.reporter.GoOnline(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoOffline(w http.ResponseWriter, r *http.Request) {
	ds := s.session(mux.Vars(r)["driver_id"])
	if err := ds.reporter.GoOffline(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	ds := s.session(mux.Vars(r)["driver_id"])
	var loc models.Coord
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ds.pump.push(loc) {
		writeError(w, http.StatusConflict, "driver is offline")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	p, err := s.deps.Presence.Get(r.Context(), driverID)
	if err != nil {
		writeError(w, http.StatusNotFound, "no presence record")
		return
	}
	window := s.deps.Freshness
	if window <= 0 {
		window = models.FreshnessWindow
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"presence": p,
		"stale":    p.StaleWithin(time.Now(), window),
	})
}

// ---- missions ----

type createMissionRequest struct {
	StoreName        string       `json:"store_name"`
	StoreAddress     string       `json:"store_address"`
	StoreCoord       models.Coord `json:"store_coord"`
	CustomerAddress  string       `json:"customer_address"`
	CustomerCoord    models.Coord `json:"customer_coord"`
	Earnings         float64      `json:"earnings"`
	DistanceToStore  float64      `json:"distance_to_store_km"`
	DeliveryDistance float64      `json:"delivery_distance_km"`
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req createMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := &models.Mission{
		ID:               uuid.NewString(),
		Status:           models.StatusPending,
		StoreName:        req.StoreName,
		StoreAddress:     req.StoreAddress,
		StoreCoord:       req.StoreCoord,
		CustomerAddress:  req.CustomerAddress,
		CustomerCoord:    req.CustomerCoord,
		Earnings:         req.Earnings,
		DistanceToStore:  req.DistanceToStore,
		DeliveryDistance: req.DeliveryDistance,
		CreatedAt:        time.Now(),
	}
	if m.DeliveryDistance == 0 {
		m.DeliveryDistance = geo.Haversine(m.StoreCoord, m.CustomerCoord) / 1000
	}
	if err := s.deps.Missions.Insert(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Bus.Emit(r.Context(), models.MissionEvent{Type: models.EventInsert, Mission: *m}); err != nil {
		s.logger.Warn("mission insert event emit failed", "mission_id", m.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Missions.Get(r.Context(), mux.Vars(r)["mission_id"])
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, "mission not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCancelMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Missions.Cancel(r.Context(), mux.Vars(r)["mission_id"])
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, "mission not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Bus.Emit(r.Context(), models.MissionEvent{Type: models.EventUpdate, Mission: *m}); err != nil {
		s.logger.Warn("mission cancel event emit failed", "mission_id", m.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, m)
}

type driverActionRequest struct {
	DriverID string `json:"driver_id"`
}

func (s *Server) driverFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req driverActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return "", false
	}
	return req.DriverID, true
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	missionID := mux.Vars(r)["mission_id"]
	driverID, ok := s.driverFromBody(w, r)
	if !ok {
		return
	}
	out, err := s.deps.Acceptance.Accept(r.Context(), missionID, driverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !out.Accepted() {
		writeJSON(w, http.StatusConflict, map[string]string{"rejected": string(out.Reason)})
		return
	}

	ds := s.session(driverID)
	tr := mission.NewTracker(missionID, s.deps.Bus.Source(), s.logger)
	tr.Start(func() {
		// counterpart cancelled while the driver was en route
		_ = s.deps.Registry.Withdraw(driverID, missionID)
		s.deps.Registry.Broadcast(dispatch.Envelope{Kind: "cancelled", MissionID: missionID})
		ds.missionOver()
		s.deps.Engine.Invalidate()
	}, func(err error) {
		s.logger.Warn("mission watch needs retry", "mission_id", missionID, "driver_id", driverID, "error", err)
	})
	ds.setTracker(tr)
	if sub := ds.subscription(); sub != nil {
		sub.Pause()
	}
	writeJSON(w, http.StatusOK, out.Mission)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	missionID := mux.Vars(r)["mission_id"]
	driverID, ok := s.driverFromBody(w, r)
	if !ok {
		return
	}
	s.deps.Acceptance.Reject(r.Context(), missionID, driverID)
	if sub := s.session(driverID).subscription(); sub != nil {
		sub.Exclude(missionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	missionID := mux.Vars(r)["mission_id"]
	driverID, ok := s.driverFromBody(w, r)
	if !ok {
		return
	}
	out, err := s.deps.Acceptance.Complete(r.Context(), missionID, driverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !out.Accepted() {
		writeJSON(w, http.StatusConflict, map[string]string{"rejected": string(out.Reason)})
		return
	}

	tx := earnings.DeliveryTransaction(out.Mission, time.Now())
	if err := s.deps.Ledger.Record(r.Context(), tx); err != nil {
		s.logger.Error("earnings record failed", "mission_id", missionID, "error", err)
	}

	ds := s.session(driverID)
	if tr := ds.activeTracker(); tr != nil {
		tr.Finish()
	}
	ds.missionOver()
	s.deps.Engine.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"mission": out.Mission, "transaction": tx})
}

// ---- active mission phase ----

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	ds := s.session(mux.Vars(r)["driver_id"])
	tr := ds.activeTracker()
	if tr == nil {
		writeJSON(w, http.StatusOK, map[string]any{"phase": models.PhaseOnline})
		return
	}
	resp := map[string]any{
		"phase":     tr.Phase(),
		"cancelled": tr.Cancelled(),
	}
	if err := tr.Err(); err != nil {
		resp["watch_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ds := s.session(mux.Vars(r)["driver_id"])
	tr := ds.activeTracker()
	if tr == nil {
		writeError(w, http.StatusConflict, "no active mission")
		return
	}
	phase, err := tr.Advance()
	if err == mission.ErrMissionOver {
		writeError(w, http.StatusConflict, "mission is over")
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phase": phase})
}

// ---- route ----

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	ds := s.session(driverID)

	p, err := s.deps.Presence.Get(r.Context(), driverID)
	if err != nil {
		writeError(w, http.StatusConflict, "no known location")
		return
	}
	active, err := s.deps.Missions.ActiveFor(r.Context(), driverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if active == nil {
		writeError(w, http.StatusConflict, "no active mission")
		return
	}

	// before pickup the trip is store then customer; after pickup only
	// the customer leg remains
	waypoints := []models.Coord{active.StoreCoord, active.CustomerCoord}
	if tr := ds.activeTracker(); tr != nil {
		switch tr.Phase() {
		case models.PhaseGoingToCustomer, models.PhaseArrivedAtCustomer:
			waypoints = []models.Coord{active.CustomerCoord}
		}
	}

	path, ok := s.deps.Engine.ComputeRoute(r.Context(), p.Loc, waypoints)
	if !ok {
		// provider failure only suppresses route display
		writeJSON(w, http.StatusOK, map[string]any{"route": nil})
		return
	}

	fitPoints := append([]models.Coord{p.Loc}, waypoints...)
	bounds, apply := ds.viewport.Fit(fitPoints)
	resp := map[string]any{
		"route": map[string]any{
			"polyline":         path.Polyline,
			"distance_meters":  path.Distance,
			"duration_seconds": path.Duration,
		},
		"fit": apply,
	}
	if apply {
		resp["bounds"] = bounds
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMapInteracted(w http.ResponseWriter, r *http.Request) {
	s.session(mux.Vars(r)["driver_id"]).viewport.UserInteracted()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMapOverlay(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	p, err := s.deps.Presence.Get(r.Context(), driverID)
	if err != nil {
		writeError(w, http.StatusConflict, "no known location")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"circles": route.DemandOverlay(p.Loc, 6),
	})
}

func (s *Server) handleMapRecenter(w http.ResponseWriter, r *http.Request) {
	bounds, ok := s.session(mux.Vars(r)["driver_id"]).viewport.Recenter()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bounds": bounds})
}

// ---- earnings ----

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	txs, err := s.deps.Ledger.Transactions(r.Context(), driverID, r.URL.Query().Get("week"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.deps.Ledger.Balance(r.Context(), mux.Vars(r)["driver_id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

type payoutRequest struct {
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Payer == nil {
		writeError(w, http.StatusNotImplemented, "payouts not configured")
		return
	}
	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := earnings.Payout(r.Context(), s.deps.Ledger, s.deps.Payer,
		mux.Vars(r)["driver_id"], req.Currency, req.Destination)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	d, err := s.deps.Stats.For(r.Context(), mux.Vars(r)["driver_id"], date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ---- websocket offer stream ----

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.deps.Registry.Add(driverID, conn)

	ds := s.session(driverID)
	sub := s.feed.Subscribe(
		func(m models.Mission) {
			if err := s.deps.Registry.Offer(driverID, m); err != nil {
				s.logger.Warn("offer push failed", "driver_id", driverID, "error", err)
			}
		},
		func(missionID string) {
			if err := s.deps.Registry.Withdraw(driverID, missionID); err != nil {
				s.logger.Warn("withdraw push failed", "driver_id", driverID, "error", err)
			}
		},
	)
	ds.setSubscription(sub)

	// a driver reconnecting mid-mission must not receive new offers
	if active, err := s.deps.Missions.ActiveFor(r.Context(), driverID); err == nil && active != nil {
		sub.Pause()
	}

	// block on the read side to notice the peer going away
	go func() {
		defer func() {
			sub.Unsubscribe()
			s.deps.Registry.Remove(driverID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
