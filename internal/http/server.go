package httpapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/dispatch"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/earnings"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/feed"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/mission"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/presence"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/route"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/storage"
)

// Deps is everything the API needs, injected explicitly so handlers can
// be exercised against fakes.
type Deps struct {
	Missions    storage.MissionStore
	Presence    presence.Store
	Bus         *feed.Bus
	Acceptance  *mission.Acceptance
	Engine      *route.Engine
	Ledger      earnings.Ledger
	Stats       earnings.StatsStore
	Payer       earnings.Payer // nil disables payouts
	LocationPub presence.Publisher
	Registry    *dispatch.Registry
	Freshness   time.Duration // zero means the model default
	Logger      *slog.Logger
}

type Server struct {
	deps   Deps
	feed   *feed.Feed
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*driverSession

	mux *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		deps:     d,
		feed:     feed.New(d.Bus.Source(), d.Logger),
		logger:   d.Logger,
		sessions: make(map[string]*driverSession),
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/online", s.handleGoOnline).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/offline", s.handleGoOffline).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/locations", s.handleLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/presence", s.handlePresence).Methods("GET")

	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/phase", s.handlePhase).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/phase/advance", s.handleAdvance).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/route", s.handleRoute).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/map/interacted", s.handleMapInteracted).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/map/recenter", s.handleMapRecenter).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/map/overlay", s.handleMapOverlay).Methods("GET")

	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/transactions", s.handleTransactions).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/balance", s.handleBalance).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/payouts", s.handlePayout).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/stats", s.handleDailyStats).Methods("GET")

	s.mux.HandleFunc("/internal/missions", s.handleCreateMission).Methods("POST")
	s.mux.HandleFunc("/internal/missions/{mission_id}/cancel", s.handleCancelMission).Methods("POST")
	s.mux.HandleFunc("/api/v1/missions/{mission_id}", s.handleGetMission).Methods("GET")
	s.mux.HandleFunc("/api/v1/missions/{mission_id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/missions/{mission_id}/reject", s.handleReject).Methods("POST")
	s.mux.HandleFunc("/api/v1/missions/{mission_id}/complete", s.handleComplete).Methods("POST")

	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
