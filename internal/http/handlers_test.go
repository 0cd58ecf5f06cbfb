package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/dispatch"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/earnings"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/feed"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/mission"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/presence"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/route"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/storage"
)

type stubRouter struct {
	calls int
}

func (r *stubRouter) Route(ctx context.Context, origin models.Coord, waypoints []models.Coord) (route.Path, error) {
	r.calls++
	return route.Path{
		Polyline: append([]models.Coord{origin}, waypoints...),
		Distance: 4200,
		Duration: 900,
	}, nil
}

func newTestServer(t *testing.T) (*Server, *stubRouter) {
	t.Helper()
	log := slog.Default()
	bus := feed.NewBus(nil)
	ledger := earnings.NewMemoryLedger()
	stats := earnings.NewMemoryStats()
	missions := storage.NewMemoryStore()
	router := &stubRouter{}

	s := NewServer(Deps{
		Missions:   missions,
		Presence:   presence.NewMemoryStore(),
		Bus:        bus,
		Acceptance: mission.NewAcceptance(missions, bus, stats, log),
		Engine:     route.NewEngine(router, time.Minute, log),
		Ledger:     ledger,
		Stats:      stats,
		Registry:   dispatch.NewRegistry(log),
		Logger:     log,
	})
	return s, router
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func createMission(t *testing.T, s *Server) models.Mission {
	t.Helper()
	w := doJSON(t, s, "POST", "/internal/missions", createMissionRequest{
		StoreName:       "Padaria Central",
		StoreCoord:      models.Coord{Lat: -23.5587, Lng: -46.6602},
		CustomerAddress: "Av Paulista 1000",
		CustomerCoord:   models.Coord{Lat: -23.5614, Lng: -46.6559},
		Earnings:        14.5,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create mission: %d %s", w.Code, w.Body.String())
	}
	var m models.Mission
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateMissionDerivesDeliveryDistance(t *testing.T) {
	s, _ := newTestServer(t)
	m := createMission(t, s)
	if m.Status != models.StatusPending || m.ID == "" {
		t.Fatalf("bad mission %+v", m)
	}
	if m.DeliveryDistance <= 0 {
		t.Fatalf("delivery distance not derived: %+v", m)
	}
}

func TestAcceptRaceSecondDriverConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	m := createMission(t, s)

	w := doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-a"})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-b"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["rejected"] != string(mission.AlreadyTaken) {
		t.Fatalf("wrong rejection %v", resp)
	}
}

func TestCompleteRecordsEarnings(t *testing.T) {
	s, _ := newTestServer(t)
	m := createMission(t, s)

	doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-a"})
	w := doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/complete", driverActionRequest{DriverID: "driver-a"})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "GET", "/api/v1/drivers/driver-a/balance", nil)
	var bal map[string]float64
	_ = json.Unmarshal(w.Body.Bytes(), &bal)
	if bal["balance"] != 14.5 {
		t.Fatalf("balance %v", bal)
	}
}

func TestCompleteByNonHolderConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	m := createMission(t, s)
	doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-a"})

	w := doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/complete", driverActionRequest{DriverID: "driver-b"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", w.Code)
	}
}

func TestLocationFlowAndStaleness(t *testing.T) {
	s, _ := newTestServer(t)

	// posting before going online must not write anything
	w := doJSON(t, s, "POST", "/api/v1/drivers/d1/locations", models.Coord{Lat: 1, Lng: 2})
	if w.Code != http.StatusConflict {
		t.Fatalf("offline location post: %d", w.Code)
	}

	if w := doJSON(t, s, "POST", "/api/v1/drivers/d1/online", nil); w.Code != http.StatusNoContent {
		t.Fatalf("online: %d", w.Code)
	}
	if w := doJSON(t, s, "POST", "/api/v1/drivers/d1/locations", models.Coord{Lat: -23.55, Lng: -46.63}); w.Code != http.StatusNoContent {
		t.Fatalf("location: %d", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/v1/drivers/d1/presence", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("presence: %d", w.Code)
	}
	var resp struct {
		Presence models.Presence `json:"presence"`
		Stale    bool            `json:"stale"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Presence.Online || resp.Stale {
		t.Fatalf("presence %+v stale=%v", resp.Presence, resp.Stale)
	}

	if w := doJSON(t, s, "POST", "/api/v1/drivers/d1/offline", nil); w.Code != http.StatusNoContent {
		t.Fatalf("offline: %d", w.Code)
	}
	if w := doJSON(t, s, "POST", "/api/v1/drivers/d1/locations", models.Coord{Lat: 0, Lng: 0}); w.Code != http.StatusConflict {
		t.Fatalf("post after offline must conflict, got %d", w.Code)
	}
}

func TestPhaseAdvanceAndRouteLegSwitch(t *testing.T) {
	s, router := newTestServer(t)
	m := createMission(t, s)

	doJSON(t, s, "POST", "/api/v1/drivers/driver-a/online", nil)
	doJSON(t, s, "POST", "/api/v1/drivers/driver-a/locations", models.Coord{Lat: -23.55, Lng: -46.63})
	doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-a"})

	w := doJSON(t, s, "GET", "/api/v1/drivers/driver-a/route", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("route: %d %s", w.Code, w.Body.String())
	}
	if router.calls != 1 {
		t.Fatalf("router calls %d", router.calls)
	}

	// advance through pickup; the remaining trip becomes a single leg
	for i := 0; i < 3; i++ {
		if w := doJSON(t, s, "POST", "/api/v1/drivers/driver-a/phase/advance", nil); w.Code != http.StatusOK {
			t.Fatalf("advance %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	w = doJSON(t, s, "GET", "/api/v1/drivers/driver-a/phase", nil)
	var ph map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &ph)
	if ph["phase"] != string(models.PhaseGoingToCustomer) {
		t.Fatalf("phase %v", ph)
	}

	doJSON(t, s, "GET", "/api/v1/drivers/driver-a/route", nil)
	if router.calls != 2 {
		t.Fatalf("expected recompute after leg change, calls=%d", router.calls)
	}
}

func TestRouteWithoutActiveMissionConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s, "POST", "/api/v1/drivers/d1/online", nil)
	doJSON(t, s, "POST", "/api/v1/drivers/d1/locations", models.Coord{Lat: -23.55, Lng: -46.63})
	if w := doJSON(t, s, "GET", "/api/v1/drivers/d1/route", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", w.Code)
	}
}

func TestCancelMissionEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	m := createMission(t, s)
	w := doJSON(t, s, "POST", fmt.Sprintf("/internal/missions/%s/cancel", m.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d", w.Code)
	}
	var out models.Mission
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Status != models.StatusCancelled {
		t.Fatalf("status %s", out.Status)
	}
	// the cancelled mission is no longer claimable
	if w := doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-a"}); w.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", w.Code)
	}
}

func TestDailyStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	m := createMission(t, s)
	doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/accept", driverActionRequest{DriverID: "driver-a"})
	doJSON(t, s, "POST", "/api/v1/missions/"+m.ID+"/complete", driverActionRequest{DriverID: "driver-a"})

	w := doJSON(t, s, "GET", "/api/v1/drivers/driver-a/stats", nil)
	var d models.DailyStats
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Accepted != 1 || d.Finished != 1 || d.Earnings != 14.5 {
		t.Fatalf("stats %+v", d)
	}
}

func TestMapOverlayDeterministicPerCell(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s, "POST", "/api/v1/drivers/d1/online", nil)
	doJSON(t, s, "POST", "/api/v1/drivers/d1/locations", models.Coord{Lat: -23.55, Lng: -46.63})

	first := doJSON(t, s, "GET", "/api/v1/drivers/d1/map/overlay", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("overlay: %d", first.Code)
	}
	// a sub-11m jitter lands in the same grid cell
	doJSON(t, s, "POST", "/api/v1/drivers/d1/locations", models.Coord{Lat: -23.550004, Lng: -46.630004})
	second := doJSON(t, s, "GET", "/api/v1/drivers/d1/map/overlay", nil)
	if first.Body.String() != second.Body.String() {
		t.Fatalf("overlay flickered within one cell")
	}
}

func TestPayoutNotConfigured(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, "POST", "/api/v1/drivers/d1/payouts", payoutRequest{Currency: "brl", Destination: "acct"})
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}
