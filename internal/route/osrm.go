package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Leg is one routed segment of the remaining trip.
type Leg struct {
	Distance float64 // meters
	Duration float64 // seconds
	End      models.Coord
}

// Path is the routed result for the full remaining trip: distance and
// duration are summed over all legs, never just the first one.
type Path struct {
	Polyline []models.Coord
	Distance float64
	Duration float64
	Legs     []Leg
}

// Router is the interface the engine consumes; the OSRM client is the
// production implementation.
type Router interface {
	Route(ctx context.Context, origin models.Coord, waypoints []models.Coord) (Path, error)
}

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Route queries OSRM /route with the full geometry. Waypoints beyond
// the first become intermediate stops (driver -> store -> customer).
func (o *OSRMClient) Route(ctx context.Context, origin models.Coord, waypoints []models.Coord) (Path, error) {
	if len(waypoints) == 0 {
		return Path{}, fmt.Errorf("osrm: no waypoints")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%.6f,%.6f", origin.Lng, origin.Lat)
	for _, w := range waypoints {
		fmt.Fprintf(&sb, ";%.6f,%.6f", w.Lng, w.Lat)
	}
	url := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", o.Endpoint, sb.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Path{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Path{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Legs []struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Path{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Path{}, fmt.Errorf("osrm no route: %v", out.Code)
	}

	r := out.Routes[0]
	p := Path{}
	for _, c := range r.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		// geojson is lng,lat
		p.Polyline = append(p.Polyline, models.Coord{Lat: c[1], Lng: c[0]})
	}
	for i, leg := range r.Legs {
		l := Leg{Distance: leg.Distance, Duration: leg.Duration, End: waypoints[min(i, len(waypoints)-1)]}
		p.Legs = append(p.Legs, l)
		p.Distance += leg.Distance
		p.Duration += leg.Duration
	}
	if len(r.Legs) == 0 {
		p.Distance = r.Distance
		p.Duration = r.Duration
	}
	return p, nil
}
