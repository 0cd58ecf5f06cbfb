package presence

import (
	"testing"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

func TestStalenessIgnoresOnlineFlag(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name  string
		p     models.Presence
		stale bool
	}{
		{"fresh online", models.Presence{Online: true, LastUpdate: now.Add(-time.Minute)}, false},
		{"fresh offline", models.Presence{Online: false, LastUpdate: now.Add(-time.Minute)}, false},
		{"stale but flagged online", models.Presence{Online: true, LastUpdate: now.Add(-6 * time.Minute)}, true},
		{"exactly at threshold", models.Presence{Online: true, LastUpdate: now.Add(-5 * time.Minute)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Stale(now); got != tc.stale {
				t.Fatalf("Stale()=%v, want %v", got, tc.stale)
			}
		})
	}
}
