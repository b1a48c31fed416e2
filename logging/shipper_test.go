package logging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestShipperForwardsWarningsOnly(t *testing.T) {
	var (
		mu      sync.Mutex
		shipped []shippedEntry
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e shippedEntry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode shipped entry: %v", err)
		}
		mu.Lock()
		shipped = append(shipped, e)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	logger := New(DEBUG)
	shipper := NewShipper(logger, srv.URL+"/api/log/frontend", srv.Client(), WARN)

	logger.Info("tables", "loaded", nil)
	logger.Warn("tables", "slow fetch", map[string]any{"names": "courses"})
	logger.Error("api", "log endpoint down", nil, map[string]any{"path": "/api/log/frontend"})
	shipper.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(shipped) != 1 {
		t.Fatalf("expected 1 shipped entry, got %d: %+v", len(shipped), shipped)
	}
	got := shipped[0]
	if got.Level != "warn" || got.Message != "slow fetch" || got.Data["category"] != "tables" {
		t.Fatalf("unexpected shipped entry: %+v", got)
	}
}
