package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/quantumflow/aichat/pkg/relay"
	"github.com/quantumflow/aichat/pkg/store"
)

// NewHealthHandler reports service liveness plus the live conversation and
// client counts.
func NewHealthHandler(st *store.Store, rl *relay.Relay, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":              "healthy",
			"service":             "aichat",
			"version":             Version,
			"activeConversations": st.Len(),
			"connectedClients":    rl.ConnectedClients(),
			"uptimeSeconds":       int64(time.Since(started).Seconds()),
			"timestamp":           time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// NewStoreStatsHandler reports the session store contents.
func NewStoreStatsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, st.Stats())
	}
}

// NewMetricsHandler reports process-level metrics: uptime, goroutine count,
// and heap usage, alongside the store counters.
func NewMetricsHandler(st *store.Store, rl *relay.Relay, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		stats := st.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"uptimeSeconds":    int64(time.Since(started).Seconds()),
			"goroutines":       runtime.NumGoroutine(),
			"heapAllocBytes":   mem.HeapAlloc,
			"heapInuseBytes":   mem.HeapInuse,
			"conversations":    stats.Conversations,
			"messages":         stats.Messages,
			"connectedClients": rl.ConnectedClients(),
			"lastUpdated":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}
