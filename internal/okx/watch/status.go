package watch

import (
	"encoding/json"
	"net/http"

	"pricewatch/internal/okx/tracker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Status is the read-only snapshot exposed to operator tooling.
type Status struct {
	ConnectionState   string                         `json:"connection_state"`
	SubscribedSymbols []string                       `json:"subscribed_symbols"`
	ReconnectAttempts int                            `json:"reconnect_attempts"`
	Symbols           map[string]tracker.SymbolState `json:"symbols"`
	ActiveAlerts      int                            `json:"active_alerts"`
}

// Status assembles a point-in-time snapshot of the monitor.
func (w *Watcher) Status() Status {
	return Status{
		ConnectionState:   w.client.State().String(),
		SubscribedSymbols: w.client.Subscriptions(),
		ReconnectAttempts: w.client.Attempts(),
		Symbols:           w.tracker.Snapshot(),
		ActiveAlerts:      w.deduper.ActiveCount(),
	}
}

func (w *Watcher) serveStatus(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(w.Status()); err != nil {
			w.logger.Warn("failed to write status response", zap.Error(err))
		}
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{}))

	w.logger.Info("status server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		w.logger.Error("status server failed", zap.Error(err))
	}
}
