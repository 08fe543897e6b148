package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yoggys/eventapi"
)

// statusSource is the part of the client the HTTP server reports on.
type statusSource interface {
	State() eventapi.State
	SessionID() string
	Subscriptions() []eventapi.Subscription
}

// newRouter serves /metrics from reg and /healthz from the client state.
func newRouter(reg *prometheus.Registry, client statusSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := client.State()

		subs := client.Subscriptions()
		names := make([]string, 0, len(subs))
		for _, s := range subs {
			names = append(names, s.String())
		}

		status := http.StatusOK
		if state != eventapi.StateConnected {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":         state.String(),
			"session_id":    client.SessionID(),
			"subscriptions": names,
		})
	})

	return r
}
