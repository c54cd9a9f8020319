// Package adapter connects a channel to external monitoring systems.
package adapter

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/plugin-ctc/api"
)

const maxGoroutines = 256

// NewHealthHandler exposes h on /live and /ready. The process is live while
// its region is calibrated and ready while no transfer holds the region.
func NewHealthHandler(h api.Health) healthcheck.Handler {
	hc := healthcheck.NewHandler()
	hc.AddLivenessCheck("calibrated", h.Calibrated)
	hc.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	hc.AddReadinessCheck("idle", h.Idle)
	return hc
}

// Mount registers the health endpoints on mux.
func Mount(mux *http.ServeMux, hc healthcheck.Handler) {
	mux.HandleFunc("/live", hc.LiveEndpoint)
	mux.HandleFunc("/ready", hc.ReadyEndpoint)
}
