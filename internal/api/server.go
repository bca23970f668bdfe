// Package api serves the robot's status, current plan, bump trace and depth
// readings over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pursuit/internal/bump"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/coordinator"
	"github.com/banshee-data/pursuit/internal/estimator"
	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/telemetry"
	"github.com/banshee-data/pursuit/internal/vision"
)

var logf = monitoring.Component("api")

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// StatusSource reports the replanning state.
type StatusSource interface {
	Status() coordinator.Status
}

// SnapshotSource reports the latest pose estimates.
type SnapshotSource interface {
	Snapshot() estimator.Snapshot
}

// GridSource holds the most recent occupancy grid.
type GridSource interface {
	Latest() (grid.Snapshot, bool)
}

// BumpControl is the bump detector as seen by the API.
type BumpControl interface {
	SetDesiredVelocity(v float64)
	Desired() float64
	Bumps() uint64
	Trace() []bump.Sample
}

// Server wires HTTP handlers to the running components. Any field may be
// nil; its endpoints then answer 503.
type Server struct {
	Coordinator StatusSource
	Estimator   SnapshotSource
	Grid        GridSource
	Bump        BumpControl
	Vision      vision.Source
	Bus         bus.Bus
	Telemetry   *telemetry.Store

	// MaxSpeed bounds speeds accepted by the desired-velocity endpoint.
	MaxSpeed float64
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns a mux with every API route registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/plan", s.showPlan)
	mux.HandleFunc("/api/grid/chart", s.showGridChart)
	mux.HandleFunc("/api/bump/trace", s.showBumpTrace)
	mux.HandleFunc("/api/bump/chart", s.showBumpChart)
	mux.HandleFunc("/api/bump/desired", s.setDesiredVelocity)
	mux.HandleFunc("/api/vision/depth", s.showDepth)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/track", s.showRunTrack)
	return mux
}
