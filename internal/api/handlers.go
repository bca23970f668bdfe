package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pursuit/internal/bump"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/coordinator"
	"github.com/banshee-data/pursuit/internal/estimator"
	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/httputil"
	"github.com/banshee-data/pursuit/internal/version"
	"github.com/banshee-data/pursuit/internal/vision"
)

func unavailable(w http.ResponseWriter, what string) {
	httputil.ServiceUnavailable(w, what+" not running")
}

type bumpStatus struct {
	Desired float64 `json:"desired_velocity"`
	Bumps   uint64  `json:"bumps"`
}

type statusResponse struct {
	Version     string              `json:"version"`
	GitSHA      string              `json:"git_sha"`
	Coordinator *coordinator.Status `json:"coordinator,omitempty"`
	Estimator   *estimator.Snapshot `json:"estimator,omitempty"`
	Bump        *bumpStatus         `json:"bump,omitempty"`
	Bus         *bus.Stats          `json:"bus,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{Version: version.Version, GitSHA: version.GitSHA}
	if s.Coordinator != nil {
		st := s.Coordinator.Status()
		resp.Coordinator = &st
	}
	if s.Estimator != nil {
		snap := s.Estimator.Snapshot()
		resp.Estimator = &snap
	}
	if s.Bump != nil {
		resp.Bump = &bumpStatus{Desired: s.Bump.Desired(), Bumps: s.Bump.Bumps()}
	}
	if s.Bus != nil {
		stats := s.Bus.Stats()
		resp.Bus = &stats
	}
	httputil.WriteJSONOK(w, resp)
}

type planResponse struct {
	State     string       `json:"state"`
	Cells     [][2]int     `json:"path_rc"`
	Points    []grid.Point `json:"path_xy"`
	Goal      grid.Cell    `json:"goal"`
	OffsetDeg float64      `json:"offset_deg"`
	Distance  float64      `json:"distance_m"`
	Score     float64      `json:"score"`
}

func (s *Server) showPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Coordinator == nil {
		unavailable(w, "coordinator")
		return
	}
	st := s.Coordinator.Status()
	if st.Plan == nil {
		httputil.NotFound(w, "no current plan")
		return
	}
	p := st.Plan
	resp := planResponse{
		State:     st.State,
		Cells:     make([][2]int, len(p.Cells)),
		Points:    p.Points,
		Goal:      p.Goal,
		OffsetDeg: p.OffsetDeg,
		Distance:  p.Distance,
		Score:     p.Score,
	}
	for i, c := range p.Cells {
		resp.Cells[i] = [2]int{c.Row, c.Col}
	}
	httputil.WriteJSONOK(w, resp)
}

// lastSamples parses ?n= and returns at most that many trailing samples.
func lastSamples(r *http.Request, trace []bump.Sample) ([]bump.Sample, error) {
	q := r.URL.Query().Get("n")
	if q == "" {
		return trace, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("invalid 'n' parameter")
	}
	if n < len(trace) {
		trace = trace[len(trace)-n:]
	}
	return trace, nil
}

func (s *Server) showBumpTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Bump == nil {
		unavailable(w, "bump detector")
		return
	}
	trace, err := lastSamples(r, s.Bump.Trace())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if trace == nil {
		trace = []bump.Sample{}
	}
	httputil.WriteJSONOK(w, trace)
}

type desiredRequest struct {
	Velocity *float64 `json:"velocity"`
}

func (s *Server) setDesiredVelocity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Bump == nil {
		unavailable(w, "bump detector")
		return
	}
	var req desiredRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.Velocity == nil || math.IsNaN(*req.Velocity) || math.IsInf(*req.Velocity, 0) {
		httputil.BadRequest(w, "velocity is required")
		return
	}
	if s.MaxSpeed > 0 && math.Abs(*req.Velocity) > s.MaxSpeed {
		httputil.BadRequest(w, fmt.Sprintf("velocity exceeds %.2f m/s", s.MaxSpeed))
		return
	}
	s.Bump.SetDesiredVelocity(*req.Velocity)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]float64{"velocity": *req.Velocity})
}

func (s *Server) showDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Vision == nil {
		unavailable(w, "vision source")
		return
	}
	d, at, err := vision.DepthMeters(s.Vision)
	switch {
	case errors.Is(err, vision.ErrUnsupportedKind):
		httputil.NotFound(w, err.Error())
		return
	case errors.Is(err, vision.ErrNoFrame), errors.Is(err, vision.ErrStaleFrame):
		httputil.ServiceUnavailable(w, err.Error())
		return
	case errors.Is(err, vision.ErrBadDepthFrame):
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"depth_m":  d,
		"frame_at": at.Format(time.RFC3339Nano),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Telemetry == nil {
		unavailable(w, "telemetry")
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	runs, err := s.Telemetry.Runs(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

type trackResponse struct {
	RunID string               `json:"run_id"`
	Plans int                  `json:"plans"`
	Bumps []bump.Event         `json:"bumps"`
	Poses []estimator.Snapshot `json:"poses"`
}

func (s *Server) showRunTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Telemetry == nil {
		unavailable(w, "telemetry")
		return
	}
	id := r.URL.Query().Get("run_id")
	if id == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}
	ok, err := s.Telemetry.HasRun(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to look up run: %v", err))
		return
	}
	if !ok {
		httputil.NotFound(w, "unknown run")
		return
	}
	poses, err := s.Telemetry.PoseTrack(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load poses: %v", err))
		return
	}
	bumps, err := s.Telemetry.BumpEvents(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load bumps: %v", err))
		return
	}
	plans, err := s.Telemetry.PlanCount(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count plans: %v", err))
		return
	}
	if poses == nil {
		poses = []estimator.Snapshot{}
	}
	if bumps == nil {
		bumps = []bump.Event{}
	}
	httputil.WriteJSONOK(w, trackResponse{RunID: id, Plans: plans, Bumps: bumps, Poses: poses})
}
