package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pursuit/internal/bump"
	"github.com/banshee-data/pursuit/internal/estimator"
	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/planner"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reapplying is a no-op.
	require.NoError(t, s.MigrateUp())

	for _, table := range []string{"runs", "poses", "plans", "bump_events"} {
		var name string
		err := s.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	s, err := Open(path)
	require.NoError(t, err)
	rec, err := s.StartRun(t0, "first")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rec.RunID(), runs[0].ID)
	assert.Equal(t, path, s.Path())
}

func TestRecorder_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.StartRun(t0, "sim")
	require.NoError(t, err)
	assert.Len(t, rec.RunID(), 36)

	snap := estimator.Snapshot{
		Position: estimator.Position{
			Inertial:  grid.Pose{X: 0.1, Y: 0.2, Theta: 0.5},
			Odometric: grid.Pose{X: 0.3, Y: 0.4, Theta: 0.5},
		},
		Velocity:    estimator.Velocity{Left: 0.5, Right: 0.45},
		Orientation: estimator.Orientation{Pitch: 1, Roll: 2, Yaw: 28.6},
		UpdatedAt:   t0,
	}
	wrote, err := rec.RecordSnapshot(snap)
	require.NoError(t, err)
	assert.True(t, wrote)

	// Thinned: a second snapshot inside the interval is skipped.
	snap2 := snap
	snap2.UpdatedAt = t0.Add(50 * time.Millisecond)
	wrote, err = rec.RecordSnapshot(snap2)
	require.NoError(t, err)
	assert.False(t, wrote)

	snap3 := snap
	snap3.UpdatedAt = t0.Add(DefaultPoseInterval)
	wrote, err = rec.RecordSnapshot(snap3)
	require.NoError(t, err)
	assert.True(t, wrote)

	track, err := s.PoseTrack(rec.RunID())
	require.NoError(t, err)
	require.Len(t, track, 2)
	assert.Equal(t, snap, track[0])
	assert.Equal(t, snap3.UpdatedAt, track[1].UpdatedAt)

	plan := planner.Plan{
		Cells:     planner.Path{{Row: 12, Col: 12}, {Row: 12, Col: 16}},
		Points:    []grid.Point{{X: 1.25, Y: 1.25}, {X: 1.65, Y: 1.25}},
		Goal:      grid.Cell{Row: 12, Col: 16},
		OffsetDeg: 0,
		Distance:  0.4,
		Score:     5,
		RawLength: 5,
	}
	require.NoError(t, rec.RecordPlan(plan, t0.Add(time.Second)))
	n, err := s.PlanCount(rec.RunID())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var pathJSON string
	require.NoError(t, s.QueryRow(`SELECT path_json FROM plans WHERE run_id = ?`, rec.RunID()).Scan(&pathJSON))
	var points []grid.Point
	require.NoError(t, json.Unmarshal([]byte(pathJSON), &points))
	assert.Equal(t, plan.Points, points)

	ev := bump.Event{At: t0.Add(2 * time.Second), ErrorRate: -0.21, AccelErrorRate: -0.4, Reversed: -0.5}
	require.NoError(t, rec.RecordBump(ev))
	events, err := s.BumpEvents(rec.RunID())
	require.NoError(t, err)
	assert.Equal(t, []bump.Event{ev}, events)

	require.NoError(t, rec.Finish(t0.Add(time.Minute)))
	runs, err := s.Runs(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "sim", run.Note)
	assert.Equal(t, t0, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, t0.Add(time.Minute), *run.FinishedAt)
	assert.Equal(t, 2, run.Poses)
	assert.Equal(t, 1, run.Plans)
	assert.Equal(t, 1, run.Bumps)
}

func TestRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	first, err := s.StartRun(t0, "")
	require.NoError(t, err)
	second, err := s.StartRun(t0.Add(time.Hour), "")
	require.NoError(t, err)

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID(), runs[0].ID)
	assert.Equal(t, first.RunID(), runs[1].ID)
	assert.Nil(t, runs[0].FinishedAt)

	runs, err = s.Runs(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecorder_RejectsUnknownRun(t *testing.T) {
	s := openTestStore(t)
	rec := &Recorder{store: s, runID: "missing"}
	err := rec.RecordBump(bump.Event{At: t0})
	assert.Error(t, err, "foreign key enforced")
}

func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_Runs(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.StartRun(t0, "admin")
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/runs"))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	var runs []Run
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rec.RunID(), runs[0].ID)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/"))
	assert.Contains(t, w.Body.String(), "tailsql/")
}
