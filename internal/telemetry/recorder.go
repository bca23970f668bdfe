package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pursuit/internal/bump"
	"github.com/banshee-data/pursuit/internal/estimator"
	"github.com/banshee-data/pursuit/internal/planner"
)

// DefaultPoseInterval thins pose rows; the estimator runs much faster.
const DefaultPoseInterval = 200 * time.Millisecond

// Recorder appends rows for one run. It is safe for concurrent use by the
// estimator, coordinator and bump loops.
type Recorder struct {
	store        *Store
	runID        string
	PoseInterval time.Duration

	mu       sync.Mutex
	lastPose time.Time
}

// StartRun inserts a new run row and returns its recorder.
func (s *Store) StartRun(at time.Time, note string) (*Recorder, error) {
	id := uuid.NewString()
	if _, err := s.Exec(`INSERT INTO runs (run_id, started_ns, note) VALUES (?, ?, ?)`,
		id, at.UnixNano(), note); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	logf("run %s started", id)
	return &Recorder{store: s, runID: id, PoseInterval: DefaultPoseInterval}, nil
}

// RunID identifies the run.
func (r *Recorder) RunID() string { return r.runID }

// Finish stamps the run's end time.
func (r *Recorder) Finish(at time.Time) error {
	if _, err := r.store.Exec(`UPDATE runs SET finished_ns = ? WHERE run_id = ?`, at.UnixNano(), r.runID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordSnapshot stores an estimator snapshot unless one was stored less
// than PoseInterval ago. It reports whether a row was written.
func (r *Recorder) RecordSnapshot(s estimator.Snapshot) (bool, error) {
	r.mu.Lock()
	if !r.lastPose.IsZero() && s.UpdatedAt.Sub(r.lastPose) < r.PoseInterval {
		r.mu.Unlock()
		return false, nil
	}
	r.lastPose = s.UpdatedAt
	r.mu.Unlock()

	p := s.Position
	_, err := r.store.Exec(`INSERT INTO poses (
			run_id, at_ns, inertial_x, inertial_y, odometric_x, odometric_y, theta,
			left_mps, right_mps, pitch_deg, roll_deg, yaw_deg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, s.UpdatedAt.UnixNano(),
		p.Inertial.X, p.Inertial.Y, p.Odometric.X, p.Odometric.Y, p.Odometric.Theta,
		s.Velocity.Left, s.Velocity.Right,
		s.Orientation.Pitch, s.Orientation.Roll, s.Orientation.Yaw,
	)
	if err != nil {
		return false, fmt.Errorf("record pose: %w", err)
	}
	return true, nil
}

// RecordPlan stores a published plan.
func (r *Recorder) RecordPlan(p planner.Plan, at time.Time) error {
	path, err := json.Marshal(p.Points)
	if err != nil {
		return fmt.Errorf("encode plan path: %w", err)
	}
	_, err = r.store.Exec(`INSERT INTO plans (
			run_id, at_ns, goal_row, goal_col, offset_deg, distance_m, score, raw_length, path_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, at.UnixNano(), p.Goal.Row, p.Goal.Col, p.OffsetDeg, p.Distance, p.Score, p.RawLength, string(path),
	)
	if err != nil {
		return fmt.Errorf("record plan: %w", err)
	}
	return nil
}

// RecordBump stores a bump event.
func (r *Recorder) RecordBump(e bump.Event) error {
	_, err := r.store.Exec(`INSERT INTO bump_events (
			run_id, at_ns, error_rate, accel_error_rate, reversed_to
		) VALUES (?, ?, ?, ?, ?)`,
		r.runID, e.At.UnixNano(), e.ErrorRate, e.AccelErrorRate, e.Reversed,
	)
	if err != nil {
		return fmt.Errorf("record bump: %w", err)
	}
	return nil
}

// Run summarizes a recorded run.
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Note       string     `json:"note,omitempty"`
	Poses      int        `json:"poses"`
	Plans      int        `json:"plans"`
	Bumps      int        `json:"bumps"`
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	rows, err := s.Query(`SELECT r.run_id, r.started_ns, r.finished_ns, r.note,
			(SELECT COUNT(*) FROM poses p WHERE p.run_id = r.run_id),
			(SELECT COUNT(*) FROM plans p WHERE p.run_id = r.run_id),
			(SELECT COUNT(*) FROM bump_events b WHERE b.run_id = r.run_id)
		FROM runs r ORDER BY r.started_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Note, &run.Poses, &run.Plans, &run.Bumps); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// BumpEvents returns a run's bump events in time order.
func (s *Store) BumpEvents(runID string) ([]bump.Event, error) {
	rows, err := s.Query(`SELECT at_ns, error_rate, accel_error_rate, reversed_to
		FROM bump_events WHERE run_id = ? ORDER BY at_ns`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []bump.Event
	for rows.Next() {
		var (
			e  bump.Event
			at int64
		)
		if err := rows.Scan(&at, &e.ErrorRate, &e.AccelErrorRate, &e.Reversed); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// PoseTrack returns a run's recorded odometric and inertial positions in
// time order.
func (s *Store) PoseTrack(runID string) ([]estimator.Snapshot, error) {
	rows, err := s.Query(`SELECT at_ns, inertial_x, inertial_y, odometric_x, odometric_y, theta,
			left_mps, right_mps, pitch_deg, roll_deg, yaw_deg
		FROM poses WHERE run_id = ? ORDER BY at_ns`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var track []estimator.Snapshot
	for rows.Next() {
		var (
			s  estimator.Snapshot
			at int64
		)
		p := &s.Position
		if err := rows.Scan(&at, &p.Inertial.X, &p.Inertial.Y, &p.Odometric.X, &p.Odometric.Y, &p.Odometric.Theta,
			&s.Velocity.Left, &s.Velocity.Right, &s.Orientation.Pitch, &s.Orientation.Roll, &s.Orientation.Yaw); err != nil {
			return nil, err
		}
		p.Inertial.Theta = p.Odometric.Theta
		s.UpdatedAt = time.Unix(0, at).UTC()
		track = append(track, s)
	}
	return track, rows.Err()
}

// PlanCount counts a run's published plans.
func (s *Store) PlanCount(runID string) (int, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM plans WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// HasRun reports whether runID was ever started.
func (s *Store) HasRun(runID string) (bool, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&n)
	return n > 0, err
}
