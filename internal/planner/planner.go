package planner

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pursuit/internal/grid"
)

var (
	// ErrTargetUnknown means no current detection is available.
	ErrTargetUnknown = errors.New("target unknown")
	// ErrRobotOutOfBounds means the pose maps outside the grid.
	ErrRobotOutOfBounds = errors.New("robot outside grid")
	// ErrNoCandidate means no candidate goal was free and reachable.
	ErrNoCandidate = errors.New("no reachable candidate")
	// ErrUnsafePath means the best path grazes an obstacle.
	ErrUnsafePath = errors.New("best path fails clearance check")
)

// Target is the latest detection from the vision collaborator.
type Target struct {
	Detected  bool    `json:"detected"`
	Bearing   float64 `json:"x"` // normalized horizontal offset in [-1, 1]
	Size      float64 `json:"size"`
	FrameSize float64 `json:"frame_size"`
}

// SizeFraction returns Size relative to FrameSize, or 0 when the frame size is unknown.
func (t Target) SizeFraction() float64 {
	if t.FrameSize <= 0 {
		return 0
	}
	return t.Size / t.FrameSize
}

// Plan is a publishable path.
type Plan struct {
	Cells     Path
	Points    []grid.Point
	Goal      grid.Cell
	OffsetDeg float64
	Distance  float64
	Score     float64
	RawLength int // waypoints before simplification
}

// Planner runs one planning pass per call. It holds no mutable state and is
// safe for concurrent use.
type Planner struct {
	cfg Config
}

// New creates a planner.
func New(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Config returns the planner's configuration.
func (p *Planner) Config() Config {
	return p.cfg
}

// Plan picks the best candidate toward target, checks its clearance and
// simplifies it. A nil target or one not detected yields ErrTargetUnknown.
func (p *Planner) Plan(g *grid.OccupancyGrid, pose grid.Pose, target *Target) (Plan, error) {
	if target == nil || !target.Detected {
		return Plan{}, ErrTargetUnknown
	}
	start := g.WorldToGrid(pose.X, pose.Y)
	if !g.InBounds(start) {
		return Plan{}, fmt.Errorf("%w: pose (%.2f, %.2f) -> %v", ErrRobotOutOfBounds, pose.X, pose.Y, start)
	}

	best, ok := Best(p.cfg.Candidates(g, pose, target.Bearing))
	if !ok {
		return Plan{}, fmt.Errorf("%w: start %v bearing %.2f", ErrNoCandidate, start, target.Bearing)
	}
	if !IsSafe(g, best.Path) {
		return Plan{}, fmt.Errorf("%w: goal %v", ErrUnsafePath, best.Goal)
	}

	cells := Simplify(best.Path, p.cfg.MaxWaypoints)
	points := make([]grid.Point, len(cells))
	for i, c := range cells {
		points[i] = g.GridToWorld(c)
	}
	return Plan{
		Cells:     cells,
		Points:    points,
		Goal:      best.Goal,
		OffsetDeg: best.OffsetDeg,
		Distance:  best.Distance,
		Score:     best.Score,
		RawLength: len(best.Path),
	}, nil
}
