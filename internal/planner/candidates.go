package planner

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/units"
)

// Candidate is one goal cell considered during a planning pass.
type Candidate struct {
	Goal      grid.Cell
	OffsetDeg float64
	Distance  float64
	Path      Path
	Score     float64
}

// Reachable reports whether A* found a path to the goal.
func (c Candidate) Reachable() bool {
	return len(c.Path) > 0
}

// distances returns the sampled approach distances in ascending order.
func (cfg Config) distances() []float64 {
	if cfg.DistanceSteps <= 1 {
		return []float64{cfg.MinDistance}
	}
	return floats.Span(make([]float64, cfg.DistanceSteps), cfg.MinDistance, cfg.MaxDistance)
}

// TargetHeadingDeg returns the world heading toward a target seen at bearing,
// wrapped to [-180, 180).
func (cfg Config) TargetHeadingDeg(yawRad, bearing float64) float64 {
	return units.WrapDeg180(units.RadToDeg(yawRad) + bearing*cfg.BearingSpanDeg)
}

// Candidates generates goal cells around the target heading, ordered by
// offset then distance. Goals that are blocked, off the grid or unreachable
// are returned with an empty Path so callers can report them.
func (cfg Config) Candidates(g *grid.OccupancyGrid, pose grid.Pose, bearing float64) []Candidate {
	start := g.WorldToGrid(pose.X, pose.Y)
	heading := cfg.TargetHeadingDeg(pose.Theta, bearing)
	dists := cfg.distances()

	out := make([]Candidate, 0, len(cfg.AngleOffsetsDeg)*len(dists))
	for _, off := range cfg.AngleOffsetsDeg {
		theta := units.DegToRad(units.WrapDeg180(heading + off))
		for _, d := range dists {
			goal := g.WorldToGrid(pose.X+d*math.Cos(theta), pose.Y+d*math.Sin(theta))
			c := Candidate{Goal: goal, OffsetDeg: off, Distance: d, Score: math.Inf(1)}
			if g.IsFree(goal) {
				if p, ok := AStar(g, start, goal); ok {
					c.Path = p
					c.Score = float64(len(p)) + cfg.AngleWeight*math.Abs(off)
				}
			}
			out = append(out, c)
		}
	}
	return out
}

// Best returns the reachable candidate with the lowest score. On equal
// scores the earliest in generation order wins.
func Best(cands []Candidate) (Candidate, bool) {
	best := -1
	for i, c := range cands {
		if !c.Reachable() {
			continue
		}
		if best < 0 || c.Score < cands[best].Score {
			best = i
		}
	}
	if best < 0 {
		return Candidate{}, false
	}
	return cands[best], true
}
