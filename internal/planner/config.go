package planner

import (
	"sort"

	"github.com/banshee-data/pursuit/internal/config"
)

// Config holds candidate generation and simplification parameters.
type Config struct {
	MinDistance     float64   // nearest candidate goal, meters (default: 0.4)
	MaxDistance     float64   // farthest candidate goal, meters (default: 1.2)
	DistanceSteps   int       // distances sampled in [Min, Max] (default: 5)
	AngleOffsetsDeg []float64 // offsets around the target heading (default: -15, 0, 15)
	BearingSpanDeg  float64   // heading change for bearing ±1 (default: 45)
	AngleWeight     float64   // score penalty per degree of offset (default: 0.5)
	MaxWaypoints    int       // simplification limit (default: 4)
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults file.
// Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
// Offsets are sorted ascending; candidate order and tie-breaks depend on it.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	offsets := cfg.GetPlannerAngleOffsetsDeg()
	sort.Float64s(offsets)
	return Config{
		MinDistance:     cfg.GetPlannerMinDistance(),
		MaxDistance:     cfg.GetPlannerMaxDistance(),
		DistanceSteps:   cfg.GetPlannerDistanceSteps(),
		AngleOffsetsDeg: offsets,
		BearingSpanDeg:  cfg.GetPlannerBearingSpanDeg(),
		AngleWeight:     cfg.GetPlannerAngleWeight(),
		MaxWaypoints:    cfg.GetPlannerMaxWaypoints(),
	}
}
