package coordinator

import (
	"time"

	"github.com/banshee-data/pursuit/internal/config"
)

// Config holds replanning cadence, retry and staleness parameters.
type Config struct {
	RateHz             float64       // tick rate (default: 5)
	MaxRetries         int           // failed ticks before backing off (default: 3)
	Backoff            time.Duration // pause after MaxRetries failures (default: 1s)
	GridStaleAfter     time.Duration // default: 2s
	PoseStaleAfter     time.Duration // default: 2s
	TargetStaleAfter   time.Duration // default: 2s
	ArriveSizeFraction float64       // target size / frame size that ends pursuit (default: 0.4)
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		RateHz:             cfg.GetPlanRateHz(),
		MaxRetries:         cfg.GetPlanMaxRetries(),
		Backoff:            cfg.GetPlanBackoff(),
		GridStaleAfter:     cfg.GetGridStaleAfter(),
		PoseStaleAfter:     cfg.GetPoseStaleAfter(),
		TargetStaleAfter:   cfg.GetTargetStaleAfter(),
		ArriveSizeFraction: cfg.GetArriveSizeFraction(),
	}
}
