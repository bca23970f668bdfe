package bump

import (
	"time"

	"github.com/banshee-data/pursuit/internal/config"
)

// Config holds the detector's loop rate and trigger thresholds.
type Config struct {
	RateHz          float64       // loop rate (default: 200)
	Threshold       float64       // |error_rate| trigger, m/s (default: 0.2)
	AccelThreshold  float64       // |acceleration_error_rate| trigger, m/s² (default: 0.2)
	WindowSize      int           // error samples averaged into error_rate (default: 100)
	AccelWindowSize int           // derivatives averaged into acceleration_error_rate (default: 100)
	Stabilization   time.Duration // errors ignored after a velocity change (default: 1s)
	DesiredVelocity float64       // initial wheel speed, m/s (default: 0.5)
	TraceLength     int           // samples kept for Trace and PlotTrace (default: 2000)
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		RateHz:          cfg.GetBumpRateHz(),
		Threshold:       cfg.GetBumpThreshold(),
		AccelThreshold:  cfg.GetBumpAccelThreshold(),
		WindowSize:      cfg.GetBumpWindowSize(),
		AccelWindowSize: cfg.GetBumpAccelWindowSize(),
		Stabilization:   cfg.GetBumpStabilization(),
		DesiredVelocity: cfg.GetBumpDesiredVelocity(),
		TraceLength:     cfg.GetBumpTraceLength(),
	}
}
