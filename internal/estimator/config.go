package estimator

import (
	"time"

	"github.com/banshee-data/pursuit/internal/config"
)

// Config holds wheel geometry and loop parameters.
type Config struct {
	WheelDiameterMM float64
	WheelBaseMM     float64 // reported only; heading comes from the IMU
	RateHz          float64
	Publish         string // config.EstimateOdometric or config.EstimateInertial
	IMUStaleAfter   time.Duration
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WheelDiameterMM: cfg.GetWheelDiameterMM(),
		WheelBaseMM:     cfg.GetWheelBaseMM(),
		RateHz:          cfg.GetEstimatorRateHz(),
		Publish:         cfg.GetPublishEstimate(),
		IMUStaleAfter:   cfg.GetIMUStaleAfter(),
	}
}
