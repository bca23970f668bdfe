package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/config"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

// ApproachConfig controls ApproachUntilClose.
type ApproachConfig struct {
	StopDistance float64 // centre depth that ends the approach, m (default: 0.08)
	Speed        float64 // forward wheel speed, m/s (default: 0.3)
	RateHz       float64 // depth checks per second (default: 30)
}

// ApproachConfigFromTuning builds an ApproachConfig from tuning values.
func ApproachConfigFromTuning(cfg *config.TuningConfig) ApproachConfig {
	return ApproachConfig{
		StopDistance: cfg.GetApproachStopDistanceM(),
		Speed:        cfg.GetApproachSpeed(),
		RateHz:       cfg.GetApproachRateHz(),
	}
}

// ApproachUntilClose drives straight ahead until the centre of the depth
// image is within cfg.StopDistance, then stops the motors and returns the
// final depth. Without a usable depth frame the drive holds still. Motors are
// stopped on every return path.
func ApproachUntilClose(ctx context.Context, act actuator.Actuator, src Source, cfg ApproachConfig, clock timeutil.Clock) (float64, error) {
	if _, err := src.Frame(Depth); errors.Is(err, ErrUnsupportedKind) {
		return 0, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if err := act.StartMotors(); err != nil {
		return 0, fmt.Errorf("start motors: %w", err)
	}
	defer func() {
		if err := act.StopMotors(); err != nil {
			logf("stop motors: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		depth   float64
		arrived bool
		moving  bool
		failure error
	)
	setSpeed := func(v float64) bool {
		if err := act.SetMotorSpeeds(v, v); err != nil {
			failure = fmt.Errorf("set motor speeds: %w", err)
			cancel()
			return false
		}
		moving = v != 0
		return true
	}

	period := timeutil.PeriodFromHz(cfg.RateHz, 33*time.Millisecond)
	err := timeutil.RunFixedRate(ctx, clock, period, func(time.Time) {
		d, _, err := DepthMeters(src)
		if err != nil {
			if moving {
				logf("holding: %v", err)
				setSpeed(0)
			}
			return
		}
		depth = d
		if d <= cfg.StopDistance {
			logf("object at %.2fm, stopping", d)
			arrived = true
			cancel()
			return
		}
		if !moving {
			logf("approaching at %.2f m/s, depth %.2fm", cfg.Speed, d)
			setSpeed(cfg.Speed)
		}
	})
	switch {
	case arrived:
		return depth, nil
	case failure != nil:
		return depth, failure
	}
	return depth, err
}
