// Package estimator tracks the robot pose two ways: by integrating IMU
// acceleration and by wheel odometry. The two estimates are never merged;
// consumers pick the one they trust.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/config"
	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/timeutil"
	"github.com/banshee-data/pursuit/internal/units"
)

var logf = monitoring.Component("estimator")

var errNoSensors = errors.New("no sensors attached")

// Odometer reads absolute wheel position (turns) and speed (RPM).
// actuator.Actuator satisfies it.
type Odometer interface {
	PosVel(w actuator.Wheel) (turns, rpm float64, err error)
}

// Position holds both pose estimates.
type Position struct {
	Inertial  grid.Pose `json:"inertial"`
	Odometric grid.Pose `json:"odometric"`
}

// Velocity holds per-wheel linear speed in m/s.
type Velocity struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Orientation is the IMU attitude in degrees.
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Snapshot is the estimator state after the last successful step.
type Snapshot struct {
	Position    Position    `json:"position"`
	Velocity    Velocity    `json:"velocity"`
	Orientation Orientation `json:"orientation"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Estimator integrates wheel and IMU readings. Update and Step must be
// called from one goroutine; Snapshot is safe from any.
type Estimator struct {
	cfg   Config
	circ  float64
	odo   Odometer
	imu   IMU
	clock timeutil.Clock

	onSnapshot func(Snapshot)

	mu        sync.RWMutex
	inertial  r2.Vec
	odometric r2.Vec
	vel       r2.Vec // world-frame velocity of the inertial estimate
	accel     r2.Vec // world-frame acceleration at the previous update
	snap      Snapshot

	seeded    bool
	lastTurns [2]float64
	lastTime  time.Time
}

// New creates an estimator at the origin. odo and imu may be nil when only
// Update is used.
func New(cfg Config, odo Odometer, imu IMU, clock timeutil.Clock) *Estimator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Estimator{
		cfg:   cfg,
		circ:  units.WheelCircumference(cfg.WheelDiameterMM),
		odo:   odo,
		imu:   imu,
		clock: clock,
	}
}

// OnSnapshot registers a callback for every fresh snapshot. Set it before Run.
func (e *Estimator) OnSnapshot(f func(Snapshot)) {
	e.onSnapshot = f
}

// WheelRPMToMPS converts wheel RPM to linear speed.
func (e *Estimator) WheelRPMToMPS(rpm float64) float64 {
	return units.RPMToMPS(rpm, e.circ)
}

// Update advances both estimates by dt seconds. accelBody is the planar
// body-frame acceleration in m/s² and yawDeg the current heading.
//
// The inertial estimate rotates acceleration into the world frame and
// integrates it twice with the trapezoidal rule, with no bias correction,
// so it drifts. The odometric estimate moves the mean wheel distance along
// the heading.
func (e *Estimator) Update(dt, leftTurnsDelta, rightTurnsDelta float64, accelBody r2.Vec, yawDeg float64) (inertial, odometric grid.Pose) {
	yaw := units.DegToRad(yawDeg)

	e.mu.Lock()
	defer e.mu.Unlock()

	accel := r2.Rotate(accelBody, yaw, r2.Vec{})
	vel := r2.Add(e.vel, r2.Scale(dt/2, r2.Add(e.accel, accel)))
	e.inertial = r2.Add(e.inertial, r2.Scale(dt/2, r2.Add(e.vel, vel)))
	e.vel, e.accel = vel, accel

	dist := (units.TurnsToMeters(leftTurnsDelta, e.circ) + units.TurnsToMeters(rightTurnsDelta, e.circ)) / 2
	e.odometric = r2.Add(e.odometric, r2.Rotate(r2.Vec{X: dist}, yaw, r2.Vec{}))

	e.snap.Position = Position{
		Inertial:  grid.Pose{X: e.inertial.X, Y: e.inertial.Y, Theta: yaw},
		Odometric: grid.Pose{X: e.odometric.X, Y: e.odometric.Y, Theta: yaw},
	}
	e.snap.Orientation.Yaw = yawDeg
	return e.snap.Position.Inertial, e.snap.Position.Odometric
}

// Snapshot returns the state after the last successful update.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

func (e *Estimator) read() (turns, rpm [2]float64, s IMUSample, err error) {
	if e.odo == nil || e.imu == nil {
		return turns, rpm, s, errNoSensors
	}
	for _, w := range []actuator.Wheel{actuator.Left, actuator.Right} {
		if turns[w], rpm[w], err = e.odo.PosVel(w); err != nil {
			return turns, rpm, s, fmt.Errorf("%s wheel: %w", w, err)
		}
	}
	if s, err = e.imu.Sample(); err != nil {
		return turns, rpm, s, fmt.Errorf("imu: %w", err)
	}
	return turns, rpm, s, nil
}

// Step reads the sensors and updates the estimates. dt comes from the time
// since the previous successful step and the wheel deltas from the previous
// absolute positions; the first successful read only seeds them. On a read
// failure Step logs, keeps the last snapshot and returns ok=false.
func (e *Estimator) Step(now time.Time) (Snapshot, bool) {
	turns, rpm, s, err := e.read()
	if err != nil {
		logf("no update: %v", err)
		return e.Snapshot(), false
	}

	if e.seeded {
		dt := now.Sub(e.lastTime).Seconds()
		if dt < 0 {
			dt = 0
		}
		e.Update(dt,
			turns[actuator.Left]-e.lastTurns[actuator.Left],
			turns[actuator.Right]-e.lastTurns[actuator.Right],
			r2.Vec{X: s.Accel[0], Y: s.Accel[1]}, s.Yaw)
	}
	e.seeded = true
	e.lastTurns = turns
	e.lastTime = now

	e.mu.Lock()
	e.snap.Velocity = Velocity{
		Left:  e.WheelRPMToMPS(rpm[actuator.Left]),
		Right: e.WheelRPMToMPS(rpm[actuator.Right]),
	}
	e.snap.Orientation = Orientation{Pitch: s.Pitch, Roll: s.Roll, Yaw: s.Yaw}
	e.snap.UpdatedAt = now
	snap := e.snap
	e.mu.Unlock()

	return snap, true
}

// Selected returns the pose estimate chosen by Config.Publish.
func (e *Estimator) Selected(s Snapshot) grid.Pose {
	if e.cfg.Publish == config.EstimateInertial {
		return s.Position.Inertial
	}
	return s.Position.Odometric
}

// Run steps at the configured rate until ctx is cancelled. After each fresh
// update the selected estimate is published on the odometry topic when b is
// non-nil.
func (e *Estimator) Run(ctx context.Context, b bus.Bus) error {
	period := timeutil.PeriodFromHz(e.cfg.RateHz, 20*time.Millisecond)
	logf("estimating every %s, publishing %s pose", period, e.publishName())
	return timeutil.RunFixedRate(ctx, e.clock, period, func(now time.Time) {
		snap, ok := e.Step(now)
		if !ok {
			return
		}
		if b != nil {
			data, err := bus.EncodeOdometry(e.Selected(snap))
			if err == nil {
				err = b.Publish(bus.TopicOdometry, data)
			}
			if err != nil {
				logf("publish odometry: %v", err)
			}
		}
		if e.onSnapshot != nil {
			e.onSnapshot(snap)
		}
	})
}

func (e *Estimator) publishName() string {
	if e.cfg.Publish == config.EstimateInertial {
		return config.EstimateInertial
	}
	return config.EstimateOdometric
}
