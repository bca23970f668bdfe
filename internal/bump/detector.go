// Package bump drives the wheels at a set speed and reverses when the
// velocity tracking error says the robot has run into something.
//
// The error between measured and desired left-wheel speed is averaged over
// a window (error rate), and the finite-difference derivative of the error
// rate is averaged over a second window (acceleration error rate). A bump
// is declared when the error rate is large, opposes the commanded
// direction, and is still growing quickly. Errors are ignored for a short
// stabilization period after every velocity change.
package bump

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/timeutil"
	"github.com/banshee-data/pursuit/internal/units"
)

var logf = monitoring.Component("bump")

// Event describes a detected bump.
type Event struct {
	At             time.Time `json:"at"`
	ErrorRate      float64   `json:"error_rate"`
	AccelErrorRate float64   `json:"accel_error_rate"`
	Reversed       float64   `json:"reversed_to"` // newly commanded speed, m/s
}

// Sample is one post-stabilization loop iteration.
type Sample struct {
	At             time.Time `json:"at"`
	Error          float64   `json:"error"`
	ErrorRate      float64   `json:"error_rate"`
	AccelErrorRate float64   `json:"accel_error_rate"`
}

// Detector runs the bump loop. Step must be called from one goroutine;
// SetDesiredVelocity, Desired, Trace and Bumps are safe from any.
type Detector struct {
	cfg    Config
	act    actuator.Actuator
	clock  timeutil.Clock
	circ   float64
	period time.Duration
	onBump func(Event)

	// Owned by the loop goroutine.
	desired    float64
	lastChange time.Time
	errs       *window
	derivs     *window
	prevRate   float64

	requested atomic.Pointer[float64]
	current   atomic.Uint64 // math.Float64bits of desired
	bumps     atomic.Uint64

	mu    sync.Mutex
	trace []Sample
}

// New creates a detector for the given drive. wheelDiameterMM converts the
// drive's RPM feedback to m/s.
func New(cfg Config, act actuator.Actuator, wheelDiameterMM float64, clock timeutil.Clock) *Detector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	d := &Detector{
		cfg:     cfg,
		act:     act,
		clock:   clock,
		circ:    units.WheelCircumference(wheelDiameterMM),
		period:  timeutil.PeriodFromHz(cfg.RateHz, 5*time.Millisecond),
		desired: cfg.DesiredVelocity,
		errs:    newWindow(cfg.WindowSize),
		derivs:  newWindow(cfg.AccelWindowSize),
	}
	d.current.Store(math.Float64bits(cfg.DesiredVelocity))
	return d
}

// OnBump registers a callback for every detected bump. Set it before Run.
func (d *Detector) OnBump(f func(Event)) {
	d.onBump = f
}

// SetDesiredVelocity requests a new wheel speed. The loop applies it on its
// next step and restarts stabilization.
func (d *Detector) SetDesiredVelocity(v float64) {
	d.requested.Store(&v)
}

// Desired returns the currently commanded speed.
func (d *Detector) Desired() float64 {
	return math.Float64frombits(d.current.Load())
}

// Bumps counts detected bumps.
func (d *Detector) Bumps() uint64 {
	return d.bumps.Load()
}

// Trace returns a copy of the recent samples, oldest first.
func (d *Detector) Trace() []Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sample(nil), d.trace...)
}

// Start enables the motors at the desired speed and begins stabilization.
func (d *Detector) Start(now time.Time) error {
	if err := d.act.StartMotors(); err != nil {
		return err
	}
	return d.command(d.desired, now)
}

func (d *Detector) command(v float64, now time.Time) error {
	d.desired = v
	d.current.Store(math.Float64bits(v))
	d.lastChange = now
	d.errs.reset()
	d.derivs.reset()
	d.prevRate = 0
	return d.act.SetMotorSpeeds(v, v)
}

// Step runs one loop iteration at time now and reports whether it
// detected a bump.
func (d *Detector) Step(now time.Time) (Event, bool) {
	if v := d.requested.Swap(nil); v != nil && *v != d.desired {
		if err := d.command(*v, now); err != nil {
			logf("set speed %.3f: %v", *v, err)
		}
	}

	if now.Sub(d.lastChange) <= d.cfg.Stabilization {
		return Event{}, false
	}

	_, rpm, err := d.act.PosVel(actuator.Left)
	if err != nil {
		logf("read left wheel: %v", err)
		return Event{}, false
	}
	e := units.RPMToMPS(rpm, d.circ) - d.desired

	d.errs.push(e)
	rate := d.errs.mean()
	d.derivs.push((rate - d.prevRate) / d.period.Seconds())
	d.prevRate = rate
	accel := d.derivs.mean()

	d.record(Sample{At: now, Error: e, ErrorRate: rate, AccelErrorRate: accel})

	if d.desired == 0 ||
		math.Abs(rate) <= d.cfg.Threshold ||
		rate*d.desired >= 0 ||
		math.Abs(accel) <= d.cfg.AccelThreshold {
		return Event{}, false
	}

	ev := Event{At: now, ErrorRate: rate, AccelErrorRate: accel, Reversed: -d.desired}
	logf("bumped at %s: error rate %.3f, accel error rate %.3f, reversing to %.3f",
		now.Format(time.RFC3339Nano), rate, accel, ev.Reversed)
	if err := d.command(ev.Reversed, now); err != nil {
		logf("reverse: %v", err)
	}
	d.bumps.Add(1)
	if d.onBump != nil {
		d.onBump(ev)
	}
	return ev, true
}

func (d *Detector) record(s Sample) {
	if d.cfg.TraceLength <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.trace) >= d.cfg.TraceLength {
		n := copy(d.trace, d.trace[1:])
		d.trace = d.trace[:n]
	}
	d.trace = append(d.trace, s)
}

// Run starts the motors, steps at the configured rate until ctx is
// cancelled, then stops the motors.
func (d *Detector) Run(ctx context.Context) error {
	if err := d.Start(d.clock.Now()); err != nil {
		return err
	}
	defer func() {
		if err := d.act.StopMotors(); err != nil {
			logf("stop motors: %v", err)
		}
	}()
	logf("driving at %.3f m/s, stepping every %s", d.desired, d.period)
	return timeutil.RunFixedRate(ctx, d.clock, d.period, func(now time.Time) {
		d.Step(now)
	})
}
