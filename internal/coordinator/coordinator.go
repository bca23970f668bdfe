// Package coordinator decides on each tick whether the planner must run and
// publishes the resulting path.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/planner"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

var logf = monitoring.Component("coordinator")

// State is the replanning state. It changes only inside Tick.
type State int32

const (
	NoPlan State = iota
	Replanning
	PlanValid
)

func (s State) String() string {
	switch s {
	case NoPlan:
		return "no_plan"
	case Replanning:
		return "replanning"
	case PlanValid:
		return "plan_valid"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Outcome describes what a tick did.
type Outcome int

const (
	OutcomeHeld        Outcome = iota // current plan still valid
	OutcomePublished                  // new plan published
	OutcomeFailed                     // planning or publishing failed
	OutcomeBackoff                    // failed and retries exhausted
	OutcomeWaiting                    // inside the backoff window
	OutcomeStaleInput                 // grid or pose missing or too old
	OutcomeOutOfBounds                // pose outside the grid
	OutcomeArrived                    // target close enough, nothing to plan
)

var outcomeNames = [...]string{
	OutcomeHeld:        "held",
	OutcomePublished:   "published",
	OutcomeFailed:      "failed",
	OutcomeBackoff:     "backoff",
	OutcomeWaiting:     "waiting",
	OutcomeStaleInput:  "stale_input",
	OutcomeOutOfBounds: "out_of_bounds",
	OutcomeArrived:     "arrived",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// TickResult reports a single tick.
type TickResult struct {
	State   State
	Outcome Outcome
	Err     error
}

// Publisher delivers a plan to the drive executor.
type Publisher interface {
	PublishPlan(planner.Plan) error
}

// BusPublisher publishes plans on the local path topic.
type BusPublisher struct {
	Bus bus.Bus
}

func (p BusPublisher) PublishPlan(plan planner.Plan) error {
	data, err := bus.EncodePath(plan)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	return p.Bus.Publish(bus.TopicLocalPath, data)
}

// Status is a read-only view of the coordinator for status endpoints.
type Status struct {
	State       string        `json:"state"`
	LastOutcome string        `json:"last_outcome"`
	LastError   string        `json:"last_error,omitempty"`
	LastTick    time.Time     `json:"last_tick"`
	Retries     int           `json:"retries"`
	NextAttempt time.Time     `json:"next_attempt"`
	Published   uint64        `json:"published"`
	Failures    uint64        `json:"failures"`
	Plan        *planner.Plan `json:"-"`
}

// Coordinator runs the replanning state machine. Tick must be called from a
// single goroutine; Status may be read from any.
type Coordinator struct {
	cfg     Config
	planner *planner.Planner
	in      *Inputs
	pub     Publisher
	clock   timeutil.Clock
	onPlan  func(planner.Plan, time.Time)

	// Owned by the tick goroutine.
	state         State
	current       *planner.Plan
	retries       int
	nextAttempt   time.Time
	seenTarget    uint64
	seenCompleted uint64
	published     uint64
	failures      uint64

	status atomic.Pointer[Status]
}

// New creates a coordinator in the NoPlan state.
func New(cfg Config, p *planner.Planner, in *Inputs, pub Publisher, clock timeutil.Clock) *Coordinator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	c := &Coordinator{cfg: cfg, planner: p, in: in, pub: pub, clock: clock}
	c.status.Store(&Status{State: NoPlan.String()})
	return c
}

// OnPlan registers a callback for every published plan. Set it before Run.
func (c *Coordinator) OnPlan(f func(planner.Plan, time.Time)) {
	c.onPlan = f
}

// Status returns the state as of the last tick.
func (c *Coordinator) Status() Status {
	return *c.status.Load()
}

// Run ticks at the configured rate until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	period := timeutil.PeriodFromHz(c.cfg.RateHz, 200*time.Millisecond)
	logf("ticking every %s", period)
	return timeutil.RunFixedRate(ctx, c.clock, period, func(now time.Time) {
		c.Tick(now)
	})
}

// Tick runs one coordination step at time now.
func (c *Coordinator) Tick(now time.Time) TickResult {
	res := c.tick(now)
	res.State = c.state

	st := &Status{
		State:       c.state.String(),
		LastOutcome: res.Outcome.String(),
		LastTick:    now,
		Retries:     c.retries,
		NextAttempt: c.nextAttempt,
		Published:   c.published,
		Failures:    c.failures,
		Plan:        c.current,
	}
	if res.Err != nil {
		st.LastError = res.Err.Error()
	}
	c.status.Store(st)
	return res
}

func (c *Coordinator) tick(now time.Time) TickResult {
	if now.Before(c.nextAttempt) {
		return TickResult{Outcome: OutcomeWaiting}
	}

	snap, ok := c.in.Grid.Latest()
	if !ok || now.Sub(snap.IngestedAt) > c.cfg.GridStaleAfter {
		return TickResult{Outcome: OutcomeStaleInput, Err: errors.New("no recent grid")}
	}
	pose, ok := c.in.Pose()
	if !ok || now.Sub(pose.At) > c.cfg.PoseStaleAfter {
		return TickResult{Outcome: OutcomeStaleInput, Err: errors.New("no recent pose")}
	}
	g := snap.Grid
	if cell := g.WorldToGrid(pose.Pose.X, pose.Pose.Y); !g.InBounds(cell) {
		logf("robot out of bounds in grid at %v", cell)
		return TickResult{Outcome: OutcomeOutOfBounds, Err: planner.ErrRobotOutOfBounds}
	}

	targetSeq, completedSeq := c.in.TargetSeq(), c.in.CompletedSeq()
	newTarget := targetSeq != c.seenTarget
	completed := completedSeq != c.seenCompleted
	c.seenTarget, c.seenCompleted = targetSeq, completedSeq

	switch c.state {
	case NoPlan:
		c.transition(Replanning, "no plan")
	case PlanValid:
		switch {
		case !planner.IsSafe(g, c.current.Cells):
			c.invalidate("path no longer safe")
		case completed:
			c.invalidate("path completed")
		case newTarget:
			c.invalidate("new target detection")
		default:
			return TickResult{Outcome: OutcomeHeld}
		}
	}

	var target *planner.Target
	if t, ok := c.in.Target(); ok && now.Sub(t.At) <= c.cfg.TargetStaleAfter {
		target = &t.Target
	}
	if target != nil && target.Detected && target.SizeFraction() >= c.cfg.ArriveSizeFraction {
		return TickResult{Outcome: OutcomeArrived}
	}

	plan, err := c.planner.Plan(g, pose.Pose, target)
	if err == nil {
		if perr := c.pub.PublishPlan(plan); perr != nil {
			err = fmt.Errorf("publish plan: %w", perr)
		}
	}
	if err != nil {
		return c.fail(now, err)
	}

	c.current = &plan
	c.retries = 0
	c.published++
	c.transition(PlanValid, fmt.Sprintf("published %d waypoints", len(plan.Cells)))
	if c.onPlan != nil {
		c.onPlan(plan, now)
	}
	return TickResult{Outcome: OutcomePublished}
}

func (c *Coordinator) fail(now time.Time, err error) TickResult {
	c.failures++
	c.retries++
	if c.retries < c.cfg.MaxRetries {
		logf("planning failed (%d/%d): %v", c.retries, c.cfg.MaxRetries, err)
		return TickResult{Outcome: OutcomeFailed, Err: err}
	}
	c.retries = 0
	c.nextAttempt = now.Add(c.cfg.Backoff)
	logf("failed to find safe path after %d attempts, backing off %s: %v", c.cfg.MaxRetries, c.cfg.Backoff, err)
	return TickResult{Outcome: OutcomeBackoff, Err: err}
}

func (c *Coordinator) invalidate(reason string) {
	c.current = nil
	c.transition(Replanning, reason)
}

func (c *Coordinator) transition(to State, reason string) {
	if c.state != to {
		logf("%s -> %s: %s", c.state, to, reason)
	}
	c.state = to
}
