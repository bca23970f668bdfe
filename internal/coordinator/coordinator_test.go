package coordinator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/planner"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const tick = 200 * time.Millisecond

type recordingPublisher struct {
	mu    sync.Mutex
	plans []planner.Plan
	err   error
}

func (p *recordingPublisher) PublishPlan(plan planner.Plan) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.plans = append(p.plans, plan)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plans)
}

func bordered(n int, res float64) *grid.OccupancyGrid {
	g := grid.Filled(n, n, res, 0, 0, grid.Free)
	var border []grid.Cell
	for i := 0; i < n; i++ {
		border = append(border,
			grid.Cell{Row: 0, Col: i}, grid.Cell{Row: n - 1, Col: i},
			grid.Cell{Row: i, Col: 0}, grid.Cell{Row: i, Col: n - 1})
	}
	return g.WithCells(0, border...)
}

type fixture struct {
	c     *Coordinator
	in    *Inputs
	pub   *recordingPublisher
	clock *timeutil.MockClock
	grid  *grid.OccupancyGrid
	pose  grid.Pose
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := bordered(25, 0.1)
	centre := g.GridToWorld(grid.Cell{Row: 12, Col: 12})
	f := &fixture{
		in:    NewInputs(),
		pub:   &recordingPublisher{},
		clock: timeutil.NewMockClock(t0),
		grid:  g,
		pose:  grid.Pose{X: centre.X, Y: centre.Y},
	}
	f.c = New(DefaultConfig(), planner.New(planner.DefaultConfig()), f.in, f.pub, f.clock)
	return f
}

// feed stores fresh grid and pose at the current clock time.
func (f *fixture) feed() {
	now := f.clock.Now()
	f.in.Grid.Ingest(f.grid, now)
	f.in.SetPose(f.pose, now)
}

func (f *fixture) target(bearing float64) {
	f.in.SetTarget(planner.Target{Detected: true, Bearing: bearing, Size: 40, FrameSize: 640}, f.clock.Now())
}

// step advances the clock one period and ticks.
func (f *fixture) step() TickResult {
	f.clock.Advance(tick)
	return f.c.Tick(f.clock.Now())
}

func TestTick_PublishesThenHolds(t *testing.T) {
	f := newFixture(t)
	f.feed()
	f.target(0)

	assert.Equal(t, NoPlan.String(), f.c.Status().State)

	r := f.step()
	require.NoError(t, r.Err)
	assert.Equal(t, OutcomePublished, r.Outcome)
	assert.Equal(t, PlanValid, r.State)
	require.Equal(t, 1, f.pub.count())
	assert.Equal(t, planner.Path{{Row: 12, Col: 12}, {Row: 12, Col: 13}, {Row: 12, Col: 15}, {Row: 12, Col: 16}},
		f.pub.plans[0].Cells)

	r = f.step()
	assert.Equal(t, OutcomeHeld, r.Outcome)
	assert.Equal(t, PlanValid, r.State)
	assert.Equal(t, 1, f.pub.count())

	st := f.c.Status()
	assert.Equal(t, "plan_valid", st.State)
	assert.Equal(t, "held", st.LastOutcome)
	assert.Equal(t, uint64(1), st.Published)
	require.NotNil(t, st.Plan)
}

func TestTick_InvalidationTriggers(t *testing.T) {
	tests := []struct {
		name    string
		trigger func(f *fixture)
		outcome Outcome
	}{
		{"new target", func(f *fixture) { f.target(0.2) }, OutcomePublished},
		{"path completed", func(f *fixture) { f.in.MarkPathCompleted() }, OutcomePublished},
		{"repeated detection at same bearing", func(f *fixture) { f.target(0) }, OutcomePublished},
		{"grid now grazes path", func(f *fixture) {
			f.in.Grid.Ingest(f.grid.WithCells(0, grid.Cell{Row: 13, Col: 14}), f.clock.Now())
		}, OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.feed()
			f.target(0)
			require.Equal(t, OutcomePublished, f.step().Outcome)

			tt.trigger(f)
			r := f.step()
			assert.Equal(t, tt.outcome, r.Outcome, "err: %v", r.Err)
			if tt.outcome == OutcomeFailed {
				assert.Equal(t, Replanning, r.State)
				assert.ErrorIs(t, r.Err, planner.ErrUnsafePath)
				assert.Nil(t, f.c.Status().Plan, "invalidated plan is dropped")
			} else {
				assert.Equal(t, PlanValid, r.State)
				assert.Equal(t, 2, f.pub.count())
			}
		})
	}
}

func TestTick_RetriesThenBacksOff(t *testing.T) {
	f := newFixture(t)
	f.feed()

	// No target yet: every attempt fails.
	r := f.step()
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.ErrorIs(t, r.Err, planner.ErrTargetUnknown)
	assert.Equal(t, Replanning, r.State)
	assert.Equal(t, 1, f.c.Status().Retries)

	assert.Equal(t, OutcomeFailed, f.step().Outcome)
	r = f.step()
	assert.Equal(t, OutcomeBackoff, r.Outcome)
	assert.Equal(t, 0, f.c.Status().Retries, "counter resets when backing off")
	backoffStart := f.clock.Now()

	f.feed()
	f.target(0)
	for f.clock.Now().Before(backoffStart.Add(time.Second - tick)) {
		r = f.step()
		assert.Equal(t, OutcomeWaiting, r.Outcome)
		assert.Equal(t, Replanning, r.State)
	}
	assert.Equal(t, 0, f.pub.count())

	r = f.step()
	assert.Equal(t, OutcomePublished, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, uint64(3), f.c.Status().Failures)
}

func TestTick_StaleInputsSkipWithoutRetry(t *testing.T) {
	f := newFixture(t)

	r := f.step()
	assert.Equal(t, OutcomeStaleInput, r.Outcome, "no grid yet")
	assert.Equal(t, NoPlan, r.State)

	f.feed()
	f.target(0)
	f.clock.Advance(3 * time.Second)
	r = f.c.Tick(f.clock.Now())
	assert.Equal(t, OutcomeStaleInput, r.Outcome, "grid older than cutoff")

	f.in.Grid.Ingest(f.grid, f.clock.Now())
	r = f.c.Tick(f.clock.Now())
	assert.Equal(t, OutcomeStaleInput, r.Outcome, "pose older than cutoff")
	assert.Equal(t, 0, f.c.Status().Retries)

	// Fresh grid and pose but a stale detection: planning fails as unknown target.
	f.in.SetPose(f.pose, f.clock.Now())
	r = f.c.Tick(f.clock.Now())
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.ErrorIs(t, r.Err, planner.ErrTargetUnknown)
}

func TestTick_OutOfBoundsSkips(t *testing.T) {
	f := newFixture(t)
	f.pose = grid.Pose{X: -5, Y: -5}
	f.feed()
	f.target(0)

	r := f.step()
	assert.Equal(t, OutcomeOutOfBounds, r.Outcome)
	assert.True(t, errors.Is(r.Err, planner.ErrRobotOutOfBounds))
	assert.Equal(t, 0, f.c.Status().Retries)
}

func TestTick_ArrivalStopsPlanning(t *testing.T) {
	f := newFixture(t)
	f.feed()
	f.in.SetTarget(planner.Target{Detected: true, Bearing: 0, Size: 300, FrameSize: 640}, f.clock.Now())

	r := f.step()
	assert.Equal(t, OutcomeArrived, r.Outcome)
	assert.Equal(t, Replanning, r.State)
	assert.Equal(t, 0, f.pub.count())
	assert.Equal(t, 0, f.c.Status().Retries)
}

func TestTick_PublishFailureCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.err = bus.ErrClosed
	f.feed()
	f.target(0)

	r := f.step()
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.ErrorIs(t, r.Err, bus.ErrClosed)
	assert.Equal(t, Replanning, r.State)
	assert.Contains(t, f.c.Status().LastError, "publish plan")
}

func TestTick_FiveByFiveGridNeverPublishes(t *testing.T) {
	f := newFixture(t)
	f.grid = bordered(5, 0.1)
	centre := f.grid.GridToWorld(grid.Cell{Row: 2, Col: 2})
	f.pose = grid.Pose{X: centre.X, Y: centre.Y}
	f.feed()
	f.target(0)

	r := f.step()
	assert.ErrorIs(t, r.Err, planner.ErrNoCandidate)
	assert.Equal(t, Replanning, r.State)
}

func TestOnPlan(t *testing.T) {
	f := newFixture(t)
	var got []time.Time
	f.c.OnPlan(func(_ planner.Plan, at time.Time) { got = append(got, at) })
	f.feed()
	f.target(0)
	f.step()
	assert.Equal(t, []time.Time{t0.Add(tick)}, got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "no_plan", NoPlan.String())
	assert.Equal(t, "replanning", Replanning.String())
	assert.Equal(t, "plan_valid", PlanValid.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "arrived", OutcomeArrived.String())
}
