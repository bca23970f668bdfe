package vision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

type fakeDrive struct {
	mu          sync.Mutex
	running     bool
	started     int
	left, right float64
	setErr      error
}

func (f *fakeDrive) SetMotorSpeeds(left, right float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.left, f.right = left, right
	return nil
}

func (f *fakeDrive) StartMotors() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.started++
	return nil
}

func (f *fakeDrive) StopMotors() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.left, f.right = 0, 0
	return nil
}

func (f *fakeDrive) PosVel(actuator.Wheel) (float64, float64, error) { return 0, 0, nil }

func (f *fakeDrive) state() (running bool, left, right float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.left, f.right
}

var approachCfg = ApproachConfig{StopDistance: 0.08, Speed: 0.3, RateHz: 25}

type approachRun struct {
	clock *timeutil.MockClock
	src   *BusSource
	drive *fakeDrive
	done  chan struct{}
	depth float64
	err   error
}

func startApproach(t *testing.T, ctx context.Context, drive *fakeDrive, staleAfter time.Duration) *approachRun {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	src, err := NewSource("depth-camera", staleAfter, clock)
	require.NoError(t, err)
	r := &approachRun{clock: clock, src: src, drive: drive, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.depth, r.err = ApproachUntilClose(ctx, drive, src, approachCfg, clock)
	}()
	require.Eventually(t, func() bool {
		drive.mu.Lock()
		defer drive.mu.Unlock()
		return drive.started > 0
	}, time.Second, time.Millisecond)
	return r
}

func (r *approachRun) frame(t *testing.T, mm uint16) {
	r.src.Apply(bus.Message{Topic: bus.TopicDepthFrame, Payload: depthPNG(t, 9, 9, mm, 4000), ReceivedAt: r.clock.Now()})
}

// tickUntil advances the clock one period at a time until cond holds.
func (r *approachRun) tickUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.clock.Advance(40 * time.Millisecond)
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func (r *approachRun) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func TestApproachUntilClose_StopsWhenClose(t *testing.T) {
	drive := &fakeDrive{}
	r := startApproach(t, context.Background(), drive, 0)

	r.frame(t, 500)
	r.tickUntil(t, func() bool {
		_, l, rt := drive.state()
		return l == 0.3 && rt == 0.3
	})
	running, _, _ := drive.state()
	assert.True(t, running)

	r.frame(t, 60)
	r.tickUntil(t, r.finished)

	require.NoError(t, r.err)
	assert.InDelta(t, 0.06, r.depth, 1e-9)
	running, l, rt := drive.state()
	assert.False(t, running)
	assert.Zero(t, l)
	assert.Zero(t, rt)
}

func TestApproachUntilClose_AlreadyClose(t *testing.T) {
	drive := &fakeDrive{}
	r := startApproach(t, context.Background(), drive, 0)
	r.frame(t, 70)
	r.tickUntil(t, r.finished)

	require.NoError(t, r.err)
	assert.InDelta(t, 0.07, r.depth, 1e-9)
	_, l, _ := drive.state()
	assert.Zero(t, l)
}

func TestApproachUntilClose_HoldsWithoutFreshDepth(t *testing.T) {
	drive := &fakeDrive{}
	ctx, cancel := context.WithCancel(context.Background())
	r := startApproach(t, ctx, drive, 500*time.Millisecond)

	// No frame yet: the drive is started but never commanded forward.
	for i := 0; i < 5; i++ {
		r.clock.Advance(40 * time.Millisecond)
	}
	_, l, _ := drive.state()
	assert.Zero(t, l)

	r.frame(t, 500)
	r.tickUntil(t, func() bool {
		_, l, _ := drive.state()
		return l == 0.3
	})

	// Once the frame goes stale the drive stops but the approach continues.
	r.tickUntil(t, func() bool {
		_, l, _ := drive.state()
		return l == 0
	})
	assert.False(t, r.finished())

	cancel()
	<-r.done
	assert.ErrorIs(t, r.err, context.Canceled)
	running, _, _ := drive.state()
	assert.False(t, running)
}

func TestApproachUntilClose_SetSpeedFailure(t *testing.T) {
	drive := &fakeDrive{setErr: errors.New("serial gone")}
	r := startApproach(t, context.Background(), drive, 0)
	r.frame(t, 500)
	r.tickUntil(t, r.finished)

	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "serial gone")
	running, _, _ := drive.state()
	assert.False(t, running)
}

func TestApproachUntilClose_NeedsDepthCamera(t *testing.T) {
	src, err := NewSource("local-camera", 0, nil)
	require.NoError(t, err)
	drive := &fakeDrive{}

	_, err = ApproachUntilClose(context.Background(), drive, src, approachCfg, timeutil.NewMockClock(time.Time{}))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Zero(t, drive.started)
}
