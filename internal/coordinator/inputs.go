package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/planner"
)

// StampedPose is a pose with its arrival time.
type StampedPose struct {
	Pose grid.Pose
	At   time.Time
}

// StampedTarget is a detection with its arrival time.
type StampedTarget struct {
	Target planner.Target
	At     time.Time
}

// Inputs holds the latest navigation inputs. Each field has a single writer,
// the bus dispatch goroutine, and is swapped as a whole so tick readers see
// either the old or the new value.
type Inputs struct {
	Grid *grid.Store

	pose         atomic.Pointer[StampedPose]
	target       atomic.Pointer[StampedTarget]
	targetSeq    atomic.Uint64
	completedSeq atomic.Uint64
	rejected     atomic.Uint64
}

// NewInputs returns empty inputs backed by a fresh grid store.
func NewInputs() *Inputs {
	return &Inputs{Grid: grid.NewStore()}
}

// SetPose stores the latest odometry.
func (in *Inputs) SetPose(p grid.Pose, at time.Time) {
	in.pose.Store(&StampedPose{Pose: p, At: at})
}

// Pose returns the latest odometry, if any.
func (in *Inputs) Pose() (StampedPose, bool) {
	p := in.pose.Load()
	if p == nil {
		return StampedPose{}, false
	}
	return *p, true
}

// SetTarget stores a detection and bumps the target sequence.
func (in *Inputs) SetTarget(t planner.Target, at time.Time) {
	in.target.Store(&StampedTarget{Target: t, At: at})
	in.targetSeq.Add(1)
}

// Target returns the latest detection, if any.
func (in *Inputs) Target() (StampedTarget, bool) {
	t := in.target.Load()
	if t == nil {
		return StampedTarget{}, false
	}
	return *t, true
}

// TargetSeq counts detections received so far.
func (in *Inputs) TargetSeq() uint64 { return in.targetSeq.Load() }

// MarkPathCompleted records a completion signal from the drive executor.
func (in *Inputs) MarkPathCompleted() { in.completedSeq.Add(1) }

// CompletedSeq counts completion signals received so far.
func (in *Inputs) CompletedSeq() uint64 { return in.completedSeq.Load() }

// Rejected counts malformed messages dropped by Apply.
func (in *Inputs) Rejected() uint64 { return in.rejected.Load() }

// Apply decodes one bus message into the matching input. Malformed messages
// are logged and dropped; the previous value is kept.
func (in *Inputs) Apply(m bus.Message) {
	var err error
	switch m.Topic {
	case bus.TopicGrid:
		var g *grid.OccupancyGrid
		if g, err = bus.DecodeGrid(m.Payload); err == nil {
			in.Grid.Ingest(g, m.ReceivedAt)
		}
	case bus.TopicOdometry:
		var p grid.Pose
		if p, err = bus.DecodeOdometry(m.Payload); err == nil {
			in.SetPose(p, m.ReceivedAt)
		}
	case bus.TopicTarget:
		var t planner.Target
		if t, err = bus.DecodeTarget(m.Payload); err == nil {
			in.SetTarget(t, m.ReceivedAt)
		}
	case bus.TopicPathCompleted:
		in.MarkPathCompleted()
	default:
		return
	}
	if err != nil {
		in.rejected.Add(1)
		logf("dropping message: %v", err)
	}
}

// Run subscribes to the input topics and applies messages until ctx is
// cancelled or the bus closes.
func (in *Inputs) Run(ctx context.Context, b bus.Bus) error {
	id, ch := b.Subscribe(bus.TopicGrid, bus.TopicOdometry, bus.TopicTarget, bus.TopicPathCompleted)
	defer b.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			in.Apply(m)
		}
	}
}
