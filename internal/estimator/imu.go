package estimator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

var (
	// ErrNoSample is returned before the first IMU message arrives.
	ErrNoSample = errors.New("no imu sample")
	// ErrStaleSample is returned when the latest IMU message is too old.
	ErrStaleSample = errors.New("imu sample is stale")
)

// gravity in m/s², reported on the simulated z axis.
const gravity = 9.80665

// IMUSample is one inertial reading. Accel is body frame in m/s²; angles
// are degrees.
type IMUSample struct {
	Accel [3]float64
	Pitch float64
	Roll  float64
	Yaw   float64
	At    time.Time
}

// IMU supplies inertial samples.
type IMU interface {
	Sample() (IMUSample, error)
}

// BusIMU caches the latest sample published on the IMU topic.
type BusIMU struct {
	staleAfter time.Duration
	clock      timeutil.Clock
	latest     atomic.Pointer[IMUSample]
}

// NewBusIMU creates an IMU fed by Apply or Run. Samples older than
// staleAfter are refused; zero disables the check.
func NewBusIMU(staleAfter time.Duration, clock timeutil.Clock) *BusIMU {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BusIMU{staleAfter: staleAfter, clock: clock}
}

// Apply decodes an IMU message. Malformed payloads are logged and dropped.
func (m *BusIMU) Apply(msg bus.Message) {
	dec, err := bus.DecodeIMU(msg.Payload)
	if err != nil {
		logf("dropping message: %v", err)
		return
	}
	m.latest.Store(&IMUSample{
		Accel: [3]float64{dec.Accel[0], dec.Accel[1], dec.Accel[2]},
		Pitch: dec.Pitch,
		Roll:  dec.Roll,
		Yaw:   dec.Yaw,
		At:    msg.ReceivedAt,
	})
}

// Sample returns the latest fresh sample.
func (m *BusIMU) Sample() (IMUSample, error) {
	s := m.latest.Load()
	if s == nil {
		return IMUSample{}, ErrNoSample
	}
	if m.staleAfter > 0 {
		if age := m.clock.Since(s.At); age > m.staleAfter {
			return IMUSample{}, ErrStaleSample
		}
	}
	return *s, nil
}

// Run applies IMU messages until ctx is cancelled or the bus closes.
func (m *BusIMU) Run(ctx context.Context, b bus.Bus) error {
	id, ch := b.Subscribe(bus.TopicIMU)
	defer b.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m.Apply(msg)
		}
	}
}

// SimIMU reads heading and forward acceleration from a simulated drive.
type SimIMU struct {
	Sim *actuator.Sim
}

func (s SimIMU) Sample() (IMUSample, error) {
	yaw, accel := s.Sim.Motion()
	return IMUSample{Accel: [3]float64{accel, 0, gravity}, Yaw: yaw}, nil
}
