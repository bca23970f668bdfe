package estimator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

func TestBusIMU_Sample(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(10, 0))
	imu := NewBusIMU(200*time.Millisecond, clock)

	_, err := imu.Sample()
	assert.ErrorIs(t, err, ErrNoSample)

	imu.Apply(bus.Message{
		Topic:      bus.TopicIMU,
		Payload:    []byte(`{"accel":[0.1,0.2,9.8],"pitch":1,"roll":2,"yaw":45}`),
		ReceivedAt: clock.Now(),
	})
	s, err := imu.Sample()
	require.NoError(t, err)
	assert.Equal(t, [3]float64{0.1, 0.2, 9.8}, s.Accel)
	assert.Equal(t, 45.0, s.Yaw)

	imu.Apply(bus.Message{Topic: bus.TopicIMU, Payload: []byte(`{"accel":[1,2]}`), ReceivedAt: clock.Now()})
	s, err = imu.Sample()
	require.NoError(t, err)
	assert.Equal(t, 45.0, s.Yaw, "malformed message keeps the last sample")

	clock.Advance(300 * time.Millisecond)
	_, err = imu.Sample()
	assert.ErrorIs(t, err, ErrStaleSample)

	_, err = NewBusIMU(0, clock).Sample()
	assert.ErrorIs(t, err, ErrNoSample)
}

func TestBusIMU_Run(t *testing.T) {
	b := bus.NewLocalBus(4, nil)
	imu := NewBusIMU(time.Minute, nil)
	done := make(chan error, 1)
	go func() { done <- imu.Run(context.Background(), b) }()

	payload, err := bus.EncodeIMU(bus.IMUMessage{Accel: []float64{0, 0, 9.8}, Yaw: -90})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		b.Publish(bus.TopicIMU, payload)
		s, err := imu.Sample()
		return err == nil && s.Yaw == -90
	}, time.Second, 5*time.Millisecond)

	b.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus close")
	}
}

func TestSimIMU_ReportsHeading(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sim := actuator.NewSim(actuator.Config{WheelDiameterMM: 165, WheelBaseMM: 400}, clock)
	sim.StartMotors()
	sim.SetMotorSpeeds(-0.1, 0.1)
	clock.Advance(time.Second)

	s, err := SimIMU{Sim: sim}.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 0.5*180/math.Pi, s.Yaw, 1e-9)
	assert.InDelta(t, gravity, s.Accel[2], 1e-12)
}
