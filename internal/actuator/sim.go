package actuator

import (
	"sync"
	"time"

	"github.com/banshee-data/pursuit/internal/timeutil"
	"github.com/banshee-data/pursuit/internal/units"
)

// Sim is a kinematic differential drive for running without hardware.
// Wheels reach their setpoint instantly unless stalled.
type Sim struct {
	clock timeutil.Clock
	circ  float64
	base  float64

	mu      sync.Mutex
	running bool
	stalled bool
	cmd     [2]float64 // m/s
	turns   [2]float64
	last    time.Time
	yaw     float64 // radians
	speed   float64 // body speed, m/s
	accel   float64 // body acceleration, m/s²
}

// NewSim creates a stopped simulated drive.
func NewSim(cfg Config, clock timeutil.Clock) *Sim {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	base := cfg.WheelBaseMM / 1000
	if base <= 0 {
		base = 0.4
	}
	return &Sim{
		clock: clock,
		circ:  units.WheelCircumference(cfg.WheelDiameterMM),
		base:  base,
		last:  clock.Now(),
	}
}

// advance integrates motion up to now. Callers hold s.mu.
func (s *Sim) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}

	var vel [2]float64
	if s.running && !s.stalled {
		vel = s.cmd
	}
	for i := range vel {
		s.turns[i] += vel[i] / s.circ * dt
	}
	speed := (vel[Left] + vel[Right]) / 2
	s.accel = (speed - s.speed) / dt
	s.speed = speed
	s.yaw += (vel[Right] - vel[Left]) / s.base * dt
}

func (s *Sim) SetMotorSpeeds(left, right float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.cmd = [2]float64{left, right}
	return nil
}

func (s *Sim) StartMotors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.running = true
	return nil
}

func (s *Sim) StopMotors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.running = false
	s.cmd = [2]float64{}
	return nil
}

func (s *Sim) PosVel(w Wheel) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if w != Left && w != Right {
		return 0, 0, ErrUnknownWheel
	}
	vel := 0.0
	if s.running && !s.stalled {
		vel = s.cmd[w]
	}
	return s.turns[w], vel / s.circ * 60, nil
}

// SetStalled holds both wheels still regardless of the setpoint, as if the
// robot had driven into an obstacle.
func (s *Sim) SetStalled(stalled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.stalled = stalled
}

// Motion returns the simulated heading in degrees and the forward
// body acceleration in m/s².
func (s *Sim) Motion() (yawDeg, accel float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return units.WrapDeg180(units.RadToDeg(s.yaw)), s.accel
}
