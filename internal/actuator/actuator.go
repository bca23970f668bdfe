// Package actuator drives the wheel motors and reads back wheel feedback.
package actuator

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pursuit/internal/config"
)

// ErrUnknownWheel is returned for a Wheel other than Left or Right.
var ErrUnknownWheel = errors.New("unknown wheel")

// Wheel selects a drive wheel.
type Wheel int

const (
	Left Wheel = iota
	Right
)

func (w Wheel) String() string {
	switch w {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("wheel(%d)", int(w))
}

// Actuator is the motor driver seen by the navigation loops. Speeds are
// linear wheel speeds in m/s; positive drives the robot forward.
type Actuator interface {
	SetMotorSpeeds(left, right float64) error
	StartMotors() error
	StopMotors() error
	// PosVel returns the wheel's absolute position in turns and its speed in RPM.
	PosVel(w Wheel) (turns, rpm float64, err error)
}

// Config describes the drive geometry and wiring.
type Config struct {
	WheelDiameterMM float64
	WheelBaseMM     float64
	LeftAxis        int
	RightAxis       int
	LeftDir         int // +1 or -1, flips a mirrored motor
	RightDir        int
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WheelDiameterMM: cfg.GetWheelDiameterMM(),
		WheelBaseMM:     cfg.GetWheelBaseMM(),
		LeftAxis:        cfg.GetMotorLeftAxis(),
		RightAxis:       cfg.GetMotorRightAxis(),
		LeftDir:         cfg.GetMotorLeftDir(),
		RightDir:        cfg.GetMotorRightDir(),
	}
}

func (c Config) axis(w Wheel) int {
	if w == Right {
		return c.RightAxis
	}
	return c.LeftAxis
}

func (c Config) dir(w Wheel) float64 {
	d := c.LeftDir
	if w == Right {
		d = c.RightDir
	}
	if d < 0 {
		return -1
	}
	return 1
}
