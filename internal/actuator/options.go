package actuator

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/pursuit/internal/config"
)

// ODrive UART defaults. The driver's ASCII protocol runs at 115200 baud,
// 8 data bits, no parity, 1 stop bit unless reconfigured on the board.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// PortOptions holds what may vary when opening the motor driver's UART.
// Framing is fixed at 8N1.
type PortOptions struct {
	BaudRate    int           `json:"baud_rate"`
	ReadTimeout time.Duration `json:"read_timeout"` // bounds each feedback reply
}

// PortOptionsFromTuning builds PortOptions from tuning values.
func PortOptionsFromTuning(cfg *config.TuningConfig) PortOptions {
	return PortOptions{
		BaudRate:    cfg.GetSerialBaudRate(),
		ReadTimeout: cfg.GetSerialReadTimeout(),
	}
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.BaudRate < 0 {
		return opts, fmt.Errorf("invalid baud rate %d", opts.BaudRate)
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ReadTimeout < 0 {
		return opts, fmt.Errorf("invalid read timeout %s", opts.ReadTimeout)
	}
	return opts, nil
}

// SerialMode returns the go.bug.st/serial mode for the driver's 8N1 framing.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, nil
}
