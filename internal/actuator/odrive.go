package actuator

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/units"
)

// ODrive axis states used by the ASCII protocol.
const (
	axisStateIdle       = 1
	axisStateClosedLoop = 8
)

// Port is the minimal interface needed for the driver's serial link.
type Port interface {
	io.ReadWriter
	io.Closer
}

// ODrive talks to a dual-axis motor driver over its ASCII line protocol.
// Calls are serialized; each query waits for exactly one reply line.
type ODrive struct {
	cfg  Config
	circ float64

	mu     sync.Mutex
	port   Port
	reader *bufio.Reader
}

// NewODrive wraps an open port.
func NewODrive(port Port, cfg Config) *ODrive {
	return &ODrive{
		cfg:    cfg,
		circ:   units.WheelCircumference(cfg.WheelDiameterMM),
		port:   port,
		reader: bufio.NewReader(port),
	}
}

// OpenODrive opens the serial device at path and wraps it.
func OpenODrive(path string, opts PortOptions, cfg Config) (*ODrive, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	monitoring.Logf("[actuator] opened %s at %d baud", path, mode.BaudRate)
	return NewODrive(port, cfg), nil
}

// send writes a command line. Callers hold d.mu.
func (d *ODrive) send(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := d.port.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(line), err)
	}
	if n != len(line) {
		return fmt.Errorf("write %q: short write %d/%d", strings.TrimSpace(line), n, len(line))
	}
	return nil
}

func (d *ODrive) command(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(line)
}

func (d *ODrive) query(line string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.send(line); err != nil {
		return "", err
	}
	reply, err := d.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", line, err)
	}
	return strings.TrimSpace(reply), nil
}

func (d *ODrive) setState(state int) error {
	for _, w := range []Wheel{Left, Right} {
		if err := d.command(fmt.Sprintf("w axis%d.requested_state %d", d.cfg.axis(w), state)); err != nil {
			return err
		}
	}
	return nil
}

// StartMotors puts both axes into closed-loop control.
func (d *ODrive) StartMotors() error {
	return d.setState(axisStateClosedLoop)
}

// StopMotors zeroes the setpoints and idles both axes.
func (d *ODrive) StopMotors() error {
	if err := d.SetMotorSpeeds(0, 0); err != nil {
		return err
	}
	return d.setState(axisStateIdle)
}

// SetMotorSpeeds sets both wheel speeds in m/s.
func (d *ODrive) SetMotorSpeeds(left, right float64) error {
	for _, ws := range []struct {
		w   Wheel
		mps float64
	}{{Left, left}, {Right, right}} {
		tps := units.MPSToTurnsPerSecond(ws.mps, d.circ) * d.cfg.dir(ws.w)
		if tps == 0 {
			tps = 0 // no "-0.0000" on the wire
		}
		if err := d.command(fmt.Sprintf("v %d %.4f", d.cfg.axis(ws.w), tps)); err != nil {
			return err
		}
	}
	return nil
}

// PosVel reads encoder feedback for one wheel.
func (d *ODrive) PosVel(w Wheel) (float64, float64, error) {
	if w != Left && w != Right {
		return 0, 0, ErrUnknownWheel
	}
	reply, err := d.query(fmt.Sprintf("f %d", d.cfg.axis(w)))
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%s wheel feedback %q: want \"pos vel\"", w, reply)
	}
	pos, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%s wheel position %q: %w", w, fields[0], err)
	}
	vel, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%s wheel velocity %q: %w", w, fields[1], err)
	}
	dir := d.cfg.dir(w)
	return pos * dir, vel * 60 * dir, nil
}

// Close idles the motors and closes the port.
func (d *ODrive) Close() error {
	if err := d.StopMotors(); err != nil {
		monitoring.Logf("[actuator] stop on close: %v", err)
	}
	return d.port.Close()
}
