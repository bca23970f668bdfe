// Package vision exposes camera frames published on the bus behind one
// capability interface. The camera hardware and object detection run
// elsewhere; this side only caches and decodes what they publish.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/config"
	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

var logf = monitoring.Component("vision")

var (
	ErrUnsupportedKind = errors.New("frame kind not supported by source")
	ErrNoFrame         = errors.New("no frame received")
	ErrStaleFrame      = errors.New("frame is stale")
)

// Kind selects a camera stream.
type Kind int

const (
	Color Kind = iota
	Depth
)

func (k Kind) String() string {
	switch k {
	case Color:
		return "color"
	case Depth:
		return "depth"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses "color" or "depth".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "color":
		return Color, nil
	case "depth":
		return Depth, nil
	}
	return 0, fmt.Errorf("unknown frame kind %q", s)
}

func (k Kind) topic() string {
	if k == Depth {
		return bus.TopicDepthFrame
	}
	return bus.TopicColorFrame
}

// Frame is one encoded image as published on the bus.
type Frame struct {
	Kind Kind
	Data []byte // PNG or JPEG; depth frames are 16-bit grayscale PNG in mm
	At   time.Time
}

// Decode decodes the frame's image data.
func (f Frame) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", f.Kind, err)
	}
	return img, nil
}

// Source provides the latest frame of a kind.
type Source interface {
	Frame(kind Kind) (Frame, error)
}

// BusSource caches the latest frame of each kind it supports.
type BusSource struct {
	name       string
	kinds      []Kind
	staleAfter time.Duration
	clock      timeutil.Clock
	latest     [2]atomic.Pointer[Frame]
}

// NewSource returns the source variant named by config: "local-camera"
// provides color frames only, "depth-camera" provides color and depth.
// Frames older than staleAfter are refused; zero disables the check.
func NewSource(name string, staleAfter time.Duration, clock timeutil.Clock) (*BusSource, error) {
	var kinds []Kind
	switch name {
	case config.VisionLocalCamera:
		kinds = []Kind{Color}
	case config.VisionDepthCamera:
		kinds = []Kind{Color, Depth}
	default:
		return nil, fmt.Errorf("unknown vision source %q", name)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BusSource{name: name, kinds: kinds, staleAfter: staleAfter, clock: clock}, nil
}

// Name returns the configured variant.
func (s *BusSource) Name() string { return s.name }

// Kinds lists the supported frame kinds.
func (s *BusSource) Kinds() []Kind { return append([]Kind(nil), s.kinds...) }

func (s *BusSource) supports(k Kind) bool {
	for _, have := range s.kinds {
		if have == k {
			return true
		}
	}
	return false
}

// Frame returns the latest fresh frame of kind.
func (s *BusSource) Frame(kind Kind) (Frame, error) {
	if !s.supports(kind) {
		return Frame{}, fmt.Errorf("%s: %s: %w", s.name, kind, ErrUnsupportedKind)
	}
	f := s.latest[kind].Load()
	if f == nil {
		return Frame{}, fmt.Errorf("%s: %w", kind, ErrNoFrame)
	}
	if s.staleAfter > 0 && s.clock.Since(f.At) > s.staleAfter {
		return Frame{}, fmt.Errorf("%s: %w", kind, ErrStaleFrame)
	}
	return *f, nil
}

// Apply stores a frame message. Messages for unsupported kinds and empty
// payloads are ignored.
func (s *BusSource) Apply(m bus.Message) {
	for _, k := range s.kinds {
		if m.Topic != k.topic() {
			continue
		}
		if len(m.Payload) == 0 {
			logf("dropping empty %s frame", k)
			return
		}
		s.latest[k].Store(&Frame{Kind: k, Data: m.Payload, At: m.ReceivedAt})
		return
	}
}

// Run applies frame messages until ctx is cancelled or the bus closes.
func (s *BusSource) Run(ctx context.Context, b bus.Bus) error {
	topics := make([]string, len(s.kinds))
	for i, k := range s.kinds {
		topics[i] = k.topic()
	}
	id, ch := b.Subscribe(topics...)
	defer b.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			s.Apply(m)
		}
	}
}
