package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/pursuit/internal/grid"
	"github.com/banshee-data/pursuit/internal/planner"
)

// Topic names shared with the mapping, vision and drive collaborators.
const (
	TopicGrid          = "robot/tof_map"
	TopicOdometry      = "robot/odometry"
	TopicTarget        = "robot/bottle_position"
	TopicLocalPath     = "robot/local_path"
	TopicPathCompleted = "robot/path_completed"
	TopicIMU           = "robot/imu"
	TopicColorFrame    = "robot/frame/color"
	TopicDepthFrame    = "robot/frame/depth"
)

// ErrMalformed wraps every payload decoding failure.
var ErrMalformed = errors.New("malformed message")

func malformed(topic string, format string, args ...any) error {
	return fmt.Errorf("%w on %s: %s", ErrMalformed, topic, fmt.Sprintf(format, args...))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// GridMessage is the payload of TopicGrid.
type GridMessage struct {
	OccupancyGrid *grid.Message `json:"occupancy_grid"`
}

// DecodeGrid parses and validates a grid snapshot.
func DecodeGrid(payload []byte) (*grid.OccupancyGrid, error) {
	var m GridMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, malformed(TopicGrid, "%v", err)
	}
	if m.OccupancyGrid == nil {
		return nil, malformed(TopicGrid, "missing occupancy_grid")
	}
	g, err := grid.FromMessage(*m.OccupancyGrid)
	if err != nil {
		return nil, malformed(TopicGrid, "%v", err)
	}
	return g, nil
}

// EncodeGrid serializes a grid snapshot.
func EncodeGrid(g *grid.OccupancyGrid) ([]byte, error) {
	m := grid.ToMessage(g)
	return json.Marshal(GridMessage{OccupancyGrid: &m})
}

type odometryMessage struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta"`
}

// DecodeOdometry parses a pose. All three fields are required.
func DecodeOdometry(payload []byte) (grid.Pose, error) {
	var m odometryMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return grid.Pose{}, malformed(TopicOdometry, "%v", err)
	}
	if m.X == nil || m.Y == nil || m.Theta == nil {
		return grid.Pose{}, malformed(TopicOdometry, "x, y and theta are required")
	}
	if !finite(*m.X, *m.Y, *m.Theta) {
		return grid.Pose{}, malformed(TopicOdometry, "non-finite pose")
	}
	return grid.Pose{X: *m.X, Y: *m.Y, Theta: *m.Theta}, nil
}

// EncodeOdometry serializes a pose.
func EncodeOdometry(p grid.Pose) ([]byte, error) {
	return json.Marshal(p)
}

type targetMessage struct {
	Detected  *bool    `json:"detected"`
	X         *float64 `json:"x"`
	Size      float64  `json:"size"`
	FrameSize float64  `json:"frame_size"`
}

// DecodeTarget parses a detection. A detected target needs a bearing in [-1, 1].
func DecodeTarget(payload []byte) (planner.Target, error) {
	var m targetMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return planner.Target{}, malformed(TopicTarget, "%v", err)
	}
	if m.Detected == nil {
		return planner.Target{}, malformed(TopicTarget, "missing detected")
	}
	t := planner.Target{Detected: *m.Detected, Size: m.Size, FrameSize: m.FrameSize}
	if !t.Detected {
		return t, nil
	}
	if m.X == nil {
		return planner.Target{}, malformed(TopicTarget, "detected target without x")
	}
	if !finite(*m.X, m.Size, m.FrameSize) || *m.X < -1 || *m.X > 1 {
		return planner.Target{}, malformed(TopicTarget, "bearing %v outside [-1, 1]", *m.X)
	}
	t.Bearing = *m.X
	return t, nil
}

// EncodeTarget serializes a detection.
func EncodeTarget(t planner.Target) ([]byte, error) {
	return json.Marshal(t)
}

// PathMessage is the payload of TopicLocalPath.
type PathMessage struct {
	PathRC [][2]int     `json:"path_rc"`
	PathXY [][2]float64 `json:"path_xy"`
}

// EncodePath serializes a plan for the drive executor.
func EncodePath(p planner.Plan) ([]byte, error) {
	m := PathMessage{
		PathRC: make([][2]int, len(p.Cells)),
		PathXY: make([][2]float64, len(p.Points)),
	}
	for i, c := range p.Cells {
		m.PathRC[i] = [2]int{c.Row, c.Col}
	}
	for i, pt := range p.Points {
		m.PathXY[i] = [2]float64{pt.X, pt.Y}
	}
	return json.Marshal(m)
}

// DecodePath parses a path message.
func DecodePath(payload []byte) (PathMessage, error) {
	var m PathMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return PathMessage{}, malformed(TopicLocalPath, "%v", err)
	}
	if len(m.PathRC) != len(m.PathXY) {
		return PathMessage{}, malformed(TopicLocalPath, "%d cells but %d points", len(m.PathRC), len(m.PathXY))
	}
	return m, nil
}

// IMUMessage is the payload of TopicIMU. Angles are in degrees and
// acceleration is in the body frame, m/s².
type IMUMessage struct {
	Accel []float64 `json:"accel"`
	Pitch float64   `json:"pitch"`
	Roll  float64   `json:"roll"`
	Yaw   float64   `json:"yaw"`
}

// DecodeIMU parses an inertial sample.
func DecodeIMU(payload []byte) (IMUMessage, error) {
	var m IMUMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return IMUMessage{}, malformed(TopicIMU, "%v", err)
	}
	if len(m.Accel) != 3 {
		return IMUMessage{}, malformed(TopicIMU, "accel has %d axes, want 3", len(m.Accel))
	}
	if !finite(append([]float64{m.Pitch, m.Roll, m.Yaw}, m.Accel...)...) {
		return IMUMessage{}, malformed(TopicIMU, "non-finite sample")
	}
	return m, nil
}

// EncodeIMU serializes an inertial sample.
func EncodeIMU(m IMUMessage) ([]byte, error) {
	return json.Marshal(m)
}

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(b Bus, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return b.Publish(topic, data)
}
