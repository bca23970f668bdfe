package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Estimate selectors for PublishEstimate.
const (
	EstimateOdometric = "odometric"
	EstimateInertial  = "inertial"
)

// Bus backends for BusBackend.
const (
	BusLocal = "local"
	BusMQTT  = "mqtt"
)

// Vision variants for VisionSource.
const (
	VisionLocalCamera = "local-camera"
	VisionDepthCamera = "depth-camera"
)

// TuningConfig is the root configuration for the navigation loops. Every
// field is optional: the Get* accessors fall back to the built-in defaults,
// so partial JSON files are safe.
type TuningConfig struct {
	// Planner params
	PlannerMinDistance     *float64  `json:"planner_min_distance_m,omitempty"`
	PlannerMaxDistance     *float64  `json:"planner_max_distance_m,omitempty"`
	PlannerDistanceSteps   *int      `json:"planner_distance_steps,omitempty"`
	PlannerAngleOffsetsDeg []float64 `json:"planner_angle_offsets_deg,omitempty"`
	PlannerBearingSpanDeg  *float64  `json:"planner_bearing_span_deg,omitempty"`
	PlannerAngleWeight     *float64  `json:"planner_angle_weight,omitempty"`
	PlannerMaxWaypoints    *int      `json:"planner_max_waypoints,omitempty"`

	// Coordinator params
	PlanRateHz         *float64 `json:"plan_rate_hz,omitempty"`
	PlanMaxRetries     *int     `json:"plan_max_retries,omitempty"`
	PlanBackoff        *string  `json:"plan_backoff,omitempty"` // duration string like "1s"
	GridStaleAfter     *string  `json:"grid_stale_after,omitempty"`
	PoseStaleAfter     *string  `json:"pose_stale_after,omitempty"`
	TargetStaleAfter   *string  `json:"target_stale_after,omitempty"`
	ArriveSizeFraction *float64 `json:"arrive_size_fraction,omitempty"`

	// Estimator params
	WheelDiameterMM *float64 `json:"wheel_diameter_mm,omitempty"`
	WheelBaseMM     *float64 `json:"wheel_base_mm,omitempty"`
	EstimatorRateHz *float64 `json:"estimator_rate_hz,omitempty"`
	PublishEstimate *string  `json:"publish_estimate,omitempty"`
	IMUStaleAfter   *string  `json:"imu_stale_after,omitempty"`

	// Bump detector params
	BumpRateHz          *float64 `json:"bump_rate_hz,omitempty"`
	BumpThreshold       *float64 `json:"bump_threshold,omitempty"`
	BumpAccelThreshold  *float64 `json:"bump_accel_threshold,omitempty"`
	BumpWindowSize      *int     `json:"bump_window_size,omitempty"`
	BumpAccelWindowSize *int     `json:"bump_accel_window_size,omitempty"`
	BumpStabilization   *string  `json:"bump_stabilization,omitempty"`
	BumpDesiredVelocity *float64 `json:"bump_desired_velocity,omitempty"`
	BumpTraceLength     *int     `json:"bump_trace_length,omitempty"`

	// Bus params
	BusBackend         *string `json:"bus_backend,omitempty"`
	MQTTBroker         *string `json:"mqtt_broker,omitempty"`
	MQTTConnectTimeout *string `json:"mqtt_connect_timeout,omitempty"`
	BusBufferSize      *int    `json:"bus_buffer_size,omitempty"`

	// Actuator params
	MotorLeftAxis     *int    `json:"motor_left_axis,omitempty"`
	MotorRightAxis    *int    `json:"motor_right_axis,omitempty"`
	MotorLeftDir      *int    `json:"motor_left_dir,omitempty"`
	MotorRightDir     *int    `json:"motor_right_dir,omitempty"`
	SerialBaudRate    *int    `json:"serial_baud_rate,omitempty"`
	SerialReadTimeout *string `json:"serial_read_timeout,omitempty"`

	// Vision params
	VisionSource *string `json:"vision_source,omitempty"`

	// Approach params
	ApproachStopDistanceM *float64 `json:"approach_stop_distance_m,omitempty"`
	ApproachSpeed         *float64 `json:"approach_speed,omitempty"`
	ApproachRateHz        *float64 `json:"approach_rate_hz,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot be
// loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GetPlannerMinDistance() <= 0 || c.GetPlannerMinDistance() > c.GetPlannerMaxDistance() {
		return fmt.Errorf("planner distances must satisfy 0 < min <= max, got %f..%f",
			c.GetPlannerMinDistance(), c.GetPlannerMaxDistance())
	}
	if c.GetPlannerDistanceSteps() < 1 {
		return fmt.Errorf("planner_distance_steps must be at least 1, got %d", c.GetPlannerDistanceSteps())
	}
	if c.GetPlannerMaxWaypoints() < 2 {
		return fmt.Errorf("planner_max_waypoints must be at least 2, got %d", c.GetPlannerMaxWaypoints())
	}
	if c.GetPlanMaxRetries() < 1 {
		return fmt.Errorf("plan_max_retries must be at least 1, got %d", c.GetPlanMaxRetries())
	}

	for name, v := range map[string]*string{
		"plan_backoff":         c.PlanBackoff,
		"grid_stale_after":     c.GridStaleAfter,
		"pose_stale_after":     c.PoseStaleAfter,
		"target_stale_after":   c.TargetStaleAfter,
		"imu_stale_after":      c.IMUStaleAfter,
		"bump_stabilization":   c.BumpStabilization,
		"mqtt_connect_timeout": c.MQTTConnectTimeout,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.GetPlanBackoff() < time.Second {
		return fmt.Errorf("plan_backoff must be at least 1s, got %s", c.GetPlanBackoff())
	}

	if f := c.GetArriveSizeFraction(); f <= 0 || f > 1 {
		return fmt.Errorf("arrive_size_fraction must be in (0, 1], got %f", f)
	}
	if c.GetWheelDiameterMM() <= 0 {
		return fmt.Errorf("wheel_diameter_mm must be positive, got %f", c.GetWheelDiameterMM())
	}
	switch c.GetPublishEstimate() {
	case EstimateOdometric, EstimateInertial:
	default:
		return fmt.Errorf("publish_estimate must be %q or %q, got %q",
			EstimateOdometric, EstimateInertial, c.GetPublishEstimate())
	}

	if c.GetBumpThreshold() <= 0 || c.GetBumpAccelThreshold() <= 0 {
		return fmt.Errorf("bump thresholds must be positive")
	}
	if c.GetBumpWindowSize() < 1 || c.GetBumpAccelWindowSize() < 1 {
		return fmt.Errorf("bump window sizes must be at least 1")
	}

	switch c.GetBusBackend() {
	case BusLocal, BusMQTT:
	default:
		return fmt.Errorf("unsupported bus_backend %q", c.GetBusBackend())
	}
	switch c.GetVisionSource() {
	case VisionLocalCamera, VisionDepthCamera:
	default:
		return fmt.Errorf("unsupported vision_source %q", c.GetVisionSource())
	}
	if !(c.GetApproachStopDistanceM() > 0) {
		return fmt.Errorf("approach_stop_distance_m must be positive")
	}
	if c.GetApproachSpeed() <= 0 {
		return fmt.Errorf("approach_speed must be positive")
	}
	for name, dir := range map[string]int{"motor_left_dir": c.GetMotorLeftDir(), "motor_right_dir": c.GetMotorRightDir()} {
		if dir != 1 && dir != -1 {
			return fmt.Errorf("%s must be 1 or -1, got %d", name, dir)
		}
	}

	return nil
}

func float64Or(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// durationOr parses a duration string, returning def when unset or invalid.
func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetPlannerMinDistance returns the nearest candidate goal distance in meters.
func (c *TuningConfig) GetPlannerMinDistance() float64 {
	return float64Or(c.PlannerMinDistance, 0.4)
}

// GetPlannerMaxDistance returns the farthest candidate goal distance in meters.
func (c *TuningConfig) GetPlannerMaxDistance() float64 {
	return float64Or(c.PlannerMaxDistance, 1.2)
}

// GetPlannerDistanceSteps returns how many distances are sampled between min and max.
func (c *TuningConfig) GetPlannerDistanceSteps() int {
	return intOr(c.PlannerDistanceSteps, 5)
}

// GetPlannerAngleOffsetsDeg returns the heading offsets tried around the target bearing.
func (c *TuningConfig) GetPlannerAngleOffsetsDeg() []float64 {
	if len(c.PlannerAngleOffsetsDeg) == 0 {
		return []float64{-15, 0, 15}
	}
	return append([]float64(nil), c.PlannerAngleOffsetsDeg...)
}

// GetPlannerBearingSpanDeg returns the heading change for a bearing of ±1.
func (c *TuningConfig) GetPlannerBearingSpanDeg() float64 {
	return float64Or(c.PlannerBearingSpanDeg, 45)
}

// GetPlannerAngleWeight returns the score penalty per degree of offset.
func (c *TuningConfig) GetPlannerAngleWeight() float64 {
	return float64Or(c.PlannerAngleWeight, 0.5)
}

// GetPlannerMaxWaypoints returns the simplification limit.
func (c *TuningConfig) GetPlannerMaxWaypoints() int {
	return intOr(c.PlannerMaxWaypoints, 4)
}

// GetPlanRateHz returns the coordinator tick rate.
func (c *TuningConfig) GetPlanRateHz() float64 {
	return float64Or(c.PlanRateHz, 5)
}

// GetPlanMaxRetries returns how many failed planning ticks trigger a backoff.
func (c *TuningConfig) GetPlanMaxRetries() int {
	return intOr(c.PlanMaxRetries, 3)
}

// GetPlanBackoff returns the pause after exhausting retries.
func (c *TuningConfig) GetPlanBackoff() time.Duration {
	return durationOr(c.PlanBackoff, time.Second)
}

// GetGridStaleAfter returns the age after which a grid snapshot is ignored.
func (c *TuningConfig) GetGridStaleAfter() time.Duration {
	return durationOr(c.GridStaleAfter, 2*time.Second)
}

// GetPoseStaleAfter returns the age after which the odometry pose is ignored.
func (c *TuningConfig) GetPoseStaleAfter() time.Duration {
	return durationOr(c.PoseStaleAfter, 2*time.Second)
}

// GetTargetStaleAfter returns the age after which a detection counts as unknown.
func (c *TuningConfig) GetTargetStaleAfter() time.Duration {
	return durationOr(c.TargetStaleAfter, 2*time.Second)
}

// GetArriveSizeFraction returns the target size relative to frame at which pursuit stops.
func (c *TuningConfig) GetArriveSizeFraction() float64 {
	return float64Or(c.ArriveSizeFraction, 0.4)
}

// GetWheelDiameterMM returns the drive wheel diameter.
func (c *TuningConfig) GetWheelDiameterMM() float64 {
	return float64Or(c.WheelDiameterMM, 165)
}

// GetWheelBaseMM returns the distance between the drive wheels.
func (c *TuningConfig) GetWheelBaseMM() float64 {
	return float64Or(c.WheelBaseMM, 400)
}

// GetEstimatorRateHz returns the state estimation loop rate.
func (c *TuningConfig) GetEstimatorRateHz() float64 {
	return float64Or(c.EstimatorRateHz, 50)
}

// GetPublishEstimate returns which pose estimate is published as odometry.
func (c *TuningConfig) GetPublishEstimate() string {
	return stringOr(c.PublishEstimate, EstimateOdometric)
}

// GetIMUStaleAfter returns the age after which an IMU sample is rejected.
func (c *TuningConfig) GetIMUStaleAfter() time.Duration {
	return durationOr(c.IMUStaleAfter, 200*time.Millisecond)
}

// GetBumpRateHz returns the bump detector loop rate.
func (c *TuningConfig) GetBumpRateHz() float64 {
	return float64Or(c.BumpRateHz, 200)
}

// GetBumpThreshold returns the error-rate threshold in m/s.
func (c *TuningConfig) GetBumpThreshold() float64 {
	return float64Or(c.BumpThreshold, 0.2)
}

// GetBumpAccelThreshold returns the error-rate derivative threshold.
func (c *TuningConfig) GetBumpAccelThreshold() float64 {
	return float64Or(c.BumpAccelThreshold, 0.2)
}

// GetBumpWindowSize returns the error moving-average window in samples.
func (c *TuningConfig) GetBumpWindowSize() int {
	return intOr(c.BumpWindowSize, 100)
}

// GetBumpAccelWindowSize returns the derivative averaging window in samples.
func (c *TuningConfig) GetBumpAccelWindowSize() int {
	return intOr(c.BumpAccelWindowSize, 100)
}

// GetBumpStabilization returns the grace period after a setpoint change.
func (c *TuningConfig) GetBumpStabilization() time.Duration {
	return durationOr(c.BumpStabilization, time.Second)
}

// GetBumpDesiredVelocity returns the initial drive setpoint in m/s.
func (c *TuningConfig) GetBumpDesiredVelocity() float64 {
	return float64Or(c.BumpDesiredVelocity, 0.5)
}

// GetBumpTraceLength returns how many samples the detector keeps for plots.
func (c *TuningConfig) GetBumpTraceLength() int {
	return intOr(c.BumpTraceLength, 2000)
}

// GetBusBackend returns the message bus implementation to use.
func (c *TuningConfig) GetBusBackend() string {
	return stringOr(c.BusBackend, BusLocal)
}

// GetMQTTBroker returns the MQTT broker URL.
func (c *TuningConfig) GetMQTTBroker() string {
	return stringOr(c.MQTTBroker, "tcp://localhost:1883")
}

// GetMQTTConnectTimeout returns how long to wait for the broker at startup.
func (c *TuningConfig) GetMQTTConnectTimeout() time.Duration {
	return durationOr(c.MQTTConnectTimeout, 5*time.Second)
}

// GetBusBufferSize returns the per-subscriber channel buffer.
func (c *TuningConfig) GetBusBufferSize() int {
	return intOr(c.BusBufferSize, 16)
}

// GetMotorLeftAxis returns the driver axis of the left wheel.
func (c *TuningConfig) GetMotorLeftAxis() int {
	return intOr(c.MotorLeftAxis, 0)
}

// GetMotorRightAxis returns the driver axis of the right wheel.
func (c *TuningConfig) GetMotorRightAxis() int {
	return intOr(c.MotorRightAxis, 1)
}

// GetMotorLeftDir returns the left wheel direction multiplier.
func (c *TuningConfig) GetMotorLeftDir() int {
	return intOr(c.MotorLeftDir, 1)
}

// GetMotorRightDir returns the right wheel direction multiplier.
func (c *TuningConfig) GetMotorRightDir() int {
	return intOr(c.MotorRightDir, 1)
}

// GetSerialBaudRate returns the motor driver UART speed.
func (c *TuningConfig) GetSerialBaudRate() int {
	return intOr(c.SerialBaudRate, 115200)
}

// GetSerialReadTimeout bounds each wait for a motor driver reply.
func (c *TuningConfig) GetSerialReadTimeout() time.Duration {
	return durationOr(c.SerialReadTimeout, 100*time.Millisecond)
}

// GetVisionSource returns the configured frame source variant.
func (c *TuningConfig) GetVisionSource() string {
	return stringOr(c.VisionSource, VisionLocalCamera)
}

// GetApproachStopDistanceM returns the centre depth at which an approach stops.
func (c *TuningConfig) GetApproachStopDistanceM() float64 {
	return float64Or(c.ApproachStopDistanceM, 0.08)
}

// GetApproachSpeed returns the forward speed of an approach, m/s.
func (c *TuningConfig) GetApproachSpeed() float64 {
	return float64Or(c.ApproachSpeed, 0.3)
}

// GetApproachRateHz returns how often an approach re-reads depth.
func (c *TuningConfig) GetApproachRateHz() float64 {
	return float64Or(c.ApproachRateHz, 30)
}
