package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyTuningConfig_Defaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetPlannerMinDistance() != 0.4 {
		t.Errorf("GetPlannerMinDistance() = %f, want 0.4", cfg.GetPlannerMinDistance())
	}
	if cfg.GetPlannerMaxDistance() != 1.2 {
		t.Errorf("GetPlannerMaxDistance() = %f, want 1.2", cfg.GetPlannerMaxDistance())
	}
	if cfg.GetPlannerDistanceSteps() != 5 {
		t.Errorf("GetPlannerDistanceSteps() = %d, want 5", cfg.GetPlannerDistanceSteps())
	}
	if got := cfg.GetPlannerAngleOffsetsDeg(); len(got) != 3 || got[0] != -15 || got[2] != 15 {
		t.Errorf("GetPlannerAngleOffsetsDeg() = %v, want [-15 0 15]", got)
	}
	if cfg.GetPlanMaxRetries() != 3 {
		t.Errorf("GetPlanMaxRetries() = %d, want 3", cfg.GetPlanMaxRetries())
	}
	if cfg.GetPlanBackoff() != time.Second {
		t.Errorf("GetPlanBackoff() = %s, want 1s", cfg.GetPlanBackoff())
	}
	if cfg.GetWheelDiameterMM() != 165 {
		t.Errorf("GetWheelDiameterMM() = %f, want 165", cfg.GetWheelDiameterMM())
	}
	if cfg.GetBumpRateHz() != 200 {
		t.Errorf("GetBumpRateHz() = %f, want 200", cfg.GetBumpRateHz())
	}
	if cfg.GetBumpWindowSize() != 100 {
		t.Errorf("GetBumpWindowSize() = %d, want 100", cfg.GetBumpWindowSize())
	}
	if cfg.GetPublishEstimate() != EstimateOdometric {
		t.Errorf("GetPublishEstimate() = %q, want %q", cfg.GetPublishEstimate(), EstimateOdometric)
	}
	if cfg.GetBusBackend() != BusLocal {
		t.Errorf("GetBusBackend() = %q, want %q", cfg.GetBusBackend(), BusLocal)
	}
	if cfg.GetVisionSource() != VisionLocalCamera {
		t.Errorf("GetVisionSource() = %q, want %q", cfg.GetVisionSource(), VisionLocalCamera)
	}
	if cfg.GetApproachStopDistanceM() != 0.08 {
		t.Errorf("GetApproachStopDistanceM() = %f, want 0.08", cfg.GetApproachStopDistanceM())
	}
	if cfg.GetApproachSpeed() != 0.3 {
		t.Errorf("GetApproachSpeed() = %f, want 0.3", cfg.GetApproachSpeed())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestGetPlannerAngleOffsetsDeg_ReturnsCopy(t *testing.T) {
	cfg := &TuningConfig{PlannerAngleOffsetsDeg: []float64{-10, 10}}
	got := cfg.GetPlannerAngleOffsetsDeg()
	got[0] = 99
	if cfg.PlannerAngleOffsetsDeg[0] != -10 {
		t.Errorf("caller mutation leaked into config: %v", cfg.PlannerAngleOffsetsDeg)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "planner_max_waypoints": 6,
  "plan_rate_hz": 10,
  "plan_backoff": "2s",
  "bump_threshold": 0.3,
  "bus_backend": "mqtt",
  "mqtt_broker": "tcp://robot.local:1883"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetPlannerMaxWaypoints() != 6 {
		t.Errorf("GetPlannerMaxWaypoints() = %d, want 6", cfg.GetPlannerMaxWaypoints())
	}
	if cfg.GetPlanRateHz() != 10 {
		t.Errorf("GetPlanRateHz() = %f, want 10", cfg.GetPlanRateHz())
	}
	if cfg.GetPlanBackoff() != 2*time.Second {
		t.Errorf("GetPlanBackoff() = %s, want 2s", cfg.GetPlanBackoff())
	}
	if cfg.GetBumpThreshold() != 0.3 {
		t.Errorf("GetBumpThreshold() = %f, want 0.3", cfg.GetBumpThreshold())
	}
	if cfg.GetBusBackend() != BusMQTT {
		t.Errorf("GetBusBackend() = %q, want mqtt", cfg.GetBusBackend())
	}
	if cfg.GetMQTTBroker() != "tcp://robot.local:1883" {
		t.Errorf("GetMQTTBroker() = %q", cfg.GetMQTTBroker())
	}
	// Unset fields keep defaults
	if cfg.GetWheelBaseMM() != 400 {
		t.Errorf("GetWheelBaseMM() = %f, want 400", cfg.GetWheelBaseMM())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", write("config.yaml", "{}")},
		{"missing file", filepath.Join(tmpDir, "missing.json")},
		{"bad json", write("bad.json", "{not json")},
		{"bad duration", write("dur.json", `{"plan_backoff": "soon"}`)},
		{"backoff too short", write("short.json", `{"plan_backoff": "100ms"}`)},
		{"bad estimate", write("est.json", `{"publish_estimate": "gps"}`)},
		{"bad backend", write("bus.json", `{"bus_backend": "zeromq"}`)},
		{"bad vision", write("vision.json", `{"vision_source": "lidar"}`)},
		{"bad direction", write("dir.json", `{"motor_left_dir": 2}`)},
		{"inverted distances", write("dist.json", `{"planner_min_distance_m": 2, "planner_max_distance_m": 1}`)},
		{"zero window", write("win.json", `{"bump_window_size": 0}`)},
		{"zero stop distance", write("stop.json", `{"approach_stop_distance_m": 0}`)},
		{"reverse approach", write("speed.json", `{"approach_speed": -0.3}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadTuningConfig(tt.path); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	tmpDir := t.TempDir()
	p := filepath.Join(tmpDir, "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(p, big, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTuningConfig(p); err == nil {
		t.Error("expected error for oversized config")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.PlannerMinDistance == nil || *cfg.PlannerMinDistance != 0.4 {
		t.Errorf("defaults file should set planner_min_distance_m 0.4, got %v", cfg.PlannerMinDistance)
	}
	if cfg.GetBumpStabilization() != time.Second {
		t.Errorf("GetBumpStabilization() = %s, want 1s", cfg.GetBumpStabilization())
	}
	if cfg.GetIMUStaleAfter() != 200*time.Millisecond {
		t.Errorf("GetIMUStaleAfter() = %s, want 200ms", cfg.GetIMUStaleAfter())
	}
}
