package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, "agent.json", `{"api_base": "https://api.example.edu", "ping_interval": "10s"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBase == nil || *cfg.APIBase != "https://api.example.edu" {
		t.Errorf("api_base = %v", cfg.APIBase)
	}
	if got := Duration(cfg.PingInterval, 5*time.Second); got != 10*time.Second {
		t.Errorf("ping_interval = %v, want 10s", got)
	}
	// unset fields stay nil so defaults apply
	if cfg.DeviceID != nil {
		t.Errorf("device_id = %v, want unset", cfg.DeviceID)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "agent.json", `{"api_bse": "typo"}`)
	if _, err := Load(path); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "agent.yaml", `{}`)
	if _, err := Load(path); err == nil {
		t.Error("non-json extension accepted")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "agent.json", `{"ping_interval": "fast"}`)
	if _, err := Load(path); err == nil {
		t.Error("unparseable duration accepted")
	}

	path = writeConfig(t, "agent2.json", `{"ping_interval": "-5s"}`)
	if _, err := Load(path); err == nil {
		t.Error("negative duration accepted")
	}
}

func TestLoadRejectsOutOfRangeCoords(t *testing.T) {
	path := writeConfig(t, "agent.json", `{"default_lat": 120.0}`)
	if _, err := Load(path); err == nil {
		t.Error("latitude beyond 90 accepted")
	}
}

func TestMergeOverlays(t *testing.T) {
	base := Empty()
	lat := 6.9271
	device := "dev1"
	base.DefaultLat = &lat
	base.DeviceID = &device

	newDevice := "dev2"
	base.Merge(&Config{DeviceID: &newDevice})

	if *base.DeviceID != "dev2" {
		t.Errorf("device = %q, want override", *base.DeviceID)
	}
	if *base.DefaultLat != 6.9271 {
		t.Errorf("lat = %v, want untouched", *base.DefaultLat)
	}
}

func TestAccessorDefaults(t *testing.T) {
	if got := String(nil, "fallback"); got != "fallback" {
		t.Errorf("String default = %q", got)
	}
	if got := Float(nil, 13); got != 13 {
		t.Errorf("Float default = %v", got)
	}
	if got := Int(nil, 9600); got != 9600 {
		t.Errorf("Int default = %v", got)
	}
	if got := Duration(nil, 5*time.Second); got != 5*time.Second {
		t.Errorf("Duration default = %v", got)
	}
}
