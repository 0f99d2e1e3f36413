// Package config loads the agent's tuning file. All fields are pointers so
// a partial JSON file overrides only what it names; everything else keeps
// its default. Flags beat file values, file values beat defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the agent tuning schema.
type Config struct {
	// Backend connectivity
	APIBase   *string `json:"api_base,omitempty"`
	WSURL     *string `json:"ws_url,omitempty"` // derived from api_base when omitted
	AuthToken *string `json:"auth_token,omitempty"`
	IngestKey *string `json:"ingest_key,omitempty"`

	// Device
	DeviceID   *string `json:"device_id,omitempty"`
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`

	// Pipeline tuning
	PingInterval  *string `json:"ping_interval,omitempty"`  // duration string like "5s"
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "30s"
	PruneAfter    *string `json:"prune_after,omitempty"`    // duration string like "168h"

	// Local surface
	Listen      *string `json:"listen,omitempty"`
	JournalPath *string `json:"journal_path,omitempty"`

	// Map defaults for the empty viewport
	DefaultLat  *float64 `json:"default_lat,omitempty"`
	DefaultLng  *float64 `json:"default_lng,omitempty"`
	DefaultZoom *float64 `json:"default_zoom,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and stay under 1MB. Unknown fields are rejected so typos fail
// loudly at startup instead of silently keeping a default.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	cfg := Empty()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that can be checked without the rest of the
// runtime: duration strings parse, numeric ranges make sense.
func (c *Config) Validate() error {
	for name, v := range map[string]*string{
		"ping_interval":  c.PingInterval,
		"flush_interval": c.FlushInterval,
		"prune_after":    c.PruneAfter,
	} {
		if v == nil {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", name, *v)
		}
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud_rate %d", *c.BaudRate)
	}
	if c.DefaultLat != nil && (*c.DefaultLat < -90 || *c.DefaultLat > 90) {
		return fmt.Errorf("invalid default_lat %v", *c.DefaultLat)
	}
	if c.DefaultLng != nil && (*c.DefaultLng < -180 || *c.DefaultLng > 180) {
		return fmt.Errorf("invalid default_lng %v", *c.DefaultLng)
	}
	return nil
}

// Merge overlays other on top of c: any field other sets wins.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.APIBase != nil {
		c.APIBase = other.APIBase
	}
	if other.WSURL != nil {
		c.WSURL = other.WSURL
	}
	if other.AuthToken != nil {
		c.AuthToken = other.AuthToken
	}
	if other.IngestKey != nil {
		c.IngestKey = other.IngestKey
	}
	if other.DeviceID != nil {
		c.DeviceID = other.DeviceID
	}
	if other.SerialPort != nil {
		c.SerialPort = other.SerialPort
	}
	if other.BaudRate != nil {
		c.BaudRate = other.BaudRate
	}
	if other.PingInterval != nil {
		c.PingInterval = other.PingInterval
	}
	if other.FlushInterval != nil {
		c.FlushInterval = other.FlushInterval
	}
	if other.PruneAfter != nil {
		c.PruneAfter = other.PruneAfter
	}
	if other.Listen != nil {
		c.Listen = other.Listen
	}
	if other.JournalPath != nil {
		c.JournalPath = other.JournalPath
	}
	if other.DefaultLat != nil {
		c.DefaultLat = other.DefaultLat
	}
	if other.DefaultLng != nil {
		c.DefaultLng = other.DefaultLng
	}
	if other.DefaultZoom != nil {
		c.DefaultZoom = other.DefaultZoom
	}
}

// String returns the value of s, or def when unset.
func String(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// Float returns the value of f, or def when unset.
func Float(f *float64, def float64) float64 {
	if f == nil {
		return def
	}
	return *f
}

// Int returns the value of i, or def when unset.
func Int(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}

// Duration parses the duration in s, or returns def when unset or invalid.
// Validate catches invalid values at load time; this is the last line.
func Duration(s *string, def time.Duration) time.Duration {
	if s == nil {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
