// Package sdk is the client-side facade embedded in mobile host apps: it
// assembles and emits signed telemetry, fetches policy, evaluates decisions
// locally, and validates SPKI pins.
package sdk

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/panthersecurity/panther/pkg/pinning"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// PinningConfig is the pinning block of a client config. RotatedAt stays a
// string here; Pinset parses it.
type PinningConfig struct {
	CurrentSPKIHashes  []string `yaml:"current_spki_hashes"`
	PreviousSPKIHashes []string `yaml:"previous_spki_hashes"`
	RotatedAt          string   `yaml:"rotated_at,omitempty"`
	RotationWindowDays *int     `yaml:"rotation_window_days,omitempty"`
}

// Pinset converts the block to the domain pinset. An empty or unparseable
// rotated_at leaves the rotation window closed.
func (c PinningConfig) Pinset() pinning.Pinset {
	p := pinning.Pinset{
		CurrentSPKIHashes:  c.CurrentSPKIHashes,
		PreviousSPKIHashes: c.PreviousSPKIHashes,
		RotationWindowDays: c.RotationWindowDays,
	}
	if t, err := time.Parse(time.RFC3339, c.RotatedAt); err == nil {
		utc := t.UTC()
		p.RotatedAt = &utc
	}
	return p
}

// Config identifies the app and points the client at the control plane.
// Platform routes policy lookups; Device identifies the hardware on emitted
// events.
type Config struct {
	AppID      string
	AppVersion string
	Env        string
	Platform   telemetry.Platform
	BaseURL    string
	APIToken   string
	Device     telemetry.DeviceInfo
	Pinning    *PinningConfig
}

// fileConfig is the YAML shape of a client config file.
type fileConfig struct {
	AppID      string `yaml:"app_id"`
	AppVersion string `yaml:"app_version"`
	Env        string `yaml:"env"`
	Platform   string `yaml:"platform"`
	BaseURL    string `yaml:"base_url"`
	APIToken   string `yaml:"api_token"`
	Device     struct {
		Platform  string `yaml:"platform"`
		OSVersion string `yaml:"os_version"`
		Model     string `yaml:"model"`
	} `yaml:"device"`
	Pinning *PinningConfig `yaml:"pinning"`
}

// LoadConfig reads a YAML client config file. A device block that omits its
// platform inherits the top-level one.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read client config: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Config{}, fmt.Errorf("failed to parse client config: %w", err)
	}

	cfg := Config{
		AppID:      f.AppID,
		AppVersion: f.AppVersion,
		Env:        f.Env,
		Platform:   telemetry.Platform(f.Platform),
		BaseURL:    f.BaseURL,
		APIToken:   f.APIToken,
		Device: telemetry.DeviceInfo{
			Platform:  telemetry.Platform(f.Device.Platform),
			OSVersion: f.Device.OSVersion,
			Model:     f.Device.Model,
		},
		Pinning: f.Pinning,
	}
	if cfg.Device.Platform == "" {
		cfg.Device.Platform = cfg.Platform
	}
	return cfg, nil
}
