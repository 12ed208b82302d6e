package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the rotencd daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides and for environments where a file is awkward. Defaults and
// validation are centralized here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Encoder pins and decode algorithm
	Encoder EncoderConfig `yaml:"encoder"`

	// Push button (optional)
	Button ButtonConfig `yaml:"button"`

	// Daemon loop configuration
	Daemon DaemonConfig `yaml:"daemon"`

	// IPC event feed
	IPC IPCConfig `yaml:"ipc"`

	// CamillaDSP volume sink (optional)
	CamillaDSP CamillaDSPConfig `yaml:"camilladsp"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type EncoderConfig struct {
	PinA int    `yaml:"pin_a"`
	PinB int    `yaml:"pin_b"`
	Mode string `yaml:"mode"` // single-edge | lookup-table | half-step | full-step

	// SensitivityMS filters A-edge re-triggers in single-edge mode. The
	// table-driven modes ignore it.
	SensitivityMS int `yaml:"sensitivity_ms"`
}

type ButtonConfig struct {
	Pin        int `yaml:"pin"` // -1 disables the button
	DebounceMS int `yaml:"debounce_ms"`
}

type DaemonConfig struct {
	UpdateHz int `yaml:"update_hz"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type CamillaDSPConfig struct {
	Enabled   bool    `yaml:"enabled"`
	WsURL     string  `yaml:"ws_url"`
	TimeoutMS int     `yaml:"timeout_ms"`
	MinDB     float64 `yaml:"min_db"`
	MaxDB     float64 `yaml:"max_db"`

	DbPerStep          float64 `yaml:"db_per_step"`
	VelocityWindowMS   int     `yaml:"velocity_window_ms"`
	VelocityThreshold  int     `yaml:"velocity_threshold"`
	VelocityMultiplier float64 `yaml:"velocity_multiplier"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go and the CLI defaults.
func DefaultConfig() Config {
	return Config{
		Encoder: EncoderConfig{
			PinA:          defaultPinA,
			PinB:          defaultPinB,
			Mode:          string(defaultDecodeMode),
			SensitivityMS: defaultSensitivityMS,
		},
		Button: ButtonConfig{
			Pin:        defaultButtonPin,
			DebounceMS: defaultButtonDebounceMS,
		},
		Daemon: DaemonConfig{
			UpdateHz: defaultUpdateHz,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		CamillaDSP: CamillaDSPConfig{
			Enabled:            false,
			WsURL:              defaultWsURL,
			TimeoutMS:          defaultReadTimeoutMS,
			MinDB:              defaultMinDB,
			MaxDB:              defaultMaxDB,
			DbPerStep:          defaultDbPerStep,
			VelocityWindowMS:   defaultVelocityWindowMS,
			VelocityThreshold:  defaultVelocityThreshold,
			VelocityMultiplier: defaultVelocityMultiplier,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true), and
// trailing garbage after the document is an error.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Flags pass pointers; each override is only applied if the pointer is
// non-nil (even for zero values).
type FlagOverrides struct {
	PinA          *int
	PinB          *int
	Mode          *string
	SensitivityMS *int

	ButtonPin        *int
	ButtonDebounceMS *int

	UpdateHz      *int
	IPCSocketPath *string

	CamillaEnabled   *bool
	CamillaWsURL     *string
	CamillaTimeoutMS *int
	CamillaMinDB     *float64
	CamillaMaxDB     *float64
	DbPerStep        *float64

	LogLevel *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.PinA != nil {
		cfg.Encoder.PinA = *o.PinA
	}
	if o.PinB != nil {
		cfg.Encoder.PinB = *o.PinB
	}
	if o.Mode != nil {
		cfg.Encoder.Mode = *o.Mode
	}
	if o.SensitivityMS != nil {
		cfg.Encoder.SensitivityMS = *o.SensitivityMS
	}
	if o.ButtonPin != nil {
		cfg.Button.Pin = *o.ButtonPin
	}
	if o.ButtonDebounceMS != nil {
		cfg.Button.DebounceMS = *o.ButtonDebounceMS
	}
	if o.UpdateHz != nil {
		cfg.Daemon.UpdateHz = *o.UpdateHz
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.CamillaEnabled != nil {
		cfg.CamillaDSP.Enabled = *o.CamillaEnabled
	}
	if o.CamillaWsURL != nil {
		cfg.CamillaDSP.WsURL = *o.CamillaWsURL
	}
	if o.CamillaTimeoutMS != nil {
		cfg.CamillaDSP.TimeoutMS = *o.CamillaTimeoutMS
	}
	if o.CamillaMinDB != nil {
		cfg.CamillaDSP.MinDB = *o.CamillaMinDB
	}
	if o.CamillaMaxDB != nil {
		cfg.CamillaDSP.MaxDB = *o.CamillaMaxDB
	}
	if o.DbPerStep != nil {
		cfg.CamillaDSP.DbPerStep = *o.DbPerStep
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Encoder
	if c.Encoder.PinA < 0 || c.Encoder.PinB < 0 {
		return errors.New("encoder.pin_a and encoder.pin_b must be assigned")
	}
	if c.Encoder.PinA == c.Encoder.PinB {
		return fmt.Errorf("encoder.pin_a and encoder.pin_b are both %d", c.Encoder.PinA)
	}
	if _, err := parseDecodeMode(c.Encoder.Mode); err != nil {
		return fmt.Errorf("encoder.mode: %w", err)
	}
	if c.Encoder.SensitivityMS < 0 {
		return errors.New("encoder.sensitivity_ms must be >= 0")
	}

	// Button
	if c.Button.Pin != PinNone {
		if c.Button.Pin < 0 {
			return fmt.Errorf("button.pin must be a valid pin or %d for none", PinNone)
		}
		if c.Button.Pin == c.Encoder.PinA || c.Button.Pin == c.Encoder.PinB {
			return fmt.Errorf("button.pin %d collides with an encoder pin", c.Button.Pin)
		}
	}
	if c.Button.DebounceMS < 0 {
		return errors.New("button.debounce_ms must be >= 0")
	}

	// Daemon
	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// CamillaDSP
	if c.CamillaDSP.Enabled {
		if c.CamillaDSP.WsURL == "" {
			return errors.New("camilladsp.ws_url must not be empty")
		}
		if c.CamillaDSP.TimeoutMS <= 0 {
			return errors.New("camilladsp.timeout_ms must be > 0")
		}
		if c.CamillaDSP.MinDB > c.CamillaDSP.MaxDB {
			return errors.New("camilladsp.min_db must be <= camilladsp.max_db")
		}
		if c.CamillaDSP.DbPerStep <= 0 {
			return errors.New("camilladsp.db_per_step must be > 0")
		}
		if c.CamillaDSP.VelocityThreshold < 0 {
			return errors.New("camilladsp.velocity_threshold must be >= 0")
		}
		if c.CamillaDSP.VelocityMultiplier < 1 {
			return errors.New("camilladsp.velocity_multiplier must be >= 1")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToEncoderOptions converts the validated config into session options.
func (c *Config) ToEncoderOptions() EncoderOptions {
	return EncoderOptions{
		PinA:           c.Encoder.PinA,
		PinB:           c.Encoder.PinB,
		Mode:           DecodeMode(c.Encoder.Mode),
		Sensitivity:    time.Duration(c.Encoder.SensitivityMS) * time.Millisecond,
		ButtonPin:      c.Button.Pin,
		ButtonDebounce: time.Duration(c.Button.DebounceMS) * time.Millisecond,
	}
}

// ToSinkTuning converts the validated config into daemon sink tuning.
func (c *Config) ToSinkTuning() sinkTuning {
	return sinkTuning{
		dbPerStep:          c.CamillaDSP.DbPerStep,
		velocityWindow:     time.Duration(c.CamillaDSP.VelocityWindowMS) * time.Millisecond,
		velocityThreshold:  c.CamillaDSP.VelocityThreshold,
		velocityMultiplier: c.CamillaDSP.VelocityMultiplier,
	}
}
