// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the blboot configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openchirp/blboot"
	"github.com/openchirp/blboot/serialport"
)

// DefaultPath is read when no config file is named.
const DefaultPath = "blboot.yaml"

// Config holds all blboot configuration.
type Config struct {
	Port      PortConfig      `yaml:"port"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Log       LogConfig       `yaml:"log"`

	path string
}

type PortConfig struct {
	Path         string        `yaml:"path"` // e.g. /dev/ttyUSB0
	BaudRate     int           `yaml:"baud_rate"`
	Driver       string        `yaml:"driver"` // "native" or "termios"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type HandshakeConfig struct {
	Attempts       int           `yaml:"attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// ProtocolConfig selects a built-in profile and adjusts it.
type ProtocolConfig struct {
	Profile  string                   `yaml:"profile"`  // "bl60x" or "checksummed"
	Checksum string                   `yaml:"checksum"` // overrides the request checksum
	Commands map[string]CommandConfig `yaml:"commands"`
}

// CommandConfig overrides one entry of the command table. Zero values keep
// the profile's setting.
type CommandConfig struct {
	Code    *int          `yaml:"code,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	PerKiB  time.Duration `yaml:"per_kib,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"` // zerolog level name
}

// DefaultConfig returns a config with the BL60x defaults.
func DefaultConfig() *Config {
	port := serialport.DefaultConfig()
	return &Config{
		Port: PortConfig{
			BaudRate:     port.Baud,
			Driver:       string(port.Driver),
			ReadTimeout:  port.ReadTimeout,
			WriteTimeout: port.WriteTimeout,
		},
		Handshake: HandshakeConfig{
			Attempts:       blboot.DefaultAttempts,
			AttemptTimeout: blboot.DefaultAttemptTimeout,
		},
		Protocol: ProtocolConfig{
			Profile: "bl60x",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from a YAML file and applies environment overrides.
// A missing file leaves the defaults in place; a malformed one is an error.
func Load(path string, log zerolog.Logger) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("config loaded")
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: SERIAL_PORT, BAUD_RATE, BLBOOT_DRIVER, BLBOOT_PROFILE,
// BLBOOT_LOG_LEVEL
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SERIAL_PORT"); v != "" {
		c.Port.Path = v
	}
	if v := os.Getenv("BAUD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port.BaudRate = n
		}
	}
	if v := os.Getenv("BLBOOT_DRIVER"); v != "" {
		c.Port.Driver = v
	}
	if v := os.Getenv("BLBOOT_PROFILE"); v != "" {
		c.Protocol.Profile = v
	}
	if v := os.Getenv("BLBOOT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Serial returns the port settings.
func (c *Config) Serial() serialport.Config {
	return serialport.Config{
		Path:         c.Port.Path,
		Baud:         c.Port.BaudRate,
		Driver:       serialport.Driver(c.Port.Driver),
		ReadTimeout:  c.Port.ReadTimeout,
		WriteTimeout: c.Port.WriteTimeout,
	}
}

// Profile resolves the configured protocol profile with its overrides.
func (c *Config) Profile() (blboot.Profile, error) {
	p, err := blboot.LookupProfile(c.Protocol.Profile)
	if err != nil {
		return blboot.Profile{}, err
	}
	if c.Protocol.Checksum != "" {
		sum, err := blboot.LookupChecksum(c.Protocol.Checksum)
		if err != nil {
			return blboot.Profile{}, err
		}
		p.Request.Checksum = sum
		if p.ResponseFormat.Checksum.Size > 0 {
			p.ResponseFormat.Checksum = sum
		}
	}
	for name, o := range c.Protocol.Commands {
		cmd := blboot.Command(name)
		spec, err := p.Command(cmd)
		if err != nil {
			return blboot.Profile{}, fmt.Errorf("config: %w", err)
		}
		if o.Code != nil {
			if *o.Code < 0 || *o.Code > 0xFF {
				return blboot.Profile{}, fmt.Errorf("config: %w: code %d for %s", blboot.ErrBadArguments, *o.Code, name)
			}
			spec.Code = byte(*o.Code)
		}
		if o.Timeout > 0 {
			spec.Timeout = o.Timeout
		}
		if o.PerKiB > 0 {
			spec.PerKiB = o.PerKiB
		}
		p.Commands[cmd] = spec
	}
	return p, nil
}

// Options returns the device options implied by the config.
func (c *Config) Options() ([]blboot.Option, error) {
	p, err := c.Profile()
	if err != nil {
		return nil, err
	}
	return []blboot.Option{
		blboot.WithProfile(p),
		blboot.WithAttempts(c.Handshake.Attempts, c.Handshake.AttemptTimeout),
	}, nil
}

// Level parses the configured log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
