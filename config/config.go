/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package config is the CLI collaborator: it parses flags and an optional
// configuration file via spf13/cobra and spf13/viper into the flat Config
// struct the core consumes. Nothing under socket, poller, ratelimit, or
// workerpool imports this package.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/nabbar/bottlerocket/network/protocol"
	"github.com/nabbar/bottlerocket/units"
)

// Mode selects which driver renders a run.
type Mode string

const (
	ModePerf Mode = "perf"
	ModeChat Mode = "chat"
)

// Role mirrors socket.Role at the configuration boundary so this package
// does not need to import socket just to describe a flag.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
	RolePeer   Role = "peer"
)

// Config is the parsed, validated configuration the core consumes. Field
// names follow the CLI option table verbatim.
type Config struct {
	Mode      Mode                     `mapstructure:"mode"`
	Role      Role                     `mapstructure:"role"`
	Transport protocol.NetworkProtocol `mapstructure:"transport"`

	Bind    string `mapstructure:"bind"`
	Connect string `mapstructure:"connect"`

	Parallel int `mapstructure:"parallel"`

	Rate  string `mapstructure:"rate"`
	Bytes string `mapstructure:"bytes"`
	Time  string `mapstructure:"time"`

	Affinity  uint64 `mapstructure:"affinity"`
	Backlog   int    `mapstructure:"backlog"`
	TimeoutMs int    `mapstructure:"timeout_ms"`

	RateBps     uint64 `mapstructure:"-"`
	ByteLimit   uint64 `mapstructure:"-"`
	TimeLimitUs uint64 `mapstructure:"-"`
}

// Default returns a Config populated with the same defaults the perf mode
// driver falls back to when a flag is left unset.
func Default() Config {
	return Config{
		Mode:      ModePerf,
		Role:      RoleClient,
		Transport: protocol.NetworkTCP,
		Parallel:  1,
		Rate:      "0",
		Bytes:     "0",
		Time:      "0",
		Backlog:   128,
		TimeoutMs: 1000,
	}
}

// Validate checks field combinations flag parsing cannot express through flag
// types alone, and resolves the human-readable unit strings into the
// numeric fields the core reads.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePerf, ModeChat:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	switch c.Role {
	case RoleClient, RoleServer, RolePeer:
	default:
		return fmt.Errorf("config: unknown role %q", c.Role)
	}

	if !c.Transport.IsValid() {
		return fmt.Errorf("config: unsupported transport %q", c.Transport.String())
	}

	if (c.Role == RoleClient || c.Role == RolePeer) && c.Connect == "" {
		return fmt.Errorf("config: connect address is required for role %q", c.Role)
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("config: parallel must be >= 1, got %d", c.Parallel)
	}

	rate, err := units.ParseBitrate(c.Rate)
	if err != nil {
		return fmt.Errorf("config: rate: %w", err)
	}
	c.RateBps = rate

	bytes, err := units.ParseBytes(c.Bytes)
	if err != nil {
		return fmt.Errorf("config: bytes: %w", err)
	}
	c.ByteLimit = bytes

	micros, err := units.ParseMicros(c.Time)
	if err != nil {
		return fmt.Errorf("config: time: %w", err)
	}
	c.TimeLimitUs = micros

	return nil
}

// DecodeHooks returns the mapstructure decode hooks viper should apply when
// unmarshaling into Config, composed with protocol.NetworkProtocol's own hook.
func DecodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		protocol.ViperDecoderHook(),
	))
}
