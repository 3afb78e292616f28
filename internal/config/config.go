// Copyright 2026 The Armored Token authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the hardware and handshake settings of tokenctl.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/transparency-dev/armored-token/api"
	"github.com/transparency-dev/armored-token/gpio"
	"github.com/transparency-dev/armored-token/internal/poll"
	"github.com/transparency-dev/armored-token/internal/token"
)

// Config is the on-disk configuration. Fields left out of a YAML document
// keep their Default value.
type Config struct {
	Device        string `yaml:"device"`
	BaseAddress   uint64 `yaml:"base_address"`
	StatusOffset  uint32 `yaml:"status_offset"`
	ControlOffset uint32 `yaml:"control_offset"`

	// ControlMask is OR-ed into every control register write.
	ControlMask uint32        `yaml:"control_mask"`
	SettleDelay time.Duration `yaml:"settle_delay"`

	PollTimeout  time.Duration `yaml:"poll_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     uint64        `yaml:"max_polls"`

	// WaitFinalDataReady keeps waiting for the core to raise DTI data ready
	// again after the last ciphertext chunk has been consumed.
	WaitFinalDataReady bool `yaml:"wait_final_data_ready"`
}

// Default returns the configuration of the reference Zynq design.
func Default() Config {
	return Config{
		Device:             gpio.DefaultDevice,
		BaseAddress:        api.GPIO_0_BASE_ADDR,
		StatusOffset:       api.STATUS_OFFSET,
		ControlOffset:      api.CONTROL_OFFSET,
		SettleDelay:        token.DefaultSettleDelay,
		PollTimeout:        time.Second,
		WaitFinalDataReady: true,
	}
}

// Load reads a YAML configuration from path, an empty path returns the
// default configuration.
func Load(path string) (c Config, err error) {
	c = Default()

	if len(path) == 0 {
		return
	}

	buf, err := os.ReadFile(path)

	if err != nil {
		return c, fmt.Errorf("could not read configuration, %w", err)
	}

	return Parse(buf)
}

// Parse decodes a YAML configuration over the defaults and validates it.
func Parse(buf []byte) (c Config, err error) {
	c = Default()

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err = dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("invalid configuration, %w", err)
	}

	return c, c.Validate()
}

// Validate checks that the configuration is self-consistent.
func (c Config) Validate() error {
	if c.BaseAddress > 1<<63-1 {
		return fmt.Errorf("invalid base address %#x", c.BaseAddress)
	}

	if err := c.GPIO().Validate(os.Getpagesize()); err != nil {
		return fmt.Errorf("invalid register layout, %w", err)
	}

	if c.SettleDelay < 0 || c.PollTimeout < 0 || c.PollInterval < 0 {
		return errors.New("durations must not be negative")
	}

	return c.Token().Validate()
}

// GPIO returns the register mapping settings.
func (c Config) GPIO() gpio.Config {
	return gpio.Config{
		Device:        c.Device,
		Base:          int64(c.BaseAddress),
		StatusOffset:  int(c.StatusOffset),
		ControlOffset: int(c.ControlOffset),
	}
}

// Token returns the handshake settings.
func (c Config) Token() token.Config {
	return token.Config{
		ControlMask: c.ControlMask,
		SettleDelay: c.SettleDelay,
		Poll: poll.Policy{
			Timeout:  c.PollTimeout,
			Interval: c.PollInterval,
			MaxPolls: c.MaxPolls,
		},
		WaitFinalDataReady: c.WaitFinalDataReady,
	}
}
