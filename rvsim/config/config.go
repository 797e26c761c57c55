// Copyright 2026 The gVisor Authors.
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

// Package config provides basic infrastructure to set configuration settings
// for rvsim. Each setting that can be changed from the command line must have
// a flag, and may also be set in a TOML configuration file passed with
// --config. Flags given on the command line override the file.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
)

// Config holds configuration that is not part of the simulated programs.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name and a toml tag with the file key.
//  3. Register a new flag in flags.go, with the same name and add a
//     description.
//  4. Add any necessary validation into validate().
type Config struct {
	// ConfigFile is a TOML file with settings for the fields below.
	ConfigFile string `flag:"config" toml:"-"`

	// MemoryMB is the size of RAM in MiB.
	MemoryMB uint64 `flag:"memory" toml:"memory_mb"`

	// KernelKB is the size of the kernel image in KiB. Frames are carved
	// from the RAM above it.
	KernelKB uint64 `flag:"kernel-size" toml:"kernel_kb"`

	// Harts is the number of harts, including the clock hart.
	Harts int `flag:"harts" toml:"harts"`

	// Quantum is the number of timer ticks a process runs before it is
	// preempted.
	Quantum uint64 `flag:"quantum" toml:"quantum"`

	// MaxReports is the number of fatal trap reports kept.
	MaxReports int `flag:"max-reports" toml:"max_reports"`

	// Tick is the interval between timer interrupts.
	Tick time.Duration `flag:"tick" toml:"tick"`

	// HostMemory backs RAM with an anonymous host mapping.
	HostMemory bool `flag:"host-memory" toml:"host_memory"`

	// LogFilename is the filename to log errors to.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log_format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// DebugLog is the path to log debug information to, if not empty. A
	// trailing '/' names a directory in which a file is created per
	// command.
	DebugLog string `flag:"debug-log" toml:"debug_log"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`
}

func (c *Config) validate() error {
	switch {
	case c.MemoryMB == 0:
		return fmt.Errorf("--memory must be positive")
	case c.KernelKB == 0 || c.KernelKB*1024 >= c.MemoryMB*1024*1024:
		return fmt.Errorf("--kernel-size=%dKiB does not fit in %dMiB of RAM", c.KernelKB, c.MemoryMB)
	case c.MaxReports < 1 || c.MaxReports > trap.MaxReport:
		return fmt.Errorf("--max-reports must be in [1, %d], got %d", trap.MaxReport, c.MaxReports)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	o := c.KernelOptions()
	return o.Validate()
}

// KernelOptions returns the machine described by c.
func (c *Config) KernelOptions() kernel.Options {
	return kernel.Options{
		PhysTop:      riscv.KernBase + riscv.Addr(c.MemoryMB<<20),
		KernelEnd:    riscv.KernBase + riscv.Addr(c.KernelKB<<10),
		Harts:        c.Harts,
		Quantum:      c.Quantum,
		MaxReports:   c.MaxReports,
		TickInterval: c.Tick,
		HostMemory:   c.HostMemory,
	}
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

// loadFile overlays the settings in the TOML file at path onto c. Keys that
// do not name a setting are an error.
func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.MemoryMB (--memory): %d", c.MemoryMB)
	log.Infof("Config.KernelKB (--kernel-size): %d", c.KernelKB)
	log.Infof("Config.Harts (--harts): %d", c.Harts)
	log.Infof("Config.Quantum (--quantum): %d", c.Quantum)
	log.Infof("Config.Tick (--tick): %v", c.Tick)
	log.Infof("Config.Debug (--debug): %t", c.Debug)
	log.Debugf("Config: %+v", *c)
}
