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

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	def := kernel.DefaultOptions()

	flagSet.String("config", "", "TOML file with settings; flags given on the command line take precedence.")

	// Machine flags.
	flagSet.Uint64("memory", 128, "size of RAM in MiB.")
	flagSet.Uint64("kernel-size", 256, "size of the kernel image in KiB; frames are allocated above it.")
	flagSet.Int("harts", def.Harts, "number of harts. Hart 0 takes the clock and device interrupts; processes run on the rest.")
	flagSet.Uint64("quantum", def.Quantum, "timer ticks a process runs before it is preempted.")
	flagSet.Int("max-reports", def.MaxReports, "number of fatal trap reports kept.")
	flagSet.Duration("tick", def.TickInterval, "interval between timer interrupts.")
	flagSet.Bool("host-memory", true, "back RAM with an anonymous host mapping instead of the Go heap.")

	// Debugging flags.
	flagSet.String("log", "", "file path where errors are written in JSON, in addition to stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "additional location for logs. If it ends with '/', log files are created inside the directory with default names. The following variables are available: %TIMESTAMP%, %COMMAND%.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags and, if --config is set, the configuration file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		if err := setField(flagSet, obj.Field(i), st.Field(i)); err != nil {
			return nil, err
		}
	}

	if conf.ConfigFile != "" {
		if err := conf.loadFile(conf.ConfigFile); err != nil {
			return nil, err
		}
		// Explicit flags win over the file.
		var err error
		flagSet.Visit(func(fl *flag.Flag) {
			for i := 0; i < st.NumField() && err == nil; i++ {
				if name, ok := st.Field(i).Tag.Lookup("flag"); ok && name == fl.Name {
					err = setField(flagSet, obj.Field(i), st.Field(i))
				}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func setField(flagSet *flag.FlagSet, v reflect.Value, f reflect.StructField) error {
	name, ok := f.Tag.Lookup("flag")
	if !ok {
		// No flag set for this field.
		return nil
	}
	fl := flagSet.Lookup(name)
	if fl == nil {
		panic(fmt.Sprintf("Flag %q not found", name))
	}
	x := reflect.ValueOf(flag.Get(fl.Value))
	if !x.Type().AssignableTo(v.Type()) {
		return fmt.Errorf("flag %q has type %v, field %s has type %v", name, x.Type(), f.Name, v.Type())
	}
	v.Set(x)
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
// Settings equal to their default are omitted.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if d, ok := field.Interface().(time.Duration); ok {
		return d.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
