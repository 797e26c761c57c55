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

// Package flag wraps the standard flag package so that every rvsim package
// parses flags the same way.
package flag

import (
	"flag"
)

type (
	// FlagSet is an alias of flag.FlagSet.
	FlagSet = flag.FlagSet

	// Flag is an alias of flag.Flag.
	Flag = flag.Flag

	// Value is an alias of flag.Value.
	Value = flag.Value
)

// Aliases of the standard flag package.
var (
	Bool        = flag.Bool
	CommandLine = flag.CommandLine
	Duration    = flag.Duration
	Int         = flag.Int
	Lookup      = flag.Lookup
	NewFlagSet  = flag.NewFlagSet
	Parse       = flag.Parse
	String      = flag.String
	Uint64      = flag.Uint64
)

// ContinueOnError is an alias of flag.ContinueOnError.
const ContinueOnError = flag.ContinueOnError

// Get returns the flag's underlying value.
func Get(v Value) any {
	return v.(flag.Getter).Get()
}
