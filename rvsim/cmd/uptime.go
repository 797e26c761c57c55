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

package cmd

import (
	"context"

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// Uptime implements subcommands.Command for the "uptime" command.
type Uptime struct {
	ticks int64
}

// Name implements subcommands.Command.Name.
func (*Uptime) Name() string {
	return "uptime"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Uptime) Synopsis() string {
	return "sleep for a number of ticks and print the uptime before and after"
}

// Usage implements subcommands.Command.Usage.
func (*Uptime) Usage() string {
	return "uptime [flags]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (up *Uptime) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&up.ticks, "ticks", 10, "ticks to sleep.")
}

// Execute implements subcommands.Command.Execute.
func (up *Uptime) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)
	return runInit(ctx, k, "uptime", func(u *kernel.User) int {
		before := u.Uptime()
		if !u.Sleep(up.ticks) {
			return 1
		}
		after := u.Uptime()
		util.Infof("uptime: %d -> %d (slept %d ticks)", before, after, after-before)
		return 0
	}, args)
}
