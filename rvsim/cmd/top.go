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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/syscalls"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// Top implements subcommands.Command for the "top" command.
type Top struct {
	spinners int
	sleepers int
	samples  int
	interval int64

	// last is the final snapshot, for inspection after Execute.
	last syscalls.Top
}

// Name implements subcommands.Command.Name.
func (*Top) Name() string {
	return "top"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Top) Synopsis() string {
	return "run busy and idle processes and print process snapshots"
}

// Usage implements subcommands.Command.Usage.
func (*Top) Usage() string {
	return `top [flags] - init forks CPU-bound and sleeping workers, prints a
snapshot of every process at a fixed interval, then kills the workers.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Top) SetFlags(f *flag.FlagSet) {
	f.IntVar(&t.spinners, "spinners", 2, "number of CPU-bound workers.")
	f.IntVar(&t.sleepers, "sleepers", 1, "number of sleeping workers.")
	f.IntVar(&t.samples, "samples", 3, "number of snapshots.")
	f.Int64Var(&t.interval, "interval", 20, "ticks between snapshots.")
}

// Execute implements subcommands.Command.Execute.
func (t *Top) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || t.samples < 1 || t.spinners < 0 || t.sleepers < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)
	spinner := func(u *kernel.User) int {
		for {
			u.Spin(100)
		}
	}
	sleeper := func(u *kernel.User) int {
		for u.Sleep(t.interval) {
		}
		return 0
	}

	return runInit(ctx, k, "top", func(u *kernel.User) int {
		buf := riscv.Addr(u.Sbrk(syscalls.TopSize))
		var workers []int32
		for i := 0; i < t.spinners+t.sleepers; i++ {
			prog := spinner
			if i >= t.spinners {
				prog = sleeper
			}
			pid := u.Fork(prog)
			if pid < 0 {
				return 1
			}
			workers = append(workers, pid)
		}
		for i := 0; i < t.samples; i++ {
			if !u.Sleep(t.interval) {
				return 1
			}
			top, ok := u.Top(buf)
			if !ok {
				return 1
			}
			printTop(&util.Writer{}, &top)
			t.last = top
		}
		for _, pid := range workers {
			u.Kill(pid)
		}
		for u.Wait() >= 0 {
		}
		return 0
	}, args)
}

func printTop(out io.Writer, top *syscalls.Top) {
	util.Infof("uptime: %d ticks", top.Uptime)
	util.Infof("total process: %d", top.Total)
	util.Infof("running process: %d", top.Running)
	util.Infof("sleeping process: %d", top.Sleeping)
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintf(w, "name\tPID\tPPID\tstate\tctime\tCPU%%\n")
	for _, pi := range top.Slice() {
		cpu := pi.CPUPercent(top.Uptime)
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%d.%02d\n", pi.NameString(), pi.PID, pi.PPID, pi.State, pi.CTime, cpu/100, cpu%100)
	}
	w.Flush()
}
