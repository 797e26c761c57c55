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
	"text/tabwriter"

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/syscalls"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// ChildTest implements subcommands.Command for the "cptest" command.
type ChildTest struct {
	samples  int
	interval int64

	// last is the final listing, for inspection after Execute.
	last syscalls.ChildProcesses
}

// Name implements subcommands.Command.Name.
func (*ChildTest) Name() string {
	return "cptest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*ChildTest) Synopsis() string {
	return "grow a process tree and list a process's descendants"
}

// Usage implements subcommands.Command.Usage.
func (*ChildTest) Usage() string {
	return `cptest [flags] - a child of init starts a tree of sleeping
descendants and lists them at a fixed interval.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *ChildTest) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.samples, "samples", 3, "number of listings.")
	f.Int64Var(&c.interval, "interval", 20, "ticks between listings.")
}

// Execute implements subcommands.Command.Execute.
func (c *ChildTest) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || c.samples < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)

	// Every process in the tree forks, sleeps and forks again; each level
	// sleeps until killed.
	var tree func(depth int) kernel.Program
	tree = func(depth int) kernel.Program {
		return func(u *kernel.User) int {
			if depth > 0 {
				u.Fork(tree(depth - 1))
				u.Sleep(2)
				u.Fork(tree(depth - 1))
			}
			for u.Sleep(c.interval) {
			}
			return 0
		}
	}

	return runInit(ctx, k, "cptest", func(u *kernel.User) int {
		start := u.Uptime()
		pid := u.Fork(func(u *kernel.User) int {
			buf := riscv.Addr(u.Sbrk(syscalls.ChildProcessesSize))
			u.Fork(tree(1))
			for i := 0; i < c.samples; i++ {
				if !u.Sleep(c.interval) {
					return 1
				}
				cp, ok := u.Children(buf)
				if !ok {
					return 1
				}
				util.Infof("uptime: %d ticks", u.Uptime()-start)
				util.Infof("total children processes: %d", cp.Count)
				w := tabwriter.NewWriter(&util.Writer{}, 0, 8, 1, '\t', 0)
				fmt.Fprintf(w, "name\tPID\tPPID\tstate\n")
				for _, pi := range cp.Slice() {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", pi.NameString(), pi.PID, pi.PPID, pi.State)
				}
				w.Flush()
				c.last = cp
			}
			for _, pi := range c.last.Slice() {
				u.Kill(pi.PID)
			}
			for u.Wait() >= 0 {
			}
			return 0
		})
		if pid < 0 {
			return 1
		}
		if u.Wait() != pid {
			return 1
		}
		return 0
	}, args)
}
