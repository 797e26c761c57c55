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
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// badAddr is outside every user address space.
const badAddr = riscv.Addr(^uint64(0))

// TrapTest implements subcommands.Command for the "trtest" command.
type TrapTest struct {
	children int
	ticks    int64

	// reports holds the reports init read, for inspection after Execute.
	reports []trap.Report
}

// Name implements subcommands.Command.Name.
func (*TrapTest) Name() string {
	return "trtest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*TrapTest) Synopsis() string {
	return "crash children with bad loads and print their trap reports"
}

// Usage implements subcommands.Command.Usage.
func (*TrapTest) Usage() string {
	return `trtest [flags] - init forks children that load from an invalid
address. The first child forks once more before faulting. Init then prints
the reports of its children's fatal traps.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *TrapTest) SetFlags(f *flag.FlagSet) {
	f.IntVar(&t.children, "children", 3, "number of faulting children.")
	f.Int64Var(&t.ticks, "sleep", 20, "ticks init waits before reading the reports.")
}

// Execute implements subcommands.Command.Execute.
func (t *TrapTest) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || t.children < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)
	return runInit(ctx, k, "trtest", func(u *kernel.User) int {
		fault := func(u *kernel.User) int {
			u.Load(badAddr, 4)
			return 0
		}
		if u.Fork(func(u *kernel.User) int {
			u.Fork(fault)
			u.Sleep(5)
			return fault(u)
		}) < 0 {
			return 1
		}
		for i := 1; i < t.children; i++ {
			if u.Fork(fault) < 0 {
				return 1
			}
		}
		u.Sleep(t.ticks)

		buf := riscv.Addr(u.Sbrk(trap.ReportTrapsSize))
		rt, ok := u.ReportTraps(buf)
		if !ok {
			return -1
		}
		t.reports = append(t.reports[:0], rt.Slice()...)
		util.Infof("number of exceptions: %d", rt.Count)
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
		fmt.Fprintf(w, "PID\tPNAME\tscause\tsepc\tstval\n")
		for _, r := range rt.Slice() {
			fmt.Fprintln(w, r.String())
		}
		w.Flush()

		for u.Wait() >= 0 {
		}
		return 0
	}, args)
}
