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
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// COWTest implements subcommands.Command for the "cowtest" command.
type COWTest struct {
	ticks int64
	write bool
}

// Name implements subcommands.Command.Name.
func (*COWTest) Name() string {
	return "cowtest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*COWTest) Synopsis() string {
	return "fork a process that holds two thirds of RAM"
}

// Usage implements subcommands.Command.Usage.
func (*COWTest) Usage() string {
	return `cowtest [flags] - a child of init grows to two thirds of RAM and
forks. The fork only succeeds if pages are shared copy-on-write.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *COWTest) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.ticks, "sleep", 50, "ticks both processes sleep after the fork.")
	f.BoolVar(&c.write, "write", true, "have the grandchild write to the first 16 shared pages.")
}

// Execute implements subcommands.Command.Execute.
func (c *COWTest) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)
	a := k.Allocator()
	size := int64(a.Capacity()*riscv.PageSize) * 2 / 3
	base := a.Allocated()

	ret := runInit(ctx, k, "cowtest", func(u *kernel.User) int {
		util.Infof("initiating test...")
		pid := u.Fork(func(u *kernel.User) int {
			if u.Sbrk(size) < 0 {
				util.Infof("sbrk(%d) failed", size)
				return 1
			}
			util.Infof("grew to %d bytes, %d frames allocated", size, a.Allocated())
			pid := u.Fork(func(u *kernel.User) int {
				if c.write {
					pages := riscv.PageRoundUp(uint64(size)) / riscv.PageSize
					for i := uint64(0); i < min(pages, 16); i++ {
						u.Store(riscv.Addr(i*riscv.PageSize), []byte{byte(i)})
					}
				}
				u.Sleep(c.ticks)
				return 0
			})
			if pid < 0 {
				util.Infof("fork failed")
				return 1
			}
			util.Infof("forked %d, %d frames allocated", pid, a.Allocated())
			u.Sleep(c.ticks)
			if u.Wait() != pid {
				return 1
			}
			return 0
		})
		if pid < 0 {
			return 1
		}
		util.Infof("test is running")
		if _, status := u.WaitStatus(riscv.Addr(u.Sbrk(riscv.PageSize))); status != 0 {
			util.Infof("test failed with status %d", status)
			return 1
		}
		return 0
	}, args)
	util.Infof("COW faults: %d, frames allocated: %d (at boot %d)", k.Dispatcher().Count(trap.COWFault), a.Allocated(), base)
	return ret
}
