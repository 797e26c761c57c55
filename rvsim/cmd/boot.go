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

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	uart  int
	disk  int
	spin  int
	ticks int64
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the machine, run an idle init and print a summary"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - boots the machine and runs an init process that
spins while device interrupts are raised.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.IntVar(&b.uart, "uart-irqs", 0, "number of UART interrupts to raise while init runs.")
	f.IntVar(&b.disk, "disk-irqs", 0, "number of virtio disk interrupts to raise while init runs.")
	f.IntVar(&b.spin, "spin", 1000, "instructions init executes before sleeping.")
	f.Int64Var(&b.ticks, "sleep", 10, "ticks init sleeps before exiting.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)
	o := k.Options()
	a := k.Allocator()
	util.Infof("harts: %d, quantum: %d ticks, tick: %v", o.Harts, o.Quantum, o.TickInterval)
	util.Infof("RAM: %#x-%#x, frames: %#x-%#x (%d)", uint64(a.Start()), uint64(o.PhysTop), uint64(a.Start()), uint64(a.Top()), a.Capacity())

	ret := runInit(ctx, k, "init", func(u *kernel.User) int {
		for i := 0; i < b.uart; i++ {
			k.RaiseIRQ(kernel.UART0IRQ)
			u.Spin(1)
		}
		for i := 0; i < b.disk; i++ {
			k.RaiseIRQ(kernel.VirtIO0IRQ)
			u.Spin(1)
		}
		u.Spin(b.spin)
		if !u.Sleep(b.ticks) {
			return 1
		}
		return 0
	}, args)
	util.Infof("ticks: %d, irqs: uart %d, virtio %d", k.Clock().Ticks(), k.IRQCount(kernel.UART0IRQ), k.IRQCount(kernel.VirtIO0IRQ))
	return ret
}
