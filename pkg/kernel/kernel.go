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

// Package kernel assembles a machine from the kernel core: physical memory,
// the frame allocator, the clock, the process table, the trap dispatcher and
// the harts that run processes.
//
// Hart 0 is the clock hart. It takes every timer and device interrupt in
// supervisor mode and never runs processes; processes run on harts 1 and up.
// Each process runs in its own goroutine while it holds a hart.
package kernel

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"rvkernel.dev/rvkernel/pkg/atomicbitops"
	"rvkernel.dev/rvkernel/pkg/cleanup"
	"rvkernel.dev/rvkernel/pkg/clock"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/sync"
	"rvkernel.dev/rvkernel/pkg/syscalls"
	"rvkernel.dev/rvkernel/pkg/trap"
	"rvkernel.dev/rvkernel/pkg/vm"
)

// Device interrupt numbers.
const (
	VirtIO0IRQ = 1
	UART0IRQ   = 10
)

// Options configures a machine.
type Options struct {
	// PhysTop is the end of RAM. RAM starts at riscv.KernBase.
	PhysTop riscv.Addr

	// KernelEnd is the end of the kernel image. Frames start at the first
	// page boundary at or above it.
	KernelEnd riscv.Addr

	// Harts is the number of harts, including the clock hart.
	Harts int

	// Quantum is the number of timer ticks a process runs before it is
	// preempted.
	Quantum uint64

	// MaxReports is the number of fatal trap reports kept.
	MaxReports int

	// TickInterval is the time between timer interrupts.
	TickInterval time.Duration

	// HostMemory backs RAM with an anonymous host mapping rather than a Go
	// slice.
	HostMemory bool
}

// DefaultOptions returns the options for the default machine.
func DefaultOptions() Options {
	return Options{
		PhysTop:      riscv.DefaultPhysTop,
		KernelEnd:    riscv.KernBase + 0x40000,
		Harts:        3,
		Quantum:      5,
		MaxReports:   trap.MaxReport,
		TickInterval: time.Millisecond,
		HostMemory:   true,
	}
}

// Validate checks that o describes a machine that can boot.
func (o *Options) Validate() error {
	switch {
	case o.Harts < 2:
		return fmt.Errorf("need at least 2 harts, got %d", o.Harts)
	case o.Quantum == 0:
		return fmt.Errorf("quantum must be positive")
	case o.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive, got %v", o.TickInterval)
	case !o.PhysTop.IsPageAligned():
		return fmt.Errorf("phys top %#x is not page aligned", uint64(o.PhysTop))
	case o.KernelEnd <= riscv.KernBase || o.KernelEnd >= o.PhysTop:
		return fmt.Errorf("kernel end %#x outside RAM [%#x, %#x)", uint64(o.KernelEnd), uint64(riscv.KernBase), uint64(o.PhysTop))
	}
	return nil
}

// Kernel is a booted machine.
type Kernel struct {
	opts Options

	mem     *physmem.Memory
	alloc   *pgalloc.Allocator
	clock   *clock.Clock
	reports *trap.ReportList
	procs   *proc.Table
	disp    *trap.Dispatcher
	plic    *PLIC

	// kernelRoot is the kernel page-table root; kernelSatp selects it.
	kernelRoot riscv.Addr
	kernelSatp uint64

	// clockHart is hart 0.
	clockHart *trap.Hart

	// cpus holds the IDs of the process harts not running a process.
	cpus chan int

	// timerPending is set for each process hart by the clock hart on every
	// tick and cleared when the hart takes the timer trap.
	timerPending []atomicbitops.Bool

	irqCounts [UART0IRQ + 1]atomicbitops.Uint64

	// waitMu protects exits; waitCond is signalled when a process exits or
	// is killed.
	waitMu   sync.Mutex
	waitCond *sync.Cond

	// group runs process goroutines during Run.
	groupMu sync.Mutex
	group   *errgroup.Group
}

// Boot builds a machine described by opts.
func Boot(opts Options) (*Kernel, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var (
		mem *physmem.Memory
		err error
	)
	if opts.HostMemory {
		mem, err = physmem.New(riscv.KernBase, opts.PhysTop)
	} else {
		mem, err = physmem.NewFromBytes(riscv.KernBase, opts.PhysTop, make([]byte, opts.PhysTop-riscv.KernBase))
	}
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() { mem.Close() })
	defer cu.Clean()

	alloc, err := pgalloc.New(mem, pgalloc.Options{KernelEnd: opts.KernelEnd})
	if err != nil {
		return nil, err
	}
	root, err := alloc.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocating kernel page table: %w", err)
	}
	clear(alloc.Bytes(root))

	k := &Kernel{
		opts:         opts,
		mem:          mem,
		alloc:        alloc,
		clock:        clock.New(),
		reports:      trap.NewReportList(opts.MaxReports),
		procs:        proc.NewTable(),
		plic:         NewPLIC(),
		kernelRoot:   alloc.Addr(root),
		cpus:         make(chan int, opts.Harts-1),
		timerPending: make([]atomicbitops.Bool, opts.Harts),
	}
	k.kernelSatp = riscv.MakeSATP(k.kernelRoot)
	k.waitCond = sync.NewCond(&k.waitMu)
	k.disp = trap.NewDispatcher(trap.Config{
		Allocator:  alloc,
		Clock:      k.clock,
		Reports:    k.reports,
		Scheduler:  k,
		Syscalls:   syscalls.NewHandler(k),
		Interrupts: k.plic,
	})
	for _, irq := range []int{UART0IRQ, VirtIO0IRQ} {
		irq := irq
		k.disp.RegisterDevice(irq, func() { k.irqCounts[irq].Add(1) })
	}
	k.clockHart = trap.NewHart(clock.PrimaryHart, k.kernelSatp)
	for id := 1; id < opts.Harts; id++ {
		k.cpus <- id
	}
	cu.Release()
	log.Infof("boot: %d harts, %d of %d frames free, quantum %d ticks", opts.Harts, alloc.Capacity()-alloc.Allocated(), alloc.Capacity(), opts.Quantum)
	return k, nil
}

// Close reaps every remaining process and releases physical memory.
func (k *Kernel) Close() error {
	var all []*proc.Proc
	k.procs.Do(func(p *proc.Proc) bool {
		all = append(all, p)
		return true
	})
	for _, p := range all {
		k.procs.Reap(p, k.alloc)
	}
	return k.mem.Close()
}

// Allocator returns the frame allocator.
func (k *Kernel) Allocator() *pgalloc.Allocator { return k.alloc }

// Clock returns the clock.
func (k *Kernel) Clock() *clock.Clock { return k.clock }

// Reports returns the trap-report ring.
func (k *Kernel) Reports() *trap.ReportList { return k.reports }

// Procs returns the process table.
func (k *Kernel) Procs() *proc.Table { return k.procs }

// Dispatcher returns the trap dispatcher.
func (k *Kernel) Dispatcher() *trap.Dispatcher { return k.disp }

// Options returns the options k was booted with.
func (k *Kernel) Options() Options { return k.opts }

// IRQCount returns the number of interrupts served for irq.
func (k *Kernel) IRQCount(irq int) uint64 {
	if irq < 0 || irq >= len(k.irqCounts) {
		return 0
	}
	return k.irqCounts[irq].Load()
}

// RaiseIRQ makes irq pending. The clock hart serves it on its next tick.
func (k *Kernel) RaiseIRQ(irq int) {
	k.plic.Raise(irq)
}

// NewProcess creates a process with an empty address space.
func (k *Kernel) NewProcess(name string, parent int32) (*proc.Proc, error) {
	root, err := k.newRoot()
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() { k.alloc.ReleaseAddr(root) })
	defer cu.Clean()

	p, err := k.procs.Alloc(name, parent, vm.New(root))
	if err != nil {
		return nil, err
	}
	cu.Release()
	k.setup(p)
	return p, nil
}

// newRoot allocates a zeroed page-table root.
func (k *Kernel) newRoot() (riscv.Addr, error) {
	f, err := k.alloc.Allocate()
	if err != nil {
		return 0, err
	}
	clear(k.alloc.Bytes(f))
	return k.alloc.Addr(f), nil
}

func (k *Kernel) setup(p *proc.Proc) {
	p.SetCreated(k.clock.Ticks())
	p.KStack = uint64(riscv.Trampoline) - uint64(p.PID+1)*2*riscv.PageSize
	p.SetQuantum(k.opts.Quantum)
	p.SetState(proc.Runnable)
}

// Fork implements syscalls.Kernel.Fork.
func (k *Kernel) Fork(p *proc.Proc) (int32, error) {
	root, err := k.newRoot()
	if err != nil {
		return 0, err
	}
	cu := cleanup.Make(func() { k.alloc.ReleaseAddr(root) })
	defer cu.Clean()

	child, err := k.procs.Fork(p, vm.New(root), k.alloc)
	if err != nil {
		return 0, err
	}
	cu.Release()
	k.setup(child)
	log.Debugf("fork: %d -> %d, %d frames allocated", p.PID, child.PID, k.alloc.Allocated())
	return child.PID, nil
}

// Grow implements syscalls.Kernel.Grow.
func (k *Kernel) Grow(p *proc.Proc, n int64) (uint64, error) {
	old := p.Size
	switch {
	case n > 0:
		size := old + uint64(n)
		if size < old || riscv.Addr(size) > riscv.Trampoline {
			return 0, linuxerr.ENOMEM
		}
		start := riscv.PageRoundUp(old)
		for a := start; a < size; a += riscv.PageSize {
			f, err := k.alloc.Allocate()
			if err != nil {
				if a > start {
					p.PageTable.Unmap(riscv.Addr(start), (a-start)/riscv.PageSize, k.alloc)
				}
				return 0, err
			}
			clear(k.alloc.Bytes(f))
			if err := p.PageTable.Map(riscv.Addr(a), k.alloc.Addr(f), riscv.PTERead|riscv.PTEWrite|riscv.PTEUser); err != nil {
				panic(fmt.Sprintf("grow: mapping %#x: %v", a, err))
			}
		}
		p.Size = size
	case n < 0:
		if uint64(-n) > old {
			return 0, linuxerr.EINVAL
		}
		size := old - uint64(-n)
		if lo, hi := riscv.PageRoundUp(size), riscv.PageRoundUp(old); hi > lo {
			p.PageTable.Unmap(riscv.Addr(lo), (hi-lo)/riscv.PageSize, k.alloc)
		}
		p.Size = size
	}
	return old, nil
}

// Kill implements syscalls.Kernel.Kill.
func (k *Kernel) Kill(pid int32) error {
	if err := k.procs.Kill(pid); err != nil {
		return err
	}
	k.wakeAll()
	return nil
}

// wakeAll wakes every blocked process so that it rechecks its state.
func (k *Kernel) wakeAll() {
	k.clock.Wake()
	k.waitMu.Lock()
	k.waitCond.Broadcast()
	k.waitMu.Unlock()
}

// Sleep implements syscalls.Kernel.Sleep.
func (k *Kernel) Sleep(h *trap.Hart, p *proc.Proc, n int64) error {
	var err error
	k.block(h, func() {
		err = syscalls.Sleep(k.clock, p, n)
	})
	return err
}

// Wait implements syscalls.Kernel.Wait.
func (k *Kernel) Wait(h *trap.Hart, p *proc.Proc) (pid int32, status int, err error) {
	k.block(h, func() {
		pid, status, err = k.wait(p)
	})
	return
}

func (k *Kernel) wait(p *proc.Proc) (int32, int, error) {
	k.waitMu.Lock()
	defer k.waitMu.Unlock()
	for {
		var (
			zombie *proc.Proc
			have   bool
		)
		k.procs.Do(func(c *proc.Proc) bool {
			if c.Parent != p.PID {
				return true
			}
			have = true
			if c.State() == proc.Zombie {
				zombie = c
				return false
			}
			return true
		})
		if zombie != nil {
			k.procs.Reap(zombie, k.alloc)
			return zombie.PID, zombie.ExitStatus(), nil
		}
		if !have {
			return 0, 0, linuxerr.ECHILD
		}
		if p.Killed() {
			return 0, 0, linuxerr.EINTR
		}
		p.SetState(proc.Sleeping)
		k.waitCond.Wait()
		p.SetState(proc.Running)
	}
}
