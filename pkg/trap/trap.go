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

// Package trap handles every trap a hart takes: system calls, device and
// timer interrupts, copy-on-write store faults and faults that kill the
// process. Traps from supervisor mode go through KernelTrap.
//
// Lock order:
//
//	pgalloc.Allocator.freeMu / refMu (never nested)
//	ReportList.mu
//	clock.Clock.mu
//	proc.Proc.mu
package trap

import (
	"fmt"
	"time"

	"rvkernel.dev/rvkernel/pkg/atomicbitops"
	"rvkernel.dev/rvkernel/pkg/clock"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/sync"
)

const (
	// KernelVector is the address of the supervisor-mode trap entry.
	KernelVector = uint64(riscv.KernBase) + 0x1000

	// UserVector is the address of the user-mode trap entry in the
	// trampoline page, mapped at the same address in every address space.
	UserVector = uint64(riscv.Trampoline)

	// kernelStackSize is the size of a process kernel stack.
	kernelStackSize = riscv.PageSize
)

// Scheduler switches harts between processes.
type Scheduler interface {
	// Yield gives up the hart. The running process becomes runnable with a
	// fresh quantum.
	Yield(h *Hart)

	// Exit terminates p, which is running on h, with the given status.
	// After Exit h.Proc no longer refers to p.
	Exit(h *Hart, p *proc.Proc, status int)
}

// SyscallHandler executes the system call described by p's trapframe.
type SyscallHandler interface {
	Syscall(h *Hart, p *proc.Proc)
}

// InterruptController is the platform-level interrupt controller.
type InterruptController interface {
	// Claim returns the pending irq for hart, or 0 if there is none.
	Claim(hart int) int

	// Complete tells the controller hart has finished serving irq.
	Complete(hart int, irq int)
}

// Config holds a Dispatcher's collaborators.
type Config struct {
	Allocator  *pgalloc.Allocator
	Clock      *clock.Clock
	Reports    *ReportList
	Scheduler  Scheduler
	Syscalls   SyscallHandler
	Interrupts InterruptController

	// Log receives the dispatcher's warnings. If nil, the global logger is
	// used.
	Log log.Logger
}

// Dispatcher routes traps.
type Dispatcher struct {
	alloc   *pgalloc.Allocator
	clock   *clock.Clock
	reports *ReportList
	sched   Scheduler
	sys     SyscallHandler
	plic    InterruptController

	log log.Logger

	// irqLog reports interrupts with no registered handler, limited per irq.
	irqLog *log.RateLimitedLogger[int]

	devMu sync.RWMutex

	// +checklocks:devMu
	devices map[int]func()

	counts [numKinds]atomicbitops.Uint64
}

// NewDispatcher returns a Dispatcher routing traps to the collaborators in
// cfg.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Allocator == nil || cfg.Clock == nil || cfg.Reports == nil || cfg.Scheduler == nil {
		panic("trap: incomplete dispatcher config")
	}
	l := cfg.Log
	if l == nil {
		l = log.Log()
	}
	return &Dispatcher{
		alloc:   cfg.Allocator,
		clock:   cfg.Clock,
		reports: cfg.Reports,
		sched:   cfg.Scheduler,
		sys:     cfg.Syscalls,
		plic:    cfg.Interrupts,
		log:     l,
		irqLog:  log.NewRateLimitedLogger[int](l, time.Second),
		devices: make(map[int]func()),
	}
}

// Reports returns the trap-report ring.
func (d *Dispatcher) Reports() *ReportList {
	return d.reports
}

// Count returns the number of traps of kind k taken so far.
func (d *Dispatcher) Count(k Kind) uint64 {
	return d.counts[k].Load()
}

// UserTrap handles a trap taken in user mode on h. Unless the process exits,
// h is prepared for the return to user mode when UserTrap returns.
func (d *Dispatcher) UserTrap(h *Hart) {
	if h.CSR.FromSupervisor() {
		panic("usertrap: not from user mode")
	}
	p := h.Proc
	if p == nil {
		panic("usertrap: no process")
	}

	// Traps are now taken in the kernel.
	h.CSR.Stvec = KernelVector

	p.Trapframe.EPC = h.CSR.Sepc

	kind := Classify(h.CSR.Scause)
	d.counts[kind].Add(1)

	which := DeviceNone
	switch kind {
	case Syscall:
		if p.Killed() {
			d.sched.Exit(h, p, -1)
			return
		}
		// Return to the instruction after the ecall.
		p.Trapframe.EPC += riscv.EcallLength
		h.CSR.IntrOn()
		d.syscall(h, p)
		if h.Proc != p {
			// The process exited.
			return
		}
	case DeviceInterrupt, TimerInterrupt:
		which = d.DevIntr(h)
		if which == DeviceNone {
			d.killFaulting(h, p)
		}
	case COWFault:
		d.handleCOWFault(h, p)
	case Fatal:
		d.killFaulting(h, p)
	default:
		panic(fmt.Sprintf("usertrap: unknown trap kind %v", kind))
	}

	if p.Killed() {
		d.sched.Exit(h, p, -1)
		return
	}

	if which == DeviceTimer && p.TicksRemaining() == 0 {
		d.sched.Yield(h)
	}

	d.UserTrapRet(h, p)
}

func (d *Dispatcher) syscall(h *Hart, p *proc.Proc) {
	if d.sys == nil {
		p.Trapframe.A0 = ^uint64(0)
		return
	}
	d.sys.Syscall(h, p)
}

// killFaulting logs the trap h took, records it in the report ring and
// marks p killed.
func (d *Dispatcher) killFaulting(h *Hart, p *proc.Proc) {
	d.log.Warningf("usertrap(): unexpected scause %#x pid=%d", h.CSR.Scause, p.PID)
	d.log.Warningf("            sepc=%#x stval=%#x", h.CSR.Sepc, h.CSR.Stval)
	d.kill(h, p)
}

// kill records the trap h took in the report ring and marks p killed.
func (d *Dispatcher) kill(h *Hart, p *proc.Proc) {
	d.reports.Add(Report{
		PID:   p.PID,
		Name:  p.Name,
		Cause: h.CSR.Scause,
		EPC:   h.CSR.Sepc,
		Tval:  h.CSR.Stval,
	})
	p.SetKilled()
}

// UserTrapRet prepares h to return to user mode in p.
func (d *Dispatcher) UserTrapRet(h *Hart, p *proc.Proc) {
	// Traps from here until the return go to the user vector, which is only
	// correct in user mode.
	h.CSR.IntrOff()
	h.CSR.Stvec = UserVector

	p.Trapframe.KernelSatp = h.KernelSatp
	p.Trapframe.KernelSP = p.KStack + kernelStackSize
	p.Trapframe.KernelTrap = KernelVector
	p.Trapframe.KernelHartID = uint64(h.ID)

	// Return to user mode with interrupts enabled.
	h.CSR.Sstatus &^= riscv.SstatusSPP
	h.CSR.Sstatus |= riscv.SstatusSPIE

	h.CSR.Sepc = p.Trapframe.EPC
	var root riscv.Addr
	if p.PageTable != nil {
		root = p.PageTable.Root()
	}
	h.CSR.Satp = riscv.MakeSATP(root)
}

// KernelTrap handles an interrupt or exception taken in supervisor mode on
// the current kernel stack. Anything but a device or timer interrupt is a
// kernel bug and panics.
func (d *Dispatcher) KernelTrap(h *Hart) {
	sepc := h.CSR.Sepc
	sstatus := h.CSR.Sstatus
	scause := h.CSR.Scause

	if sstatus&riscv.SstatusSPP == 0 {
		panic("kerneltrap: not from supervisor mode")
	}
	if h.CSR.IntrEnabled() {
		panic("kerneltrap: interrupts enabled")
	}

	d.counts[Classify(scause)].Add(1)
	which := d.DevIntr(h)
	if which == DeviceNone {
		d.log.Warningf("scause %#x", scause)
		d.log.Warningf("sepc=%#x stval=%#x", sepc, h.CSR.Stval)
		panic("kerneltrap")
	}

	if p := h.Proc; which == DeviceTimer && p != nil && p.State() == proc.Running && p.TicksRemaining() == 0 {
		d.sched.Yield(h)
	}

	// Yield may have taken traps that clobbered these.
	h.CSR.Sepc = sepc
	h.CSR.Sstatus = sstatus
	h.CSR.Scause = scause
}
