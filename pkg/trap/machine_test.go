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

package trap

import (
	"bytes"
	"testing"

	"rvkernel.dev/rvkernel/pkg/clock"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/vm"
)

const (
	page    = riscv.PageSize
	quantum = 2
	userRW  = riscv.PTERead | riscv.PTEWrite | riscv.PTEUser
)

type exitCall struct {
	pid    int32
	status int
}

type testScheduler struct {
	yields int
	exits  []exitCall
}

func (s *testScheduler) Yield(h *Hart) {
	s.yields++
	if h.Proc != nil {
		h.Proc.SetQuantum(quantum)
	}
	// Traps taken while switched away clobber the registers.
	h.CSR.Sepc = 0xdead
	h.CSR.Scause = 0xdead
}

func (s *testScheduler) Exit(h *Hart, p *proc.Proc, status int) {
	s.exits = append(s.exits, exitCall{p.PID, status})
	p.Exit(status)
	h.Proc = nil
}

type testSyscalls struct {
	calls int
}

func (s *testSyscalls) Syscall(h *Hart, p *proc.Proc) {
	s.calls++
	p.Trapframe.A0 = 7
}

type testPLIC struct {
	pending   []int
	completed []int
}

func (c *testPLIC) Claim(hart int) int {
	if len(c.pending) == 0 {
		return 0
	}
	irq := c.pending[0]
	c.pending = c.pending[1:]
	return irq
}

func (c *testPLIC) Complete(hart, irq int) {
	c.completed = append(c.completed, irq)
}

type machine struct {
	alloc *pgalloc.Allocator
	clock *clock.Clock
	procs *proc.Table
	sched *testScheduler
	sys   *testSyscalls
	plic  *testPLIC
	d     *Dispatcher

	// logs holds the dispatcher's warnings.
	logs bytes.Buffer
}

func newMachine(t *testing.T, frames int) *machine {
	t.Helper()
	base := riscv.KernBase
	top := base + riscv.Addr((frames+1)*page)
	mem, err := physmem.NewFromBytes(base, top, make([]byte, top-base))
	if err != nil {
		t.Fatalf("physmem.NewFromBytes: %v", err)
	}
	a, err := pgalloc.New(mem, pgalloc.Options{KernelEnd: base + page})
	if err != nil {
		t.Fatalf("pgalloc.New: %v", err)
	}
	m := &machine{
		alloc: a,
		clock: clock.New(),
		procs: proc.NewTable(),
		sched: &testScheduler{},
		sys:   &testSyscalls{},
		plic:  &testPLIC{},
	}
	m.d = NewDispatcher(Config{
		Allocator:  a,
		Clock:      m.clock,
		Reports:    NewReportList(MaxReport),
		Scheduler:  m.sched,
		Syscalls:   m.sys,
		Interrupts: m.plic,
		Log:        &log.BasicLogger{Level: log.Warning, Emitter: &log.Writer{Next: &m.logs}},
	})
	return m
}

// newProc returns a running process with a fresh quantum.
func (m *machine) newProc(t *testing.T, name string) *proc.Proc {
	t.Helper()
	p, err := m.procs.Alloc(name, 0, vm.New(riscv.KernBase))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	p.SetState(proc.Running)
	p.SetQuantum(quantum)
	return p
}

// mapPage maps a new frame filled with fill at va in p.
func (m *machine) mapPage(t *testing.T, p *proc.Proc, va riscv.Addr, perm riscv.PTE, fill byte) pgalloc.Frame {
	t.Helper()
	f, err := m.alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	copy(m.alloc.Bytes(f), bytes.Repeat([]byte{fill}, page))
	if err := p.PageTable.Map(va, m.alloc.Addr(f), perm); err != nil {
		t.Fatalf("Map: %v", err)
	}
	return f
}

// hart returns hart id running p, as it stands on entry to the user trap
// handler.
func hart(id int, p *proc.Proc) *Hart {
	h := NewHart(id, riscv.MakeSATP(riscv.KernBase))
	h.Proc = p
	h.CSR.Stvec = UserVector
	return h
}

// trapFromUser sets h up as if it had just trapped from user mode.
func trapFromUser(h *Hart, scause, sepc, stval uint64) {
	h.CSR.Scause = scause
	h.CSR.Sepc = sepc
	h.CSR.Stval = stval
	h.CSR.Sstatus = riscv.SstatusSPIE
}

// trapFromKernel sets h up as if it had just trapped from supervisor mode.
func trapFromKernel(h *Hart, scause, sepc uint64) {
	h.CSR.Scause = scause
	h.CSR.Sepc = sepc
	h.CSR.Sstatus = riscv.SstatusSPP | riscv.SstatusSPIE
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func checkInvariants(t *testing.T, a *pgalloc.Allocator) {
	t.Helper()
	if err := a.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

// checkUserReturn checks that h is ready to resume p in user mode.
func checkUserReturn(t *testing.T, h *Hart, p *proc.Proc) {
	t.Helper()
	if h.CSR.Stvec != UserVector {
		t.Errorf("stvec got %#x, want user vector %#x", h.CSR.Stvec, UserVector)
	}
	if h.CSR.Sepc != p.Trapframe.EPC {
		t.Errorf("sepc got %#x, want saved epc %#x", h.CSR.Sepc, p.Trapframe.EPC)
	}
	if h.CSR.FromSupervisor() || h.CSR.Sstatus&riscv.SstatusSPIE == 0 {
		t.Errorf("sstatus %#x does not return to user mode with interrupts on", h.CSR.Sstatus)
	}
	if h.CSR.IntrEnabled() {
		t.Errorf("interrupts enabled before the return")
	}
	if want := riscv.MakeSATP(p.PageTable.Root()); h.CSR.Satp != want {
		t.Errorf("satp got %#x, want %#x", h.CSR.Satp, want)
	}
	if p.Trapframe.KernelTrap != KernelVector || p.Trapframe.KernelHartID != uint64(h.ID) || p.Trapframe.KernelSatp != h.KernelSatp {
		t.Errorf("trapframe kernel fields not set: %+v", p.Trapframe)
	}
}
