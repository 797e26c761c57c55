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

// Package proc holds the process records the trap layer acts on.
package proc

import (
	"bytes"
	"fmt"

	"rvkernel.dev/rvkernel/pkg/atomicbitops"
	"rvkernel.dev/rvkernel/pkg/sync"
	"rvkernel.dev/rvkernel/pkg/vm"
)

// NameLen is the length of a process name, including the terminating NUL.
const NameLen = 16

// State is a process scheduling state.
type State int

// Process states.
const (
	Unused State = iota
	Used
	Sleeping
	Runnable
	Running
	Zombie
)

var stateNames = [...]string{
	Unused:   "unused",
	Used:     "used",
	Sleeping: "sleep",
	Runnable: "runble",
	Running:  "run",
	Zombie:   "zombie",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Trapframe holds the user program counter and the registers the trap path
// needs across the user/kernel boundary.
type Trapframe struct {
	// KernelSatp is the kernel page table.
	KernelSatp uint64

	// KernelSP is the top of the process's kernel stack.
	KernelSP uint64

	// KernelTrap is the address of the user trap handler.
	KernelTrap uint64

	// EPC is the saved user program counter.
	EPC uint64

	// KernelHartID is the hart the process last trapped on.
	KernelHartID uint64

	// A0 carries the first syscall argument and the return value.
	A0 uint64

	// A1 carries the second syscall argument.
	A1 uint64

	// A7 carries the syscall number.
	A7 uint64
}

// Proc is a process.
type Proc struct {
	mu sync.SpinMutex

	// state is the scheduling state.
	//
	// +checklocks:mu
	state State

	// ticksRemain is the number of timer ticks left in the current quantum.
	//
	// +checklocks:mu
	ticksRemain uint64

	// rtime is the number of timer ticks the process has spent running.
	//
	// +checklocks:mu
	rtime uint64

	// ctime is the tick at which the process was created.
	//
	// +checklocks:mu
	ctime uint64

	// xstatus is the exit status, valid once the process is a zombie.
	//
	// +checklocks:mu
	xstatus int

	// killed is set asynchronously and read on the trap path.
	killed atomicbitops.Bool

	// PID is immutable after allocation.
	PID int32

	// Parent is the parent's PID, or 0 for the first process.
	Parent int32

	// Name is the NUL padded process name.
	Name [NameLen]byte

	// Size is the size of user memory in bytes.
	Size uint64

	// KStack is the virtual address of the kernel stack.
	KStack uint64

	Trapframe Trapframe

	// PageTable is the user page table.
	PageTable *vm.PageTable
}

// SetName sets the process name, truncating it to NameLen-1 bytes.
func (p *Proc) SetName(name string) {
	p.Name = MakeName(name)
}

// NameString returns the process name.
func (p *Proc) NameString() string {
	return NameString(p.Name)
}

// MakeName returns name as a NUL padded fixed-size name.
func MakeName(name string) [NameLen]byte {
	var n [NameLen]byte
	copy(n[:NameLen-1], name)
	return n
}

// NameString returns the part of n before the first NUL.
func NameString(n [NameLen]byte) string {
	if i := bytes.IndexByte(n[:], 0); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}

// State returns the scheduling state.
func (p *Proc) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState sets the scheduling state.
func (p *Proc) SetState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// CompareAndSetState moves the process from old to new. It returns false if
// the process was not in state old.
func (p *Proc) CompareAndSetState(old, new State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != old {
		return false
	}
	p.state = new
	return true
}

// SetKilled marks the process as killed. It exits the next time it crosses
// the trap boundary.
func (p *Proc) SetKilled() {
	p.killed.Store(true)
}

// Killed reports whether the process has been marked killed.
func (p *Proc) Killed() bool {
	return p.killed.Load()
}

// SetQuantum refills the quantum with ticks timer ticks.
func (p *Proc) SetQuantum(ticks uint64) {
	p.mu.Lock()
	p.ticksRemain = ticks
	p.mu.Unlock()
}

// TicksRemaining returns the ticks left in the current quantum.
func (p *Proc) TicksRemaining() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticksRemain
}

// RunTime returns the number of ticks the process has spent running.
func (p *Proc) RunTime() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rtime
}

// SetCreated records the tick at which the process was created.
func (p *Proc) SetCreated(tick uint64) {
	p.mu.Lock()
	p.ctime = tick
	p.mu.Unlock()
}

// Created returns the tick at which the process was created.
func (p *Proc) Created() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctime
}

// Tick charges one timer tick to the process if it is running. The quantum
// never goes below zero.
func (p *Proc) Tick() {
	p.mu.Lock()
	if p.state == Running {
		p.rtime++
		if p.ticksRemain > 0 {
			p.ticksRemain--
		}
	}
	p.mu.Unlock()
}

// ExitStatus returns the exit status of a zombie.
func (p *Proc) ExitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.xstatus
}

// Exit records the exit status and makes the process a zombie.
func (p *Proc) Exit(status int) {
	p.mu.Lock()
	p.xstatus = status
	p.state = Zombie
	p.mu.Unlock()
}

// FreeUser releases p's user pages and page-table root through f. It is a
// no-op once the memory is gone.
func (p *Proc) FreeUser(f vm.FrameReleaser) {
	if p.PageTable == nil {
		return
	}
	p.PageTable.Free(f)
	f.ReleaseAddr(p.PageTable.Root())
	p.PageTable = nil
	p.Size = 0
}

// String implements fmt.Stringer.
func (p *Proc) String() string {
	return fmt.Sprintf("%d %s %s", p.PID, p.State(), p.NameString())
}
