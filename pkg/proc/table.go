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

package proc

import (
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/sync"
	"rvkernel.dev/rvkernel/pkg/vm"
)

// NPROC is the maximum number of processes.
const NPROC = 64

// Table is the process table.
type Table struct {
	mu sync.SpinMutex

	// +checklocks:mu
	procs [NPROC]*Proc

	// +checklocks:mu
	nextPID int32
}

// NewTable returns an empty process table.
func NewTable() *Table {
	t := &Table{nextPID: 1}
	t.mu.Init("proc")
	return t
}

// Alloc claims a free slot for a new process named name with parent parent,
// using pt as its page table. The process is returned in state Used. Alloc
// returns ENOMEM when the table is full.
func (t *Table) Alloc(name string, parent int32, pt *vm.PageTable) (*Proc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.procs {
		if p != nil {
			continue
		}
		p = &Proc{
			PID:       t.nextPID,
			Parent:    parent,
			PageTable: pt,
		}
		p.mu.Init("proc")
		p.SetName(name)
		p.state = Used
		t.nextPID++
		t.procs[i] = p
		return p, nil
	}
	return nil, linuxerr.ENOMEM
}

// Fork allocates a child of parent that shares all of parent's user pages
// copy-on-write. childPT must be empty; f takes a reference on every shared
// frame. The child is returned Runnable with a zero syscall return value.
func (t *Table) Fork(parent *Proc, childPT *vm.PageTable, f vm.FrameSharer) (*Proc, error) {
	child, err := t.Alloc(parent.NameString(), parent.PID, childPT)
	if err != nil {
		return nil, err
	}
	parent.PageTable.CopyCOW(childPT, f)
	child.Size = parent.Size
	child.Trapframe = parent.Trapframe
	child.Trapframe.A0 = 0
	child.SetState(Runnable)
	return child, nil
}

// Reap releases whatever user memory p still holds through f and returns
// p's slot to the table.
func (t *Table) Reap(p *Proc, f vm.FrameReleaser) {
	p.FreeUser(f)
	t.Free(p)
}

// Free returns p's slot to the table.
func (t *Table) Free(p *Proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, q := range t.procs {
		if q == p {
			t.procs[i] = nil
			return
		}
	}
}

// Lookup returns the process with the given PID.
func (t *Table) Lookup(pid int32) (*Proc, bool) {
	var found *Proc
	t.Do(func(p *Proc) bool {
		if p.PID == pid {
			found = p
			return false
		}
		return true
	})
	return found, found != nil
}

// Do calls fn for each allocated process in slot order until fn returns
// false. fn must not call back into t.
func (t *Table) Do(fn func(p *Proc) bool) {
	t.mu.Lock()
	procs := t.procs
	t.mu.Unlock()
	for _, p := range procs {
		if p == nil {
			continue
		}
		if !fn(p) {
			return
		}
	}
}

// IsChild reports whether pid names a child of parent.
func (t *Table) IsChild(parent, pid int32) bool {
	p, ok := t.Lookup(pid)
	return ok && p.Parent == parent
}

// Children returns the PIDs of parent's children.
func (t *Table) Children(parent int32) []int32 {
	var pids []int32
	t.Do(func(p *Proc) bool {
		if p.Parent == parent {
			pids = append(pids, p.PID)
		}
		return true
	})
	return pids
}

// Kill marks the process with the given PID killed, waking it if it sleeps.
func (t *Table) Kill(pid int32) error {
	p, ok := t.Lookup(pid)
	if !ok {
		return linuxerr.ESRCH
	}
	p.SetKilled()
	p.CompareAndSetState(Sleeping, Runnable)
	return nil
}
