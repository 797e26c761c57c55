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
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/vm"
)

func TestTick(t *testing.T) {
	tbl := NewTable()
	p, err := tbl.Alloc("worker", 0, vm.New(0))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	p.SetQuantum(2)

	// Ticks charged while not running are ignored.
	p.Tick()
	if got := p.RunTime(); got != 0 {
		t.Errorf("RunTime after idle tick got %d, want 0", got)
	}

	p.SetState(Running)
	for i := 0; i < 4; i++ {
		p.Tick()
	}
	if got := p.RunTime(); got != 4 {
		t.Errorf("RunTime got %d, want 4", got)
	}
	if got := p.TicksRemaining(); got != 0 {
		t.Errorf("TicksRemaining got %d, want 0", got)
	}
}

func TestName(t *testing.T) {
	p := &Proc{}
	p.SetName("a-very-long-process-name")
	if got, want := p.NameString(), "a-very-long-pro"; got != want {
		t.Errorf("NameString got %q, want %q", got, want)
	}
	if p.Name[NameLen-1] != 0 {
		t.Errorf("name not NUL terminated")
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable()
	root, _ := tbl.Alloc("init", 0, vm.New(0))
	a, _ := tbl.Alloc("a", root.PID, vm.New(0))
	b, _ := tbl.Alloc("b", root.PID, vm.New(0))
	c, _ := tbl.Alloc("c", a.PID, vm.New(0))

	if diff := cmp.Diff([]int32{a.PID, b.PID}, tbl.Children(root.PID)); diff != "" {
		t.Errorf("Children mismatch (-want +got):\n%s", diff)
	}
	if !tbl.IsChild(a.PID, c.PID) || tbl.IsChild(root.PID, c.PID) {
		t.Errorf("IsChild reports grandchildren as children")
	}

	b.SetState(Sleeping)
	if err := tbl.Kill(b.PID); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if !b.Killed() || b.State() != Runnable {
		t.Errorf("killed sleeper: killed=%v state=%v", b.Killed(), b.State())
	}
	if err := tbl.Kill(1000); !linuxerr.Equals(linuxerr.ESRCH, err) {
		t.Errorf("Kill of unknown pid got %v, want ESRCH", err)
	}

	tbl.Free(c)
	if _, ok := tbl.Lookup(c.PID); ok {
		t.Errorf("freed process still in table")
	}
}

func TestTableFull(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < NPROC; i++ {
		if _, err := tbl.Alloc("p", 0, vm.New(0)); err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
	}
	if _, err := tbl.Alloc("p", 0, vm.New(0)); !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Errorf("Alloc on full table got %v, want ENOMEM", err)
	}
}

// frames counts references per frame address.
type frames map[riscv.Addr]int

func (f frames) AddShareAddr(pa riscv.Addr) { f[pa]++ }
func (f frames) ReleaseAddr(pa riscv.Addr)  { f[pa]-- }

func TestForkAndReap(t *testing.T) {
	tbl := NewTable()
	f := frames{}
	parent, _ := tbl.Alloc("sh", 0, vm.New(0))
	const pa = riscv.KernBase + 0x10000
	if err := parent.PageTable.Map(0, pa, riscv.PTERead|riscv.PTEWrite|riscv.PTEUser); err != nil {
		t.Fatalf("Map: %v", err)
	}
	f[pa] = 1
	parent.Size = riscv.PageSize
	parent.Trapframe.A0 = 42
	parent.Trapframe.EPC = 0x100

	const childRoot = riscv.KernBase + 0x20000
	f[childRoot] = 1
	child, err := tbl.Fork(parent, vm.New(childRoot), f)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.Parent != parent.PID || child.NameString() != "sh" || child.State() != Runnable {
		t.Errorf("child got %v parent %d", child, child.Parent)
	}
	if child.Trapframe.A0 != 0 || child.Trapframe.EPC != 0x100 || child.Size != riscv.PageSize {
		t.Errorf("child trapframe got %+v size %d", child.Trapframe, child.Size)
	}
	if f[pa] != 2 {
		t.Errorf("share count after fork got %d, want 2", f[pa])
	}
	if pte := parent.PageTable.Walk(0); pte == nil || !pte.IsCOW() {
		t.Errorf("parent page not COW after fork: %v", pte)
	}

	tbl.Reap(child, f)
	if f[pa] != 1 {
		t.Errorf("share count after reap got %d, want 1", f[pa])
	}
	if f[childRoot] != 0 {
		t.Errorf("child root references after reap got %d, want 0", f[childRoot])
	}
	if child.PageTable != nil || child.Size != 0 {
		t.Errorf("reaped child keeps memory: page table %v, size %d", child.PageTable, child.Size)
	}
	if _, ok := tbl.Lookup(child.PID); ok {
		t.Errorf("reaped child still in table")
	}
	// Reaping a process whose memory is already gone only frees the slot.
	parent.FreeUser(f)
	tbl.Reap(parent, f)
	if f[pa] != 0 {
		t.Errorf("share count after parent exit got %d, want 0", f[pa])
	}
}
