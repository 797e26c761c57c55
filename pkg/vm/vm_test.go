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

package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// refs is a fake frame owner recording reference changes.
type refs map[riscv.Addr]int

func (r refs) AddShareAddr(pa riscv.Addr) { r[pa]++ }
func (r refs) ReleaseAddr(pa riscv.Addr)  { r[pa]-- }

const (
	page = riscv.PageSize
	ram  = riscv.KernBase + 0x100000
	user = riscv.PTERead | riscv.PTEUser
)

func TestMapWalk(t *testing.T) {
	pt := New(riscv.KernBase)
	if err := pt.Map(0x1000, ram, user|riscv.PTEWrite); err != nil {
		t.Fatalf("Map: %v", err)
	}
	pte := pt.Walk(0x1234)
	if pte == nil {
		t.Fatalf("Walk of mapped page returned nil")
	}
	if got, want := *pte, riscv.PTEFromPA(ram, user|riscv.PTEWrite|riscv.PTEValid); got != want {
		t.Errorf("Walk got %v, want %v", got, want)
	}
	if pt.Walk(0x2000) != nil {
		t.Errorf("Walk of unmapped page returned an entry")
	}
	if pt.Walk(riscv.MaxVA) != nil {
		t.Errorf("Walk beyond MaxVA returned an entry")
	}

	// Writes through the returned pointer are visible to later walks.
	*pte = *pte &^ riscv.PTEWrite
	if pt.Walk(0x1000).Has(riscv.PTEWrite) {
		t.Errorf("update through Walk pointer was lost")
	}
}

func TestMapErrors(t *testing.T) {
	pt := New(0)
	if err := pt.Map(0x1001, ram, user); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("Map unaligned got %v, want EINVAL", err)
	}
	if err := pt.Map(riscv.MaxVA, ram, user); !linuxerr.Equals(linuxerr.EFAULT, err) {
		t.Errorf("Map beyond MaxVA got %v, want EFAULT", err)
	}
	if err := pt.Map(0, ram, user); err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("remap did not panic")
		}
	}()
	pt.Map(0, ram+page, user)
}

func TestCopyCOW(t *testing.T) {
	parent := New(0)
	r := refs{}
	mappings := []struct {
		va   riscv.Addr
		perm riscv.PTE
	}{
		{0x0000, user | riscv.PTEExec},
		{0x1000, user | riscv.PTEWrite},
		{0x2000, user | riscv.PTEWrite},
		{riscv.Trampoline, riscv.PTERead | riscv.PTEExec},
	}
	for i, m := range mappings {
		if err := parent.Map(m.va, ram+riscv.Addr(i*page), m.perm); err != nil {
			t.Fatalf("Map(%#x): %v", m.va, err)
		}
	}

	child := New(0)
	parent.CopyCOW(child, r)

	if got := child.Len(); got != 3 {
		t.Errorf("child has %d mappings, want 3", got)
	}
	for _, va := range []riscv.Addr{0x1000, 0x2000} {
		for name, pt := range map[string]*PageTable{"parent": parent, "child": child} {
			pte := pt.Walk(va)
			if pte == nil || !pte.IsCOW() {
				t.Errorf("%s page %#x not COW: %v", name, va, pte)
			}
		}
	}
	if pte := child.Walk(0); pte == nil || pte.Has(riscv.PTECOW) || !pte.Has(riscv.PTEExec) {
		t.Errorf("read-only page changed by fork: %v", pte)
	}
	want := refs{ram: 1, ram + page: 1, ram + 2*page: 1}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("shares mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmapAndFree(t *testing.T) {
	pt := New(0)
	r := refs{}
	for i := 0; i < 4; i++ {
		if err := pt.Map(riscv.Addr(i*page), ram+riscv.Addr(i*page), user); err != nil {
			t.Fatalf("Map: %v", err)
		}
	}
	pt.Unmap(page, 2, r)
	if got := pt.Len(); got != 2 {
		t.Errorf("Len after Unmap got %d, want 2", got)
	}
	var vas []riscv.Addr
	pt.Ascend(func(va riscv.Addr, _ riscv.PTE) bool {
		vas = append(vas, va)
		return true
	})
	if diff := cmp.Diff([]riscv.Addr{0, 3 * page}, vas); diff != "" {
		t.Errorf("remaining mappings mismatch (-want +got):\n%s", diff)
	}
	pt.Free(r)
	if pt.Len() != 0 {
		t.Errorf("Len after Free got %d", pt.Len())
	}
	want := refs{ram: -1, ram + page: -1, ram + 2*page: -1, ram + 3*page: -1}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("releases mismatch (-want +got):\n%s", diff)
	}
}
