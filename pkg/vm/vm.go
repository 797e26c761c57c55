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

// Package vm holds a process's user page table.
//
// The table maps virtual page numbers to leaf entries, kept in address order
// in a B-tree. It is owned by its process and is not safe for concurrent use.
package vm

import (
	"fmt"

	"github.com/google/btree"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// degree is the B-tree degree.
const degree = 16

// FrameSharer takes additional references on frames.
type FrameSharer interface {
	// AddShareAddr takes a reference on the frame at pa.
	AddShareAddr(pa riscv.Addr)
}

// FrameReleaser drops references on frames.
type FrameReleaser interface {
	// ReleaseAddr drops a reference on the frame at pa.
	ReleaseAddr(pa riscv.Addr)
}

type entry struct {
	vpn uint64
	pte riscv.PTE
}

func lessEntry(a, b *entry) bool {
	return a.vpn < b.vpn
}

// PageTable is a user page table.
type PageTable struct {
	// root is the physical address of the root page-table page, loaded into
	// satp when the process runs.
	root riscv.Addr

	entries *btree.BTreeG[*entry]
}

// New returns an empty page table whose root page is at root.
func New(root riscv.Addr) *PageTable {
	return &PageTable{
		root:    root,
		entries: btree.NewG(degree, lessEntry),
	}
}

// Root returns the physical address of the root page.
func (pt *PageTable) Root() riscv.Addr {
	return pt.root
}

// Len returns the number of mapped pages.
func (pt *PageTable) Len() int {
	return pt.entries.Len()
}

// Walk returns the leaf entry for the page containing va, or nil if the page
// has no entry. The returned pointer stays valid until the page is unmapped.
func (pt *PageTable) Walk(va riscv.Addr) *riscv.PTE {
	if va >= riscv.MaxVA {
		return nil
	}
	e, ok := pt.entries.Get(&entry{vpn: va.PageNumber()})
	if !ok {
		return nil
	}
	return &e.pte
}

// Map maps the page at va to the frame at pa with permissions perm. Both
// addresses must be page aligned. Mapping an already mapped page is a kernel
// bug and panics.
func (pt *PageTable) Map(va, pa riscv.Addr, perm riscv.PTE) error {
	if !va.IsPageAligned() || !pa.IsPageAligned() {
		return linuxerr.EINVAL
	}
	if va >= riscv.MaxVA {
		return linuxerr.EFAULT
	}
	e := &entry{vpn: va.PageNumber(), pte: riscv.PTEFromPA(pa, perm|riscv.PTEValid)}
	if old, ok := pt.entries.ReplaceOrInsert(e); ok && old.pte.Valid() {
		panic(fmt.Sprintf("vm: remap of va %#x (old %v)", uint64(va), old.pte))
	}
	return nil
}

// Unmap removes npages mappings starting at the page-aligned va. If rel is
// not nil, the reference on each mapped frame is dropped. Unmapping a page
// that is not mapped panics.
func (pt *PageTable) Unmap(va riscv.Addr, npages uint64, rel FrameReleaser) {
	if !va.IsPageAligned() {
		panic(fmt.Sprintf("vm: unmap of unaligned va %#x", uint64(va)))
	}
	for i := uint64(0); i < npages; i++ {
		a := va + riscv.Addr(i*riscv.PageSize)
		e, ok := pt.entries.Delete(&entry{vpn: a.PageNumber()})
		if !ok || !e.pte.Valid() {
			panic(fmt.Sprintf("vm: unmap of unmapped va %#x", uint64(a)))
		}
		if rel != nil {
			rel.ReleaseAddr(e.pte.PA())
		}
	}
}

// Ascend calls fn for each mapping in increasing address order until fn
// returns false.
func (pt *PageTable) Ascend(fn func(va riscv.Addr, pte riscv.PTE) bool) {
	pt.entries.Ascend(func(e *entry) bool {
		return fn(riscv.Addr(e.vpn<<riscv.PageShift), e.pte)
	})
}

// CopyCOW makes child share every user page of pt copy-on-write. Writable
// pages become read-only and COW-marked in both tables; each shared frame
// gains a reference through s. Kernel pages are not copied.
//
// Preconditions: child has no user mappings.
func (pt *PageTable) CopyCOW(child *PageTable, s FrameSharer) {
	pt.entries.Ascend(func(e *entry) bool {
		if !e.pte.Valid() || e.pte&riscv.PTEUser == 0 {
			return true
		}
		if e.pte&riscv.PTEWrite != 0 {
			e.pte = e.pte&^riscv.PTEWrite | riscv.PTECOW
		}
		if old, ok := child.entries.ReplaceOrInsert(&entry{vpn: e.vpn, pte: e.pte}); ok && old.pte.Valid() {
			panic(fmt.Sprintf("vm: fork into mapped va %#x", e.vpn<<riscv.PageShift))
		}
		s.AddShareAddr(e.pte.PA())
		return true
	})
}

// Free unmaps every page, dropping the reference on each mapped frame.
func (pt *PageTable) Free(rel FrameReleaser) {
	pt.entries.Ascend(func(e *entry) bool {
		if e.pte.Valid() {
			rel.ReleaseAddr(e.pte.PA())
		}
		return true
	})
	pt.entries.Clear(false)
}
