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

// Package riscv describes the RV64 machine the kernel runs on: page
// geometry, the physical memory layout, Sv39 page-table entries and the
// supervisor control and status registers.
package riscv

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page and of a physical frame.
	PageSize = 1 << PageShift

	// KernBase is the physical address at which the kernel image is loaded
	// and RAM begins.
	KernBase Addr = 0x80000000

	// DefaultPhysTop is the end of usable RAM for the default 128 MiB machine.
	DefaultPhysTop Addr = KernBase + 128*1024*1024

	// MaxVA is one beyond the highest possible Sv39 virtual address. It is
	// one bit less than the maximum allowed by Sv39 to avoid having to
	// sign-extend virtual addresses that have the high bit set.
	MaxVA Addr = 1 << (9 + 9 + 9 + 12 - 1)

	// Trampoline is the virtual address of the trap trampoline page, mapped
	// at the top of every address space.
	Trampoline Addr = MaxVA - PageSize
)

// Addr represents a physical or virtual address.
type Addr uint64

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v & ^Addr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// IsPageAligned returns true if v is aligned to a page boundary.
func (v Addr) IsPageAligned() bool {
	return v&(PageSize-1) == 0
}

// PageOffset returns the offset of v into its page.
func (v Addr) PageOffset() uint64 {
	return uint64(v & (PageSize - 1))
}

// PageNumber returns the page number containing v.
func (v Addr) PageNumber() uint64 {
	return uint64(v >> PageShift)
}

// PageRoundUp rounds x up to a multiple of PageSize.
func PageRoundUp(x uint64) uint64 {
	return (x + PageSize - 1) &^ (PageSize - 1)
}

// PageRoundDown rounds x down to a multiple of PageSize.
func PageRoundDown(x uint64) uint64 {
	return x &^ (PageSize - 1)
}
