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

package riscv

import (
	"fmt"
	"strings"
)

// PTE is an Sv39 leaf page-table entry.
type PTE uint64

// PTE flag bits. Bits 8 and 9 are reserved for software; the kernel uses bit
// 8 to mark pages shared copy-on-write.
const (
	PTEValid    PTE = 1 << 0
	PTERead     PTE = 1 << 1
	PTEWrite    PTE = 1 << 2
	PTEExec     PTE = 1 << 3
	PTEUser     PTE = 1 << 4
	PTEGlobal   PTE = 1 << 5
	PTEAccessed PTE = 1 << 6
	PTEDirty    PTE = 1 << 7
	PTECOW      PTE = 1 << 8

	// pteFlagMask covers the flag bits, including the software bits.
	pteFlagMask PTE = 0x3ff
)

// PTEFromPA builds an entry mapping the frame at pa with the given flags.
func PTEFromPA(pa Addr, flags PTE) PTE {
	return PTE(pa>>PageShift)<<10 | flags&pteFlagMask
}

// PA returns the physical address of the frame the entry maps.
func (p PTE) PA() Addr {
	return Addr(p>>10) << PageShift
}

// Flags returns the flag bits of the entry.
func (p PTE) Flags() PTE {
	return p & pteFlagMask
}

// Has reports whether all of flags are set in p.
func (p PTE) Has(flags PTE) bool {
	return p&flags == flags
}

// Valid reports whether the entry is valid.
func (p PTE) Valid() bool {
	return p&PTEValid != 0
}

// IsCOW reports whether p is a user page shared copy-on-write: user
// accessible, not writable and carrying the COW marker.
func (p PTE) IsCOW() bool {
	return p.Has(PTEUser|PTECOW) && p&PTEWrite == 0
}

// String implements fmt.Stringer.
func (p PTE) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit  PTE
		name byte
	}{
		{PTEValid, 'V'}, {PTERead, 'R'}, {PTEWrite, 'W'}, {PTEExec, 'X'},
		{PTEUser, 'U'}, {PTEGlobal, 'G'}, {PTEAccessed, 'A'}, {PTEDirty, 'D'},
		{PTECOW, 'C'},
	} {
		if p&f.bit != 0 {
			b.WriteByte(f.name)
		} else {
			b.WriteByte('-')
		}
	}
	return fmt.Sprintf("pa=%#x %s", uint64(p.PA()), b.String())
}
