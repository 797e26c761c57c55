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
	"fmt"

	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// handleCOWFault handles a store page fault from p at stval.
func (d *Dispatcher) handleCOWFault(h *Hart, p *proc.Proc) {
	va := riscv.Addr(h.CSR.Stval)
	pte := p.PageTable.Walk(va)
	if pte == nil {
		panic(fmt.Sprintf("usertrap: store fault at va %#x has no page table entry", uint64(va)))
	}
	if !pte.Valid() {
		panic(fmt.Sprintf("usertrap: store fault at va %#x maps no page", uint64(va)))
	}

	if !pte.IsCOW() {
		d.log.Warningf("usertrap(): unexpected page fault at va=%#x pid=%d", uint64(va), p.PID)
		d.kill(h, p)
		return
	}

	if err := BreakCOW(d.alloc, pte); err != nil {
		d.log.Warningf("usertrap(): no memory to copy va=%#x pid=%d: %v", uint64(va), p.PID, err)
		d.killFaulting(h, p)
	}
}

// BreakCOW gives the page mapped by pte a private, writable copy of its
// frame, dropping the reference on the shared frame. The entry keeps every
// other flag. If no frame is free BreakCOW returns ENOMEM and leaves pte
// unchanged.
//
// Preconditions: pte.IsCOW().
func BreakCOW(a *pgalloc.Allocator, pte *riscv.PTE) error {
	old := pte.PA()
	f, err := a.Allocate()
	if err != nil {
		return err
	}
	copy(a.Bytes(f), a.Bytes(a.FrameOf(old)))
	*pte = riscv.PTEFromPA(a.Addr(f), pte.Flags()^riscv.PTECOW^riscv.PTEWrite)
	a.ReleaseAddr(old)
	return nil
}
