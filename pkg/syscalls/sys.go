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

package syscalls

import (
	"rvkernel.dev/rvkernel/pkg/clock"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
	"rvkernel.dev/rvkernel/pkg/vm"
)

// Uptime returns the number of clock ticks since boot.
func Uptime(c *clock.Clock) uint64 {
	return c.Ticks()
}

// Sleep blocks p for n ticks. A negative n sleeps for no time. It returns
// EINTR if p is killed while asleep.
func Sleep(c *clock.Clock, p *proc.Proc, n int64) error {
	if n <= 0 {
		return nil
	}
	prev := p.State()
	p.SetState(proc.Sleeping)
	ok := c.Sleep(uint64(n), p.Killed)
	p.SetState(prev)
	if !ok {
		return linuxerr.EINTR
	}
	return nil
}

// ReportTraps returns the fatal trap reports of p's children.
func ReportTraps(l *trap.ReportList, t *proc.Table, p *proc.Proc) trap.ReportTraps {
	return l.Fill(func(r trap.Report) bool {
		return t.IsChild(p.PID, r.PID)
	})
}

// RPTrap copies the trap reports of p's children to dst in p's address
// space.
func RPTrap(a *pgalloc.Allocator, l *trap.ReportList, t *proc.Table, p *proc.Proc, dst riscv.Addr) error {
	rt := ReportTraps(l, t, p)
	b, err := rt.MarshalBinary()
	if err != nil {
		return err
	}
	return CopyOut(a, p.PageTable, dst, b)
}

// CopyOut copies src to the user address dst in pt. Pages shared
// copy-on-write are unshared first.
func CopyOut(a *pgalloc.Allocator, pt *vm.PageTable, dst riscv.Addr, src []byte) error {
	for len(src) > 0 {
		va0 := dst.RoundDown()
		pte := userPTE(pt, va0)
		if pte == nil {
			return linuxerr.EFAULT
		}
		if pte.IsCOW() {
			if err := trap.BreakCOW(a, pte); err != nil {
				return err
			}
		}
		if !pte.Has(riscv.PTEWrite) {
			return linuxerr.EFAULT
		}
		off := dst.PageOffset()
		n := copy(a.Bytes(a.FrameOf(pte.PA()))[off:], src)
		src = src[n:]
		dst = va0 + riscv.PageSize
	}
	return nil
}

// CopyIn copies len(dst) bytes from the user address src in pt.
func CopyIn(a *pgalloc.Allocator, pt *vm.PageTable, dst []byte, src riscv.Addr) error {
	for len(dst) > 0 {
		va0 := src.RoundDown()
		pte := userPTE(pt, va0)
		if pte == nil || !pte.Has(riscv.PTERead) {
			return linuxerr.EFAULT
		}
		n := copy(dst, a.Bytes(a.FrameOf(pte.PA()))[src.PageOffset():])
		dst = dst[n:]
		src = va0 + riscv.PageSize
	}
	return nil
}

// userPTE returns the entry for the user page at va, or nil if va is not a
// mapped user page.
func userPTE(pt *vm.PageTable, va riscv.Addr) *riscv.PTE {
	if va >= riscv.MaxVA {
		return nil
	}
	pte := pt.Walk(va)
	if pte == nil || !pte.Valid() || !pte.Has(riscv.PTEUser) {
		return nil
	}
	return pte
}
