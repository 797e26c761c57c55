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

package kernel

import (
	"encoding/binary"
	"runtime"

	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/syscalls"
	"rvkernel.dev/rvkernel/pkg/trap"
)

// Program is the user code of a process. Its result is the exit status.
type Program func(u *User) int

// User executes user-mode operations for one process. Operations that trap
// enter the kernel through the trap dispatcher exactly as the hardware
// would. If the process exits during a trap, the operation does not return:
// the process goroutine ends.
type User struct {
	k  *Kernel
	h  *trap.Hart
	pc uint64
}

// Proc returns the process.
func (u *User) Proc() *proc.Proc {
	return u.h.Proc
}

// Hart returns the hart the process is running on.
func (u *User) Hart() int {
	return u.h.ID
}

// Kernel returns the machine the process runs on.
func (u *User) Kernel() *Kernel {
	return u.k
}

// trap takes a trap from user mode.
func (u *User) trap(scause, stval uint64) {
	h := u.h
	h.CSR.Scause = scause
	h.CSR.Stval = stval
	h.CSR.Sepc = u.pc
	h.CSR.Sstatus &^= riscv.SstatusSPP | riscv.SstatusSIE
	u.k.disp.UserTrap(h)
	if h.Proc == nil {
		runtime.Goexit()
	}
	u.pc = h.CSR.Sepc
}

// step accounts one user instruction, first taking any pending timer
// interrupt.
func (u *User) step() {
	if u.k.timerPending[u.h.ID].Swap(false) {
		u.h.CSR.Sip |= riscv.SipSSIP
		u.trap(riscv.CauseSupervisorSoftware, 0)
	}
	u.pc += 4
}

// Spin executes n instructions that do not touch memory.
func (u *User) Spin(n int) {
	for i := 0; i < n; i++ {
		u.step()
	}
}

// access returns the bytes of the page at va if the process may access it
// with perm, or nil.
func (u *User) access(va riscv.Addr, perm riscv.PTE) []byte {
	if va >= riscv.MaxVA {
		return nil
	}
	pte := u.h.Proc.PageTable.Walk(va)
	if pte == nil || !pte.Has(perm|riscv.PTEValid|riscv.PTEUser) {
		return nil
	}
	a := u.k.alloc
	return a.Bytes(a.FrameOf(pte.PA()))[va.PageOffset():]
}

// Store writes b at va.
func (u *User) Store(va riscv.Addr, b []byte) {
	for len(b) > 0 {
		u.step()
		dst := u.access(va, riscv.PTEWrite)
		if dst == nil {
			u.trap(riscv.CauseStorePageFault, uint64(va))
			continue
		}
		n := copy(dst, b)
		b = b[n:]
		va += riscv.Addr(n)
	}
}

// Load reads n bytes at va.
func (u *User) Load(va riscv.Addr, n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		u.step()
		src := u.access(va, riscv.PTERead)
		if src == nil {
			u.trap(riscv.CauseLoadPageFault, uint64(va))
			continue
		}
		m := min(len(src), n-len(out))
		out = append(out, src[:m]...)
		va += riscv.Addr(m)
	}
	return out
}

// Syscall makes system call num with arguments a0 and a1 and returns a0.
func (u *User) Syscall(num, a0, a1 uint64) uint64 {
	u.step()
	tf := &u.h.Proc.Trapframe
	tf.A7 = num
	tf.A0 = a0
	tf.A1 = a1
	u.trap(riscv.CauseUserEcall, 0)
	return tf.A0
}

// Getpid returns the process ID.
func (u *User) Getpid() int32 {
	return int32(u.Syscall(syscalls.SysGetpid, 0, 0))
}

// Fork creates a child running prog and returns its PID, or -1.
func (u *User) Fork(prog Program) int32 {
	pid := int32(u.Syscall(syscalls.SysFork, 0, 0))
	if pid <= 0 {
		return pid
	}
	child, ok := u.k.procs.Lookup(pid)
	if !ok {
		return -1
	}
	u.k.start(child, prog)
	return pid
}

// Exit terminates the process. It does not return.
func (u *User) Exit(status int) {
	u.Syscall(syscalls.SysExit, uint64(int64(status)), 0)
	panic("exit returned")
}

// Wait waits for a child to exit and returns its PID, or -1 if the process
// has no children.
func (u *User) Wait() int32 {
	return int32(u.Syscall(syscalls.SysWait, 0, 0))
}

// WaitStatus is Wait that also returns the child's exit status, passed
// through the user buffer at buf.
func (u *User) WaitStatus(buf riscv.Addr) (int32, int) {
	pid := int32(u.Syscall(syscalls.SysWait, uint64(buf), 0))
	if pid < 0 {
		return pid, 0
	}
	return pid, int(int32(binary.LittleEndian.Uint32(u.Load(buf, 4))))
}

// Kill kills the process pid.
func (u *User) Kill(pid int32) bool {
	return u.Syscall(syscalls.SysKill, uint64(pid), 0) == 0
}

// Sbrk grows user memory by n bytes and returns the old size, or -1.
func (u *User) Sbrk(n int64) int64 {
	return int64(u.Syscall(syscalls.SysSbrk, uint64(n), 0))
}

// Sleep sleeps for n ticks. It returns false if the process was killed.
func (u *User) Sleep(n int64) bool {
	return u.Syscall(syscalls.SysSleep, uint64(n), 0) == 0
}

// Uptime returns the ticks since boot.
func (u *User) Uptime() uint64 {
	return u.Syscall(syscalls.SysUptime, 0, 0)
}

// ReportTraps reads the trap reports of the process's children through the
// user buffer at buf, which must span trap.ReportTrapsSize writable bytes.
func (u *User) ReportTraps(buf riscv.Addr) (trap.ReportTraps, bool) {
	var rt trap.ReportTraps
	if u.Syscall(syscalls.SysRptrap, uint64(buf), 0) != 0 {
		return rt, false
	}
	if err := rt.UnmarshalBinary(u.Load(buf, trap.ReportTrapsSize)); err != nil {
		return rt, false
	}
	return rt, true
}

// Top reads a snapshot of every process through the user buffer at buf,
// which must span syscalls.TopSize writable bytes.
func (u *User) Top(buf riscv.Addr) (syscalls.Top, bool) {
	var t syscalls.Top
	if u.Syscall(syscalls.SysTtop, uint64(buf), 0) != 0 {
		return t, false
	}
	if err := t.UnmarshalBinary(u.Load(buf, syscalls.TopSize)); err != nil {
		return t, false
	}
	return t, true
}

// Children reads a snapshot of the process's descendants through the user
// buffer at buf, which must span syscalls.ChildProcessesSize writable bytes.
func (u *User) Children(buf riscv.Addr) (syscalls.ChildProcesses, bool) {
	var cp syscalls.ChildProcesses
	if u.Syscall(syscalls.SysChp, uint64(buf), 0) != 0 {
		return cp, false
	}
	if err := cp.UnmarshalBinary(u.Load(buf, syscalls.ChildProcessesSize)); err != nil {
		return cp, false
	}
	return cp, true
}
