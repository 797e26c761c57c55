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

// Package syscalls implements the system calls served by the kernel core and
// the copy routines that move their results into user memory.
package syscalls

import (
	"encoding/binary"

	"rvkernel.dev/rvkernel/pkg/clock"
	"rvkernel.dev/rvkernel/pkg/errors"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
)

// System call numbers, passed in a7.
const (
	SysFork   = 1
	SysExit   = 2
	SysWait   = 3
	SysKill   = 6
	SysGetpid = 11
	SysSbrk   = 12
	SysSleep  = 13
	SysUptime = 14
	SysTtop   = 23
	SysChp    = 24
	SysRptrap = 25
)

// failed is the value returned in a0 by a failed system call.
const failed = ^uint64(0)

// Kernel is the part of the kernel the system calls act on.
type Kernel interface {
	Allocator() *pgalloc.Allocator
	Clock() *clock.Clock
	Reports() *trap.ReportList
	Procs() *proc.Table

	// Fork creates a copy-on-write child of p and returns its PID.
	Fork(p *proc.Proc) (int32, error)

	// Exit terminates p, running on h.
	Exit(h *trap.Hart, p *proc.Proc, status int)

	// Grow grows p's user memory by n bytes and returns the old size.
	Grow(p *proc.Proc, n int64) (uint64, error)

	// Kill marks the process pid killed and wakes it if it is blocked.
	Kill(pid int32) error

	// Sleep blocks p, running on h, for n ticks. See Sleep.
	Sleep(h *trap.Hart, p *proc.Proc, n int64) error

	// Wait blocks p, running on h, until one of its children exits, then
	// frees the child and returns its PID and exit status.
	Wait(h *trap.Hart, p *proc.Proc) (int32, int, error)
}

// Handler dispatches system calls by number. It implements
// trap.SyscallHandler.
type Handler struct {
	k Kernel
}

// NewHandler returns a Handler serving system calls against k.
func NewHandler(k Kernel) *Handler {
	return &Handler{k: k}
}

// Syscall implements trap.SyscallHandler.Syscall.
func (s *Handler) Syscall(h *trap.Hart, p *proc.Proc) {
	tf := &p.Trapframe
	var (
		ret uint64
		err error
	)
	switch num := tf.A7; num {
	case SysFork:
		var pid int32
		pid, err = s.k.Fork(p)
		ret = uint64(pid)
	case SysExit:
		s.k.Exit(h, p, int(int32(tf.A0)))
		return
	case SysWait:
		var (
			pid    int32
			status int
		)
		pid, status, err = s.k.Wait(h, p)
		if err == nil && tf.A0 != 0 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(int32(status)))
			err = CopyOut(s.k.Allocator(), p.PageTable, riscv.Addr(tf.A0), b[:])
		}
		ret = uint64(pid)
	case SysKill:
		err = s.k.Kill(int32(tf.A0))
	case SysGetpid:
		ret = uint64(p.PID)
	case SysSbrk:
		ret, err = s.k.Grow(p, int64(int32(tf.A0)))
	case SysSleep:
		err = s.k.Sleep(h, p, int64(int32(tf.A0)))
	case SysUptime:
		ret = Uptime(s.k.Clock())
	case SysTtop:
		err = TTop(s.k.Allocator(), s.k.Clock(), s.k.Procs(), p, riscv.Addr(tf.A0))
	case SysChp:
		err = Chp(s.k.Allocator(), s.k.Procs(), p, riscv.Addr(tf.A0))
	case SysRptrap:
		err = RPTrap(s.k.Allocator(), s.k.Reports(), s.k.Procs(), p, riscv.Addr(tf.A0))
	default:
		log.Warningf("%d %s: unknown sys call %d", p.PID, p.NameString(), num)
		err = linuxerr.ENOSYS
	}
	if err != nil {
		if log.IsLogging(log.Debug) {
			log.Debugf("%d %s: sys call %d failed: %v", p.PID, p.NameString(), tf.A7, errno(err))
		}
		ret = failed
	}
	tf.A0 = ret
}

func errno(err error) any {
	if e, ok := errors.ErrnoOf(err); ok {
		return e
	}
	return err
}
