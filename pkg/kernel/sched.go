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
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/trap"
)

// Yield implements trap.Scheduler.Yield. The process gives up its hart and
// resumes, possibly on another hart, once one is free.
func (k *Kernel) Yield(h *trap.Hart) {
	p := h.Proc
	p.SetQuantum(k.opts.Quantum)
	p.SetState(proc.Runnable)
	k.cpus <- h.ID
	h.ID = <-k.cpus
	p.SetState(proc.Running)
}

// Exit implements trap.Scheduler.Exit and syscalls.Kernel.Exit.
func (k *Kernel) Exit(h *trap.Hart, p *proc.Proc, status int) {
	p.FreeUser(k.alloc)
	log.Debugf("exit: pid %d status %d, %d frames allocated", p.PID, status, k.alloc.Allocated())
	k.waitMu.Lock()
	p.Exit(status)
	k.waitCond.Broadcast()
	k.waitMu.Unlock()
	h.Proc = nil
	k.cpus <- h.ID
}

// block runs fn, which may block, with h released for other processes.
func (k *Kernel) block(h *trap.Hart, fn func()) {
	k.cpus <- h.ID
	fn()
	h.ID = <-k.cpus
}

// acquire returns a free process hart running p.
func (k *Kernel) acquire(p *proc.Proc) *trap.Hart {
	h := trap.NewHart(<-k.cpus, k.kernelSatp)
	h.Proc = p
	p.SetState(proc.Running)
	return h
}
