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
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// Hart is the per-hart state the trap path reads and writes: the supervisor
// registers as they stood when the trap was taken and the process, if any,
// the hart is running.
type Hart struct {
	// ID is the hart number.
	ID int

	// CSR holds the supervisor registers.
	CSR riscv.CSRs

	// Proc is the current process, or nil if the hart is idle in the
	// scheduler.
	Proc *proc.Proc

	// KernelSatp is loaded into every trapframe on return to user mode.
	KernelSatp uint64
}

// NewHart returns hart id, with kernel traps routed to the kernel vector.
func NewHart(id int, kernelSatp uint64) *Hart {
	h := &Hart{ID: id, KernelSatp: kernelSatp}
	h.CSR.Stvec = KernelVector
	return h
}
