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

// Supervisor trap cause (scause) values.
const (
	// CauseInterrupt is set in scause for interrupts.
	CauseInterrupt uint64 = 1 << 63

	CauseInstructionMisaligned uint64 = 0
	CauseInstructionAccess     uint64 = 1
	CauseIllegalInstruction    uint64 = 2
	CauseBreakpoint            uint64 = 3
	CauseLoadAccess            uint64 = 5
	CauseStoreAccess           uint64 = 7
	CauseUserEcall             uint64 = 8
	CauseInstructionPageFault  uint64 = 12
	CauseLoadPageFault         uint64 = 13
	CauseStorePageFault        uint64 = 15

	// CauseSupervisorSoftware is a software interrupt. The machine-mode
	// timer handler forwards timer interrupts to the kernel this way.
	CauseSupervisorSoftware = CauseInterrupt | 1

	// CauseSupervisorExternal is an external interrupt routed through the
	// platform interrupt controller.
	CauseSupervisorExternal = CauseInterrupt | 9
)

// sstatus bits.
const (
	// SstatusSPP is the previous privilege mode: 1 for supervisor, 0 for user.
	SstatusSPP uint64 = 1 << 8

	// SstatusSPIE is the supervisor previous interrupt enable.
	SstatusSPIE uint64 = 1 << 5

	// SstatusUPIE is the user previous interrupt enable.
	SstatusUPIE uint64 = 1 << 4

	// SstatusSIE is the supervisor interrupt enable.
	SstatusSIE uint64 = 1 << 1

	// SstatusUIE is the user interrupt enable.
	SstatusUIE uint64 = 1 << 0
)

// SipSSIP is the supervisor software interrupt pending bit in sip.
const SipSSIP uint64 = 1 << 1

// SatpSV39 selects Sv39 translation in satp.
const SatpSV39 uint64 = 8 << 60

// MakeSATP returns the satp value selecting the page table rooted at root.
func MakeSATP(root Addr) uint64 {
	return SatpSV39 | uint64(root>>PageShift)
}

// EcallLength is the length of the ecall instruction.
const EcallLength = 4

// CSRs is the supervisor register file of one hart.
type CSRs struct {
	// Sepc is the exception program counter.
	Sepc uint64

	// Scause is the trap cause.
	Scause uint64

	// Stval is the trap value, the faulting address for page faults.
	Stval uint64

	// Sstatus is the supervisor status register.
	Sstatus uint64

	// Sip is the supervisor interrupt pending register.
	Sip uint64

	// Stvec is the trap vector base address.
	Stvec uint64

	// Satp is the address translation and protection register.
	Satp uint64
}

// IntrOn enables device interrupts.
func (c *CSRs) IntrOn() {
	c.Sstatus |= SstatusSIE
}

// IntrOff disables device interrupts.
func (c *CSRs) IntrOff() {
	c.Sstatus &^= SstatusSIE
}

// IntrEnabled reports whether device interrupts are enabled.
func (c *CSRs) IntrEnabled() bool {
	return c.Sstatus&SstatusSIE != 0
}

// FromSupervisor reports whether the trap being handled was taken from
// supervisor mode.
func (c *CSRs) FromSupervisor() bool {
	return c.Sstatus&SstatusSPP != 0
}
