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

	"rvkernel.dev/rvkernel/pkg/riscv"
)

// Kind is the class of a trap, decoded from scause.
type Kind int

// Trap kinds.
const (
	// Syscall is an environment call from user mode.
	Syscall Kind = iota

	// DeviceInterrupt is an external interrupt routed through the interrupt
	// controller.
	DeviceInterrupt

	// TimerInterrupt is the software interrupt the machine-mode timer handler
	// raises on every tick.
	TimerInterrupt

	// COWFault is a store page fault, which may be a write to a page shared
	// copy-on-write.
	COWFault

	// Fatal is any other trap. Taken in user mode it kills the process.
	Fatal

	numKinds
)

var kindNames = [...]string{
	Syscall:         "syscall",
	DeviceInterrupt: "device",
	TimerInterrupt:  "timer",
	COWFault:        "cow",
	Fatal:           "fatal",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Classify decodes scause. It has no side effects.
func Classify(scause uint64) Kind {
	if scause&riscv.CauseInterrupt != 0 {
		switch {
		case scause&0xff == riscv.CauseSupervisorExternal&0xff:
			return DeviceInterrupt
		case scause == riscv.CauseSupervisorSoftware:
			return TimerInterrupt
		default:
			return Fatal
		}
	}
	switch scause {
	case riscv.CauseUserEcall:
		return Syscall
	case riscv.CauseStorePageFault:
		return COWFault
	default:
		return Fatal
	}
}
