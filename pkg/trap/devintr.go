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
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// Device is the result of routing an interrupt.
type Device int

const (
	// DeviceNone means the trap was not a recognized interrupt.
	DeviceNone Device = iota

	// DeviceOther is an external device interrupt.
	DeviceOther

	// DeviceTimer is a timer interrupt.
	DeviceTimer
)

// RegisterDevice installs isr as the handler for irq.
func (d *Dispatcher) RegisterDevice(irq int, isr func()) {
	d.devMu.Lock()
	defer d.devMu.Unlock()
	d.devices[irq] = isr
}

func (d *Dispatcher) device(irq int) (func(), bool) {
	d.devMu.RLock()
	defer d.devMu.RUnlock()
	isr, ok := d.devices[irq]
	return isr, ok
}

// DevIntr routes the interrupt described by h's scause. It returns DeviceNone
// if scause is not an interrupt this kernel handles.
func (d *Dispatcher) DevIntr(h *Hart) Device {
	switch Classify(h.CSR.Scause) {
	case DeviceInterrupt:
		if d.plic == nil {
			return DeviceOther
		}
		irq := d.plic.Claim(h.ID)
		if isr, ok := d.device(irq); ok {
			isr()
		} else if irq != 0 {
			d.irqLog.For(irq).Warningf("unexpected interrupt irq=%d", irq)
		}
		// The controller allows each device to raise at most one interrupt
		// at a time; tell it this one may now interrupt again.
		if irq != 0 {
			d.plic.Complete(h.ID, irq)
		}
		return DeviceOther

	case TimerInterrupt:
		p := h.Proc
		d.clock.Tick(h.ID, p)
		// Acknowledge the software interrupt.
		h.CSR.Sip &^= riscv.SipSSIP
		if d.log.IsLogging(log.Debug) && p != nil {
			d.log.Debugf("tick hart=%d pid=%d remain=%d", h.ID, p.PID, p.TicksRemaining())
		}
		return DeviceTimer

	default:
		return DeviceNone
	}
}
