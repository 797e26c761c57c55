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
	"slices"

	"rvkernel.dev/rvkernel/pkg/sync"
)

// PLIC is the platform-level interrupt controller. Each source is pending at
// most once and is not raised again until its claim is completed.
type PLIC struct {
	mu sync.Mutex

	// +checklocks:mu
	pending []int

	// +checklocks:mu
	claimed map[int]int
}

// NewPLIC returns a controller with no pending interrupts.
func NewPLIC() *PLIC {
	return &PLIC{claimed: make(map[int]int)}
}

// Raise makes irq pending.
func (c *PLIC) Raise(irq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.pending, irq) {
		return
	}
	c.pending = append(c.pending, irq)
}

// Pending reports whether any interrupt is pending.
func (c *PLIC) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, irq := range c.pending {
		if _, ok := c.claimed[irq]; !ok {
			return true
		}
	}
	return false
}

// Claim implements trap.InterruptController.Claim.
func (c *PLIC) Claim(hart int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, irq := range c.pending {
		if _, ok := c.claimed[irq]; ok {
			continue
		}
		c.pending = slices.Delete(c.pending, i, i+1)
		c.claimed[irq] = hart
		return irq
	}
	return 0
}

// Complete implements trap.InterruptController.Complete.
func (c *PLIC) Complete(hart, irq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, irq)
}
