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

// Package clock keeps the global tick counter advanced by timer interrupts.
package clock

import (
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// PrimaryHart is the hart whose timer interrupts advance the global clock.
const PrimaryHart = 0

// Clock counts timer ticks since boot.
type Clock struct {
	mu   sync.SpinMutex
	cond *sync.Cond

	// ticks only ever increases.
	//
	// +checklocks:mu
	ticks uint64
}

// New returns a clock at tick zero.
func New() *Clock {
	c := &Clock{}
	c.mu.Init("time")
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Tick accounts one timer interrupt taken on hart with p, which may be nil,
// current. Only the primary hart advances the global count and wakes
// sleepers; every hart charges the tick to its running process.
func (c *Clock) Tick(hart int, p *proc.Proc) {
	if hart == PrimaryHart {
		c.mu.Lock()
		c.ticks++
		c.cond.Broadcast()
		c.mu.Unlock()
	}
	if p != nil {
		p.Tick()
	}
}

// Ticks returns the number of ticks since boot.
func (c *Clock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Sleep blocks until n ticks have elapsed. It returns false early if killed
// reports true when the sleeper is woken.
func (c *Clock) Sleep(n uint64, killed func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t0 := c.ticks
	for c.ticks-t0 < n {
		if killed != nil && killed() {
			return false
		}
		c.cond.Wait()
	}
	return true
}

// Wake wakes every sleeper so that it rechecks its kill status.
func (c *Clock) Wake() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}
