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

package clock

import (
	"testing"
	"time"

	"rvkernel.dev/rvkernel/pkg/atomicbitops"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/vm"
)

func TestOnlyPrimaryAdvances(t *testing.T) {
	c := New()
	c.Tick(PrimaryHart, nil)
	c.Tick(1, nil)
	c.Tick(2, nil)
	c.Tick(PrimaryHart, nil)
	if got := c.Ticks(); got != 2 {
		t.Errorf("Ticks got %d, want 2", got)
	}
}

func TestQuantum(t *testing.T) {
	tbl := proc.NewTable()
	p, err := tbl.Alloc("spin", 0, vm.New(0))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	p.SetState(proc.Running)
	p.SetQuantum(3)

	c := New()
	// Ticks on a secondary hart charge the process but not the clock.
	for i := 0; i < 3; i++ {
		c.Tick(1, p)
	}
	if got := p.TicksRemaining(); got != 0 {
		t.Errorf("TicksRemaining got %d, want 0", got)
	}
	c.Tick(1, p)
	if got := p.TicksRemaining(); got != 0 {
		t.Errorf("TicksRemaining went below zero: %d", got)
	}
	if got := p.RunTime(); got != 4 {
		t.Errorf("RunTime got %d, want 4", got)
	}
	if got := c.Ticks(); got != 0 {
		t.Errorf("Ticks got %d, want 0", got)
	}
}

func TestSleep(t *testing.T) {
	c := New()
	done := make(chan bool)
	go func() {
		done <- c.Sleep(3, nil)
	}()

	for {
		select {
		case ok := <-done:
			if !ok {
				t.Fatalf("Sleep returned false")
			}
			if got := c.Ticks(); got < 3 {
				t.Errorf("Sleep returned after %d ticks, want at least 3", got)
			}
			return
		case <-time.After(time.Millisecond):
			c.Tick(PrimaryHart, nil)
		}
	}
}

func TestSleepKilled(t *testing.T) {
	c := New()
	var killed atomicbitops.Bool
	done := make(chan bool)
	go func() {
		done <- c.Sleep(1000, killed.Load)
	}()
	killed.Store(true)
	for {
		select {
		case ok := <-done:
			if ok {
				t.Errorf("killed Sleep returned true")
			}
			return
		case <-time.After(time.Millisecond):
			c.Wake()
		}
	}
}

func TestSleepZero(t *testing.T) {
	if !New().Sleep(0, nil) {
		t.Errorf("Sleep(0) returned false")
	}
}
