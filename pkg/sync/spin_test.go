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

package sync

import (
	"testing"
	"time"
)

func TestSpinMutexExclusion(t *testing.T) {
	var (
		m       SpinMutex
		wg      WaitGroup
		counter int
	)
	const (
		workers = 8
		rounds  = 1000
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	if want := workers * rounds; counter != want {
		t.Errorf("counter got %d, want %d", counter, want)
	}
}

func TestSpinMutexHolding(t *testing.T) {
	var m SpinMutex
	m.Init("test")
	if m.Holding() {
		t.Fatalf("Holding got true on a free mutex")
	}
	m.Lock()
	if !m.Holding() {
		t.Errorf("Holding got false, want true")
	}
	m.Unlock()
	if m.Holding() {
		t.Errorf("Holding got true after Unlock")
	}
}

func TestSpinMutexUnlockUnlocked(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Unlock of unlocked mutex did not panic")
		}
	}()
	var m SpinMutex
	m.Init("kmem")
	m.Unlock()
}

func TestSpinMutexWithCond(t *testing.T) {
	var m SpinMutex
	c := NewCond(&m)
	ready := false
	done := make(chan struct{})
	go func() {
		m.Lock()
		for !ready {
			c.Wait()
		}
		m.Unlock()
		close(done)
	}()
	time.Sleep(time.Millisecond)
	m.Lock()
	ready = true
	c.Broadcast()
	m.Unlock()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("waiter was not woken")
	}
}
