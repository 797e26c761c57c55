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
	"fmt"
	"runtime"
	"sync/atomic"
)

// spinsBeforeYield is the number of failed acquisition attempts after which
// a waiter yields the processor instead of busy-waiting.
const spinsBeforeYield = 64

// SpinMutex is a non-reentrant spin-wait mutual exclusion lock.
//
// It mirrors the kernel spinlock: a holder must not block, and acquiring a
// SpinMutex already held by the same caller deadlocks. The zero value is an
// unlocked mutex.
type SpinMutex struct {
	_ NoCopy

	// name identifies the lock in panics.
	name string

	// state is 1 while the lock is held.
	state atomic.Uint32
}

// Init sets the lock name. It must not be called while the lock is in use.
func (m *SpinMutex) Init(name string) {
	m.name = name
}

// Name returns the lock name.
func (m *SpinMutex) Name() string {
	return m.name
}

// Lock acquires m, spinning until it becomes available.
func (m *SpinMutex) Lock() {
	for i := 0; !m.state.CompareAndSwap(0, 1); i++ {
		if i >= spinsBeforeYield {
			runtime.Gosched()
			i = 0
		}
	}
}

// Unlock releases m.
//
// Preconditions: m is locked.
func (m *SpinMutex) Unlock() {
	if !m.state.CompareAndSwap(1, 0) {
		panic(fmt.Sprintf("release of unlocked spin mutex %q", m.name))
	}
}

// Holding reports whether m is currently held by anyone. It is only useful
// for assertions.
func (m *SpinMutex) Holding() bool {
	return m.state.Load() == 1
}
