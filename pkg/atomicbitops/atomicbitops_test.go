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

package atomicbitops

import (
	"testing"

	"rvkernel.dev/rvkernel/pkg/sync"
)

func TestUint64Add(t *testing.T) {
	var (
		u  Uint64
		wg sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				u.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := u.Load(); got != 1600 {
		t.Errorf("Load got %d, want 1600", got)
	}
	if u.CompareAndSwap(0, 1) {
		t.Errorf("CompareAndSwap with stale value succeeded")
	}
	if !u.CompareAndSwap(1600, 7) || u.Load() != 7 {
		t.Errorf("CompareAndSwap failed, value %d", u.Load())
	}
}

func TestBool(t *testing.T) {
	var b Bool
	if b.Load() {
		t.Fatalf("zero Bool is true")
	}
	if old := b.Swap(true); old {
		t.Errorf("Swap returned %v, want false", old)
	}
	if !b.Load() {
		t.Errorf("Load got false after Swap(true)")
	}
	b.Store(false)
	if b.Load() {
		t.Errorf("Load got true after Store(false)")
	}
}
