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

package ring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPushWithinCapacity(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 3; i++ {
		if b.Push(i) {
			t.Errorf("Push(%d) overwrote an element", i)
		}
	}
	if diff := cmp.Diff([]int{1, 2, 3}, b.Snapshot()); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
	if b.Len() != 3 || b.Cap() != 4 {
		t.Errorf("Len/Cap got %d/%d, want 3/4", b.Len(), b.Cap())
	}
}

func TestOverwriteOldest(t *testing.T) {
	for _, test := range []struct {
		name   string
		pushes int
		want   []int
	}{
		{name: "exactly full", pushes: 4, want: []int{1, 2, 3, 4}},
		{name: "one over", pushes: 5, want: []int{2, 3, 4, 5}},
		{name: "wrapped twice", pushes: 10, want: []int{7, 8, 9, 10}},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := New[int](4)
			overwrites := 0
			for i := 1; i <= test.pushes; i++ {
				if b.Push(i) {
					overwrites++
				}
			}
			if diff := cmp.Diff(test.want, b.Snapshot()); diff != "" {
				t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
			}
			if want := max(0, test.pushes-4); overwrites != want {
				t.Errorf("overwrites got %d, want %d", overwrites, want)
			}
			if b.Total() != uint64(test.pushes) {
				t.Errorf("Total got %d, want %d", b.Total(), test.pushes)
			}
		})
	}
}

func TestDoStopsEarly(t *testing.T) {
	b := New[string](3)
	for _, s := range []string{"a", "b", "c", "d"} {
		b.Push(s)
	}
	var got []string
	b.Do(func(s string) bool {
		got = append(got, s)
		return len(got) < 2
	})
	if diff := cmp.Diff([]string{"b", "c"}, got); diff != "" {
		t.Errorf("Do mismatch (-want +got):\n%s", diff)
	}
}
