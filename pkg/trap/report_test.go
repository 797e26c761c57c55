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
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

func report(pid int32) Report {
	return Report{
		PID:   pid,
		Name:  proc.MakeName("trtest"),
		Cause: riscv.CauseLoadPageFault,
		EPC:   uint64(0x100 + pid),
		Tval:  ^uint64(0),
	}
}

func TestReportListOverwritesOldest(t *testing.T) {
	l := NewReportList(MaxReport)
	for pid := int32(1); pid <= MaxReport+1; pid++ {
		l.Add(report(pid))
	}
	if got := l.Len(); got != MaxReport {
		t.Errorf("Len got %d, want %d", got, MaxReport)
	}
	if got := l.Total(); got != MaxReport+1 {
		t.Errorf("Total got %d, want %d", got, MaxReport+1)
	}
	var want []Report
	for pid := int32(2); pid <= MaxReport+1; pid++ {
		want = append(want, report(pid))
	}
	if diff := cmp.Diff(want, l.Snapshot()); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	rt := l.Fill(nil)
	if rt.Count != MaxReport {
		t.Errorf("Fill count got %d, want %d", rt.Count, MaxReport)
	}
	if diff := cmp.Diff(want, rt.Slice()); diff != "" {
		t.Errorf("Fill mismatch (-want +got):\n%s", diff)
	}
}

func TestReportListFill(t *testing.T) {
	l := NewReportList(MaxReport)
	for _, pid := range []int32{3, 4, 3, 5, 4, 3} {
		l.Add(report(pid))
	}
	rt := l.Fill(func(r Report) bool { return r.PID == 3 })
	want := []Report{report(3), report(3), report(3)}
	if diff := cmp.Diff(want, rt.Slice()); diff != "" {
		t.Errorf("Fill mismatch (-want +got):\n%s", diff)
	}
	if rt := l.Fill(func(Report) bool { return false }); rt.Count != 0 {
		t.Errorf("Fill with no match got count %d", rt.Count)
	}
}

func TestReportListCapacity(t *testing.T) {
	for _, tc := range []struct {
		capacity, want int
	}{
		{0, 1},
		{3, 3},
		{MaxReport * 2, MaxReport},
	} {
		l := NewReportList(tc.capacity)
		for pid := int32(0); pid < MaxReport*3; pid++ {
			l.Add(report(pid))
		}
		if got := l.Len(); got != tc.want {
			t.Errorf("NewReportList(%d): Len got %d, want %d", tc.capacity, got, tc.want)
		}
	}
}

func TestReportTrapsLayout(t *testing.T) {
	if ReportSize != 48 {
		t.Fatalf("ReportSize got %d, want 48", ReportSize)
	}
	var rt ReportTraps
	rt.Reports[0] = report(7)
	rt.Reports[1] = report(8)
	rt.Count = 2

	b, err := rt.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(b) != ReportTrapsSize {
		t.Fatalf("marshalled %d bytes, want %d", len(b), ReportTrapsSize)
	}
	second := b[ReportSize:]
	if got := binary.LittleEndian.Uint32(second); got != 8 {
		t.Errorf("pid got %d, want 8", got)
	}
	if got := string(second[4:10]); got != "trtest" {
		t.Errorf("name got %q", got)
	}
	if got := binary.LittleEndian.Uint64(second[24:]); got != riscv.CauseLoadPageFault {
		t.Errorf("scause got %#x", got)
	}
	if got := binary.LittleEndian.Uint64(second[32:]); got != 0x108 {
		t.Errorf("sepc got %#x", got)
	}
	if got := binary.LittleEndian.Uint64(second[40:]); got != ^uint64(0) {
		t.Errorf("stval got %#x", got)
	}
	if got := binary.LittleEndian.Uint32(b[MaxReport*ReportSize:]); got != 2 {
		t.Errorf("count got %d, want 2", got)
	}

	var back ReportTraps
	if err := back.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if diff := cmp.Diff(rt, back); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}
	if err := back.UnmarshalBinary(b[:10]); err == nil {
		t.Errorf("UnmarshalBinary accepted a short buffer")
	}
}
