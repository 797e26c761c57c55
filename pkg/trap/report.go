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
	"fmt"

	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/ring"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// MaxReport is the number of trap reports the kernel keeps and returns.
const MaxReport = 10

const (
	// ReportSize is the size of a marshalled Report.
	ReportSize = 4 + proc.NameLen + 4 + 3*8

	// ReportTrapsSize is the size of a marshalled ReportTraps.
	ReportTrapsSize = MaxReport*ReportSize + 8
)

// Report describes a trap that killed a user process.
type Report struct {
	PID   int32
	Name  [proc.NameLen]byte
	Cause uint64
	EPC   uint64
	Tval  uint64
}

// String implements fmt.Stringer.
func (r Report) String() string {
	return fmt.Sprintf("%d\t%s\t%#016x\t%#016x\t%#016x", r.PID, proc.NameString(r.Name), r.Cause, r.EPC, r.Tval)
}

// ReportList is a bounded history of fatal user traps. Once full, each new
// report replaces the oldest.
type ReportList struct {
	mu sync.SpinMutex

	// +checklocks:mu
	reports *ring.Buffer[Report]
}

// NewReportList returns an empty list keeping the last capacity reports.
// capacity is clamped to [1, MaxReport].
func NewReportList(capacity int) *ReportList {
	capacity = min(max(capacity, 1), MaxReport)
	l := &ReportList{reports: ring.New[Report](capacity)}
	l.mu.Init("trap")
	return l
}

// Add appends r, overwriting the oldest report if the list is full.
func (l *ReportList) Add(r Report) {
	l.mu.Lock()
	l.reports.Push(r)
	l.mu.Unlock()
}

// Len returns the number of reports held.
func (l *ReportList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reports.Len()
}

// Total returns the number of reports ever added.
func (l *ReportList) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reports.Total()
}

// Snapshot returns the reports held, oldest first.
func (l *ReportList) Snapshot() []Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reports.Snapshot()
}

// Fill returns the reports for which match returns true, oldest first. A nil
// match selects every report.
func (l *ReportList) Fill(match func(Report) bool) ReportTraps {
	var rt ReportTraps
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports.Do(func(r Report) bool {
		if match != nil && !match(r) {
			return true
		}
		rt.Reports[rt.Count] = r
		rt.Count++
		return rt.Count < MaxReport
	})
	return rt
}

// ReportTraps is the block returned to user space by the report syscall.
type ReportTraps struct {
	Reports [MaxReport]Report
	Count   int32
}

// Slice returns the valid reports.
func (rt *ReportTraps) Slice() []Report {
	return rt.Reports[:rt.Count]
}

// MarshalBinary encodes rt in the layout user programs see: each report is
// pid, name, 4 bytes of padding then cause, epc and tval; the count follows
// the array and is padded to 8 bytes. All fields are little endian.
func (rt *ReportTraps) MarshalBinary() ([]byte, error) {
	b := make([]byte, ReportTrapsSize)
	for i := range rt.Reports {
		r := &rt.Reports[i]
		o := b[i*ReportSize : (i+1)*ReportSize]
		binary.LittleEndian.PutUint32(o[0:], uint32(r.PID))
		copy(o[4:4+proc.NameLen], r.Name[:])
		binary.LittleEndian.PutUint64(o[24:], r.Cause)
		binary.LittleEndian.PutUint64(o[32:], r.EPC)
		binary.LittleEndian.PutUint64(o[40:], r.Tval)
	}
	binary.LittleEndian.PutUint32(b[MaxReport*ReportSize:], uint32(rt.Count))
	return b, nil
}

// UnmarshalBinary decodes a block produced by MarshalBinary.
func (rt *ReportTraps) UnmarshalBinary(b []byte) error {
	if len(b) < ReportTrapsSize {
		return linuxerr.EINVAL
	}
	count := int32(binary.LittleEndian.Uint32(b[MaxReport*ReportSize:]))
	if count < 0 || count > MaxReport {
		return linuxerr.EINVAL
	}
	rt.Count = count
	for i := range rt.Reports {
		r := &rt.Reports[i]
		o := b[i*ReportSize : (i+1)*ReportSize]
		r.PID = int32(binary.LittleEndian.Uint32(o[0:]))
		copy(r.Name[:], o[4:4+proc.NameLen])
		r.Cause = binary.LittleEndian.Uint64(o[24:])
		r.EPC = binary.LittleEndian.Uint64(o[32:])
		r.Tval = binary.LittleEndian.Uint64(o[40:])
	}
	return nil
}
