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

package syscalls

import (
	"encoding/binary"

	"rvkernel.dev/rvkernel/pkg/clock"
	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/pgalloc"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// ProcInfo describes one process to user space.
type ProcInfo struct {
	Name  [proc.NameLen]byte
	PID   int32
	PPID  int32
	State proc.State

	// CTime is the tick at which the process was created.
	CTime uint64

	// RTime is the number of ticks the process has run.
	RTime uint64
}

// Block sizes seen by user programs.
const (
	ProcInfoSize       = 48
	TopSize            = topHeader + proc.NPROC*ProcInfoSize
	ChildProcessesSize = childHeader + proc.NPROC*ProcInfoSize

	topHeader   = 24
	childHeader = 8
)

func infoOf(p *proc.Proc) ProcInfo {
	return ProcInfo{
		Name:  p.Name,
		PID:   p.PID,
		PPID:  p.Parent,
		State: p.State(),
		CTime: p.Created(),
		RTime: p.RunTime(),
	}
}

// NameString returns the process name.
func (pi *ProcInfo) NameString() string {
	return proc.NameString(pi.Name)
}

// CPUPercent returns the share of uptime the process has run, in hundredths
// of a percent.
func (pi *ProcInfo) CPUPercent(uptime uint64) uint64 {
	if uptime == 0 {
		return 0
	}
	return pi.RTime * 10000 / uptime
}

// name@0, pid@16, ppid@20, state@24, 4 bytes of padding, ctime@32, rtime@40.
func (pi *ProcInfo) marshal(b []byte) {
	copy(b[0:proc.NameLen], pi.Name[:])
	binary.LittleEndian.PutUint32(b[16:], uint32(pi.PID))
	binary.LittleEndian.PutUint32(b[20:], uint32(pi.PPID))
	binary.LittleEndian.PutUint32(b[24:], uint32(pi.State))
	binary.LittleEndian.PutUint64(b[32:], pi.CTime)
	binary.LittleEndian.PutUint64(b[40:], pi.RTime)
}

func (pi *ProcInfo) unmarshal(b []byte) {
	copy(pi.Name[:], b[0:proc.NameLen])
	pi.PID = int32(binary.LittleEndian.Uint32(b[16:]))
	pi.PPID = int32(binary.LittleEndian.Uint32(b[20:]))
	pi.State = proc.State(binary.LittleEndian.Uint32(b[24:]))
	pi.CTime = binary.LittleEndian.Uint64(b[32:])
	pi.RTime = binary.LittleEndian.Uint64(b[40:])
}

// Top is the system snapshot returned by the ttop system call.
type Top struct {
	// Uptime is the number of ticks since boot.
	Uptime uint64

	Total    int32
	Running  int32
	Sleeping int32

	Procs [proc.NPROC]ProcInfo
}

// Slice returns the valid entries.
func (t *Top) Slice() []ProcInfo {
	return t.Procs[:t.Total]
}

// MarshalBinary encodes t: uptime, the three counts and 4 bytes of padding,
// then the process array. All fields are little endian.
func (t *Top) MarshalBinary() ([]byte, error) {
	b := make([]byte, TopSize)
	binary.LittleEndian.PutUint64(b[0:], t.Uptime)
	binary.LittleEndian.PutUint32(b[8:], uint32(t.Total))
	binary.LittleEndian.PutUint32(b[12:], uint32(t.Running))
	binary.LittleEndian.PutUint32(b[16:], uint32(t.Sleeping))
	for i := range t.Procs {
		o := topHeader + i*ProcInfoSize
		t.Procs[i].marshal(b[o : o+ProcInfoSize])
	}
	return b, nil
}

// UnmarshalBinary decodes a block produced by MarshalBinary.
func (t *Top) UnmarshalBinary(b []byte) error {
	if len(b) < TopSize {
		return linuxerr.EINVAL
	}
	total := int32(binary.LittleEndian.Uint32(b[8:]))
	if total < 0 || total > proc.NPROC {
		return linuxerr.EINVAL
	}
	t.Uptime = binary.LittleEndian.Uint64(b[0:])
	t.Total = total
	t.Running = int32(binary.LittleEndian.Uint32(b[12:]))
	t.Sleeping = int32(binary.LittleEndian.Uint32(b[16:]))
	for i := range t.Procs {
		o := topHeader + i*ProcInfoSize
		t.Procs[i].unmarshal(b[o : o+ProcInfoSize])
	}
	return nil
}

// ChildProcesses is the block returned by the chp system call.
type ChildProcesses struct {
	Count int32
	Procs [proc.NPROC]ProcInfo
}

// Slice returns the valid entries.
func (cp *ChildProcesses) Slice() []ProcInfo {
	return cp.Procs[:cp.Count]
}

// MarshalBinary encodes cp: the count padded to 8 bytes, then the process
// array.
func (cp *ChildProcesses) MarshalBinary() ([]byte, error) {
	b := make([]byte, ChildProcessesSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(cp.Count))
	for i := range cp.Procs {
		o := childHeader + i*ProcInfoSize
		cp.Procs[i].marshal(b[o : o+ProcInfoSize])
	}
	return b, nil
}

// UnmarshalBinary decodes a block produced by MarshalBinary.
func (cp *ChildProcesses) UnmarshalBinary(b []byte) error {
	if len(b) < ChildProcessesSize {
		return linuxerr.EINVAL
	}
	count := int32(binary.LittleEndian.Uint32(b[0:]))
	if count < 0 || count > proc.NPROC {
		return linuxerr.EINVAL
	}
	cp.Count = count
	for i := range cp.Procs {
		o := childHeader + i*ProcInfoSize
		cp.Procs[i].unmarshal(b[o : o+ProcInfoSize])
	}
	return nil
}

// FillTop snapshots every process in t.
func FillTop(c *clock.Clock, t *proc.Table) Top {
	top := Top{Uptime: c.Ticks()}
	t.Do(func(p *proc.Proc) bool {
		pi := infoOf(p)
		switch pi.State {
		case proc.Running:
			top.Running++
		case proc.Sleeping:
			top.Sleeping++
		}
		top.Procs[top.Total] = pi
		top.Total++
		return true
	})
	return top
}

// FillChildren snapshots p's descendants, children before grandchildren.
func FillChildren(t *proc.Table, p *proc.Proc) ChildProcesses {
	var cp ChildProcesses
	queue := t.Children(p.PID)
	for len(queue) > 0 && cp.Count < proc.NPROC {
		pid := queue[0]
		queue = queue[1:]
		c, ok := t.Lookup(pid)
		if !ok {
			continue
		}
		cp.Procs[cp.Count] = infoOf(c)
		cp.Count++
		queue = append(queue, t.Children(pid)...)
	}
	return cp
}

// TTop copies a snapshot of every process to dst in p's address space.
func TTop(a *pgalloc.Allocator, c *clock.Clock, t *proc.Table, p *proc.Proc, dst riscv.Addr) error {
	top := FillTop(c, t)
	b, err := top.MarshalBinary()
	if err != nil {
		return err
	}
	return CopyOut(a, p.PageTable, dst, b)
}

// Chp copies a snapshot of p's descendants to dst in p's address space.
func Chp(a *pgalloc.Allocator, t *proc.Table, p *proc.Proc, dst riscv.Addr) error {
	cp := FillChildren(t, p)
	b, err := cp.MarshalBinary()
	if err != nil {
		return err
	}
	return CopyOut(a, p.PageTable, dst, b)
}
