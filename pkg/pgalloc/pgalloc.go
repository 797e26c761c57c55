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

// Package pgalloc is the physical frame allocator.
//
// The allocator owns every frame of RAM between the end of the kernel image
// and the top of physical memory. Frames are identified by index: frame i
// lives at physical address Start()+i*PageSize, and i indexes both the free
// list and the share-count table. A frame's share count is the number of
// page-table entries (or other owners) referencing it; a frame is on the free
// list iff its share count is zero.
//
// Lock ordering: freeMu and refMu are never held at the same time.
package pgalloc

import (
	"fmt"

	"rvkernel.dev/rvkernel/pkg/errors/linuxerr"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// Frame identifies a physical frame by its index in the allocator.
type Frame uint32

// noFrame terminates the free list.
const noFrame = ^Frame(0)

const (
	// allocJunk fills newly allocated frames so that reads of
	// uninitialized memory are recognizable.
	allocJunk = 5

	// freeJunk fills released frames so that dangling references are
	// recognizable.
	freeJunk = 1
)

// Options configures an Allocator.
type Options struct {
	// KernelEnd is the first physical address after the kernel image. The
	// first managed frame starts at KernelEnd rounded up to a page.
	KernelEnd riscv.Addr
}

// Allocator allocates whole frames of physical memory and tracks how many
// owners share each of them.
type Allocator struct {
	mem *physmem.Memory

	// start is the physical address of frame 0. top is one past the last
	// managed address. Both are immutable.
	start riscv.Addr
	top   riscv.Addr

	// nframes is the number of managed frames. Immutable.
	nframes uint64

	// freeMu protects the free list and usage counters.
	freeMu sync.SpinMutex

	// freeHead is the first frame on the free list.
	//
	// +checklocks:freeMu
	freeHead Frame

	// next links the free list: next[f] is the frame after f.
	//
	// +checklocks:freeMu
	next []Frame

	// allocated is the number of frames not on the free list.
	//
	// +checklocks:freeMu
	allocated uint64

	// refMu protects refs.
	refMu sync.SpinMutex

	// refs is the share-count table.
	//
	// +checklocks:refMu
	refs []int32
}

// New returns an allocator managing the frames of mem above opts.KernelEnd.
// Every managed frame is released once during construction, which places it
// on the free list with a share count of zero.
func New(mem *physmem.Memory, opts Options) (*Allocator, error) {
	start, ok := opts.KernelEnd.RoundUp()
	if !ok || start < mem.Base() || start >= mem.Top() {
		return nil, fmt.Errorf("kernel end %#x leaves no RAM in [%#x, %#x)", opts.KernelEnd, mem.Base(), mem.Top())
	}
	n := uint64(mem.Top()-start) / riscv.PageSize
	if n >= uint64(noFrame) {
		return nil, fmt.Errorf("%d frames exceed the allocator's index space", n)
	}
	a := &Allocator{
		mem:      mem,
		start:    start,
		top:      start + riscv.Addr(n*riscv.PageSize),
		nframes:  n,
		freeHead: noFrame,
		next:     make([]Frame, n),
		refs:     make([]int32, n),
	}
	a.freeMu.Init("kmem")
	a.refMu.Init("kref")
	a.freeRange()
	log.Infof("pgalloc: %d frames in [%#x, %#x)", n, uint64(a.start), uint64(a.top))
	return a, nil
}

// freeRange seeds the free list. Until released, each frame is treated as
// owned by the boot path with a share count of one.
func (a *Allocator) freeRange() {
	a.freeMu.Lock()
	a.allocated = a.nframes
	a.freeMu.Unlock()

	a.refMu.Lock()
	for i := range a.refs {
		a.refs[i] = 1
	}
	a.refMu.Unlock()

	for pa := a.start; pa+riscv.PageSize <= a.top; pa += riscv.PageSize {
		a.ReleaseAddr(pa)
	}
}

// Start returns the physical address of the first managed frame.
func (a *Allocator) Start() riscv.Addr {
	return a.start
}

// Top returns one past the last managed physical address.
func (a *Allocator) Top() riscv.Addr {
	return a.top
}

// Addr returns the physical address of f.
func (a *Allocator) Addr(f Frame) riscv.Addr {
	a.checkFrame(f)
	return a.start + riscv.Addr(uint64(f)*riscv.PageSize)
}

// FrameOf returns the frame at physical address pa. pa must be page aligned
// and inside the managed range; anything else is a kernel bug and panics.
func (a *Allocator) FrameOf(pa riscv.Addr) Frame {
	if !pa.IsPageAligned() || pa < a.start || pa >= a.top {
		panic(fmt.Sprintf("pgalloc: bad frame address %#x, managed range [%#x, %#x)", uint64(pa), uint64(a.start), uint64(a.top)))
	}
	return Frame(uint64(pa-a.start) / riscv.PageSize)
}

func (a *Allocator) checkFrame(f Frame) {
	if uint64(f) >= a.nframes {
		panic(fmt.Sprintf("pgalloc: frame %d out of range [0, %d)", f, a.nframes))
	}
}

// Bytes returns the contents of f.
func (a *Allocator) Bytes(f Frame) []byte {
	return a.mem.Page(a.Addr(f))
}

// Allocate returns a free frame with a share count of one. Its contents are
// junk. If no frame is free, Allocate returns ENOMEM.
func (a *Allocator) Allocate() (Frame, error) {
	a.freeMu.Lock()
	f := a.freeHead
	if f == noFrame {
		a.freeMu.Unlock()
		return noFrame, linuxerr.ENOMEM
	}
	a.freeHead = a.next[f]
	a.next[f] = noFrame
	a.allocated++
	a.freeMu.Unlock()

	fill(a.Bytes(f), allocJunk)

	a.refMu.Lock()
	if r := a.refs[f]; r != 0 {
		a.refMu.Unlock()
		panic(fmt.Sprintf("pgalloc: free frame %d has share count %d", f, r))
	}
	a.refs[f] = 1
	a.refMu.Unlock()
	return f, nil
}

// Release drops one reference to f. When the last reference is dropped the
// frame is scrubbed and returned to the free list.
//
// Preconditions: f was returned by Allocate, or shared with AddShare, and
// the caller holds one of its references. Releasing a frame whose share
// count is already zero is a double free and panics.
func (a *Allocator) Release(f Frame) {
	a.checkFrame(f)

	a.refMu.Lock()
	prev := a.refs[f]
	if prev > 0 {
		a.refs[f] = prev - 1
	}
	a.refMu.Unlock()

	switch {
	case prev == 0:
		panic(fmt.Sprintf("pgalloc: double free of frame %d (pa %#x)", f, uint64(a.Addr(f))))
	case prev > 1:
		return
	}

	fill(a.Bytes(f), freeJunk)

	a.freeMu.Lock()
	a.pushFreeLocked(f)
	a.freeMu.Unlock()
}

// pushFreeLocked puts f at the head of the free list.
//
// Preconditions: a.freeMu is held.
func (a *Allocator) pushFreeLocked(f Frame) {
	if !a.freeMu.Holding() {
		panic("pgalloc: free list updated without " + a.freeMu.Name())
	}
	a.next[f] = a.freeHead
	a.freeHead = f
	a.allocated--
}

// ReleaseAddr is Release for the frame at physical address pa.
func (a *Allocator) ReleaseAddr(pa riscv.Addr) {
	a.Release(a.FrameOf(pa))
}

// AddShare takes an additional reference on the allocated frame f, for a new
// page-table entry that maps it.
func (a *Allocator) AddShare(f Frame) {
	a.checkFrame(f)
	a.refMu.Lock()
	r := a.refs[f]
	if r > 0 {
		a.refs[f] = r + 1
	}
	a.refMu.Unlock()
	if r <= 0 {
		panic(fmt.Sprintf("pgalloc: share of free frame %d", f))
	}
}

// AddShareAddr is AddShare for the frame at physical address pa.
func (a *Allocator) AddShareAddr(pa riscv.Addr) {
	a.AddShare(a.FrameOf(pa))
}

// ShareCount returns the share count of f.
func (a *Allocator) ShareCount(f Frame) int32 {
	a.checkFrame(f)
	a.refMu.Lock()
	defer a.refMu.Unlock()
	return a.refs[f]
}

// Allocated returns the number of frames currently allocated.
func (a *Allocator) Allocated() uint64 {
	a.freeMu.Lock()
	defer a.freeMu.Unlock()
	return a.allocated
}

// Capacity returns the number of frames managed by a.
func (a *Allocator) Capacity() uint64 {
	a.freeMu.Lock()
	defer a.freeMu.Unlock()
	return a.nframes
}

// FreeFrames returns the free list in allocation order.
func (a *Allocator) FreeFrames() []Frame {
	a.freeMu.Lock()
	defer a.freeMu.Unlock()
	var fs []Frame
	for f := a.freeHead; f != noFrame && uint64(len(fs)) <= a.nframes; f = a.next[f] {
		fs = append(fs, f)
	}
	return fs
}

// CheckInvariants verifies that a frame is on the free list iff its share
// count is zero, that no frame is on the free list twice and that the
// allocated count matches. It is only meaningful while no other goroutine
// uses a.
func (a *Allocator) CheckInvariants() error {
	for _, mu := range []*sync.SpinMutex{&a.freeMu, &a.refMu} {
		if mu.Holding() {
			return fmt.Errorf("%s is held", mu.Name())
		}
	}
	free := a.FreeFrames()
	allocated := a.Allocated()
	if uint64(len(free)) > a.nframes {
		return fmt.Errorf("free list is longer than %d frames", a.nframes)
	}
	if want := a.nframes - uint64(len(free)); allocated != want {
		return fmt.Errorf("allocated count is %d, %d frames are off the free list", allocated, want)
	}
	onFree := make([]bool, a.nframes)
	for _, f := range free {
		if onFree[f] {
			return fmt.Errorf("frame %d is on the free list twice", f)
		}
		onFree[f] = true
	}

	a.refMu.Lock()
	defer a.refMu.Unlock()
	for i, r := range a.refs {
		switch {
		case r < 0:
			return fmt.Errorf("frame %d has negative share count %d", i, r)
		case onFree[i] && r != 0:
			return fmt.Errorf("free frame %d has share count %d", i, r)
		case !onFree[i] && r == 0:
			return fmt.Errorf("frame %d has share count 0 but is not free", i)
		}
	}
	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
