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

// Package physmem provides the RAM backing the machine's physical address
// space.
//
// RAM is an anonymous private host mapping covering [Base, Top). Physical
// addresses are translated to offsets into the mapping; the kernel never
// sees host pointers.
package physmem

import (
	"fmt"

	"golang.org/x/sys/unix"
	"rvkernel.dev/rvkernel/pkg/riscv"
)

// Memory is the machine's RAM.
type Memory struct {
	base riscv.Addr
	top  riscv.Addr

	// data is the backing store. It is a host mapping when mapped is true.
	data   []byte
	mapped bool
}

// New maps RAM covering the physical range [base, top). Both bounds must be
// page aligned.
func New(base, top riscv.Addr) (*Memory, error) {
	if err := checkRange(base, top); err != nil {
		return nil, err
	}
	data, err := unix.Mmap(-1, 0, int(top-base), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mapping %d bytes of RAM: %w", top-base, err)
	}
	return &Memory{base: base, top: top, data: data, mapped: true}, nil
}

// NewFromBytes returns RAM backed by an ordinary Go slice, for small machines
// and tests. len(data) must equal top-base.
func NewFromBytes(base, top riscv.Addr, data []byte) (*Memory, error) {
	if err := checkRange(base, top); err != nil {
		return nil, err
	}
	if uint64(len(data)) != uint64(top-base) {
		return nil, fmt.Errorf("backing slice has %d bytes, range needs %d", len(data), top-base)
	}
	return &Memory{base: base, top: top, data: data}, nil
}

func checkRange(base, top riscv.Addr) error {
	if !base.IsPageAligned() || !top.IsPageAligned() {
		return fmt.Errorf("RAM range [%#x, %#x) is not page aligned", base, top)
	}
	if top <= base {
		return fmt.Errorf("empty RAM range [%#x, %#x)", base, top)
	}
	return nil
}

// Base returns the first physical address of RAM.
func (m *Memory) Base() riscv.Addr {
	return m.base
}

// Top returns one past the last physical address of RAM.
func (m *Memory) Top() riscv.Addr {
	return m.top
}

// Contains reports whether [pa, pa+n) lies entirely in RAM.
func (m *Memory) Contains(pa riscv.Addr, n uint64) bool {
	return pa >= m.base && pa < m.top && n <= uint64(m.top-pa)
}

// Slice returns the n bytes of RAM starting at physical address pa.
//
// Preconditions: m.Contains(pa, n).
func (m *Memory) Slice(pa riscv.Addr, n uint64) []byte {
	if !m.Contains(pa, n) {
		panic(fmt.Sprintf("physical range [%#x, %#x) outside RAM [%#x, %#x)", pa, uint64(pa)+n, m.base, m.top))
	}
	off := uint64(pa - m.base)
	return m.data[off : off+n : off+n]
}

// Page returns the page-sized slice of RAM at the page-aligned address pa.
func (m *Memory) Page(pa riscv.Addr) []byte {
	if !pa.IsPageAligned() {
		panic(fmt.Sprintf("page address %#x is not aligned", pa))
	}
	return m.Slice(pa, riscv.PageSize)
}

// Close releases the host mapping. m must not be used afterwards.
func (m *Memory) Close() error {
	if !m.mapped {
		m.data = nil
		return nil
	}
	data := m.data
	m.data = nil
	m.mapped = false
	return unix.Munmap(data)
}
