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

package cmd

import (
	"bytes"
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	procs   int
	rounds  int
	pages   int
	retries uint64
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "fork many writers over shared memory and check frame accounting"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - init fills its memory with a pattern, then in each
round forks writers that check the pattern and overwrite every page. Forks
that fail for lack of memory are retried after a backoff.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.procs, "procs", 8, "writers per round.")
	f.IntVar(&s.rounds, "rounds", 4, "number of rounds.")
	f.IntVar(&s.pages, "pages", 32, "pages of memory shared by init.")
	f.Uint64Var(&s.retries, "retries", 8, "fork retries per writer.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || s.procs < 1 || s.pages < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := bootKernel(args)
	tick := k.Options().TickInterval
	size := s.pages * riscv.PageSize
	pattern := bytes.Repeat([]byte{0xa5}, size)
	// Init collects exit statuses in the last word of its memory.
	statusBuf := size - 4

	writer := func(u *kernel.User) int {
		if !bytes.Equal(u.Load(0, statusBuf), pattern[:statusBuf]) {
			return 1
		}
		mine := bytes.Repeat([]byte{byte(u.Getpid())}, riscv.PageSize)
		for va := 0; va < size; va += riscv.PageSize {
			u.Store(riscv.Addr(va), mine)
		}
		if !bytes.Equal(u.Load(0, riscv.PageSize), mine) {
			return 2
		}
		return 0
	}

	// fork retries on failure, sleeping for a backoff rounded up to
	// whole ticks.
	fork := func(u *kernel.User) int32 {
		b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries)
		for {
			if pid := u.Fork(writer); pid > 0 {
				return pid
			}
			d := b.NextBackOff()
			if d == backoff.Stop {
				return -1
			}
			log.Debugf("stress: fork failed, retrying in %v", d)
			u.Sleep(int64((d + tick - 1) / tick))
		}
	}

	var failed int
	ret := runInit(ctx, k, "stress", func(u *kernel.User) int {
		if u.Sbrk(int64(size)) < 0 {
			return 1
		}
		u.Store(0, pattern)
		for r := 0; r < s.rounds; r++ {
			start := time.Now()
			for i := 0; i < s.procs; i++ {
				if fork(u) < 0 {
					failed++
				}
			}
			for {
				pid, status := u.WaitStatus(riscv.Addr(statusBuf))
				if pid < 0 {
					break
				}
				if status != 0 {
					log.Warningf("stress: writer %d exited with status %d", pid, status)
					failed++
				}
			}
			util.Infof("round %d: %d frames allocated, %v", r, k.Allocator().Allocated(), time.Since(start))
		}
		if !bytes.Equal(u.Load(0, statusBuf), pattern[:statusBuf]) {
			return 2
		}
		return 0
	}, args)
	util.Infof("COW faults: %d, failed writers: %d", k.Dispatcher().Count(trap.COWFault), failed)
	if ret == subcommands.ExitSuccess && failed > 0 {
		*args[1].(*int) = 1
	}
	return ret
}
