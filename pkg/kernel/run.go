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

package kernel

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/proc"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/pkg/trap"
)

// idlePC is the supervisor program counter of an idle clock hart.
const idlePC = uint64(riscv.KernBase) + 0x2000

// Run starts the clock hart and runs prog as the first process. It returns
// prog's exit status once every process has exited. If ctx is cancelled,
// every process is killed; each exits at its next trap.
func (k *Kernel) Run(ctx context.Context, name string, prog Program) (int, error) {
	first, err := k.NewProcess(name, 0)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	k.groupMu.Lock()
	k.group = g
	k.groupMu.Unlock()
	stop := context.AfterFunc(gctx, k.killAll)
	defer stop()

	clockCtx, stopClock := context.WithCancel(context.Background())
	clockDone := make(chan struct{})
	go func() {
		defer close(clockDone)
		k.clockLoop(clockCtx)
	}()

	k.start(first, prog)
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	stopClock()
	<-clockDone

	status := first.ExitStatus()
	k.procs.Free(first)
	log.Infof("%s exited with status %d after %d ticks", name, status, k.clock.Ticks())
	return status, err
}

// start runs prog as p in a new goroutine.
func (k *Kernel) start(p *proc.Proc, prog Program) {
	k.groupMu.Lock()
	g := k.group
	k.groupMu.Unlock()
	g.Go(func() error {
		u := &User{k: k, h: k.acquire(p)}
		k.disp.UserTrapRet(u.h, p)
		u.pc = u.h.CSR.Sepc
		u.Exit(prog(u))
		return nil
	})
}

// killAll kills every process.
func (k *Kernel) killAll() {
	k.procs.Do(func(p *proc.Proc) bool {
		p.SetKilled()
		p.CompareAndSetState(proc.Sleeping, proc.Runnable)
		return true
	})
	k.wakeAll()
}

// clockLoop drives hart 0 until ctx is cancelled: on every tick it takes the
// timer interrupt, posts a timer interrupt to every process hart and serves
// pending device interrupts.
func (k *Kernel) clockLoop(ctx context.Context) {
	t := time.NewTicker(k.opts.TickInterval)
	defer t.Stop()
	h := k.clockHart
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		h.CSR.Sip |= riscv.SipSSIP
		k.kernelInterrupt(h, riscv.CauseSupervisorSoftware)
		for id := 1; id < len(k.timerPending); id++ {
			k.timerPending[id].Store(true)
		}
		for k.plic.Pending() {
			k.kernelInterrupt(h, riscv.CauseSupervisorExternal)
		}
	}
}

// kernelInterrupt delivers an interrupt to h while it runs in supervisor
// mode.
func (k *Kernel) kernelInterrupt(h *trap.Hart, scause uint64) {
	h.CSR.Scause = scause
	h.CSR.Sepc = idlePC
	h.CSR.Stval = 0
	// Entering the trap saves and clears the interrupt enable.
	h.CSR.Sstatus = riscv.SstatusSPP | riscv.SstatusSPIE
	k.disp.KernelTrap(h)
}
