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
	"context"
	"testing"

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/riscv"
	"rvkernel.dev/rvkernel/rvsim/config"
	"rvkernel.dev/rvkernel/rvsim/flag"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse([]string{"--memory=4", "--harts=3", "--tick=1ms", "--host-memory=false"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	conf, err := config.NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	return conf
}

func execute(t *testing.T, c subcommands.Command, args ...string) int {
	t.Helper()
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	status := -1
	if ret := c.Execute(context.Background(), fs, testConfig(t), &status); ret != subcommands.ExitSuccess {
		t.Fatalf("%s: Execute() = %v", c.Name(), ret)
	}
	return status
}

func TestCommands(t *testing.T) {
	for _, tc := range []struct {
		cmd  subcommands.Command
		args []string
	}{
		{cmd: new(Boot), args: []string{"--uart-irqs=3", "--disk-irqs=2", "--sleep=2"}},
		{cmd: new(Uptime), args: []string{"--ticks=3"}},
		{cmd: new(COWTest), args: []string{"--sleep=5"}},
		{cmd: new(TrapTest), args: []string{"--sleep=30"}},
		{cmd: new(Stress), args: []string{"--procs=3", "--rounds=2", "--pages=4"}},
		{cmd: new(Top), args: []string{"--samples=1", "--interval=5"}},
		{cmd: new(ChildTest), args: []string{"--samples=1", "--interval=10"}},
	} {
		t.Run(tc.cmd.Name(), func(t *testing.T) {
			if status := execute(t, tc.cmd, tc.args...); status != 0 {
				t.Errorf("%s exited with status %d", tc.cmd.Name(), status)
			}
		})
	}
}

func TestTrapTestReports(t *testing.T) {
	tt := &TrapTest{}
	if status := execute(t, tt, "--children=3", "--sleep=40"); status != 0 {
		t.Fatalf("trtest exited with status %d", status)
	}
	// The grandchild forked by the first child is not init's child.
	if got := len(tt.reports); got != 3 {
		t.Fatalf("trtest read %d reports, want 3: %v", got, tt.reports)
	}
	for _, r := range tt.reports {
		if r.Cause != riscv.CauseLoadPageFault || r.Tval != uint64(badAddr) {
			t.Errorf("report %v, want a load fault at %#x", r, uint64(badAddr))
		}
	}
}

func TestTopSnapshot(t *testing.T) {
	top := &Top{}
	if status := execute(t, top, "--spinners=2", "--sleepers=1", "--samples=2", "--interval=5"); status != 0 {
		t.Fatalf("top exited with status %d", status)
	}
	if got := top.last.Total; got != 4 {
		t.Errorf("total = %d, want 4", got)
	}
	for _, pi := range top.last.Slice() {
		if got := pi.NameString(); got != "top" {
			t.Errorf("pid %d name = %q, want %q", pi.PID, got, "top")
		}
	}
	if top.last.Uptime == 0 {
		t.Errorf("uptime = 0 after two intervals")
	}
}

func TestChildTestListing(t *testing.T) {
	ct := &ChildTest{}
	if status := execute(t, ct, "--samples=1", "--interval=20"); status != 0 {
		t.Fatalf("cptest exited with status %d", status)
	}
	// One subtree root and its two leaves.
	if got := ct.last.Count; got != 3 {
		t.Fatalf("count = %d, want 3: %v", got, ct.last.Slice())
	}
	root := ct.last.Procs[0]
	for _, pi := range ct.last.Slice()[1:] {
		if pi.PPID != root.PID {
			t.Errorf("pid %d has parent %d, want %d", pi.PID, pi.PPID, root.PID)
		}
	}
}

func TestUsage(t *testing.T) {
	fs := flag.NewFlagSet("uptime", flag.ContinueOnError)
	up := new(Uptime)
	up.SetFlags(fs)
	if err := fs.Parse([]string{"extra"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fs.Usage = func() {}
	var status int
	if got := up.Execute(context.Background(), fs, testConfig(t), &status); got != subcommands.ExitUsageError {
		t.Errorf("Execute() with arguments = %v, want %v", got, subcommands.ExitUsageError)
	}
}
