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

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %v, expected: %v", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Errorf("line %d doesn't match, got: %q, expected: %q", i, l, expected[i])
		}
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	var buf bytes.Buffer
	e := GoogleEmitter{&Writer{Next: &buf}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "usertrap(): unexpected scause %#x pid=%d", 0xd, 3)

	got := buf.String()
	if !strings.HasPrefix(got, "W0304 05:06:07.000008 ") {
		t.Errorf("header got %q", got)
	}
	if !strings.Contains(got, "log_test.go:") {
		t.Errorf("caller missing from %q", got)
	}
	if !strings.HasSuffix(got, "] usertrap(): unexpected scause 0xd pid=3\n") {
		t.Errorf("message got %q", got)
	}
}

func TestBasicLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: &buf}}
	l.Debugf("hidden")
	l.Infof("shown %d", 1)
	l.Warningf("shown %d", 2)
	if got, want := buf.String(), "shown 1\nshown 2\n"; got != want {
		t.Errorf("output got %q, want %q", got, want)
	}
	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) got false after SetLevel(Debug)")
	}
}

func TestRateLimitedLoggerPerKey(t *testing.T) {
	var buf bytes.Buffer
	base := &BasicLogger{Level: Debug, Emitter: &Writer{Next: &buf}}
	rl := NewRateLimitedLogger[int](base, time.Hour)
	for _, irq := range []int{5, 5, 7, 5, 7, 9} {
		rl.For(irq).Warningf("unexpected interrupt irq=%d", irq)
	}
	want := "unexpected interrupt irq=5\nunexpected interrupt irq=7\nunexpected interrupt irq=9\n"
	if got := buf.String(); got != want {
		t.Errorf("output got %q, want %q", got, want)
	}
	if got := rl.Keys(); got != 3 {
		t.Errorf("Keys got %d, want 3", got)
	}
}

func TestRateLimitedLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	base := &BasicLogger{Level: Warning, Emitter: &Writer{Next: &buf}}
	rl := NewRateLimitedLogger[string](base, time.Hour)
	l := rl.For("uart")
	// Filtered messages must not use up the key's allowance.
	l.Debugf("dropped")
	l.Infof("dropped")
	l.Warningf("shown")
	if got, want := buf.String(), "shown\n"; got != want {
		t.Errorf("output got %q, want %q", got, want)
	}
	if l.IsLogging(Info) {
		t.Errorf("IsLogging(Info) got true at level Warning")
	}
}

func TestMultiEmitter(t *testing.T) {
	var a, b bytes.Buffer
	m := MultiEmitter{&Writer{Next: &a}, &Writer{Next: &b}}
	m.Emit(0, Info, time.Now(), "tick %d", 7)
	if a.String() != "tick 7\n" || b.String() != "tick 7\n" {
		t.Errorf("outputs got %q and %q", a.String(), b.String())
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{Writer: &Writer{Next: &buf}, Command: "cowtest"}
	e.Emit(0, Info, time.Now(), "frames=%d", 42)

	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q): %v", buf.String(), err)
	}
	if got.Level != Info {
		t.Errorf("level got %v, want %v", got.Level, Info)
	}
	if got.Msg != "frames=42" {
		t.Errorf("msg got %q, want %q", got.Msg, "frames=42")
	}
	if got.Command != "cowtest" {
		t.Errorf("command got %q, want %q", got.Command, "cowtest")
	}
	if !strings.HasPrefix(got.Caller, "log_test.go:") {
		t.Errorf("caller got %q, want log_test.go:<line>", got.Caller)
	}
}

func TestJSONEmitterOmitsCommand(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{Writer: &Writer{Next: &buf}}
	e.Emit(0, Warning, time.Now(), "x")
	if strings.Contains(buf.String(), `"command"`) {
		t.Errorf("output %q has a command field", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"warning"`) {
		t.Errorf("output %q lacks the warning level", buf.String())
	}
}

// Tests that Level can marshal/unmarshal properly.
func TestLevelMarshal(t *testing.T) {
	for _, lv := range []Level{Warning, Info, Debug} {
		bs, err := lv.MarshalJSON()
		if err != nil {
			t.Errorf("error marshaling %v: %v", lv, err)
		}
		var lv2 Level
		if err := lv2.UnmarshalJSON(bs); err != nil {
			t.Errorf("error unmarshaling %v: %v", bs, err)
		}
		if lv != lv2 {
			t.Errorf("marshal/unmarshal level got %v wanted %v", lv2, lv)
		}
	}
	for in, want := range map[string]Level{"2": Debug, `"info"`: Info} {
		var lv Level
		if err := lv.UnmarshalJSON([]byte(in)); err != nil || lv != want {
			t.Errorf("UnmarshalJSON(%s) got (%v, %v), want %v", in, lv, err, want)
		}
	}
	for _, in := range []string{"3", `"fatal"`, "info"} {
		var lv Level
		if err := lv.UnmarshalJSON([]byte(in)); err == nil {
			t.Errorf("UnmarshalJSON(%s) got %v, want error", in, lv)
		}
	}
	if _, err := Level(7).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON(7) got nil error")
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	opts := FileOpts{Command: "cowtest", Start: time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)}

	f, err := OpenFile(dir+"/", os.O_CREATE|os.O_WRONLY, opts)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if got, want := filepath.Base(f.Name()), "rvsim.log.20260102-030405.000000.cowtest"; got != want {
		t.Errorf("file name got %q, want %q", got, want)
	}

	if f, err := OpenFile("", os.O_CREATE, opts); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") got (%v, %v), want (nil, nil)", f, err)
	}
}
