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

package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestEquals(t *testing.T) {
	for _, test := range []struct {
		name string
		err  error
		want bool
	}{
		{name: "same pointer", err: ENOMEM, want: true},
		{name: "unix errno", err: unix.ENOMEM, want: true},
		{name: "other errno", err: EFAULT, want: false},
		{name: "nil", err: nil, want: false},
		{name: "wrapped", err: fmt.Errorf("alloc: %w", ENOMEM), want: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := Equals(ENOMEM, test.err); got != test.want {
				t.Errorf("Equals(ENOMEM, %v) got %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestErrorFromUnix(t *testing.T) {
	if err := ErrorFromUnix(0); err != nil {
		t.Errorf("ErrorFromUnix(0) got %v, want nil", err)
	}
	if err := ErrorFromUnix(unix.EFAULT); err != EFAULT {
		t.Errorf("ErrorFromUnix(EFAULT) got %v, want %v", err, EFAULT)
	}
	if err := ErrorFromUnix(unix.EXDEV); err != unix.EXDEV {
		t.Errorf("ErrorFromUnix(EXDEV) got %v, want %v", err, unix.EXDEV)
	}
	if got := ToUnix(ESRCH); got != unix.ESRCH {
		t.Errorf("ToUnix(ESRCH) got %v", got)
	}
	if ToError(nil) != nil {
		t.Errorf("ToError(nil) is not nil")
	}
}
