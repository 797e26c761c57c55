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

// Package errors defines the kernel's error type: an errno that a failing
// system call reports, paired with the message the kernel logs.
package errors

import (
	stderrors "errors"

	"golang.org/x/sys/unix"
)

// Error is a kernel error. Values are compared by pointer; see linuxerr for
// the fixed set the kernel returns.
type Error struct {
	errno   unix.Errno
	message string
}

// New returns a new *Error for errno.
func New(errno unix.Errno, message string) *Error {
	return &Error{
		errno:   errno,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the errno a system call failing with e reports.
func (e *Error) Errno() unix.Errno { return e.errno }

// Is lets errors.Is match e against its own errno, so callers that only
// know the host errno can still test a wrapped kernel error.
func (e *Error) Is(target error) bool {
	errno, ok := target.(unix.Errno)
	return ok && errno == e.errno
}

// ErrnoOf returns the errno carried by err or by any error it wraps. It
// returns false if err holds neither an *Error nor a unix.Errno.
func ErrnoOf(err error) (unix.Errno, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.errno, true
	}
	var errno unix.Errno
	if stderrors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
