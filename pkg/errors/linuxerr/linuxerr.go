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

// Package linuxerr contains the syscall error codes returned by the kernel
// core, exported as *errors.Error pointers so that they compare cheaply.
package linuxerr

import (
	"golang.org/x/sys/unix"
	"rvkernel.dev/rvkernel/pkg/errors"
)

// The following errors are semantically identical to the unix.Errno of the
// same name; Errno() returns that number so that ToUnix(EFAULT) == unix.EFAULT.
var (
	noError *errors.Error = nil
	EPERM                 = errors.New(unix.EPERM, "operation not permitted")
	ESRCH                 = errors.New(unix.ESRCH, "no such process")
	EINTR                 = errors.New(unix.EINTR, "interrupted system call")
	ECHILD                = errors.New(unix.ECHILD, "no child processes")
	ENOMEM                = errors.New(unix.ENOMEM, "out of memory")
	EFAULT                = errors.New(unix.EFAULT, "bad address")
	EINVAL                = errors.New(unix.EINVAL, "invalid argument")
	ENOSYS                = errors.New(unix.ENOSYS, "invalid system call number")
)

var errorMap = map[unix.Errno]*errors.Error{
	unix.EPERM:  EPERM,
	unix.ESRCH:  ESRCH,
	unix.EINTR:  EINTR,
	unix.ECHILD: ECHILD,
	unix.ENOMEM: ENOMEM,
	unix.EFAULT: EFAULT,
	unix.EINVAL: EINVAL,
	unix.ENOSYS: ENOSYS,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Errnos the kernel core
// never produces are returned unchanged.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	if e, ok := errorMap[err]; ok {
		return e
	}
	return err
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}
