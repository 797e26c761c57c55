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

// Package cmd holds implementations of the rvsim commands.
package cmd

import (
	"context"
	"errors"

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/rvsim/cmd/util"
	"rvkernel.dev/rvkernel/rvsim/config"
)

// bootKernel boots the machine described by the configuration in args[0].
// It exits the process on failure.
func bootKernel(args []any) *kernel.Kernel {
	conf := args[0].(*config.Config)
	k, err := kernel.Boot(conf.KernelOptions())
	if err != nil {
		util.Fatalf("booting kernel: %v", err)
	}
	return k
}

// runInit runs prog as the first process on k and stores its exit status in
// args[1]. k is closed on return.
func runInit(ctx context.Context, k *kernel.Kernel, name string, prog kernel.Program, args []any) subcommands.ExitStatus {
	defer func() {
		if err := k.Close(); err != nil {
			util.Errorf("closing kernel: %v", err)
		}
	}()
	status, err := k.Run(ctx, name, prog)
	switch {
	case errors.Is(err, context.Canceled):
		util.Infof("%s: interrupted", name)
	case err != nil:
		return util.Errorf("running %s: %v", name, err)
	}
	if err := k.Allocator().CheckInvariants(); err != nil {
		return util.Errorf("%s: frame allocator: %v", name, err)
	}
	*args[1].(*int) = status
	return subcommands.ExitSuccess
}
