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
	"time"

	"golang.org/x/time/rate"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// RateLimitedLogger hands out Loggers that log to an underlying Logger no
// more than once per interval for each key. Keys share nothing, so a
// message repeated for one key does not suppress messages for another.
type RateLimitedLogger[K comparable] struct {
	logger Logger
	every  rate.Limit

	mu     sync.Mutex
	limits map[K]*rate.Limiter
}

// NewRateLimitedLogger returns a RateLimitedLogger logging to logger at
// most once every interval per key.
func NewRateLimitedLogger[K comparable](logger Logger, every time.Duration) *RateLimitedLogger[K] {
	return &RateLimitedLogger[K]{
		logger: logger,
		every:  rate.Every(every),
		limits: make(map[K]*rate.Limiter),
	}
}

// For returns the Logger limited for key.
func (rl *RateLimitedLogger[K]) For(key K) Logger {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limits[key]
	if !ok {
		l = rate.NewLimiter(rl.every, 1)
		rl.limits[key] = l
	}
	return limitedLogger{rl.logger, l}
}

// Keys returns the number of keys that have logged.
func (rl *RateLimitedLogger[K]) Keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

type limitedLogger struct {
	logger Logger
	limit  *rate.Limiter
}

// Debugf implements Logger.Debugf.
func (l limitedLogger) Debugf(format string, v ...any) {
	if l.logger.IsLogging(Debug) && l.limit.Allow() {
		l.logger.Debugf(format, v...)
	}
}

// Infof implements Logger.Infof.
func (l limitedLogger) Infof(format string, v ...any) {
	if l.logger.IsLogging(Info) && l.limit.Allow() {
		l.logger.Infof(format, v...)
	}
}

// Warningf implements Logger.Warningf.
func (l limitedLogger) Warningf(format string, v ...any) {
	if l.limit.Allow() {
		l.logger.Warningf(format, v...)
	}
}

// IsLogging implements Logger.IsLogging.
func (l limitedLogger) IsLogging(level Level) bool {
	return l.logger.IsLogging(level)
}
