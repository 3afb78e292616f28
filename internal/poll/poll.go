// Copyright 2026 The Armored Token authors. All Rights Reserved.
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

// Package poll waits for hardware conditions by repeatedly sampling them.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned when a condition was not met within the limits of a
// Policy.
var ErrTimeout = errors.New("timed out waiting for condition")

var errPending = errors.New("condition not met")

// Policy bounds a wait. The zero Policy samples as fast as possible until
// the condition holds or the context is done.
type Policy struct {
	// Timeout is the maximum duration of a wait, zero for no limit.
	Timeout time.Duration
	// Interval is the pause between two samples.
	Interval time.Duration
	// MaxPolls is the maximum number of samples, zero for no limit.
	MaxPolls uint64
}

// Bounded returns whether the policy can give up on its own.
func (p Policy) Bounded() bool {
	return p.Timeout > 0 || p.MaxPolls > 0
}

// Until samples cond until it returns true. It returns the number of samples
// taken, ErrTimeout when the policy limits are exceeded or the context error
// when ctx is done first.
func Until(ctx context.Context, p Policy, cond func() bool) (polls uint64, err error) {
	parent := ctx

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)

	if p.MaxPolls > 0 {
		b = backoff.WithMaxRetries(b, p.MaxPolls-1)
	}

	err = backoff.Retry(func() error {
		polls++

		if cond() {
			return nil
		}

		return errPending
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		return
	case errors.Is(err, errPending):
		return polls, ErrTimeout
	case parent.Err() != nil:
		return polls, parent.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return polls, ErrTimeout
	}

	return
}
