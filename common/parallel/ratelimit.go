// Copyright 2026 matjip Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/ratelimit"
)

// RateLimiter hands out tokens and reports how long the caller must wait for them.
type RateLimiter interface {
	Take(count int64) time.Duration
}

type Unlimited struct{}

func (n *Unlimited) Take(count int64) time.Duration {
	return 0
}

// NewRateLimiter returns a token bucket refilled at opsPerSecond. A non-positive
// rate disables limiting.
func NewRateLimiter(opsPerSecond int) RateLimiter {
	if opsPerSecond <= 0 {
		return &Unlimited{}
	}
	return ratelimit.NewBucketWithRate(float64(opsPerSecond), int64(opsPerSecond))
}

// Wait takes count tokens from limiter and sleeps until they are available.
func Wait(ctx context.Context, limiter RateLimiter, count int64) error {
	d := limiter.Take(count)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-timer.C:
		return nil
	}
}
