// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package embedding implements the text/code/contextual embedding backends
// (§4.2, §4.6): hand-rolled HTTP clients against Ollama and OpenAI-compatible
// embedding endpoints, matching the provider's own idiom elsewhere in this
// repo rather than pulling in a vendor SDK.
package embedding

import (
	"strings"
	"sync"
	"time"
)

// RetryConfig controls the exponential-backoff-with-full-jitter retry policy
// shared by every HTTP embedding provider.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches the retry posture used throughout this repo's
// other HTTP-backed providers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

func isRetryableEmbeddingError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"timeout", "temporarily unavailable", "connection refused", "connection reset", "deadline exceeded", "EOF"} {
		if containsFold(msg, s) {
			return true
		}
	}
	for _, s := range []string{" 429 ", " 500 ", " 502 ", " 503 ", " 504 ", "status 429)", "status 500)", "status 502)", "status 503)", "status 504)"} {
		if containsFold(msg, s) {
			return true
		}
	}
	return false
}

// isRateLimited distinguishes a rate-limit retry (which a caller may want to
// back off more aggressively for, or surface as a distinct error category
// per the error taxonomy) from a generic backend-unavailable retry.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, " 429 ") || containsFold(msg, "status 429)") || containsFold(msg, "rate limit") || containsFold(msg, "rate_limit")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// computeBackoffWithJitter returns exponential backoff with full jitter:
// the delay is uniformly sampled from [0, min(cap, base*mult^attempt)].
func computeBackoffWithJitter(base time.Duration, attempt int, mult float64, capDur time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > capDur {
		d = capDur
	}
	if d <= 0 {
		return base
	}
	return time.Duration(randInt63n(int64(d) + 1))
}

// randInt63n returns a value in [0,n) using a small LCG rather than importing
// math/rand for a single call site; jitter quality doesn't need a
// cryptographic or statistically rigorous source here.
var (
	randMu   sync.Mutex
	randSeed int64
)

func randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	randMu.Lock()
	defer randMu.Unlock()
	const a = 6364136223846793005
	const c = 1
	const m = 1<<63 - 1
	if randSeed == 0 {
		randSeed = time.Now().UnixNano() & m
	}
	randSeed = (a*randSeed + c) & m
	if randSeed < 0 {
		randSeed = -randSeed
	}
	return randSeed % n
}
