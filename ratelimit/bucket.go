/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package ratelimit implements the per-flow token bucket that admits sends
// against a configured byte-rate ceiling. It is consulted once per send, so
// every operation here is O(1) and allocation-free.
package ratelimit

import (
	"sync"

	"github.com/nabbar/bottlerocket/clock"
)

// Bucket is a byte-denominated token bucket. The zero value is not usable;
// construct one with New.
type Bucket struct {
	mu    sync.Mutex
	rate  uint64 // bytes per second; 0 = unlimited
	cap   uint64 // capacity in bytes (burst)
	level uint64 // current level in bytes
	last  uint64 // last refill timestamp, microseconds
}

// New initializes a bucket with fill rate rateBps (bits per second, 0 means
// unlimited) and burst capacity burstBytes. The bucket starts full, matching
// the reference behavior of a flow that may burst immediately after open.
func New(rateBps uint64, burstBytes uint64) *Bucket {
	return &Bucket{
		rate:  rateBps / 8,
		cap:   burstBytes,
		level: burstBytes,
		last:  clock.NowUs(),
	}
}

// refill folds elapsed time since the last refill into the level, clamped
// at capacity. Must be called with mu held.
func (b *Bucket) refill() {
	if b.rate == 0 {
		return
	}

	now := clock.NowUs()
	elapsed := clock.ElapsedSince(b.last)
	if elapsed == 0 {
		return
	}

	added := (elapsed * b.rate) / 1_000_000
	b.level += added
	if b.level > b.cap {
		b.level = b.cap
	}
	b.last = now
}

// Remove attempts to take n bytes from the bucket. Removal is all-or-
// nothing: either the full request is granted and n is returned, or nothing
// is taken and 0 is returned. A rate of 0 (unlimited) always grants the
// full request.
func (b *Bucket) Remove(n uint64) uint64 {
	if b.rate == 0 {
		return n
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.level >= n {
		b.level -= n
		return n
	}
	return 0
}

// Return credits back n unused bytes a caller had reserved via Remove but
// did not ultimately spend (a short write), clamped at capacity.
func (b *Bucket) Return(n uint64) uint64 {
	if b.rate == 0 {
		return n
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.level += n
	if b.level > b.cap {
		b.level = b.cap
	}
	return n
}

// Delay returns the number of microseconds a caller must wait before n
// bytes will be available, after folding in the current refill. It returns
// zero if n is already available or the bucket is unlimited.
func (b *Bucket) Delay(n uint64) uint64 {
	if b.rate == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.level >= n {
		return 0
	}

	missing := n - b.level
	// ceiling division
	return (missing*1_000_000 + b.rate - 1) / b.rate
}

// Rate returns the configured fill rate in bytes per second.
func (b *Bucket) Rate() uint64 {
	return b.rate
}

// Capacity returns the configured burst capacity in bytes.
func (b *Bucket) Capacity() uint64 {
	return b.cap
}
