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

package socket

import (
	"github.com/nabbar/bottlerocket/clock"
)

// BufferAggregate tracks a running histogram-like summary of call buffer
// lengths: count, sum, min, max, and the timestamps of the first and last
// observations.
type BufferAggregate struct {
	Count   uint64
	Sum     uint64
	Min     uint64
	Max     uint64
	FirstUs uint64
	LastUs  uint64
}

// Average returns Sum/Count, or 0 if no observations were recorded.
func (b BufferAggregate) Average() float64 {
	if b.Count == 0 {
		return 0
	}
	return float64(b.Sum) / float64(b.Count)
}

func (b *BufferAggregate) observe(n uint64, ts uint64) {
	if b.Count == 0 {
		b.Min = n
		b.Max = n
		b.FirstUs = ts
	} else {
		if n < b.Min {
			b.Min = n
		}
		if n > b.Max {
			b.Max = n
		}
	}
	b.Count++
	b.Sum += n
	b.LastUs = ts
}

// DirectionStats aggregates the outcome of every call in one direction
// (recv or send) over the life of a flow.
type DirectionStats struct {
	LastSuccess bool
	LastCallUs  uint64

	PassedUs    uint64
	FailedUs    uint64
	PassedCalls uint64
	FailedCalls uint64

	Buffer     BufferAggregate
	TotalBytes uint64

	// WindowSize holds a kernel window size, TCP only. Nothing in this
	// repository writes it, so it is always zero.
	WindowSize uint64
}

// record folds the outcome of one recv/send call into the aggregate.
// startUs/endUs bound the call; n is the byte count on success (ignored on
// failure).
func (d *DirectionStats) record(ok bool, n int, startUs, endUs uint64) {
	dur := endUs - startUs
	d.LastSuccess = ok
	d.LastCallUs = endUs

	if ok {
		d.PassedUs += dur
		d.PassedCalls++
		d.Buffer.observe(uint64(n), endUs)
		d.TotalBytes += uint64(n)
	} else {
		d.FailedUs += dur
		d.FailedCalls++
	}
}

// Stats holds the recv/send direction aggregates for one endpoint, plus the
// flow's own start timestamp used for elapsed-time reporting.
type Stats struct {
	StartUs uint64
	Recv    DirectionStats
	Send    DirectionStats
}

func newStats() Stats {
	return Stats{StartUs: clock.NowUs()}
}

// ElapsedUs returns the microseconds elapsed since the flow started.
func (s Stats) ElapsedUs() uint64 {
	return clock.ElapsedSince(s.StartUs)
}
