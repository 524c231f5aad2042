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

// Package clock provides the monotonic time source every other core
// component times its decisions against: admission delays, flow statistics,
// readiness-wait budgets.
package clock

import "time"

// mono is the process start instant, used as the epoch for NowUs so every
// timestamp this package hands out stays within a safe uint64 range.
var mono = time.Now()

// NowUs returns a monotonic timestamp in microseconds since the clock
// package was initialized. It never regresses within a single process.
func NowUs() uint64 {
	return uint64(time.Since(mono).Microseconds())
}

// ElapsedSince returns the number of microseconds elapsed since refUs, a
// timestamp previously obtained from NowUs. If refUs is in the future
// (a clock regression, or a caller racing NowUs) the result saturates at
// zero rather than wrapping negative.
func ElapsedSince(refUs uint64) uint64 {
	now := NowUs()
	if refUs >= now {
		return 0
	}
	return now - refUs
}
