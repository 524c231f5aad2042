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

// Package driver instantiates flows from a parsed configuration, hands them
// to the worker pool, collects their statistics, and renders the four output
// line kinds (header, body, footer, idle) through the formatter in this file.
package driver

import (
	"fmt"
	"time"

	"github.com/nabbar/bottlerocket/duration"
	"github.com/nabbar/bottlerocket/socket"
	"github.com/nabbar/bottlerocket/units"
)

var spinFrames = []rune{'|', '/', '-', '\\'}

// SpinFrame returns the idle-line spinner glyph for tick n.
func SpinFrame(n uint64) rune {
	return spinFrames[n%uint64(len(spinFrames))]
}

// Header renders the column-label line. The perf driver emits it once per
// run, before any body line; it is not repeated for each flow and carries
// no per-flow fields.
func Header() string {
	return fmt.Sprintf("%6s %21s   %-21s %17s %27s %25s %17s",
		"Con ID", "Self", "Peer", "Progress", "Bit Rate", "Bytes Transferred", "Elapsed Time")
}

// Body renders one progress line for a running flow.
func Body(connID uint64, self, peer socket.Address, st socket.Stats, progress string) string {
	elapsedUs := st.ElapsedUs()
	bytes := st.Recv.TotalBytes + st.Send.TotalBytes
	rate := bitrate(bytes, elapsedUs)

	return fmt.Sprintf("%6d %21s   %-21s %17s %23s/s %21s %13s",
		connID,
		self.String(),
		peer.String(),
		progress,
		units.FormatDecimal(1000, 2, rate),
		units.FormatDecimal(1000, 2, bytes)+"B",
		formatElapsed(elapsedUs),
	)
}

// Footer renders the final totals line for a completed flow.
func Footer(connID uint64, st socket.Stats) string {
	elapsedUs := st.ElapsedUs()
	bytes := st.Recv.TotalBytes + st.Send.TotalBytes
	rate := bitrate(bytes, elapsedUs)

	return fmt.Sprintf("flow %d done: %sB transferred in %s (%sbps avg), %d recv calls (%d failed), %d send calls (%d failed)",
		connID,
		units.FormatDecimal(1000, 2, bytes),
		formatElapsed(elapsedUs),
		units.FormatDecimal(1000, 2, rate),
		st.Recv.PassedCalls, st.Recv.FailedCalls,
		st.Send.PassedCalls, st.Send.FailedCalls,
	)
}

// Idle renders the server-waiting-for-a-peer line, cycling the spinner
// glyph by tick.
func Idle(transport string, self socket.Address, tick uint64) string {
	return fmt.Sprintf("Listening on %s %s %c ", transport, self.String(), SpinFrame(tick))
}

func bitrate(bytes, elapsedUs uint64) uint64 {
	if elapsedUs == 0 {
		return 0
	}
	return bytes * 8 * 1_000_000 / elapsedUs
}

// formatElapsed renders an elapsed microsecond count with days notation for
// long-running flows, via the days-aware duration type the rest of this
// codebase uses for human-facing time spans.
func formatElapsed(us uint64) string {
	d := duration.ParseDuration(time.Duration(us) * time.Microsecond).TruncateMilliseconds()
	return d.String()
}
