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

// ConnState is an additive bitset over an endpoint's lifecycle. Bits
// accumulate as the endpoint progresses; Close resets to ConnClosed.
type ConnState uint8

const (
	ConnClosed    ConnState = 0
	ConnOpen      ConnState = 1 << 0
	ConnBound     ConnState = 1 << 1
	ConnListening ConnState = 1 << 2
	ConnConnected ConnState = 1 << 3
)

func (s ConnState) String() string {
	if s == ConnClosed {
		return "CLOSED"
	}

	out := ""
	add := func(bit ConnState, name string) {
		if s&bit != 0 {
			if out != "" {
				out += "|"
			}
			out += name
		}
	}
	add(ConnOpen, "OPEN")
	add(ConnBound, "BOUND")
	add(ConnListening, "LISTENING")
	add(ConnConnected, "CONNECTED")
	return out
}

// Has reports whether every bit in mask is set.
func (s ConnState) Has(mask ConnState) bool {
	return s&mask == mask
}
