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
	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/bottlerocket/errors"
)

// isNonFatal reports whether errno belongs to the set of conditions the
// non-blocking emulation protocol treats as locally retryable: the
// operation should be reattempted after a readiness poll rather than
// closing the flow. datagram scopes EMSGSIZE's fatality: a stream socket
// is not expected to produce it at all, so it is treated as retryable
// there rather than assumed fatal.
func isNonFatal(errno error, datagram bool) bool {
	switch errno {
	case unix.EAGAIN, unix.EINTR, unix.EFAULT, unix.EACCES,
		unix.ENETDOWN, unix.ENETUNREACH, unix.ENOBUFS,
		unix.EOPNOTSUPP, unix.ETIMEDOUT:
		return true
	default:
		// Anything not explicitly classified fatal is treated as
		// non-fatal, matching the portable mapping's catch-all.
		return !isFatal(errno, datagram)
	}
}

// isFatal reports whether errno must terminate the flow outright. EMSGSIZE
// is fatal only for a datagram send exceeding the path MTU; on a stream
// socket it is not a condition the protocol expects to see.
func isFatal(errno error, datagram bool) bool {
	switch errno {
	case unix.EBADF, unix.ECONNRESET, unix.EHOSTUNREACH,
		unix.EPIPE, unix.ENOTSOCK:
		return true
	case unix.EMSGSIZE:
		return datagram
	default:
		return false
	}
}

// classify converts a raw syscall errno into the three-level taxonomy:
// CodeRetry for conditions the non-blocking protocol resolves locally,
// CodeFlowFatal for anything that must close the flow.
func classify(op string, errno error, datagram bool) *liberr.Error {
	if errno == nil {
		return nil
	}
	if isFatal(errno, datagram) {
		return liberr.Wrap(liberr.CodeFlowFatal, errno, "%s failed", op)
	}
	return liberr.Wrap(liberr.CodeRetry, errno, "%s would block", op)
}
