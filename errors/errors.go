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

// Package errors carries the three-level fault taxonomy shared by the
// socket, readiness, rate-limiting, and worker-pool layers: a failure is
// either locally retryable, fatal to the flow that raised it, or fatal to
// the whole process.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies the severity of an error raised by the core.
type Code uint8

const (
	// CodeRetry marks a condition the caller should retry locally (the
	// non-blocking emulation protocol's EAGAIN/EINTR class).
	CodeRetry Code = iota
	// CodeFlowFatal marks a condition that ends one flow; the endpoint
	// closes, its statistics are finalized, the process continues.
	CodeFlowFatal
	// CodeFatal marks a condition that ends the process: configuration
	// failure, pool creation failure, acceptor failure.
	CodeFatal
)

func (c Code) String() string {
	switch c {
	case CodeRetry:
		return "retry"
	case CodeFlowFatal:
		return "flow-fatal"
	case CodeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a coded error carrying an optional wrapped cause, following the
// rest of this codebase's convention of classifying failures by code rather
// than by string comparison.
type Error struct {
	code  Code
	msg   string
	cause error
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error with the given code, message, and wrapped cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As can traverse it.
func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the severity code of the error.
func (e *Error) Code() Code {
	return e.code
}

// Is reports whether target is the sentinel Code carried by err, or a
// *Error sharing the same code. This lets a caller write
// errors.Is(err, errors.CodeFlowFatal) without string matching.
func (e *Error) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.code == c
	}
	var other *Error
	if errors.As(target, &other) {
		return e.code == other.code
	}
	return false
}

// Error implements error for a bare Code so errors.Is(err, CodeFatal) compiles
// without an intermediate conversion.
func (c Code) Error() string {
	return c.String()
}

// CodeOf extracts the Code carried by err, defaulting to CodeFatal when err
// is not one of this package's errors (an unclassified failure is treated
// as the most severe case).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeFatal
}
