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

// Package socket is the polymorphic endpoint abstraction: one type, tagged
// by transport, carrying a kernel descriptor, a readiness subscription, a
// token bucket, and per-direction statistics, behind a uniform
// open/close/bind/listen/accept/connect/recv/send/shutdown surface with
// explicit fatal/non-fatal error classification.
package socket

import (
	"github.com/nabbar/bottlerocket/network/protocol"
)

// Role identifies which side of a flow an endpoint plays.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
	RolePeer
)

// SockOpt is a single low-level socket option applied at Open time.
type SockOpt struct {
	Level int
	Name  int
	Value int
}

// Config is the immutable configuration of an endpoint for its entire
// lifetime.
type Config struct {
	Protocol protocol.NetworkProtocol
	Role     Role

	BindAddress string
	BindPort    uint16
	ConnectAddr string
	ConnectPort uint16

	Backlog   int
	TimeoutMs int // readiness wait timeout; -1 blocks (emulated), 0 is immediate

	ByteLimit   uint64 // 0 = unlimited
	RateBps     uint64 // 0 = unlimited
	BurstBytes  uint64
	TimeLimitUs uint64 // 0 = unlimited

	Options []SockOpt
}

// effectiveTimeout translates the "-1 means block forever" contract into a
// bounded poll so a shutdown signal can still be observed between waits.
func (c Config) effectiveTimeout() int {
	if c.TimeoutMs < 0 {
		return 100
	}
	return c.TimeoutMs
}
