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
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/bottlerocket/errors"
	"github.com/nabbar/bottlerocket/network/protocol"
	"github.com/nabbar/bottlerocket/poller"
	"github.com/nabbar/bottlerocket/ratelimit"
)

// DefaultBufferSize is the recv/send buffer size callers should use absent
// a more specific requirement; it is also the datagram size mode drivers
// default to for UDP flows.
const DefaultBufferSize = 32 * 1024

// EOL is the line terminator the chat mode driver splits input on; it has
// no meaning to the endpoint itself, which is payload-agnostic.
const EOL = '\n'

// Endpoint is the polymorphic socket abstraction: one type, tagged by
// Config.Protocol, dispatching internally between the TCP and UDP code
// paths rather than exposing separate client/server implementations.
type Endpoint struct {
	mu sync.Mutex

	cfg   Config
	state ConnState
	fd    int
	v6    bool

	self Address
	peer Address

	poll   *poller.Poller
	bucket *ratelimit.Bucket
	stats  Stats

	log hclog.Logger

	// udpLatched is set once a UDP endpoint has a peer address: by Connect,
	// or, on an unconnected endpoint, from the first successful recvfrom.
	udpLatched bool
}

// New allocates an endpoint in ConnClosed for cfg. It does not touch the
// network; see Open.
func New(cfg Config, log hclog.Logger) *Endpoint {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Endpoint{
		cfg:    cfg,
		state:  ConnClosed,
		fd:     -1,
		v6:     cfg.Protocol == protocol.NetworkTCP6 || cfg.Protocol == protocol.NetworkUDP6,
		bucket: ratelimit.New(cfg.RateBps, cfg.BurstBytes),
		stats:  newStats(),
		log:    log,
	}
}

// State returns the endpoint's current lifecycle bitset.
func (e *Endpoint) State() ConnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Self returns the endpoint's local address, valid after Open/Bind.
func (e *Endpoint) Self() Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.self
}

// Peer returns the endpoint's remote address, valid after Connect/Accept,
// or once a UDP endpoint has latched a peer from its first recv.
func (e *Endpoint) Peer() Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// Stats returns a snapshot of the endpoint's recv/send statistics.
func (e *Endpoint) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Bucket exposes the endpoint's token bucket, so a driver can query Delay
// before attempting a send.
func (e *Endpoint) Bucket() *ratelimit.Bucket {
	return e.bucket
}

func (e *Endpoint) domain() int {
	if e.v6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

func (e *Endpoint) sockType() int {
	if e.cfg.Protocol.IsDatagram() {
		return unix.SOCK_DGRAM
	}
	return unix.SOCK_STREAM
}

// Open creates the kernel descriptor, applies configured options, and
// sets it non-blocking. It resolves the bind address as the endpoint's
// self address.
func (e *Endpoint) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fd, err := unix.Socket(e.domain(), e.sockType(), 0)
	if err != nil {
		return liberr.Wrap(liberr.CodeFatal, err, "socket create failed")
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return liberr.Wrap(liberr.CodeFatal, err, "set non-blocking failed")
	}

	for _, o := range e.cfg.Options {
		if err := unix.SetsockoptInt(fd, o.Level, o.Name, o.Value); err != nil {
			_ = unix.Close(fd)
			return liberr.Wrap(liberr.CodeFatal, err, "setsockopt %d/%d failed", o.Level, o.Name)
		}
	}

	self, err := resolveAddress(e.cfg.BindAddress, e.cfg.BindPort, e.v6)
	if err != nil {
		_ = unix.Close(fd)
		return liberr.Wrap(liberr.CodeFatal, err, "resolve bind address failed")
	}

	e.fd = fd
	e.self = self
	e.state = ConnOpen
	e.poll = poller.New(e.log)
	if err := e.poll.Insert(fd); err != nil {
		_ = unix.Close(fd)
		return liberr.Wrap(liberr.CodeFatal, err, "poller insert failed")
	}
	e.poll.SetEvents(poller.EventIn)

	return nil
}

// Close releases the descriptor. It is best-effort and always succeeds
// from the caller's point of view.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fd >= 0 {
		if e.poll != nil {
			_ = e.poll.Remove(e.fd)
		}
		_ = unix.Close(e.fd)
		e.fd = -1
	}
	e.state = ConnClosed
	return nil
}

// Bind assigns the local address resolved at Open and records it as the
// endpoint's self address.
func (e *Endpoint) Bind() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sa unix.Sockaddr
	var err error
	if e.v6 {
		sa, err = e.self.sockaddrInet6()
	} else {
		sa, err = e.self.sockaddrInet4()
	}
	if err != nil {
		return liberr.Wrap(liberr.CodeFatal, err, "bind address conversion failed")
	}

	if err := unix.Bind(e.fd, sa); err != nil {
		return liberr.Wrap(liberr.CodeFatal, err, "bind failed")
	}

	if e.self.Port == 0 {
		if got, err := unix.Getsockname(e.fd); err == nil {
			e.self = addressFromSockaddr(got)
		}
	}

	e.state |= ConnBound
	return nil
}

// Listen marks the endpoint as accepting inbound connections. Only valid
// for stream transports.
func (e *Endpoint) Listen(backlog int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.Protocol.IsStream() {
		return liberr.New(liberr.CodeFatal, "listen is only valid for stream transports")
	}

	if backlog <= 0 {
		backlog = e.cfg.Backlog
	}
	if backlog <= 0 {
		backlog = 128
	}

	if err := unix.Listen(e.fd, backlog); err != nil {
		return liberr.Wrap(liberr.CodeFatal, err, "listen failed")
	}

	e.state |= ConnListening
	return nil
}

// Shutdown performs a directional half-close. how is one of unix.SHUT_RD,
// unix.SHUT_WR, unix.SHUT_RDWR.
func (e *Endpoint) Shutdown(how int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fd < 0 {
		return nil
	}
	_ = unix.Shutdown(e.fd, how)
	return nil
}

// rawFD returns the endpoint's descriptor under the lock. No code in this
// package calls it.
func (e *Endpoint) rawFD() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fd
}
