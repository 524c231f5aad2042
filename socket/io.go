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

	"github.com/nabbar/bottlerocket/clock"
	liberr "github.com/nabbar/bottlerocket/errors"
	"github.com/nabbar/bottlerocket/poller"
)

// Connect drives the TCP connect state machine: kick a non-blocking
// connect, and if it reports EINPROGRESS, subscribe for write-readiness
// and poll once at the endpoint's effective timeout. UDP "connect" is a
// one-shot peer latch with no handshake, so it never blocks.
func (e *Endpoint) Connect() error {
	e.mu.Lock()
	peer, err := resolveAddress(e.cfg.ConnectAddr, e.cfg.ConnectPort, e.v6)
	if err != nil {
		e.mu.Unlock()
		return liberr.Wrap(liberr.CodeFatal, err, "resolve connect address failed")
	}
	e.peer = peer

	var sa unix.Sockaddr
	if e.v6 {
		sa, err = peer.sockaddrInet6()
	} else {
		sa, err = peer.sockaddrInet4()
	}
	if err != nil {
		e.mu.Unlock()
		return liberr.Wrap(liberr.CodeFatal, err, "connect address conversion failed")
	}

	if !e.cfg.Protocol.IsStream() {
		// UDP: unix.Connect only latches the default peer for Send/Recv,
		// it never touches the wire.
		if err := unix.Connect(e.fd, sa); err != nil {
			e.mu.Unlock()
			return liberr.Wrap(liberr.CodeFatal, err, "udp connect failed")
		}
		e.state |= ConnConnected
		e.udpLatched = true
		e.mu.Unlock()
		return nil
	}

	fd := e.fd
	timeout := e.cfg.effectiveTimeout()
	pl := e.poll
	e.mu.Unlock()

	err = unix.Connect(fd, sa)
	if err == nil {
		e.mu.Lock()
		e.state |= ConnConnected
		e.mu.Unlock()
		return nil
	}
	if err != unix.EINPROGRESS {
		return liberr.Wrap(liberr.CodeFlowFatal, err, "connect failed")
	}

	pl.SetEvents(poller.EventOut)
	if !pl.Poll(timeout) {
		return liberr.New(liberr.CodeFlowFatal, "poll failed during connect")
	}

	ev := pl.EventsFor(fd)
	switch {
	case ev&poller.EventTimeout != 0:
		return liberr.New(liberr.CodeRetry, "connect timed out")
	case ev&poller.EventError != 0:
		soErr, _ := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		return liberr.Wrap(liberr.CodeFlowFatal, unix.Errno(soErr), "connect failed")
	case ev&poller.EventOut != 0:
		e.mu.Lock()
		e.state |= ConnConnected
		e.mu.Unlock()
		return nil
	default:
		return liberr.New(liberr.CodeRetry, "connect readiness poll returned nothing")
	}
}

// Accept waits for an inbound connection on a listening stream endpoint
// and returns a new Endpoint cloned from the listener's configuration and
// rate, in ConnOpen|ConnConnected.
func (e *Endpoint) Accept() (*Endpoint, error) {
	e.mu.Lock()
	fd := e.fd
	timeout := e.cfg.effectiveTimeout()
	pl := e.poll
	cfg := e.cfg
	log := e.log
	e.mu.Unlock()

	for {
		nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK)
		if err == nil {
			peer := addressFromSockaddr(sa)
			self, _ := unix.Getsockname(nfd)

			child := New(cfg, log)
			child.fd = nfd
			child.peer = peer
			child.self = addressFromSockaddr(self)
			child.state = ConnOpen | ConnConnected
			child.poll = poller.New(log)
			if err := child.poll.Insert(nfd); err != nil {
				_ = unix.Close(nfd)
				return nil, liberr.Wrap(liberr.CodeFatal, err, "poller insert failed for accepted peer")
			}
			child.poll.SetEvents(poller.EventIn)
			return child, nil
		}

		if !isNonFatal(err, false) {
			return nil, liberr.Wrap(liberr.CodeFlowFatal, err, "accept failed")
		}

		if !pl.Poll(timeout) {
			return nil, liberr.New(liberr.CodeFlowFatal, "poll failed during accept")
		}
		ev := pl.EventsFor(fd)
		if ev&poller.EventTimeout != 0 {
			return nil, liberr.New(liberr.CodeRetry, "accept timed out")
		}
		if ev&poller.EventError != 0 {
			return nil, liberr.New(liberr.CodeFlowFatal, "listener descriptor reported error")
		}
		// EventIn: loop and retry the accept.
	}
}

// Recv reads into buf once, classifying a non-fatal failure into a single
// readiness-poll retry. A second attempt returning zero bytes is reported
// as the peer having closed the flow (fatal), per the portable protocol's
// recv-specific EOF rule. Datagram sockets latch their first peer.
func (e *Endpoint) Recv(buf []byte) (int, error) {
	start := clock.NowUs()

	e.mu.Lock()
	fd := e.fd
	timeout := e.cfg.effectiveTimeout()
	pl := e.poll
	datagram := e.cfg.Protocol.IsDatagram()
	e.mu.Unlock()

	n, peerAddr, err := recvFrom(fd, buf, datagram)
	if err == nil {
		if n == 0 && !datagram {
			end := clock.NowUs()
			e.finishRecv(false, 0, start, end)
			return 0, liberr.New(liberr.CodeFlowFatal, "peer closed the connection")
		}
		e.afterRecv(datagram, peerAddr)
		end := clock.NowUs()
		e.finishRecv(true, n, start, end)
		return n, nil
	}

	if !isNonFatal(err, datagram) {
		end := clock.NowUs()
		e.finishRecv(false, 0, start, end)
		return 0, classify("recv", err, datagram)
	}

	pl.SetEvents(poller.EventIn)
	if !pl.Poll(timeout) {
		end := clock.NowUs()
		e.finishRecv(false, 0, start, end)
		return 0, liberr.New(liberr.CodeFlowFatal, "poll failed during recv")
	}
	ev := pl.EventsFor(fd)
	end := clock.NowUs()
	switch {
	case ev&poller.EventTimeout != 0:
		e.finishRecv(false, 0, start, end)
		return 0, nil
	case ev&poller.EventError != 0:
		e.finishRecv(false, 0, start, end)
		return 0, liberr.New(liberr.CodeFlowFatal, "recv descriptor reported error")
	case ev&poller.EventIn != 0:
		n, peerAddr, err = recvFrom(fd, buf, datagram)
		if err != nil {
			e.finishRecv(false, 0, start, end)
			return 0, classify("recv", err, datagram)
		}
		if n == 0 && !datagram {
			e.finishRecv(false, 0, start, end)
			return 0, liberr.New(liberr.CodeFlowFatal, "peer closed the connection")
		}
		e.afterRecv(datagram, peerAddr)
		e.finishRecv(true, n, start, end)
		return n, nil
	default:
		e.finishRecv(false, 0, start, end)
		return 0, nil
	}
}

func recvFrom(fd int, buf []byte, datagram bool) (int, unix.Sockaddr, error) {
	if !datagram {
		n, err := unix.Read(fd, buf)
		return n, nil, err
	}
	n, _, sa, err := unix.Recvmsg(fd, buf, nil, 0)
	return n, sa, err
}

func (e *Endpoint) afterRecv(datagram bool, sa unix.Sockaddr) {
	if !datagram || sa == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.udpLatched {
		e.peer = addressFromSockaddr(sa)
		e.udpLatched = true
		e.state |= ConnConnected
	}
}

func (e *Endpoint) finishRecv(ok bool, n int, start, end uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Recv.record(ok, n, start, end)
}

// Send writes buf once, retrying exactly once after a readiness poll on a
// non-fatal failure, mirroring Recv's protocol. The caller is expected to
// have already consulted the token bucket's Delay/Remove before calling.
func (e *Endpoint) Send(buf []byte) (int, error) {
	start := clock.NowUs()

	e.mu.Lock()
	fd := e.fd
	timeout := e.cfg.effectiveTimeout()
	pl := e.poll
	datagram := e.cfg.Protocol.IsDatagram()
	v6 := e.v6
	e.mu.Unlock()

	n, err := unix.Write(fd, buf)
	if err == nil {
		end := clock.NowUs()
		e.finishSend(true, n, start, end)
		return n, nil
	}

	if !isNonFatal(err, datagram) {
		end := clock.NowUs()
		e.finishSend(false, 0, start, end)
		if datagram && err == unix.EMSGSIZE {
			e.logDiscoveredMTU(fd, v6)
		}
		return 0, classify("send", err, datagram)
	}

	pl.SetEvents(poller.EventIn | poller.EventOut)
	if !pl.Poll(timeout) {
		end := clock.NowUs()
		e.finishSend(false, 0, start, end)
		return 0, liberr.New(liberr.CodeFlowFatal, "poll failed during send")
	}
	ev := pl.EventsFor(fd)
	end := clock.NowUs()
	switch {
	case ev&poller.EventTimeout != 0:
		e.finishSend(false, 0, start, end)
		return 0, nil
	case ev&poller.EventError != 0:
		e.finishSend(false, 0, start, end)
		return 0, liberr.New(liberr.CodeFlowFatal, "send descriptor reported error")
	case ev&poller.EventOut != 0:
		n, err = unix.Write(fd, buf)
		if err != nil {
			e.finishSend(false, 0, start, end)
			if datagram && err == unix.EMSGSIZE {
				e.logDiscoveredMTU(fd, v6)
			}
			return 0, classify("send", err, datagram)
		}
		e.finishSend(true, n, start, end)
		return n, nil
	default:
		e.finishSend(false, 0, start, end)
		return 0, nil
	}
}

// logDiscoveredMTU reports the kernel's current path-MTU estimate for fd
// after a datagram send has been rejected as oversized, per the protocol's
// EMSGSIZE handling.
func (e *Endpoint) logDiscoveredMTU(fd int, v6 bool) {
	level := unix.IPPROTO_IP
	opt := unix.IP_MTU
	if v6 {
		level = unix.IPPROTO_IPV6
		opt = unix.IPV6_MTU
	}
	if mtu, err := unix.GetsockoptInt(fd, level, opt); err == nil {
		e.log.Warn("datagram exceeds path MTU", "mtu", mtu)
	}
}

func (e *Endpoint) finishSend(ok bool, n int, start, end uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Send.record(ok, n, start, end)
}
