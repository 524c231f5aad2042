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

// Package poller tracks a set of file descriptors and reports readiness
// against them within a timeout. Every blocking decision in the socket and
// driver layers is made here; nothing else in this repository calls the
// kernel poll primitive directly.
package poller

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
)

// Event is a bitset of readiness conditions, independent of the underlying
// poll(2) bit layout so callers never need to import golang.org/x/sys/unix.
type Event uint32

const (
	EventNone    Event = 0
	EventIn      Event = 1 << iota // readable
	EventOut                       // writable
	EventError                     // error condition
	EventHangup                    // peer hung up
	EventInvalid                   // descriptor not open
	EventTimeout                   // poll returned with nothing ready
)

func (e Event) String() string {
	s := ""
	add := func(bit Event, name string) {
		if e&bit != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(EventIn, "IN")
	add(EventOut, "OUT")
	add(EventError, "ERROR")
	add(EventHangup, "HUP")
	add(EventInvalid, "INVALID")
	add(EventTimeout, "TIMEOUT")
	if s == "" {
		return "NONE"
	}
	return s
}

// always subscribed regardless of the caller's desired mask, matching the
// portability requirement that error/hangup/invalid are never optional.
const alwaysSubscribed = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

// Poller multiplexes readiness across a set of descriptors using poll(2).
// It is not safe for concurrent use by multiple goroutines without external
// synchronization — in this repository exactly one worker drives exactly
// one endpoint's poller.
type Poller struct {
	mu     sync.Mutex
	fds    []unix.PollFd
	index  map[int]int // fd -> position in fds
	wanted Event
	log    hclog.Logger
}

// New allocates an empty descriptor set. log may be nil.
func New(log hclog.Logger) *Poller {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Poller{
		index: make(map[int]int),
		log:   log,
	}
}

func toPollEvents(e Event) int16 {
	var m int16
	if e&EventIn != 0 {
		m |= unix.POLLIN
	}
	if e&EventOut != 0 {
		m |= unix.POLLOUT
	}
	return m | alwaysSubscribed
}

func fromPollEvents(m int16) Event {
	var e Event
	if m&unix.POLLIN != 0 {
		e |= EventIn
	}
	if m&unix.POLLOUT != 0 {
		e |= EventOut
	}
	if m&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		e |= EventError
	}
	if m&unix.POLLHUP != 0 {
		e |= EventHangup
	}
	if m&unix.POLLNVAL != 0 {
		e |= EventInvalid
	}
	return e
}

// Insert adds fd to the descriptor set with the currently configured
// desired-event mask. It fails if fd is already present.
func (p *Poller) Insert(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[fd]; ok {
		return fmt.Errorf("poller: fd %d already present", fd)
	}

	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(p.wanted)})
	return nil
}

// Remove drops fd from the descriptor set. It fails if fd is absent.
func (p *Poller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.index[fd]
	if !ok {
		return fmt.Errorf("poller: fd %d not present", fd)
	}

	last := len(p.fds) - 1
	p.fds[pos] = p.fds[last]
	p.index[int(p.fds[pos].Fd)] = pos
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

// SetEvents sets the desired IN/OUT mask applied to every member of the
// set. Error/hangup/invalid remain subscribed unconditionally.
func (p *Poller) SetEvents(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.wanted = e
	m := toPollEvents(e)
	for i := range p.fds {
		p.fds[i].Events = m
	}
}

// Poll waits up to timeoutMs milliseconds (−1 blocks indefinitely, 0
// returns immediately) for any member to report an event. It returns false
// only when the underlying poll(2) call itself fails; a timeout is a
// successful call that leaves every descriptor's returned mask at
// EventTimeout.
func (p *Poller) Poll(timeoutMs int) bool {
	p.mu.Lock()
	fds := make([]unix.PollFd, len(p.fds))
	copy(fds, p.fds)
	p.mu.Unlock()

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return true
		}
		p.log.Error("poll failed", "error", err)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n == 0 {
		for i := range p.fds {
			p.fds[i].Revents = 0
		}
		return true
	}

	for _, f := range fds {
		if pos, ok := p.index[int(f.Fd)]; ok {
			r := f.Revents
			// A readable stream descriptor whose one-byte peek returns zero
			// bytes has seen its peer close: report a hangup, not input.
			if r&unix.POLLIN != 0 && r&alwaysSubscribed == 0 {
				var b [1]byte
				if st, err := unix.GetsockoptInt(int(f.Fd), unix.SOL_SOCKET, unix.SO_TYPE); err == nil && st == unix.SOCK_STREAM {
					if m, _, err := unix.Recvfrom(int(f.Fd), b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT); err == nil && m == 0 {
						r = (r &^ unix.POLLIN) | unix.POLLHUP
					}
				}
			}
			p.fds[pos].Revents = r
		}
	}
	return true
}

// EventsFor returns the returned-event mask for fd from the most recent
// Poll call. A descriptor with nothing set reports EventTimeout.
func (p *Poller) EventsFor(fd int) Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.index[fd]
	if !ok {
		return EventInvalid
	}

	r := p.fds[pos].Revents
	if r == 0 {
		return EventTimeout
	}
	return fromPollEvents(r)
}

// Len reports the number of descriptors currently tracked.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fds)
}
