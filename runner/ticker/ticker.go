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

// Package ticker provides a periodic-callback runner used by the
// performance-mode driver to emit idle heartbeats on a fixed cadence,
// independent of the recv/send loop that drives each flow.
package ticker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// defaultDuration is substituted whenever the caller supplies a duration
// too small to be a sensible tick interval.
const defaultDuration = 30 * time.Second

// minDuration is the smallest interval accepted as-is.
const minDuration = time.Millisecond

// Func is the callback invoked on every tick.
type Func func(ctx context.Context, tck *time.Ticker) error

// Ticker runs Func on a fixed interval until stopped.
type Ticker struct {
	mu       sync.Mutex
	interval time.Duration
	fn       Func

	running bool
	startAt time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	errs []error
}

// New builds a Ticker with the given interval and callback. An interval
// below minDuration is replaced by defaultDuration. fn may be nil, in which
// case each tick records an "invalid function" error.
func New(d time.Duration, fn Func) *Ticker {
	if d < minDuration {
		d = defaultDuration
	}
	return &Ticker{interval: d, fn: fn}
}

// IsRunning reports whether the ticker is currently active.
func (t *Ticker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Uptime reports how long the ticker has been running since its last
// Start, or zero if it is not running.
func (t *Ticker) Uptime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return time.Since(t.startAt)
}

// ErrorsLast returns the most recently collected error from the callback,
// or nil if none has occurred since the last Start/Restart.
func (t *Ticker) ErrorsLast() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.errs) == 0 {
		return nil
	}
	return t.errs[len(t.errs)-1]
}

// ErrorsList returns every error collected from the callback since the last
// Start/Restart.
func (t *Ticker) ErrorsList() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]error, len(t.errs))
	copy(out, t.errs)
	return out
}

// Start launches the ticker loop under ctx. If already running, the
// existing instance is stopped first. Errors are cleared. A nil ctx is
// rejected with an error.
func (t *Ticker) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ticker: nil context")
	}

	_ = t.Stop(ctx)

	t.mu.Lock()
	t.errs = nil
	t.running = true
	t.startAt = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	done := make(chan struct{})
	t.done = done
	t.mu.Unlock()

	go t.loop(runCtx, done)
	return nil
}

// Restart is Start, named for symmetry with the rest of the corpus's
// runner packages.
func (t *Ticker) Restart(ctx context.Context) error {
	return t.Start(ctx)
}

// Stop halts the ticker loop and waits for it to exit. It is idempotent:
// calling Stop on a non-running ticker is a no-op.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	t.running = false
	t.startAt = time.Time{}
	t.mu.Unlock()
	return nil
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// A loop ended by its context leaves the ticker stopped, unless a
		// newer Start has already replaced this run.
		t.mu.Lock()
		if t.done == done {
			t.running = false
			t.startAt = time.Time{}
		}
		t.mu.Unlock()
		close(done)
	}()

	tck := time.NewTicker(t.interval)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tck.C:
			var err error
			if t.fn == nil {
				err = errors.New("ticker: invalid function")
			} else {
				err = t.fn(ctx, tck)
			}
			if err != nil {
				t.mu.Lock()
				t.errs = append(t.errs, err)
				t.mu.Unlock()
			}
		}
	}
}
