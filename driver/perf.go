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

package driver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	liblog "github.com/nabbar/bottlerocket/logger"
	"github.com/nabbar/bottlerocket/runner/ticker"
	"github.com/nabbar/bottlerocket/socket"
	"github.com/nabbar/bottlerocket/workerpool"
)

// PerfConfig carries everything the perf driver needs that isn't already
// expressed on a socket.Config: the flow count, the worker CPU affinity
// mask, the output sink, a logger, and the idle-line cadence.
type PerfConfig struct {
	Socket      socket.Config
	Parallel    int
	Affinity    uint64
	Out         io.Writer
	Log         liblog.Logger
	IdleCadence time.Duration
}

// Perf runs the performance-benchmark mode driver: a server listens and
// streams stats for each accepted peer; a client opens Parallel flows
// against Socket.ConnectAddr/ConnectPort and streams until ByteLimit or
// TimeLimitUs is reached. It returns once every flow has finished or ctx
// is canceled.
func Perf(ctx context.Context, cfg PerfConfig) error {
	if cfg.IdleCadence <= 0 {
		cfg.IdleCadence = time.Second
	}
	log := newHCLogOrNull(cfg.Log)

	switch cfg.Socket.Role {
	case socket.RoleServer:
		return perfServer(ctx, cfg, log)
	default:
		return perfClient(ctx, cfg, log)
	}
}

func newHCLogOrNull(l liblog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return liblog.NewHCLog(l)
}

func perfServer(ctx context.Context, cfg PerfConfig, log hclog.Logger) error {
	listener := socket.New(cfg.Socket, log)
	if err := listener.Open(); err != nil {
		return fmt.Errorf("driver: perf server open: %w", err)
	}
	defer listener.Close()

	if err := listener.Bind(); err != nil {
		return fmt.Errorf("driver: perf server bind: %w", err)
	}
	if cfg.Socket.Protocol.IsStream() {
		if err := listener.Listen(cfg.Socket.Backlog); err != nil {
			return fmt.Errorf("driver: perf server listen: %w", err)
		}
	}

	fmt.Fprintln(cfg.Out, Header())

	pool := workerpool.New(maxInt(cfg.Parallel, 1), log)
	pool.SetAffinity(cfg.Affinity)
	pool.Start()
	defer pool.Stop()

	var connID uint64
	var spinTick uint64
	var wg sync.WaitGroup

	idle := ticker.New(cfg.IdleCadence, func(_ context.Context, _ *time.Ticker) error {
		tick := atomic.AddUint64(&spinTick, 1)
		fmt.Fprintln(cfg.Out, Idle(cfg.Socket.Protocol.String(), listener.Self(), tick))
		return nil
	})

	if cfg.Socket.Protocol.IsStream() {
		_ = idle.Start(ctx)
		defer idle.Stop(ctx)

		for {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
			}

			peer, err := listener.Accept()
			if err != nil {
				continue
			}
			id := atomic.AddUint64(&connID, 1)
			wg.Add(1)
			pool.Execute(id, func(taskID uint64) {
				defer wg.Done()
				runFlow(ctx, taskID, peer, cfg)
			})
		}
	}

	// UDP server: the listener socket itself is the flow; a single task
	// reads until the context is canceled.
	id := atomic.AddUint64(&connID, 1)
	wg.Add(1)
	pool.Execute(id, func(taskID uint64) {
		defer wg.Done()
		runFlow(ctx, taskID, listener, cfg)
	})
	wg.Wait()
	return nil
}

func perfClient(ctx context.Context, cfg PerfConfig, log hclog.Logger) error {
	fmt.Fprintln(cfg.Out, Header())

	pool := workerpool.New(maxInt(cfg.Parallel, 1), log)
	pool.SetAffinity(cfg.Affinity)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Parallel; i++ {
		flowCfg := cfg.Socket
		ep := socket.New(flowCfg, log)
		if err := ep.Open(); err != nil {
			fmt.Fprintf(cfg.Out, "flow %d: open failed: %v\n", i+1, err)
			continue
		}
		if err := ep.Connect(); err != nil {
			fmt.Fprintf(cfg.Out, "flow %d: connect failed: %v\n", i+1, err)
			_ = ep.Close()
			continue
		}

		id := uint64(i + 1)
		wg.Add(1)
		pool.Execute(id, func(taskID uint64) {
			defer wg.Done()
			runFlow(ctx, taskID, ep, cfg)
		})
	}
	wg.Wait()
	return nil
}

// runFlow drives one accepted or connected endpoint to completion against
// the configured byte/time caps, emitting a footer line when it finishes.
func runFlow(ctx context.Context, connID uint64, ep *socket.Endpoint, cfg PerfConfig) {
	defer ep.Close()

	buf := make([]byte, socket.DefaultBufferSize)
	send := cfg.Socket.Role != socket.RoleServer

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(cfg.Out, Footer(connID, ep.Stats()))
			return
		default:
		}

		st := ep.Stats()
		if cfg.Socket.ByteLimit > 0 && (st.Recv.TotalBytes+st.Send.TotalBytes) >= cfg.Socket.ByteLimit {
			fmt.Fprintln(cfg.Out, Footer(connID, st))
			return
		}
		if cfg.Socket.TimeLimitUs > 0 && st.ElapsedUs() >= cfg.Socket.TimeLimitUs {
			fmt.Fprintln(cfg.Out, Footer(connID, st))
			return
		}

		if send {
			n := len(buf)
			reserved := ep.Bucket().Remove(uint64(n))
			if reserved == 0 && cfg.Socket.RateBps > 0 {
				time.Sleep(time.Duration(ep.Bucket().Delay(uint64(n))) * time.Microsecond)
				continue
			}
			sent, err := ep.Send(buf)
			if err != nil {
				if reserved > 0 {
					ep.Bucket().Return(reserved)
				}
				fmt.Fprintln(cfg.Out, Footer(connID, ep.Stats()))
				return
			}
			if reserved > uint64(sent) {
				ep.Bucket().Return(reserved - uint64(sent))
			}
		} else {
			n, err := ep.Recv(buf)
			if err != nil {
				fmt.Fprintln(cfg.Out, Footer(connID, ep.Stats()))
				return
			}
			if n == 0 {
				continue
			}
		}

		fmt.Fprintln(cfg.Out, Body(connID, ep.Self(), ep.Peer(), ep.Stats(), progressLabel(ep, cfg.Socket)))
	}
}

func progressLabel(ep *socket.Endpoint, cfg socket.Config) string {
	if cfg.ByteLimit == 0 {
		return "streaming"
	}
	st := ep.Stats()
	total := st.Recv.TotalBytes + st.Send.TotalBytes
	pct := float64(total) / float64(cfg.ByteLimit) * 100
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%.1f%%", pct)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
