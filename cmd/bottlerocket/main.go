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

// Command bottlerocket is a socket benchmarking and chat utility: it drives
// TCP/UDP flows under a token-bucket rate limit, reporting throughput and
// statistics (perf mode) or exchanging line-oriented text with a peer (chat
// mode).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/nabbar/bottlerocket/config"
	"github.com/nabbar/bottlerocket/driver"
	liblog "github.com/nabbar/bottlerocket/logger"
	"github.com/nabbar/bottlerocket/socket"
)

func main() {
	log := liblog.New(os.Stderr, liblog.InfoLevel)
	installSegvHandler(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchShutdownSignals(cancel)

	cmd := config.Root("bottlerocket", "socket benchmarking and chat utility", func(cfg config.Config) error {
		return run(ctx, cfg, log)
	})

	if err := cmd.Execute(); err != nil {
		log.Error("bottlerocket exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log liblog.Logger) error {
	bindHost, bindPort, _ := splitOptionalHostPort(cfg.Bind)
	connHost, connPort, _ := splitOptionalHostPort(cfg.Connect)

	sockCfg := socket.Config{
		Protocol:    cfg.Transport,
		Role:        toSocketRole(cfg.Role),
		BindAddress: bindHost,
		BindPort:    bindPort,
		ConnectAddr: connHost,
		ConnectPort: connPort,
		Backlog:     cfg.Backlog,
		TimeoutMs:   cfg.TimeoutMs,
		ByteLimit:   cfg.ByteLimit,
		RateBps:     cfg.RateBps,
		BurstBytes:  defaultBurst(cfg.RateBps),
		TimeLimitUs: cfg.TimeLimitUs,
	}

	switch cfg.Mode {
	case config.ModeChat:
		return driver.Chat(ctx, driver.ChatConfig{
			Socket: sockCfg,
			In:     os.Stdin,
			Out:    os.Stdout,
			Log:    log,
		})
	default:
		return driver.Perf(ctx, driver.PerfConfig{
			Socket:   sockCfg,
			Parallel: cfg.Parallel,
			Affinity: cfg.Affinity,
			Out:      os.Stdout,
			Log:      log,
		})
	}
}

func toSocketRole(r config.Role) socket.Role {
	switch r {
	case config.RoleServer:
		return socket.RoleServer
	case config.RolePeer:
		return socket.RolePeer
	default:
		return socket.RoleClient
	}
}

// defaultBurst sizes the token bucket's capacity at one second's worth of
// traffic when a rate is configured, matching the reference behavior of a
// flow that may burst its first second freely.
func defaultBurst(rateBps uint64) uint64 {
	if rateBps == 0 {
		return socket.DefaultBufferSize
	}
	return rateBps / 8
}

func splitOptionalHostPort(s string) (host string, port uint16, err error) {
	if s == "" {
		return "", 0, nil
	}
	return config.ParseHostPort(s)
}

func watchShutdownSignals(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		cancel()
	}()
}

// installSegvHandler logs a backtrace before the process dies on SIGSEGV.
// It cannot recover the fault; it exists only to get a backtrace into the
// log before the runtime terminates the process.
func installSegvHandler(log liblog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGSEGV)
	go func() {
		<-sig
		log.Error("fatal signal received", fmt.Errorf("SIGSEGV"), string(debug.Stack()))
		os.Exit(2)
	}()
}
