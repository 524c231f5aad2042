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
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	liblog "github.com/nabbar/bottlerocket/logger"
	"github.com/nabbar/bottlerocket/socket"
)

// ChatConfig carries the chat mode driver's dependencies: the socket to
// speak over, and the local terminal's input/output streams.
type ChatConfig struct {
	Socket socket.Config
	In     io.Reader
	Out    io.Writer
	Log    liblog.Logger
}

// Chat runs the interactive line-oriented mode driver: a server accepts one
// peer and exchanges newline-terminated lines with it; a client connects
// and does the same. Either side exits when its socket closes or ctx is
// canceled. Lines read from In are written to the flow verbatim; lines
// received from the flow are written to Out.
func Chat(ctx context.Context, cfg ChatConfig) error {
	log := newHCLogOrNull(cfg.Log)

	ep := socket.New(cfg.Socket, log)
	if err := ep.Open(); err != nil {
		return fmt.Errorf("driver: chat open: %w", err)
	}
	defer ep.Close()

	if cfg.Socket.Role == socket.RoleServer {
		if err := ep.Bind(); err != nil {
			return fmt.Errorf("driver: chat bind: %w", err)
		}
		if cfg.Socket.Protocol.IsStream() {
			if err := ep.Listen(cfg.Socket.Backlog); err != nil {
				return fmt.Errorf("driver: chat listen: %w", err)
			}
			fmt.Fprintln(cfg.Out, Idle(cfg.Socket.Protocol.String(), ep.Self(), 0))
			peer, err := ep.Accept()
			if err != nil {
				return fmt.Errorf("driver: chat accept: %w", err)
			}
			ep = peer
		}
	} else {
		if err := ep.Connect(); err != nil {
			return fmt.Errorf("driver: chat connect: %w", err)
		}
	}

	fmt.Fprintf(cfg.Out, "connected: self=%s peer=%s\n", ep.Self().String(), ep.Peer().String())

	errCh := make(chan error, 2)
	go chatReadLoop(ctx, ep, cfg.Out, errCh)
	go chatWriteLoop(ctx, ep, cfg.In, errCh, log)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func chatReadLoop(ctx context.Context, ep *socket.Endpoint, out io.Writer, errCh chan<- error) {
	buf := make([]byte, socket.DefaultBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := ep.Recv(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			continue
		}
		fmt.Fprintf(out, "peer: %s", buf[:n])
	}
}

func chatWriteLoop(ctx context.Context, ep *socket.Endpoint, in io.Reader, errCh chan<- error, log hclog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw := scanner.Bytes()
		line := make([]byte, len(raw)+1)
		copy(line, raw)
		line[len(raw)] = EOL
		if _, err := ep.Send(line); err != nil {
			errCh <- err
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("chat input closed with error", "error", err)
	}
}

// EOL is the line terminator the chat driver appends to outgoing lines.
const EOL = '\n'
