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

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Root builds the root cobra command. run is invoked with a fully parsed
// and validated Config once flags and an optional config file have been
// read; returning an error from run sets the process exit code non-zero.
func Root(name, short string, run func(Config) error) *cobra.Command {
	v := viper.New()
	cfg := Default()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           name,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("config: reading %s: %w", cfgFile, err)
				}
			}

			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("config: binding flags: %w", err)
			}
			if err := v.BindPFlag("timeout_ms", cmd.Flags().Lookup("timeout-ms")); err != nil {
				return fmt.Errorf("config: binding flags: %w", err)
			}

			out := Default()
			if err := v.Unmarshal(&out, DecodeHooks()); err != nil {
				return fmt.Errorf("config: unmarshal: %w", err)
			}
			if err := out.Validate(); err != nil {
				return err
			}
			return run(out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a configuration file (yaml, json, toml)")
	flags.StringVar((*string)(&cfg.Mode), "mode", string(cfg.Mode), "mode driver: perf or chat")
	flags.StringVar((*string)(&cfg.Role), "role", string(cfg.Role), "endpoint role: client, server, or peer")
	flags.String("transport", cfg.Transport.String(), "transport: tcp, tcp4, tcp6, udp, udp4, or udp6")
	flags.StringVar(&cfg.Bind, "bind", cfg.Bind, "self address, host:port")
	flags.StringVar(&cfg.Connect, "connect", cfg.Connect, "peer address, host:port (client/peer roles)")
	flags.IntVar(&cfg.Parallel, "parallel", cfg.Parallel, "number of client flows")
	flags.StringVar(&cfg.Rate, "rate", cfg.Rate, "token-bucket fill rate, e.g. 100Mbps (0 = unlimited)")
	flags.StringVar(&cfg.Bytes, "bytes", cfg.Bytes, "per-flow byte cap, e.g. 10MB (0 = unlimited)")
	flags.StringVar(&cfg.Time, "time", cfg.Time, "per-flow time cap, e.g. 30s (0 = unlimited)")
	flags.Uint64Var(&cfg.Affinity, "affinity", cfg.Affinity, "worker CPU affinity mask (advisory)")
	flags.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listener backlog")
	flags.IntVar(&cfg.TimeoutMs, "timeout-ms", cfg.TimeoutMs, "readiness wait timeout in milliseconds")

	return cmd
}

// ParseHostPort splits a "host:port" string, defaulting host to empty
// (wildcard bind) when only ":port" is given.
func ParseHostPort(s string) (host string, port uint16, err error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("config: %q is not host:port", s)
	}
	host = s[:idx]
	var p int
	if _, err = fmt.Sscanf(s[idx+1:], "%d", &p); err != nil {
		return "", 0, fmt.Errorf("config: invalid port in %q: %w", s, err)
	}
	if p < 0 || p > 65535 {
		return "", 0, fmt.Errorf("config: port %d out of range in %q", p, s)
	}
	return host, uint16(p), nil
}
