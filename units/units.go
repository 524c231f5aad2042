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

// Package units parses the human-readable byte, bitrate, and time-interval
// suffixes accepted on the command line (e.g. "10MB", "1.5Gbps", "500ms")
// into plain integers, and renders integers back to decimal notation for
// display. It is a CLI and output collaborator: config parses with it and
// the driver's formatter renders with FormatDecimal; socket, poller,
// ratelimit, and workerpool do not import it.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SI (decimal) and IEC (binary) multiplier bases.
const (
	siKilo = 1000
	siMega = siKilo * 1000
	siGiga = siMega * 1000
	siTera = siGiga * 1000
	siPeta = siTera * 1000

	iecKibi = 1 << 10
	iecMebi = 1 << 20
	iecGibi = 1 << 30
	iecTebi = 1 << 40
	iecPebi = 1 << 50
)

var byteSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"EiB", 1 << 60}, {"PiB", iecPebi}, {"TiB", iecTebi}, {"GiB", iecGibi}, {"MiB", iecMebi}, {"KiB", iecKibi},
	{"EB", siPeta * 1000}, {"PB", siPeta}, {"TB", siTera}, {"GB", siGiga}, {"MB", siMega}, {"KB", siKilo},
	{"B", 1},
}

var bitrateSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"Eibps", 1 << 60}, {"Pibps", iecPebi}, {"Tibps", iecTebi}, {"Gibps", iecGibi}, {"Mibps", iecMebi}, {"Kibps", iecKibi},
	{"Ebps", siPeta * 1000}, {"Pbps", siPeta}, {"Tbps", siTera}, {"Gbps", siGiga}, {"Mbps", siMega}, {"Kbps", siKilo},
	{"bps", 1},
}

// ParseBytes parses a human-readable byte count such as "10MB" or "1.5GiB"
// into a plain byte count. A bare number with no suffix is taken as bytes.
func ParseBytes(s string) (uint64, error) {
	return parseWithSuffixes(s, byteSuffixes)
}

// ParseBitrate parses a human-readable bit rate such as "100Mbps" into bits
// per second. A bare number with no suffix is taken as bits per second.
func ParseBitrate(s string) (uint64, error) {
	return parseWithSuffixes(s, bitrateSuffixes)
}

// ParseMicros parses a human-readable time interval (anything time.ParseDuration
// accepts, e.g. "500ms", "2s", "1m") into microseconds. A bare number with no
// unit is taken as microseconds.
func ParseMicros(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("units: empty duration")
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("units: invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("units: negative duration %q", s)
	}
	return uint64(d.Microseconds()), nil
}

func parseWithSuffixes(s string, table []struct {
	suffix string
	mult   float64
}) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("units: empty value")
	}

	for _, e := range table {
		if strings.HasSuffix(s, e.suffix) && len(s) > len(e.suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, e.suffix))
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("units: invalid numeric part %q in %q: %w", numPart, s, err)
			}
			return uint64(math.Round(f * e.mult)), nil
		}
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("units: unrecognized value %q: %w", s, err)
	}
	return n, nil
}

// FormatDecimal renders integer in decimal notation using the given base
// (1000 for SI, 1024 for IEC) with precision fractional digits, matching
// the compact "1.20 KB"-style display the perf driver prints.
func FormatDecimal(base uint64, precision int, integer uint64) string {
	if integer < base {
		return fmt.Sprintf("%d", integer)
	}

	units := []string{"", "K", "M", "G", "T", "P", "E"}
	v := float64(integer)
	i := 0
	for v >= float64(base) && i < len(units)-1 {
		v /= float64(base)
		i++
	}
	return fmt.Sprintf("%.*f %s", precision, v, units[i])
}
