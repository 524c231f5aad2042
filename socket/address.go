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
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Address holds a resolved endpoint address as an IP and a port, one
// instance per side of a flow (self, peer); sockaddr values are built from
// it on demand.
type Address struct {
	IP   net.IP
	Port uint16
}

// String renders the address as "ip:port", matching the format the output
// formatter embeds in body/idle lines.
func (a Address) String() string {
	if a.IP == nil {
		return fmt.Sprintf(":%d", a.Port)
	}
	return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
}

func (a Address) sockaddrInet4() (*unix.SockaddrInet4, error) {
	ip4 := a.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("socket: %s is not an IPv4 address", a.IP)
	}
	sa := &unix.SockaddrInet4{Port: int(a.Port)}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func (a Address) sockaddrInet6() (*unix.SockaddrInet6, error) {
	ip6 := a.IP.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("socket: %s is not an IPv6 address", a.IP)
	}
	sa := &unix.SockaddrInet6{Port: int(a.Port)}
	copy(sa.Addr[:], ip6)
	return sa, nil
}

func addressFromSockaddr(sa unix.Sockaddr) Address {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{IP: net.IP(v.Addr[:]), Port: uint16(v.Port)}
	case *unix.SockaddrInet6:
		return Address{IP: net.IP(v.Addr[:]), Port: uint16(v.Port)}
	default:
		return Address{}
	}
}

func resolveAddress(host string, port uint16, v6 bool) (Address, error) {
	if host == "" {
		if v6 {
			return Address{IP: net.IPv6zero, Port: port}, nil
		}
		return Address{IP: net.IPv4zero, Port: port}, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return Address{}, fmt.Errorf("socket: resolve %s: %w", host, err)
	}

	for _, ip := range ips {
		if v6 && ip.To4() == nil {
			return Address{IP: ip, Port: port}, nil
		}
		if !v6 && ip.To4() != nil {
			return Address{IP: ip, Port: port}, nil
		}
	}

	return Address{IP: ips[0], Port: port}, nil
}
