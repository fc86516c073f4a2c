/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package address implements the endpoint codec shared by the reputation
// database, the prober and the DNS responder: a tagged union over IPv4,
// IPv6 and onion addresses, comparable and usable as a map key.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Family identifies which variant of Endpoint is populated.
type Family uint8

// Supported address families.
const (
	FamilyV4 Family = iota
	FamilyV6
	FamilyOnion
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "v4"
	case FamilyV6:
		return "v6"
	case FamilyOnion:
		return "onion"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidAddress is returned when a string cannot be parsed into an Endpoint.
	ErrInvalidAddress = errors.New("address: invalid endpoint")
	// ErrTruncated is returned when a wire buffer ends before a full entry is read.
	ErrTruncated = errors.New("address: truncated buffer")
)

// onionSuffix is the standard .onion TLD used for Tor hidden services.
const onionSuffix = ".onion"

// Endpoint is a candidate network participant: IPv4, IPv6 or onion address
// plus a port. It is a plain comparable value so it can key a map directly.
type Endpoint struct {
	Family Family
	// Addr holds the raw address bytes, right-aligned: 4 bytes for V4,
	// 16 for V6, 10 for Onion (the v2 onion service id is 16 bytes of
	// base32 decoded to 10 raw bytes; onion labels of any other length,
	// such as 56-character v3 addresses, are rejected at parse time).
	Addr [16]byte
	Port uint16
}

// NewV4 builds an Endpoint from a 4-byte IPv4 address and port.
func NewV4(ip [4]byte, port uint16) Endpoint {
	e := Endpoint{Family: FamilyV4, Port: port}
	copy(e.Addr[:4], ip[:])
	return e
}

// NewV6 builds an Endpoint from a 16-byte IPv6 address and port.
func NewV6(ip [16]byte, port uint16) Endpoint {
	e := Endpoint{Family: FamilyV6, Port: port}
	copy(e.Addr[:], ip[:])
	return e
}

// NewOnion builds an Endpoint from a 10-byte onion service id and port.
func NewOnion(svc [10]byte, port uint16) Endpoint {
	e := Endpoint{Family: FamilyOnion, Port: port}
	copy(e.Addr[:10], svc[:])
	return e
}

// FromNetIP converts a net.IP + port into an Endpoint. Returns an error if
// ip is neither a valid IPv4 nor IPv6 address.
func FromNetIP(ip net.IP, port uint16) (Endpoint, error) {
	if v4 := ip.To4(); v4 != nil {
		var b [4]byte
		copy(b[:], v4)
		return NewV4(b, port), nil
	}
	if v6 := ip.To16(); v6 != nil {
		var b [16]byte
		copy(b[:], v6)
		return NewV6(b, port), nil
	}
	return Endpoint{}, ErrInvalidAddress
}

// IP returns the net.IP view of a V4/V6 endpoint. Returns nil for onion
// endpoints, which have no IP representation.
func (e Endpoint) IP() net.IP {
	switch e.Family {
	case FamilyV4:
		return net.IP(e.Addr[:4])
	case FamilyV6:
		return net.IP(e.Addr[:16])
	default:
		return nil
	}
}

// String renders the canonical "host:port" form used for logging, the dump
// file and map keys that need to be human-readable.
func (e Endpoint) String() string {
	switch e.Family {
	case FamilyV4:
		return net.JoinHostPort(net.IP(e.Addr[:4]).String(), strconv.Itoa(int(e.Port)))
	case FamilyV6:
		return net.JoinHostPort(net.IP(e.Addr[:16]).String(), strconv.Itoa(int(e.Port)))
	case FamilyOnion:
		return net.JoinHostPort(onionBase32(e.Addr[:10])+onionSuffix, strconv.Itoa(int(e.Port)))
	default:
		return "invalid"
	}
}

// Parse parses a canonical "host:port" string (as produced by String) back
// into an Endpoint.
func Parse(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrInvalidAddress, portStr)
	}

	if strings.HasSuffix(host, onionSuffix) {
		svc, err := onionUnbase32(strings.TrimSuffix(host, onionSuffix))
		if err != nil {
			return Endpoint{}, err
		}
		return NewOnion(svc, uint16(port)), nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, fmt.Errorf("%w: bad host %q", ErrInvalidAddress, host)
	}
	return FromNetIP(ip, uint16(port))
}

// wireEntrySize is the on-disk/wire size of one peer-list entry:
// 1 byte family tag, 16 bytes address (zero padded), 2 bytes port (BE).
const wireEntrySize = 1 + 16 + 2

// EncodePeerList serializes a slice of endpoints to their wire form, used
// both for the binary snapshot and for building outbound getaddr replies.
func EncodePeerList(endpoints []Endpoint) []byte {
	out := make([]byte, 0, len(endpoints)*wireEntrySize)
	for _, e := range endpoints {
		out = append(out, byte(e.Family))
		out = append(out, e.Addr[:]...)
		var portBuf [2]byte
		binary.BigEndian.PutUint16(portBuf[:], e.Port)
		out = append(out, portBuf[:]...)
	}
	return out
}

// DecodePeerList parses the wire form produced by EncodePeerList. Malformed
// trailing entries are reported via err but any entries successfully
// decoded before the error are still returned, matching the "discard the
// offending entry, retain others" policy for incoming peer lists: callers
// that only care about best-effort parsing can ignore a non-nil err when
// len(result) > 0.
func DecodePeerList(buf []byte) ([]Endpoint, error) {
	var out []Endpoint
	for len(buf) > 0 {
		if len(buf) < wireEntrySize {
			return out, ErrTruncated
		}
		fam := Family(buf[0])
		if fam != FamilyV4 && fam != FamilyV6 && fam != FamilyOnion {
			return out, fmt.Errorf("%w: unknown family tag %d", ErrInvalidAddress, buf[0])
		}
		var e Endpoint
		e.Family = fam
		copy(e.Addr[:], buf[1:17])
		e.Port = binary.BigEndian.Uint16(buf[17:19])
		out = append(out, e)
		buf = buf[wireEntrySize:]
	}
	return out, nil
}
