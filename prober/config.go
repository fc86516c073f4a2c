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

// Package prober implements the peer-discovery handshake: connect, trade
// version/verack, optionally ask for more addresses, and report what was
// learned back to the reputation database. Wire encoding/decoding is
// delegated to github.com/btcsuite/btcd/wire rather than hand-rolled, per
// SPEC_FULL.md §1.
package prober

import (
	"context"
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Dialer opens a connection to a peer. Production wiring passes
// net.Dialer.DialContext directly for v4/v6; a SOCKS5 or onion-gateway
// dialer can be substituted here without touching the handshake logic
// (proxy wiring itself is a documented Non-goal).
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds everything TestNode needs that isn't per-call.
type Config struct {
	// Magic is the protocol's network magic, set from --magic.
	Magic wire.BitcoinNet
	// ProtocolVersion is the handshake version advertised in our
	// MsgVersion (distinct from --p2port, which only selects the default
	// connect port).
	ProtocolVersion uint32
	// MinAcceptableVersion is the lowest remote protocol version that
	// counts as "good" rather than a ban.
	MinAcceptableVersion int32
	// UserAgentName/Version are appended to the default btcd UA string
	// via MsgVersion.AddUserAgent, identifying this seeder to peers.
	UserAgentName    string
	UserAgentVersion string
	// BestHeight is the chain height we advertise in our own version
	// message; the seeder does not follow the chain, so this is a
	// configured constant, not observed state.
	BestHeight int32

	// Timeout bounds the whole handshake, including getaddr/addr.
	Timeout time.Duration
	// RequestAddrAfter gates how often a getaddr is sent to a given peer:
	// only when ourLastSuccess + RequestAddrAfter < now (spec.md §4.3).
	RequestAddrAfter time.Duration
	// AddrWait bounds how long TestNode waits for addr replies after
	// sending getaddr, once the handshake itself has already succeeded.
	AddrWait time.Duration

	// Dial is not YAML-serializable; DynamicConfig round-trips every
	// other field and callers re-apply DefaultConfig().Dial (or a proxy
	// dialer) after loading.
	Dial Dialer `yaml:"-"`
}

// DefaultConfig mirrors bitcoin-style mainnet defaults; RequestAddrAfter's
// 86400s matches spec.md §4.3 literally.
func DefaultConfig() Config {
	return Config{
		Magic:                wire.MainNet,
		ProtocolVersion:      wire.ProtocolVersion,
		MinAcceptableVersion: 70001,
		UserAgentName:        "dnsseed",
		UserAgentVersion:     "1.0.0",
		BestHeight:           0,
		Timeout:              15 * time.Second,
		RequestAddrAfter:     86400 * time.Second,
		AddrWait:             3 * time.Second,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, address)
		},
	}
}
