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

package prober

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
	"golang.org/x/time/rate"

	"github.com/coinseed/dnsseed/address"
	"github.com/coinseed/dnsseed/seeddb"
)

// Prober runs handshakes against candidate peers. One Prober is meant to
// back one worker goroutine: it owns a seeded PRNG (for the nonce) so that
// concurrent workers never share RNG state, per spec.md §9's "each worker
// must hold its own seeded PRNG".
type Prober struct {
	cfg     Config
	limiter *rate.Limiter
	rnd     *rand.Rand
}

// New builds a Prober. limiter bounds outbound connection attempts per
// second for this worker; seed initializes its private PRNG.
func New(cfg Config, limiter *rate.Limiter, seed int64) *Prober {
	return &Prober{
		cfg:     cfg,
		limiter: limiter,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// TestNode performs one probe of ep, per spec.md §4.3: connect, trade
// version/verack, optionally getaddr/addr, close. ourLastSuccess is the
// database's record of the last successful probe of this peer, used to
// decide whether to also request more addresses this round.
func (p *Prober) TestNode(ctx context.Context, ep address.Endpoint, ourLastSuccess time.Time) seeddb.ProbeResult {
	result := seeddb.ProbeResult{Endpoint: ep}

	if err := p.limiter.Wait(ctx); err != nil {
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.cfg.Dial(ctx, "tcp", ep.String())
	if err != nil {
		return result
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	remote, err := p.handshake(conn, ep)
	if err != nil {
		if banReason, isBan := asBanReason(err); isBan {
			result.BanReason = banReason
		}
		return result
	}

	result.Good = true
	result.ClientVersion = remote.ProtocolVersion
	result.ClientSubVersion = remote.UserAgent
	result.Services = uint64(remote.Services)
	result.Blocks = remote.LastBlock

	if time.Since(ourLastSuccess) > p.cfg.RequestAddrAfter {
		result.NewPeers = p.requestAddrs(conn)
	}

	return result
}

// remoteVersion is the subset of the peer's MsgVersion we care about.
type remoteVersion struct {
	ProtocolVersion int32
	UserAgent       string
	Services        wire.ServiceFlag
	LastBlock       int32
}

// banError marks a handshake failure that should be reported upstream as
// a ban reason (a protocol violation) rather than a plain miss.
type banError struct{ reason string }

func (e *banError) Error() string { return e.reason }

func asBanReason(err error) (string, bool) {
	if be, ok := err.(*banError); ok {
		return be.reason, true
	}
	return "", false
}

func (p *Prober) handshake(conn net.Conn, ep address.Endpoint) (remoteVersion, error) {
	me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
	you := wire.NewNetAddressIPPort(remoteIP(ep), ep.Port, 0)

	nonce := p.rnd.Uint64()
	msgVer := wire.NewMsgVersion(me, you, nonce, p.cfg.BestHeight)
	msgVer.ProtocolVersion = int32(p.cfg.ProtocolVersion)
	if p.cfg.UserAgentName != "" {
		if err := msgVer.AddUserAgent(p.cfg.UserAgentName, p.cfg.UserAgentVersion); err != nil {
			return remoteVersion{}, err
		}
	}

	if err := wire.WriteMessage(conn, msgVer, p.cfg.ProtocolVersion, p.cfg.Magic); err != nil {
		return remoteVersion{}, err
	}

	var remote remoteVersion
	gotVersion, gotVerAck := false, false
	for !gotVersion || !gotVerAck {
		msg, _, err := wire.ReadMessage(conn, p.cfg.ProtocolVersion, p.cfg.Magic)
		if err != nil {
			// Only a genuine protocol-level decode failure (bad magic, bad
			// checksum, malformed payload) counts as a ban; a read
			// timeout or a dropped connection is just a failed probe,
			// exactly like the write-path errors above (spec.md §7).
			var msgErr *wire.MessageError
			if errors.As(err, &msgErr) {
				return remoteVersion{}, &banError{reason: fmt.Sprintf("malformed message: %v", err)}
			}
			return remoteVersion{}, err
		}
		switch m := msg.(type) {
		case *wire.MsgVersion:
			if gotVersion {
				return remoteVersion{}, &banError{reason: "duplicate version message"}
			}
			gotVersion = true
			remote = remoteVersion{
				ProtocolVersion: m.ProtocolVersion,
				UserAgent:       m.UserAgent,
				Services:        m.Services,
				LastBlock:       m.LastBlock,
			}
			if remote.ProtocolVersion < p.cfg.MinAcceptableVersion {
				return remoteVersion{}, &banError{reason: "protocol version too old"}
			}
			if err := wire.WriteMessage(conn, wire.NewMsgVerAck(), p.cfg.ProtocolVersion, p.cfg.Magic); err != nil {
				return remoteVersion{}, err
			}
		case *wire.MsgVerAck:
			gotVerAck = true
		case *wire.MsgReject:
			return remoteVersion{}, &banError{reason: fmt.Sprintf("rejected: %s", m.Reason)}
		default:
			// Ignore anything else sent before the handshake completes
			// (some peers send addr/inv early); spec.md §4.3 only cares
			// about version/verack for handshake completion.
		}
	}
	return remote, nil
}

func (p *Prober) requestAddrs(conn net.Conn) []address.Endpoint {
	if err := wire.WriteMessage(conn, wire.NewMsgGetAddr(), p.cfg.ProtocolVersion, p.cfg.Magic); err != nil {
		return nil
	}
	deadline := time.Now().Add(p.cfg.AddrWait)
	_ = conn.SetReadDeadline(deadline)

	var out []address.Endpoint
	for time.Now().Before(deadline) {
		msg, _, err := wire.ReadMessage(conn, p.cfg.ProtocolVersion, p.cfg.Magic)
		if err != nil {
			break
		}
		addrMsg, ok := msg.(*wire.MsgAddr)
		if !ok {
			continue
		}
		for _, na := range addrMsg.AddrList {
			ep, err := address.FromNetIP(na.IP, na.Port)
			if err != nil {
				continue
			}
			out = append(out, ep)
		}
		break
	}
	return out
}

func remoteIP(ep address.Endpoint) net.IP {
	if ip := ep.IP(); ip != nil {
		return ip
	}
	return net.IPv4zero
}
