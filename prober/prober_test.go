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
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/coinseed/dnsseed/address"
)

func testConfig(dial Dialer) Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.AddrWait = 500 * time.Millisecond
	cfg.Dial = dial
	return cfg
}

func pipeDialer(server net.Conn) Dialer {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		return server, nil
	}
}

// runFakePeer drives one side of a net.Pipe as a cooperative peer,
// answering our version with its own version + verack, and optionally one
// addr message.
func runFakePeer(t *testing.T, conn net.Conn, protocolVersion int32, extraAddr *wire.NetAddress) {
	t.Helper()
	go func() {
		msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.MainNet)
		if err != nil {
			return
		}
		if _, ok := msg.(*wire.MsgVersion); !ok {
			return
		}

		me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
		you := wire.NewNetAddressIPPort(net.IPv4zero, 0, 0)
		reply := wire.NewMsgVersion(me, you, 1, 700000)
		reply.ProtocolVersion = protocolVersion
		reply.UserAgent = "/fakepeer:1.0/"
		_ = wire.WriteMessage(conn, reply, wire.ProtocolVersion, wire.MainNet)

		// our handshake code replies verack to our version before
		// reading the peer's own verack, so read it here.
		_, _, _ = wire.ReadMessage(conn, wire.ProtocolVersion, wire.MainNet)

		_ = wire.WriteMessage(conn, wire.NewMsgVerAck(), wire.ProtocolVersion, wire.MainNet)

		if extraAddr != nil {
			gmsg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.MainNet)
			if err != nil {
				return
			}
			if _, ok := gmsg.(*wire.MsgGetAddr); !ok {
				return
			}
			addrMsg := wire.NewMsgAddr()
			_ = addrMsg.AddAddress(extraAddr)
			_ = wire.WriteMessage(conn, addrMsg, wire.ProtocolVersion, wire.MainNet)
		}
	}()
}

func TestTestNodeSuccessfulHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	runFakePeer(t, server, 70015, nil)

	limiter := rate.NewLimiter(rate.Inf, 1)
	p := New(testConfig(pipeDialer(client)), limiter, 1)

	ep, err := address.Parse("10.0.0.1:8333")
	require.NoError(t, err)

	result := p.TestNode(context.Background(), ep, time.Now())
	require.True(t, result.Good)
	require.Equal(t, int32(70015), result.ClientVersion)
	require.Equal(t, "/fakepeer:1.0/", result.ClientSubVersion)
	require.Empty(t, result.BanReason)
}

func TestTestNodeRequestsAddrsWhenStale(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	extra := wire.NewNetAddressIPPort(net.ParseIP("8.8.8.8"), 8333, wire.SFNodeNetwork)
	runFakePeer(t, server, 70015, extra)

	limiter := rate.NewLimiter(rate.Inf, 1)
	p := New(testConfig(pipeDialer(client)), limiter, 1)

	ep, err := address.Parse("10.0.0.2:8333")
	require.NoError(t, err)

	staleSuccess := time.Now().Add(-2 * 24 * time.Hour)
	result := p.TestNode(context.Background(), ep, staleSuccess)
	require.True(t, result.Good)
	require.Len(t, result.NewPeers, 1)
	require.Equal(t, uint16(8333), result.NewPeers[0].Port)
}

func TestTestNodeBansOnOldProtocolVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	runFakePeer(t, server, 60000, nil)

	limiter := rate.NewLimiter(rate.Inf, 1)
	p := New(testConfig(pipeDialer(client)), limiter, 1)

	ep, err := address.Parse("10.0.0.3:8333")
	require.NoError(t, err)

	result := p.TestNode(context.Background(), ep, time.Now())
	require.False(t, result.Good)
	require.Equal(t, "protocol version too old", result.BanReason)
}

func TestTestNodeMissOnPostConnectReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	// server side reads our version message but never writes anything
	// back, so the handshake read blocks until the deadline set from
	// cfg.Timeout fires.
	go func() {
		_, _, _ = wire.ReadMessage(server, wire.ProtocolVersion, wire.MainNet)
	}()

	cfg := testConfig(pipeDialer(client))
	cfg.Timeout = 50 * time.Millisecond
	limiter := rate.NewLimiter(rate.Inf, 1)
	p := New(cfg, limiter, 1)

	ep, err := address.Parse("10.0.0.5:8333")
	require.NoError(t, err)

	result := p.TestNode(context.Background(), ep, time.Now())
	require.False(t, result.Good)
	require.Empty(t, result.BanReason)
}

func TestTestNodeMissFallsThroughOnDialError(t *testing.T) {
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, context.DeadlineExceeded
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	p := New(testConfig(dial), limiter, 1)

	ep, err := address.Parse("10.0.0.4:8333")
	require.NoError(t, err)

	result := p.TestNode(context.Background(), ep, time.Now())
	require.False(t, result.Good)
	require.Empty(t, result.BanReason)
}
