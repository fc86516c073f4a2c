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

package seeddb

import (
	"bytes"
	"testing"
	"time"

	"github.com/coinseed/dnsseed/address"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) address.Endpoint {
	t.Helper()
	ep, err := address.Parse(s)
	require.NoError(t, err)
	return ep
}

func TestAddThenGetManyReturnsSamePeer(t *testing.T) {
	db := NewDB(DefaultScheduleParams(), 1)
	ep := mustParse(t, "10.0.0.1:9333")
	db.Add(ep, false)

	recs, ids, _ := db.GetMany(5)
	require.Len(t, recs, 1)
	require.Len(t, ids, 1)
	require.Equal(t, ep, recs[0].Endpoint)
}

func TestGetManyOnEmptyDatabaseReturnsWaitHint(t *testing.T) {
	db := NewDB(DefaultScheduleParams(), 1)
	recs, ids, wait := db.GetMany(5)
	require.Empty(t, recs)
	require.Empty(t, ids)
	require.Equal(t, DefaultScheduleParams().SuccessInterval, wait)
}

func TestDequeuedPeerNotReturnedAgainUntilResult(t *testing.T) {
	db := NewDB(DefaultScheduleParams(), 1)
	db.Add(mustParse(t, "10.0.0.1:9333"), false)

	recs1, _, _ := db.GetMany(5)
	require.Len(t, recs1, 1)

	recs2, _, _ := db.GetMany(5)
	require.Empty(t, recs2, "in-flight peer must not be handed out twice")
}

func TestResultManyGoodPeerBecomesGoodAfterEnoughEvidence(t *testing.T) {
	cfg := DefaultScheduleParams()
	db := NewDB(cfg, 1)
	ep := mustParse(t, "10.0.0.1:9333")
	db.Add(ep, false)

	_, _, _ = db.GetMany(5)
	// Feed enough consecutive successes, each far enough apart in time
	// that the shortest window's decay constant has room to accumulate
	// count; since ResultMany reads real wall-clock time, we apply the
	// window updates directly with a simulated elapsed time instead.
	db.mu.Lock()
	id := db.byAddr[ep]
	p := db.peers[id]
	now := time.Now()
	for i := 0; i < 40; i++ {
		elapsed := cfg.Windows.Tau2H / 10
		p.win2H.update(true, elapsed)
		p.win8H.update(true, elapsed)
		p.win1D.update(true, elapsed)
		p.win7D.update(true, elapsed)
		p.win30D.update(true, elapsed)
	}
	p.blocks = 500000
	p.clientVersion = 70015
	p.ourLastSuccess = now
	db.mu.Unlock()

	recs := db.GetAll()
	require.Len(t, recs, 1)
	require.True(t, recs[0].Stat2H.Reliability > 0.85)

	good := db.GetIPs(0, 10, NetFilter{IPv4: true, IPv6: true, Onion: true})
	require.Len(t, good, 1)
	require.Equal(t, ep, good[0])
}

func TestResultManyBanExcludesFromGetIPs(t *testing.T) {
	cfg := DefaultScheduleParams()
	db := NewDB(cfg, 1)
	ep := mustParse(t, "10.0.0.2:9333")
	db.Add(ep, false)
	_, _, _ = db.GetMany(5)

	db.ResultMany([]ProbeResult{{Endpoint: ep, Good: false, BanReason: "sent garbled message"}})

	require.Empty(t, db.GetIPs(0, 10, NetFilter{IPv4: true, IPv6: true, Onion: true}))

	db.Add(ep, false)
	recs, _, _ := db.GetMany(5)
	require.Empty(t, recs, "banned peer must not be re-enqueued while ban is live")
}

func TestAddReenqueuesPeerOnceBanExpires(t *testing.T) {
	cfg := DefaultScheduleParams()
	db := NewDB(cfg, 1)
	ep := mustParse(t, "10.0.0.11:9333")
	db.Add(ep, false)
	_, _, _ = db.GetMany(5)
	db.ResultMany([]ProbeResult{{Endpoint: ep, Good: false, BanReason: "sent garbled message"}})

	db.Add(ep, false)
	recs, _, _ := db.GetMany(5)
	require.Empty(t, recs, "still-live ban must not be scheduled")

	db.mu.Lock()
	db.bans[ep] = time.Now().Add(-time.Second)
	db.mu.Unlock()

	db.Add(ep, false)
	recs2, _, _ := db.GetMany(5)
	require.Len(t, recs2, 1, "peer must be re-enqueued once its ban has expired")
	require.Equal(t, ep, recs2[0].Endpoint)
}

func TestGetIPsFiltersByServiceFlags(t *testing.T) {
	cfg := DefaultScheduleParams()
	db := NewDB(cfg, 1)
	epA := mustParse(t, "10.0.0.3:9333")
	epB := mustParse(t, "10.0.0.4:9333")
	db.Add(epA, false)
	db.Add(epB, false)

	db.mu.Lock()
	for _, ep := range []address.Endpoint{epA, epB} {
		id := db.byAddr[ep]
		p := db.peers[id]
		for i := 0; i < 40; i++ {
			p.win2H.update(true, cfg.Windows.Tau2H/10)
		}
	}
	db.peers[db.byAddr[epA]].services = 1
	db.peers[db.byAddr[epB]].services = 0
	db.mu.Unlock()

	onlyFlagged := db.GetIPs(1, 10, NetFilter{IPv4: true})
	require.ElementsMatch(t, []address.Endpoint{epA}, onlyFlagged)

	all := db.GetIPs(0, 10, NetFilter{IPv4: true})
	require.ElementsMatch(t, []address.Endpoint{epA, epB}, all)
}

func TestWipeIgnoreReenqueuesIgnoredPeers(t *testing.T) {
	cfg := DefaultScheduleParams()
	db := NewDB(cfg, 1)
	ep := mustParse(t, "10.0.0.5:9333")
	db.Add(ep, false)
	_, _, _ = db.GetMany(5)
	db.ResultMany([]ProbeResult{{Endpoint: ep, Good: false}})

	db.mu.Lock()
	p := db.peers[db.byAddr[ep]]
	p.consecutiveFailures = cfg.MaxConsecutiveFailures
	p.ignoreTill = time.Now().Add(cfg.IgnoreWindow)
	p.state = stateTracked
	db.mu.Unlock()

	recs, _, _ := db.GetMany(5)
	require.Empty(t, recs, "ignored peer must not be scheduled")

	db.WipeIgnore()
	recs2, _, _ := db.GetMany(5)
	require.Len(t, recs2, 1)
}

func TestWipeBanClearsBans(t *testing.T) {
	db := NewDB(DefaultScheduleParams(), 1)
	ep := mustParse(t, "10.0.0.6:9333")
	db.Add(ep, false)
	_, _, _ = db.GetMany(5)
	db.ResultMany([]ProbeResult{{Endpoint: ep, Good: false, BanReason: "bad version"}})

	db.mu.Lock()
	banned := len(db.bans)
	db.mu.Unlock()
	require.Equal(t, 1, banned)

	db.WipeBan()
	db.mu.Lock()
	banned = len(db.bans)
	db.mu.Unlock()
	require.Zero(t, banned)
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := DefaultScheduleParams()
	db := NewDB(cfg, 7)
	epGood := mustParse(t, "10.0.0.7:9333")
	epBanned := mustParse(t, "10.0.0.8:9333")
	db.Add(epGood, false)
	db.Add(epBanned, false)
	_, _, _ = db.GetMany(5)
	db.ResultMany([]ProbeResult{
		{Endpoint: epGood, Good: true, ClientVersion: 70015, Blocks: 700000},
		{Endpoint: epBanned, Good: false, BanReason: "misbehaving"},
	})

	var buf bytes.Buffer
	require.NoError(t, db.WriteSnapshot(&buf))

	restored := NewDB(cfg, 7)
	require.NoError(t, restored.LoadSnapshot(bytes.NewReader(buf.Bytes())))

	before := db.GetAll()
	after := restored.GetAll()
	require.Len(t, after, len(before))

	stats := restored.GetStats()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Banned)
}

func TestSnapshotRejectsBadMagic(t *testing.T) {
	db := NewDB(DefaultScheduleParams(), 1)
	err := db.LoadSnapshot(bytes.NewReader([]byte("nope")))
	require.Error(t, err)
}

func TestStatsReflectsInFlightAndNew(t *testing.T) {
	db := NewDB(DefaultScheduleParams(), 1)
	db.Add(mustParse(t, "10.0.0.9:9333"), false)
	db.Add(mustParse(t, "10.0.0.10:9333"), false)

	_, _, _ = db.GetMany(1)
	stats := db.GetStats()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.InFlight)
	require.Equal(t, 1, stats.New)
}
