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

// Package seeddb is the reputation database: the authoritative store of
// every known peer, the probe scheduler, and the source of the
// currently-good address set served by the DNS responder.
package seeddb

import (
	"time"

	"github.com/coinseed/dnsseed/address"
)

// PeerId is a stable small integer assigned on first insertion. It is used
// as the key for all scheduler bookkeeping so queues reference peers by id
// rather than by owning pointer (see SPEC_FULL.md §9 on cyclic references).
type PeerId uint32

// maxClientSubVersion bounds the stored user-agent string length, carried
// over from the original implementation's truncation of oversized
// sub-version strings (SPEC_FULL.md §3).
const maxClientSubVersion = 256

// lifecycleState is the internal scheduling state of a peer. It is not
// exported: callers observe it indirectly through GetStats/GetAll.
type lifecycleState uint8

const (
	stateNew lifecycleState = iota
	stateTracked
	stateInFlight
)

// PeerRecord is the externally visible view of everything the database
// knows about one endpoint, as returned by GetAll/GetMany.
type PeerRecord struct {
	Endpoint         address.Endpoint
	Services         uint64
	ClientVersion    int32
	ClientSubVersion string
	Blocks           int32

	LastTry        time.Time
	OurLastTry     time.Time
	IgnoreTill     time.Time
	OurLastSuccess time.Time

	Total   uint64
	Success uint64

	// LastGood reflects the outcome of the most recent completed probe
	// (not the good-peer gate used by GetIPs), matching the original
	// dump format's fGood column.
	LastGood bool

	Stat2H  WindowStat
	Stat8H  WindowStat
	Stat1D  WindowStat
	Stat7D  WindowStat
	Stat30D WindowStat

	Banned   bool
	BanUntil time.Time
}

// WindowStat is the externally visible snapshot of one EWMA window.
type WindowStat struct {
	Weight      float64
	Count       float64
	Reliability float64
}

// peer is the internal, mutable record backing one PeerId. Access is only
// ever made holding DB.mu.
type peer struct {
	id       PeerId
	endpoint address.Endpoint

	services         uint64
	clientVersion    int32
	clientSubVersion string
	blocks           int32

	lastTry        time.Time
	ourLastTry     time.Time
	ignoreTill     time.Time
	ourLastSuccess time.Time

	total   uint64
	success uint64

	lastGood bool

	consecutiveFailures int

	win2H, win8H, win1D, win7D, win30D window

	state   lifecycleState
	dueAt   time.Time
	flightAt time.Time // when GetMany handed this peer out; zero if not in-flight
}

// good reports whether the peer currently passes the version/height/uptime
// gate described in SPEC_FULL.md / spec.md §4.1.
func (p *peer) good(cfg ScheduleParams) bool {
	if p.clientVersion != 0 && p.clientVersion < cfg.RequiredVersion {
		return false
	}
	if p.blocks < cfg.MinHeight {
		return false
	}
	return p.win2H.good() || p.win8H.good() || p.win1D.good() || p.win7D.good() || p.win30D.good()
}

func (p *peer) toRecord(banUntil time.Time, banned bool) PeerRecord {
	return PeerRecord{
		Endpoint:         p.endpoint,
		Services:         p.services,
		ClientVersion:    p.clientVersion,
		ClientSubVersion: p.clientSubVersion,
		Blocks:           p.blocks,
		LastTry:          p.lastTry,
		OurLastTry:       p.ourLastTry,
		IgnoreTill:       p.ignoreTill,
		OurLastSuccess:   p.ourLastSuccess,
		Total:            p.total,
		Success:          p.success,
		LastGood:         p.lastGood,
		Stat2H:           p.win2H.stat(),
		Stat8H:           p.win8H.stat(),
		Stat1D:           p.win1D.stat(),
		Stat7D:           p.win7D.stat(),
		Stat30D:          p.win30D.stat(),
		Banned:           banned,
		BanUntil:         banUntil,
	}
}

func truncateSubVersion(s string) string {
	if len(s) <= maxClientSubVersion {
		return s
	}
	return s[:maxClientSubVersion]
}

// ProbeResult is what the prober reports back via ResultMany for one
// endpoint it was handed by GetMany.
type ProbeResult struct {
	Endpoint         address.Endpoint
	Good             bool
	ClientVersion    int32
	ClientSubVersion string
	Services         uint64
	Blocks           int32
	BanReason        string
	NewPeers         []address.Endpoint
}

// Stats is the aggregate view returned by GetStats.
type Stats struct {
	Total          int
	Good           int
	New            int
	Tracked        int
	Banned         int
	InFlight       int
	OldestInFlight time.Duration
}
