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
	"math/rand"
	"sync"
	"time"

	"github.com/coinseed/dnsseed/address"
)

// DB is the reputation database. All mutation goes through its methods,
// each of which acquires a single lock for its critical section (the
// concurrency model design note's option (a), see SPEC_FULL.md §4.1); long
// I/O (probing, DNS I/O, file I/O) always happens outside the lock, in the
// caller.
type DB struct {
	mu sync.Mutex

	cfg ScheduleParams
	rnd *rand.Rand

	nextID  PeerId
	peers   map[PeerId]*peer
	byAddr  map[address.Endpoint]PeerId
	bans    map[address.Endpoint]time.Time
	unknown *dueQueue
	tracked *dueQueue
}

// NewDB builds an empty database using cfg for scheduling/gating
// parameters. seed seeds the per-database PRNG used for selection jitter
// and random sampling (spec.md §9: "each worker must hold its own seeded
// PRNG" — callers that want per-worker independence should construct one
// DB per worker's slice of responsibility, or share one DB and rely on its
// internal lock for serialized access to this PRNG).
func NewDB(cfg ScheduleParams, seed int64) *DB {
	return &DB{
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(seed)),
		peers:   make(map[PeerId]*peer),
		byAddr:  make(map[address.Endpoint]PeerId),
		bans:    make(map[address.Endpoint]time.Time),
		unknown: newDueQueue(),
		tracked: newDueQueue(),
	}
}

// Add inserts an unknown endpoint as "new", enqueuing it for probing.
// Idempotent on already-known, non-ignored endpoints. If force and the
// endpoint is currently ignored, the ignore is cleared and it is
// re-enqueued immediately. Silent no-op on banned endpoints unless their
// ban has expired, in which case an already-known peer is re-enqueued into
// tracked (spec.md §8 scenario 3: "after banDuration, Add(...) may
// reintroduce it").
func (d *DB) Add(ep address.Endpoint, force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(ep, force, time.Now())
}

// AddMany is the bulk form reached from probe results (getaddr responses).
func (d *DB) AddMany(eps []address.Endpoint) {
	if len(eps) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for _, ep := range eps {
		d.addLocked(ep, false, now)
	}
}

func (d *DB) addLocked(ep address.Endpoint, force bool, now time.Time) {
	banExpired := false
	if until, banned := d.bans[ep]; banned {
		if until.After(now) {
			return
		}
		delete(d.bans, ep)
		banExpired = true
	}

	if id, ok := d.byAddr[ep]; ok {
		p := d.peers[id]
		if banExpired && p.state != stateInFlight {
			// The peer already has history; a just-expired ban returns it
			// to tracked rather than treating it as brand new.
			p.ignoreTill = time.Time{}
			p.state = stateTracked
			p.dueAt = now
			d.tracked.push(id, now)
			return
		}
		if force && p.ignoreTill.After(now) {
			p.ignoreTill = time.Time{}
			if p.state != stateInFlight {
				p.state = stateNew
				p.dueAt = now
				d.unknown.push(id, now)
			}
		}
		return
	}

	id := d.nextID
	d.nextID++
	w2H, w8H, w1D, w7D, w30D := d.cfg.newWindows()
	p := &peer{
		id:       id,
		endpoint: ep,
		state:    stateNew,
		dueAt:    now,
		win2H:    w2H, win8H: w8H, win1D: w1D, win7D: w7D, win30D: w30D,
	}
	d.peers[id] = p
	d.byAddr[ep] = id
	d.unknown.push(id, now)
}

// GetMany dequeues up to n peers due for probing and marks them in-flight.
// Returns fewer than n (possibly zero) if none are due; waitHint suggests
// how long the caller should back off before calling again.
func (d *DB) GetMany(n int) (out []PeerRecord, ids []PeerId, waitHint time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()

	d.sweepInFlightLocked(now)

	for len(ids) < n {
		id, ok := d.popDueLocked(d.unknown, now)
		if !ok {
			id, ok = d.popDueLocked(d.tracked, now)
		}
		if !ok {
			break
		}
		p := d.peers[id]
		p.state = stateInFlight
		p.flightAt = now
		out = append(out, p.toRecord(time.Time{}, false))
		ids = append(ids, id)
	}

	if len(ids) < n {
		waitHint = d.nextWaitHintLocked(now)
	}
	return out, ids, waitHint
}

// popDueLocked pops the next due, still-live entry from q, skipping stale
// entries left behind by re-scheduling (lazy deletion: a peer can be pushed
// more than once across its lifetime, e.g. by WipeIgnore racing a pending
// retry; only the state recorded on the peer itself is authoritative).
func (d *DB) popDueLocked(q *dueQueue, now time.Time) (PeerId, bool) {
	for {
		id, ok := q.popIfDue(now)
		if !ok {
			return 0, false
		}
		p, exists := d.peers[id]
		if !exists || p.state == stateInFlight {
			continue
		}
		if p.ignoreTill.After(now) {
			continue
		}
		if until, banned := d.bans[p.endpoint]; banned && until.After(now) {
			continue
		}
		return id, true
	}
}

func (d *DB) nextWaitHintLocked(now time.Time) time.Duration {
	best := time.Duration(0)
	have := false
	for _, q := range []*dueQueue{d.unknown, d.tracked} {
		if due, ok := q.peekDue(); ok {
			w := due.Sub(now)
			if w < 0 {
				w = 0
			}
			if !have || w < best {
				best = w
				have = true
			}
		}
	}
	if !have {
		return d.cfg.SuccessInterval
	}
	return best
}

// sweepInFlightLocked returns in-flight peers older than InFlightTimeout
// back to the due queue (the watchdog described in spec.md §5).
func (d *DB) sweepInFlightLocked(now time.Time) {
	for id, p := range d.peers {
		if p.state != stateInFlight {
			continue
		}
		if now.Sub(p.flightAt) < d.cfg.InFlightTimeout {
			continue
		}
		p.state = stateTracked
		p.flightAt = time.Time{}
		p.dueAt = now
		d.tracked.push(id, now)
	}
}

// ResultMany applies probe outcomes: updates lastTry, counters, windowed
// statistics, ourLastSuccess, client metadata, and — for bannable
// failures — records a ban.
func (d *DB) ResultMany(results []ProbeResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()

	var newPeers []address.Endpoint
	for _, r := range results {
		id, ok := d.byAddr[r.Endpoint]
		if !ok {
			continue
		}
		p := d.peers[id]
		d.applyResultLocked(p, r, now)
		newPeers = append(newPeers, r.NewPeers...)
	}
	for _, ep := range newPeers {
		d.addLocked(ep, false, now)
	}
}

func (d *DB) applyResultLocked(p *peer, r ProbeResult, now time.Time) {
	if p.ourLastTry.IsZero() {
		p.ourLastTry = now.Add(-d.cfg.RetryInterval)
	}
	elapsed := now.Sub(p.ourLastTry)

	p.total++
	p.lastGood = r.Good
	if r.Good {
		p.success++
		p.consecutiveFailures = 0
		p.ourLastSuccess = now
		p.clientVersion = r.ClientVersion
		p.clientSubVersion = truncateSubVersion(r.ClientSubVersion)
		p.services = r.Services
		p.blocks = r.Blocks
	} else {
		p.consecutiveFailures++
	}

	p.win2H.update(r.Good, elapsed)
	p.win8H.update(r.Good, elapsed)
	p.win1D.update(r.Good, elapsed)
	p.win7D.update(r.Good, elapsed)
	p.win30D.update(r.Good, elapsed)

	p.lastTry = now
	p.ourLastTry = now
	p.flightAt = time.Time{}

	if r.BanReason != "" {
		d.bans[p.endpoint] = now.Add(d.cfg.BanDuration)
		p.state = stateTracked
		// Deliberately not pushed onto d.tracked: popDueLocked also skips
		// any queue entry while banned, and addLocked re-enqueues the peer
		// once Add() observes the ban has expired. History (windows,
		// counters) is left intact per spec.md §3 ("banning does not
		// delete history").
		return
	}

	if !r.Good && p.consecutiveFailures >= d.cfg.MaxConsecutiveFailures {
		p.state = stateTracked
		p.ignoreTill = now.Add(d.cfg.IgnoreWindow)
		// Due again once the ignore window has passed.
		p.dueAt = p.ignoreTill
		d.tracked.push(p.id, p.dueAt)
		return
	}

	p.state = stateTracked
	p.dueAt = d.nextDueLocked(p, r.Good, now)
	d.tracked.push(p.id, p.dueAt)
}

func (d *DB) nextDueLocked(p *peer, good bool, now time.Time) time.Time {
	var base time.Duration
	if good {
		base = d.cfg.SuccessInterval
	} else {
		backoff := d.cfg.RetryInterval
		for i := 0; i < p.consecutiveFailures-1 && backoff < d.cfg.MaxRetryInterval; i++ {
			backoff *= 2
		}
		if backoff > d.cfg.MaxRetryInterval {
			backoff = d.cfg.MaxRetryInterval
		}
		base = backoff
	}
	jitter := 1.0 + (d.rnd.Float64()*2-1)*d.cfg.Jitter
	return now.Add(time.Duration(float64(base) * jitter))
}

// GetIPs returns up to maxN currently-good peers whose services, masked by
// flagFilter, equal flagFilter, restricted to the families allowed by
// netFilter. Selection is uniformly random across the eligible set.
func (d *DB) GetIPs(flagFilter uint64, maxN int, netFilter NetFilter) []address.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()

	var eligible []address.Endpoint
	for ep, id := range d.byAddr {
		if until, banned := d.bans[ep]; banned && until.After(now) {
			continue
		}
		p := d.peers[id]
		if p.services&flagFilter != flagFilter {
			continue
		}
		if !netFilter.Allows(ep.Family) {
			continue
		}
		if !p.good(d.cfg) {
			continue
		}
		eligible = append(eligible, ep)
	}

	d.rnd.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	if maxN < len(eligible) {
		eligible = eligible[:maxN]
	}
	return eligible
}

// NetFilter selects which address families GetIPs/the DNS cache may return.
type NetFilter struct {
	IPv4  bool
	IPv6  bool
	Onion bool
}

// Allows reports whether f permits the given family.
func (f NetFilter) Allows(fam address.Family) bool {
	switch fam {
	case address.FamilyV4:
		return f.IPv4
	case address.FamilyV6:
		return f.IPv6
	case address.FamilyOnion:
		return f.Onion
	default:
		return false
	}
}

// GetStats returns aggregate counts across the whole database.
func (d *DB) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()

	var s Stats
	s.Total = len(d.peers)
	for _, until := range d.bans {
		if until.After(now) {
			s.Banned++
		}
	}
	var oldestFlight time.Duration
	for _, p := range d.peers {
		switch p.state {
		case stateNew:
			s.New++
		case stateTracked:
			s.Tracked++
		case stateInFlight:
			s.InFlight++
			age := now.Sub(p.flightAt)
			if age > oldestFlight {
				oldestFlight = age
			}
		}
		if p.good(d.cfg) {
			s.Good++
		}
	}
	s.OldestInFlight = oldestFlight
	return s
}

// GetAll materializes a consistent snapshot of every known peer, used by
// the dumper and by round-trip comparisons in tests.
func (d *DB) GetAll() []PeerRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()

	out := make([]PeerRecord, 0, len(d.peers))
	for _, p := range d.peers {
		until, banned := d.bans[p.endpoint]
		banned = banned && until.After(now)
		out = append(out, p.toRecord(until, banned))
	}
	return out
}

// WipeIgnore clears the ignore deadline on every known peer and
// re-enqueues them for immediate probing. This is the dedicated
// --wipeignore path; see SPEC_FULL.md §6 on the original's
// fWipeBan/fWipeIgnore storage-sharing bug, which this implementation does
// not reproduce.
func (d *DB) WipeIgnore() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, p := range d.peers {
		if p.ignoreTill.IsZero() {
			continue
		}
		p.ignoreTill = time.Time{}
		if p.state != stateInFlight {
			p.state = stateTracked
			p.dueAt = now
			d.tracked.push(id, now)
		}
	}
}

// WipeBan clears every entry from the ban map.
func (d *DB) WipeBan() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bans = make(map[address.Endpoint]time.Time)
}
