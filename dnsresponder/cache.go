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

package dnsresponder

import (
	"math/rand"
	"time"

	"github.com/coinseed/dnsseed/address"
	"github.com/coinseed/dnsseed/seeddb"
)

// flagCache holds one DNS worker's private view of the currently-good
// addresses matching one requested service-flag mask. Workers never share
// cache state (spec.md §4.2's "per-thread caches are independent").
type flagCache struct {
	entries []address.Endpoint
	nIPv4   int
	nIPv6   int

	cacheTime time.Time
	cacheHits int
}

// maybeRefresh applies the refresh heuristic from spec.md §4.2: refresh if
// forced, or if cacheHits·400 exceeds size², or if cacheHits²·20 exceeds
// size and more than 5s have elapsed since the last refresh. This floods
// fresh entries into small/new caches while throttling large stable ones.
func (c *flagCache) maybeRefresh(db *seeddb.DB, flags uint64, netFilter seeddb.NetFilter, force bool) {
	size := len(c.entries)
	stale := force ||
		c.cacheHits*400 > size*size ||
		(c.cacheHits*c.cacheHits*20 > size && time.Since(c.cacheTime) > 5*time.Second)
	if !stale {
		return
	}

	ips := db.GetIPs(flags, 1000, netFilter)
	c.entries = ips
	c.nIPv4, c.nIPv6 = 0, 0
	for _, ep := range c.entries {
		switch ep.Family {
		case address.FamilyV4:
			c.nIPv4++
		case address.FamilyV6:
			c.nIPv6++
		}
	}
	c.cacheTime = time.Now()
	c.cacheHits = 0
}

// selectEndpoints performs the partial Fisher-Yates selection from spec.md §4.2:
// cap max at the cache size and at the sum of allowed-family counts, then
// for each destination slot i pick a uniformly random j in [i, size),
// linearly scanning forward (wrapping within [i, size)) until an entry of
// an allowed family is found, and swap it into slot i. The shuffle is in
// place and persists across calls.
func (c *flagCache) selectEndpoints(max int, allow seeddb.NetFilter, rnd *rand.Rand) []address.Endpoint {
	c.cacheHits++

	size := len(c.entries)
	if max > size {
		max = size
	}
	allowedCount := 0
	if allow.IPv4 {
		allowedCount += c.nIPv4
	}
	if allow.IPv6 {
		allowedCount += c.nIPv6
	}
	if max > allowedCount {
		max = allowedCount
	}
	if max <= 0 {
		return nil
	}

	for i := 0; i < max; i++ {
		window := size - i
		j := i + rnd.Intn(window)
		found := j
		for n := 0; n < window; n++ {
			idx := i + (j-i+n)%window
			if allow.Allows(c.entries[idx].Family) {
				found = idx
				break
			}
		}
		c.entries[i], c.entries[found] = c.entries[found], c.entries[i]
	}

	return c.entries[:max]
}
