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

package seeder

import (
	"context"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/coinseed/dnsseed/address"
)

// seedLookupCacheSize bounds how many distinct bootstrap hostnames are
// tracked; the configured -s list is small and static, so this is
// generous headroom rather than a tight budget.
const seedLookupCacheSize = 64

type seedLookupEntry struct {
	resolvedAt time.Time
	addrs      []net.IP
}

// runSeedLookupWorker resolves the configured bootstrap hosts every
// SeedLookupInterval and force-adds whatever they return, per spec.md
// §4.4. A small LRU skips any host that was resolved less than one
// interval ago.
func (s *Seeder) runSeedLookupWorker(ctx context.Context) {
	if len(s.Config.SeedHosts) == 0 {
		return
	}

	cache, err := lru.New[string, seedLookupEntry](seedLookupCacheSize)
	if err != nil {
		log.Errorf("[seeder] seed-lookup cache init failed: %v", err)
		return
	}

	resolver := &net.Resolver{}
	interval := s.dynamicConfig().SeedLookupInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	s.resolveSeedHosts(ctx, resolver, cache, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.resolveSeedHosts(ctx, resolver, cache, interval)
		}
	}
}

func (s *Seeder) resolveSeedHosts(ctx context.Context, resolver *net.Resolver, cache *lru.Cache[string, seedLookupEntry], interval time.Duration) {
	for _, host := range s.Config.SeedHosts {
		if entry, ok := cache.Get(host); ok && time.Since(entry.resolvedAt) < interval {
			continue
		}

		ips, err := resolver.LookupIP(ctx, "ip", host)
		if err != nil {
			log.Warningf("[seeder] seed-lookup: resolving %s: %v", host, err)
			continue
		}
		cache.Add(host, seedLookupEntry{resolvedAt: time.Now(), addrs: ips})

		for _, ip := range ips {
			ep, err := address.FromNetIP(ip, uint16(s.Config.P2PPort))
			if err != nil {
				continue
			}
			s.DB.Add(ep, true)
		}
	}
}
