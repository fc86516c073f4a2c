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
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coinseed/dnsseed/dnsresponder"
	"github.com/coinseed/dnsseed/prober"
	"github.com/coinseed/dnsseed/seeddb"
	"github.com/coinseed/dnsseed/stats"
)

// getManyBatch is the number of peers each probe worker asks for per
// GetMany call (spec.md §4.4).
const getManyBatch = 16

// Seeder is one running daemon: the reputation database plus every
// worker pool that reads from and writes to it. Shaped after
// ptp4u/responder's Server type: Config in, Start as the public lifecycle,
// stopped by cancelling the context passed to Start.
type Seeder struct {
	Config Config
	DB     *seeddb.DB
	Stats  stats.Stats
	Checker *stats.SimpleChecker

	mu  sync.RWMutex
	dyn DynamicConfig
}

// New builds a Seeder and its reputation database from cfg.
func New(cfg Config, st stats.Stats) *Seeder {
	db := seeddb.NewDB(cfg.DynamicConfig.Schedule, cfg.PRNGSeed)
	return &Seeder{
		Config: cfg,
		DB:     db,
		Stats:  st,
		Checker: &stats.SimpleChecker{
			ExpectedListeners: int64(cfg.DNSThreads),
			ExpectedWorkers:   int64(cfg.ProbeThreads),
		},
		dyn: cfg.DynamicConfig,
	}
}

func (s *Seeder) dynamicConfig() DynamicConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dyn
}

// SetDynamicConfig atomically replaces the stored tunables. Probe, DNS and
// seed-lookup workers read them once when they start, and the database keeps
// the ScheduleParams it was built with, so running workers are not affected.
func (s *Seeder) SetDynamicConfig(dc DynamicConfig) {
	s.mu.Lock()
	s.dyn = dc
	s.mu.Unlock()
}

// Start launches every worker pool and blocks until ctx is cancelled.
// cancelFunc is invoked by the internal health checker if it ever detects
// the expected worker/listener counts have drifted (responder/server.go's
// Checker-triggers-shutdown pattern).
func (s *Seeder) Start(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := s.loadSnapshot(); err != nil {
		log.Warningf("[seeder] starting with an empty database: %v", err)
	}

	if s.Config.WipeBan {
		s.DB.WipeBan()
	}
	if s.Config.WipeIgnore {
		s.DB.WipeIgnore()
	}

	var wg sync.WaitGroup

	for i := 0; i < s.Config.ProbeThreads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.runProbeWorker(ctx, id)
		}(i)
	}

	for i := 0; i < s.Config.DNSThreads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.runDNSWorker(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runSeedLookupWorker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runDumper(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runStatsLine(ctx)
	}()

	if s.Checker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runHealthCheck(ctx, cancelFunc)
		}()
	}

	if s.Stats != nil && s.Config.MonitoringPort != 0 {
		go s.Stats.Start(s.Config.MonitoringPort)
	}

	wg.Wait()
}

// runHealthCheck periodically verifies the expected worker/listener
// counts are alive, mirroring responder/server.go's Checker goroutine:
// on failure it cancels the root context instead of crashing outright.
func (s *Seeder) runHealthCheck(ctx context.Context, cancelFunc context.CancelFunc) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Checker.Check(); err != nil {
				log.Errorf("[seeder] internal healthcheck failed: %v", err)
				cancelFunc()
				return
			}
		}
	}
}

func (s *Seeder) runProbeWorker(ctx context.Context, id int) {
	if s.Checker != nil {
		s.Checker.IncWorkers()
		defer s.Checker.DecWorkers()
	}
	if s.Stats != nil {
		s.Stats.IncWorkers()
		defer s.Stats.DecWorkers()
	}

	rnd := rand.New(rand.NewSource(s.Config.PRNGSeed + int64(id) + 1))
	limiter := rate.NewLimiter(rate.Limit(10), 1)
	p := prober.New(s.dynamicConfig().ProbeConfig, limiter, s.Config.PRNGSeed+int64(id)+1000)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		records, ids, waitHint := s.DB.GetMany(getManyBatch)
		if len(ids) == 0 {
			sleepCtx(ctx, jitterSleep(rnd, waitHint))
			continue
		}

		results := make([]seeddb.ProbeResult, 0, len(records))
		for _, rec := range records {
			if s.Stats != nil {
				s.Stats.IncProbesSent()
			}
			r := p.TestNode(ctx, rec.Endpoint, rec.OurLastSuccess)
			results = append(results, r)
			if s.Stats != nil {
				if r.Good {
					s.Stats.IncProbesGood()
				} else {
					s.Stats.IncProbesBad()
				}
				if r.BanReason != "" {
					s.Stats.IncBans()
				}
			}
		}
		s.DB.ResultMany(results)
	}
}

func (s *Seeder) runDNSWorker(ctx context.Context, id int) {
	if s.Checker != nil {
		s.Checker.IncListeners()
		defer s.Checker.DecListeners()
	}
	if s.Stats != nil {
		s.Stats.IncListeners()
		defer s.Stats.DecListeners()
	}

	dyn := s.dynamicConfig()
	responder := dnsresponder.New(
		s.DB,
		dnsresponder.Zone{Host: s.Config.Host, NS: s.Config.NS, Mailbox: s.Config.Mailbox},
		dyn.Whitelist,
		dyn.DefaultFlags,
		dyn.MaxAnswers,
		s.Config.PRNGSeed+int64(id)+2000,
	)
	w := dnsresponder.Worker{ID: id, Addr: s.Config.DNSAddr, Responder: responder}
	if err := w.Start(ctx); err != nil {
		log.Errorf("[seeder] dns worker %d exited: %v", id, err)
	}
}

// jitterSleep turns a scheduler wait hint into a randomized backoff, per
// spec.md §4.4's "sleep with randomized backoff" on an empty queue.
func jitterSleep(rnd *rand.Rand, hint time.Duration) time.Duration {
	if hint <= 0 {
		hint = time.Second
	}
	return hint/2 + time.Duration(rnd.Int63n(int64(hint)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Seeder) loadSnapshot() error {
	return loadSnapshotFile(s.DB, s.Config.DatFile)
}
