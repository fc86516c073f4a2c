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
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/coinseed/dnsseed/seeddb"
	"github.com/coinseed/dnsseed/stats"
)

// dumpSchedule is the growing-interval cadence from spec.md §4.5: 100s,
// 200s, 400s, 800s, 1600s, then 3200s forever.
var dumpSchedule = []time.Duration{
	100 * time.Second,
	200 * time.Second,
	400 * time.Second,
	800 * time.Second,
	1600 * time.Second,
}

const dumpScheduleSteadyState = 3200 * time.Second

func nextDumpInterval(tick int) time.Duration {
	if tick < len(dumpSchedule) {
		return dumpSchedule[tick]
	}
	return dumpScheduleSteadyState
}

// runDumper writes the snapshot, the human dump and a stats log line on
// the growing-interval schedule, until ctx is cancelled. Each write is
// best-effort: a failure is logged and the next tick retries, matching
// spec.md §7's "disk I/O failure: log and continue".
func (s *Seeder) runDumper(ctx context.Context) {
	for tick := 0; ; tick++ {
		d := nextDumpInterval(tick)
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		if err := s.dumpOnce(); err != nil {
			log.Errorf("[seeder] dump failed: %v", err)
		}
	}
}

func (s *Seeder) dumpOnce() error {
	records := s.DB.GetAll()

	if err := s.writeSnapshotFile(); err != nil {
		return err
	}
	if err := writeHumanDumpFile(s.Config.DumpFile, records); err != nil {
		return err
	}
	return s.appendStatsLogLine(records)
}

func (s *Seeder) writeSnapshotFile() error {
	tmp := s.Config.DatFile + ".new"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.DB.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.Config.DatFile)
}

func (s *Seeder) appendStatsLogLine(records []seeddb.PeerRecord) error {
	f, err := os.OpenFile(s.Config.StatsLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	sums := stats.SumWindows(records)
	return stats.WriteStatsLogLine(f, time.Now(), sums)
}

func loadSnapshotFile(db *seeddb.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.LoadSnapshot(f)
}
