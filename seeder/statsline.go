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
	"time"

	log "github.com/sirupsen/logrus"
)

// runStatsLine emits one human-readable summary line per second, per
// spec.md §4.4's "one stats worker emitting a human-readable line at 1 Hz".
func (s *Seeder) runStatsLine(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.DB.GetStats()
			log.Infof("%d/%d available (%d tracked, %d new), %d banned, %d in-flight",
				st.Good, st.Total, st.Tracked, st.New, st.Banned, st.InFlight)
			if s.Stats != nil {
				s.Stats.SetPeersTotal(int64(st.Total))
				s.Stats.SetPeersGood(int64(st.Good))
				s.Stats.SetPeersBanned(int64(st.Banned))
			}
		}
	}
}
