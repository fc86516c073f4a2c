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

package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/coinseed/dnsseed/seeddb"
)

// WindowSums is the five summed window averages the dumper appends to
// dnsstats.log on every snapshot (spec.md §6).
type WindowSums struct {
	Sum2H, Sum8H, Sum1D, Sum7D, Sum30D float64
}

// SumWindows totals the reliability of every window across all records,
// the input WriteStatsLogLine expects.
func SumWindows(records []seeddb.PeerRecord) WindowSums {
	var s WindowSums
	for _, r := range records {
		s.Sum2H += r.Stat2H.Reliability
		s.Sum8H += r.Stat8H.Reliability
		s.Sum1D += r.Stat1D.Reliability
		s.Sum7D += r.Stat7D.Reliability
		s.Sum30D += r.Stat30D.Reliability
	}
	return s
}

// WriteStatsLogLine appends one line to the stats log: unix time, then
// the five summed window averages, space-separated, matching spec.md §6's
// dnsstats.log format exactly.
func WriteStatsLogLine(w io.Writer, at time.Time, s WindowSums) error {
	_, err := fmt.Fprintf(w, "%d %.4f %.4f %.4f %.4f %.4f\n",
		at.Unix(), s.Sum2H, s.Sum8H, s.Sum1D, s.Sum7D, s.Sum30D)
	return err
}
