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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coinseed/dnsseed/seeddb"
)

func TestSumWindows(t *testing.T) {
	records := []seeddb.PeerRecord{
		{Stat2H: seeddb.WindowStat{Reliability: 0.5}, Stat8H: seeddb.WindowStat{Reliability: 0.4}},
		{Stat2H: seeddb.WindowStat{Reliability: 0.25}, Stat8H: seeddb.WindowStat{Reliability: 0.1}},
	}
	sums := SumWindows(records)
	require.InDelta(t, 0.75, sums.Sum2H, 1e-9)
	require.InDelta(t, 0.5, sums.Sum8H, 1e-9)
	require.Zero(t, sums.Sum1D)
}

func TestWriteStatsLogLine(t *testing.T) {
	var buf bytes.Buffer
	at := time.Unix(1700000000, 0)
	err := WriteStatsLogLine(&buf, at, WindowSums{Sum2H: 1.5, Sum8H: 2, Sum1D: 3, Sum7D: 4, Sum30D: 5})
	require.NoError(t, err)
	require.Equal(t, "1700000000 1.5000 2.0000 3.0000 4.0000 5.0000\n", buf.String())
}

func TestSimpleCheckerReportsMismatch(t *testing.T) {
	c := &SimpleChecker{ExpectedListeners: 1, ExpectedWorkers: 2}
	c.IncListeners()
	c.IncWorkers()

	require.Error(t, c.Check())

	c.IncWorkers()
	require.NoError(t, c.Check())
}
