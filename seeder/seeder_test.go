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
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coinseed/dnsseed/address"
	"github.com/coinseed/dnsseed/seeddb"
)

func testConfig(t *testing.T, dir string) Config {
	return Config{
		StaticConfig: StaticConfig{
			Host:         "seed.example.com",
			NS:           "ns.seed.example.com",
			Mailbox:      "hostmaster@example.com",
			ProbeThreads: 2,
			DNSThreads:   2,
			DNSAddr:      "127.0.0.1:0",
			P2PPort:      9333,
			DatFile:      filepath.Join(dir, "dnsseed.dat"),
			DumpFile:     filepath.Join(dir, "dnsseed.dump"),
			StatsLogFile: filepath.Join(dir, "dnsstats.log"),
			PRNGSeed:     1,
		},
		DynamicConfig: DefaultDynamicConfig(),
	}
}

func TestNewBuildsDatabaseAndChecker(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	s := New(cfg, nil)
	require.NotNil(t, s.DB)
	require.EqualValues(t, 2, s.Checker.ExpectedListeners)
	require.EqualValues(t, 2, s.Checker.ExpectedWorkers)
}

func TestDumpOnceWritesAllThreeFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	s := New(cfg, nil)

	ep, err := address.Parse("10.0.0.1:9333")
	require.NoError(t, err)
	s.DB.Add(ep, false)

	require.NoError(t, s.dumpOnce())

	require.FileExists(t, cfg.DatFile)
	require.FileExists(t, cfg.DumpFile)
	require.FileExists(t, cfg.StatsLogFile)

	dump, err := os.ReadFile(cfg.DumpFile)
	require.NoError(t, err)
	require.Contains(t, string(dump), "10.0.0.1:9333")
}

func TestLoadSnapshotFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	s := New(cfg, nil)

	ep, err := address.Parse("10.0.0.2:9333")
	require.NoError(t, err)
	s.DB.Add(ep, false)
	require.NoError(t, s.writeSnapshotFile())

	fresh := seeddb.NewDB(cfg.Schedule, 2)
	require.NoError(t, loadSnapshotFile(fresh, cfg.DatFile))

	before := s.DB.GetAll()
	after := fresh.GetAll()
	require.Len(t, after, len(before))
	require.Equal(t, before[0].Endpoint, after[0].Endpoint)
}

func TestNextDumpInterval(t *testing.T) {
	require.Equal(t, 100*time.Second, nextDumpInterval(0))
	require.Equal(t, 1600*time.Second, nextDumpInterval(4))
	require.Equal(t, 3200*time.Second, nextDumpInterval(5))
	require.Equal(t, 3200*time.Second, nextDumpInterval(100))
}

func TestJitterSleepStaysWithinBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	hint := 10 * time.Second
	for i := 0; i < 100; i++ {
		d := jitterSleep(rnd, hint)
		require.GreaterOrEqual(t, d, hint/2)
		require.LessOrEqual(t, d, hint)
	}
}

func TestDynamicConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dynamic.yaml")

	dc := DefaultDynamicConfig()
	dc.MaxAnswers = 42
	require.NoError(t, dc.Write(path))

	loaded, err := ReadDynamicConfig(path)
	require.NoError(t, err)
	require.Equal(t, 42, loaded.MaxAnswers)
}
