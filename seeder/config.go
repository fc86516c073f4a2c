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

// Package seeder wires the address, seeddb, prober, dnsresponder and
// stats packages together into a running daemon: worker pools, the
// dumper, the seed-host bootstrap lookup and graceful shutdown. Shaped
// directly after ptp4u/server and responder/server's config/start/stop
// split.
package seeder

import (
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/coinseed/dnsseed/dnsresponder"
	"github.com/coinseed/dnsseed/prober"
	"github.com/coinseed/dnsseed/seeddb"
)

// StaticConfig is everything that requires a process restart to change:
// listen addresses, thread counts, file paths, the zone identity. Mirrors
// ptp4u/server.StaticConfig.
type StaticConfig struct {
	Host    string
	NS      string
	Mailbox string

	ProbeThreads int
	DNSThreads   int

	DNSAddr        string
	MonitoringPort int

	// P2PPort is the default port assumed for peers discovered via
	// seed-host bootstrap lookup (--p2port); distinct from the handshake
	// protocol version (spec.md §6).
	P2PPort int

	DatFile      string
	DumpFile     string
	StatsLogFile string

	// SeedHosts is the -s list: bootstrap hostnames resolved periodically
	// by the seed-lookup worker and force-added to the database. Named
	// "SeedHosts" rather than "Seeds" to avoid confusion with PRNGSeed.
	SeedHosts []string

	WipeBan    bool
	WipeIgnore bool

	// PRNGSeed seeds every worker's private PRNG (spec.md §9); derived
	// from the clock at startup, not a CLI flag.
	PRNGSeed int64
}

// DynamicConfig is everything an operator may want to retune without a
// restart: the reputation database's scheduling/gating parameters plus
// the DNS responder's whitelist and answer shape. Read from YAML, mirrors
// ptp4u/server.DynamicConfig + ReadDynamicConfig/Write.
type DynamicConfig struct {
	Schedule seeddb.ScheduleParams

	DefaultFlags uint64
	MaxAnswers   int
	Whitelist    dnsresponder.Whitelist

	ProbeConfig prober.Config

	SeedLookupInterval time.Duration
}

// DefaultDynamicConfig matches what a freshly-deployed seeder ships with
// absent a -c config file.
func DefaultDynamicConfig() DynamicConfig {
	return DynamicConfig{
		Schedule:           seeddb.DefaultScheduleParams(),
		DefaultFlags:       dnsresponder.NodeNetwork,
		MaxAnswers:         24,
		Whitelist:          dnsresponder.DefaultWhitelist(),
		ProbeConfig:        prober.DefaultConfig(),
		SeedLookupInterval: 30 * time.Minute,
	}
}

// ReadDynamicConfig loads a YAML dynamic-config file, layering it over
// DefaultDynamicConfig so an operator only needs to specify the fields
// they want to override.
func ReadDynamicConfig(path string) (DynamicConfig, error) {
	dc := DefaultDynamicConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return dc, err
	}
	if err := yaml.Unmarshal(data, &dc); err != nil {
		return dc, err
	}
	return dc, nil
}

// Write serializes dc to path, the counterpart of ReadDynamicConfig; used
// by operators who want to start from the running defaults.
func (dc DynamicConfig) Write(path string) error {
	data, err := yaml.Marshal(&dc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Config is the full configuration of one seeder process.
type Config struct {
	StaticConfig
	DynamicConfig
}
