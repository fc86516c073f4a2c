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

import "time"

// ScheduleParams is the set of tunables governing probe scheduling, the
// good-peer gate, and banning/ignoring. It is the dynamic-config
// counterpart described in SPEC_FULL.md's AMBIENT STACK section (mirrors
// ptp4u/server.DynamicConfig's "reread without a restart" shape), read from
// YAML by the seeder package and passed into NewDB.
type ScheduleParams struct {
	// RequiredVersion is the minimum protocol version a peer must report.
	RequiredVersion int32
	// MinHeight is the minimum reported chain height a peer must report.
	MinHeight int32

	// RetryInterval is the base backoff after a failed probe.
	RetryInterval time.Duration
	// MaxRetryInterval caps the exponential backoff.
	MaxRetryInterval time.Duration
	// SuccessInterval is the fixed re-probe delay after a successful probe.
	SuccessInterval time.Duration
	// MaxConsecutiveFailures bounds how many failures in a row before a
	// peer is dropped to the ignore state instead of retried.
	MaxConsecutiveFailures int
	// IgnoreWindow is how long an ignored peer is withheld from scheduling.
	IgnoreWindow time.Duration

	// BanDuration is how long a protocol-violating peer is banned for.
	BanDuration time.Duration

	// InFlightTimeout bounds how long a peer may sit dequeued-but-unresolved
	// before the watchdog returns it to the due queue.
	InFlightTimeout time.Duration

	// Jitter is the maximum random fraction (0..1) added to a computed
	// due-time to avoid thundering-herd re-probes.
	Jitter float64

	// Windows tunes the five EWMA reliability estimators. Exported so
	// callers that need a non-default cadence (a faster-churn --testnet
	// profile, or a test fixture that doesn't want to wait real hours for
	// evidence to accumulate) can build one directly instead of going
	// through DefaultScheduleParams.
	Windows WindowThresholds
}

// WindowThresholds holds the decay constant and good-peer gate for each of
// the five reliability windows.
type WindowThresholds struct {
	Tau2H, Tau8H, Tau1D, Tau7D, Tau30D                                     time.Duration
	MinCount2H, MinCount8H, MinCount1D, MinCount7D, MinCount30D            float64
	MinReliability2H, MinReliability8H, MinReliability1D, MinReliability7D float64
	MinReliability30D                                                     float64
}

// DefaultScheduleParams matches the values a freshly-deployed seeder would
// ship with: version/height gates permissive enough to bootstrap an empty
// database, standard bitcoin-style backoff, and reliability thresholds that
// get easier to satisfy for longer windows (a peer only needs to look good
// on one window to count, per spec.md §4.1).
func DefaultScheduleParams() ScheduleParams {
	return ScheduleParams{
		RequiredVersion:        70001,
		MinHeight:              0,
		RetryInterval:          2 * time.Minute,
		MaxRetryInterval:       24 * time.Hour,
		SuccessInterval:        35 * time.Minute,
		MaxConsecutiveFailures: 10,
		IgnoreWindow:           7 * 24 * time.Hour,
		BanDuration:            24 * time.Hour,
		InFlightTimeout:        10 * time.Minute,
		Jitter:                 0.2,
		Windows: WindowThresholds{
			Tau2H:  2 * time.Hour,
			Tau8H:  8 * time.Hour,
			Tau1D:  24 * time.Hour,
			Tau7D:  7 * 24 * time.Hour,
			Tau30D: 30 * 24 * time.Hour,

			MinCount2H:  0.5,
			MinCount8H:  0.25,
			MinCount1D:  0.125,
			MinCount7D:  0.05,
			MinCount30D: 0.02,

			MinReliability2H:  0.85,
			MinReliability8H:  0.70,
			MinReliability1D:  0.55,
			MinReliability7D:  0.45,
			MinReliability30D: 0.35,
		},
	}
}

func (p ScheduleParams) newWindows() (w2H, w8H, w1D, w7D, w30D window) {
	t := p.Windows
	w2H = window{tau: t.Tau2H, minCount: t.MinCount2H, minReliability: t.MinReliability2H}
	w8H = window{tau: t.Tau8H, minCount: t.MinCount8H, minReliability: t.MinReliability8H}
	w1D = window{tau: t.Tau1D, minCount: t.MinCount1D, minReliability: t.MinReliability1D}
	w7D = window{tau: t.Tau7D, minCount: t.MinCount7D, minReliability: t.MinReliability7D}
	w30D = window{tau: t.Tau30D, minCount: t.MinCount30D, minReliability: t.MinReliability30D}
	return
}
