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

// Package stats is the monitoring layer every worker in the orchestrator
// reports through: an atomic-counter Stats implementation served as JSON
// over HTTP, generalized from the teacher's ptp4u/responder stats packages
// to this daemon's own counters (probes, DNS queries, peer population).
package stats

// Stats is the metric-collection interface workers report through.
// Shaped directly after responder/server.Stats, with probe/DNS/peer
// counters in place of the PTP/NTP-specific ones.
type Stats interface {
	// Start starts a passive JSON-over-HTTP reporter; it blocks.
	Start(port int)
	// Report is for active reporters; this package's implementation is
	// passive, so Report is a no-op.
	Report() error
	// SetPrefix sets a metric name prefix; must be called before Start.
	SetPrefix(prefix string)

	IncProbesSent()
	IncProbesGood()
	IncProbesBad()
	IncBans()

	IncDNSQueries()
	IncDNSAnswers()
	IncDNSNoData()
	IncDNSNameError()

	SetPeersTotal(n int64)
	SetPeersGood(n int64)
	SetPeersBanned(n int64)

	IncListeners()
	DecListeners()
	IncWorkers()
	DecWorkers()
}

// Checker is the internal healthcheck interface the orchestrator's
// liveness loop uses, mirroring responder/server.Checker.
type Checker interface {
	Check() error
	IncListeners()
	DecListeners()
	IncWorkers()
	DecWorkers()
}
