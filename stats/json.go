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
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// JSONStats implements Stats by exporting a map of atomic counters as
// JSON over HTTP. Passive: only Start needs to be called; Report is a
// no-op, same split as responder/stats.JSONStats.
type JSONStats struct {
	// keep these aligned to 64-bit for sync/atomic.
	probesSent  int64
	probesGood  int64
	probesBad   int64
	bans        int64
	dnsQueries  int64
	dnsAnswers  int64
	dnsNoData   int64
	dnsNameErr  int64
	peersTotal  int64
	peersGood   int64
	peersBanned int64
	listeners   int64
	workers     int64

	prefix string
}

func (j *JSONStats) toMap() map[string]int64 {
	return map[string]int64{
		j.prefix + "probes_sent":  atomic.LoadInt64(&j.probesSent),
		j.prefix + "probes_good":  atomic.LoadInt64(&j.probesGood),
		j.prefix + "probes_bad":   atomic.LoadInt64(&j.probesBad),
		j.prefix + "bans":         atomic.LoadInt64(&j.bans),
		j.prefix + "dns_queries":  atomic.LoadInt64(&j.dnsQueries),
		j.prefix + "dns_answers":  atomic.LoadInt64(&j.dnsAnswers),
		j.prefix + "dns_nodata":   atomic.LoadInt64(&j.dnsNoData),
		j.prefix + "dns_nxdomain": atomic.LoadInt64(&j.dnsNameErr),
		j.prefix + "peers_total":  atomic.LoadInt64(&j.peersTotal),
		j.prefix + "peers_good":   atomic.LoadInt64(&j.peersGood),
		j.prefix + "peers_banned": atomic.LoadInt64(&j.peersBanned),
		j.prefix + "listeners":    atomic.LoadInt64(&j.listeners),
		j.prefix + "workers":      atomic.LoadInt64(&j.workers),
	}
}

func (j *JSONStats) handleRequest(w http.ResponseWriter, r *http.Request) {
	js, err := json.Marshal(j.toMap())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

// Start serves the JSON metrics endpoint on port; blocks until the
// listener dies.
func (j *JSONStats) Start(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", j.handleRequest)
	addr := fmt.Sprintf(":%d", port)
	log.Debugf("[stats] starting json server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("[stats] json server exited: %v", err)
	}
}

// Report is a no-op: JSONStats is a passive reporter.
func (j *JSONStats) Report() error { return nil }

// SetPrefix sets the metric name prefix; call before Start.
func (j *JSONStats) SetPrefix(prefix string) { j.prefix = prefix }

func (j *JSONStats) IncProbesSent() { atomic.AddInt64(&j.probesSent, 1) }
func (j *JSONStats) IncProbesGood() { atomic.AddInt64(&j.probesGood, 1) }
func (j *JSONStats) IncProbesBad()  { atomic.AddInt64(&j.probesBad, 1) }
func (j *JSONStats) IncBans()       { atomic.AddInt64(&j.bans, 1) }

func (j *JSONStats) IncDNSQueries()   { atomic.AddInt64(&j.dnsQueries, 1) }
func (j *JSONStats) IncDNSAnswers()   { atomic.AddInt64(&j.dnsAnswers, 1) }
func (j *JSONStats) IncDNSNoData()    { atomic.AddInt64(&j.dnsNoData, 1) }
func (j *JSONStats) IncDNSNameError() { atomic.AddInt64(&j.dnsNameErr, 1) }

func (j *JSONStats) SetPeersTotal(n int64)  { atomic.StoreInt64(&j.peersTotal, n) }
func (j *JSONStats) SetPeersGood(n int64)   { atomic.StoreInt64(&j.peersGood, n) }
func (j *JSONStats) SetPeersBanned(n int64) { atomic.StoreInt64(&j.peersBanned, n) }

func (j *JSONStats) IncListeners() { atomic.AddInt64(&j.listeners, 1) }
func (j *JSONStats) DecListeners() { atomic.AddInt64(&j.listeners, -1) }
func (j *JSONStats) IncWorkers()   { atomic.AddInt64(&j.workers, 1) }
func (j *JSONStats) DecWorkers()   { atomic.AddInt64(&j.workers, -1) }
