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

package dnsresponder

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/coinseed/dnsseed/address"
	"github.com/coinseed/dnsseed/seeddb"
)

// fakeWriter records the message ServeDNS writes back, without any real
// network I/O.
type fakeWriter struct {
	written *dns.Msg
}

func (f *fakeWriter) LocalAddr() net.Addr         { return &net.UDPAddr{} }
func (f *fakeWriter) RemoteAddr() net.Addr        { return &net.UDPAddr{} }
func (f *fakeWriter) WriteMsg(m *dns.Msg) error    { f.written = m; return nil }
func (f *fakeWriter) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeWriter) Close() error                { return nil }
func (f *fakeWriter) TsigStatus() error           { return nil }
func (f *fakeWriter) TsigTimersOnly(bool)         {}
func (f *fakeWriter) Hijack()                     {}

// testScheduleParams uses a sub-millisecond decay constant so a handful of
// ResultMany calls a few milliseconds apart already carries enough decayed
// evidence to clear the good-peer gate, without waiting real hours.
func testScheduleParams() seeddb.ScheduleParams {
	cfg := seeddb.DefaultScheduleParams()
	cfg.Windows = seeddb.WindowThresholds{
		Tau2H: time.Millisecond, MinCount2H: 0.5, MinReliability2H: 0.5,
		Tau8H: time.Millisecond, MinCount8H: 0.5, MinReliability8H: 0.5,
		Tau1D: time.Millisecond, MinCount1D: 0.5, MinReliability1D: 0.5,
		Tau7D: time.Millisecond, MinCount7D: 0.5, MinReliability7D: 0.5,
		Tau30D: time.Millisecond, MinCount30D: 0.5, MinReliability30D: 0.5,
	}
	return cfg
}

func seedGoodPeer(t *testing.T, db *seeddb.DB, addr string, services uint64) address.Endpoint {
	t.Helper()
	ep, err := address.Parse(addr)
	require.NoError(t, err)
	db.Add(ep, false)
	_, _, _ = db.GetMany(5)
	for i := 0; i < 5; i++ {
		time.Sleep(2 * time.Millisecond)
		db.ResultMany([]seeddb.ProbeResult{{Endpoint: ep, Good: true, ClientVersion: 70015, Blocks: 1, Services: services}})
	}
	return ep
}

func newTestResponder(t *testing.T) (*Responder, *seeddb.DB) {
	t.Helper()
	db := seeddb.NewDB(testScheduleParams(), 1)
	zone := Zone{Host: "seed.example.com", NS: "ns.example.com", Mailbox: "hostmaster@example.com"}
	wl := Whitelist{NodeNetwork: true, NodeNetworkLimited: true}
	r := New(db, zone, wl, NodeNetwork, 10, 1)
	return r, db
}

func TestServeDNSApexReturnsA(t *testing.T) {
	r, db := newTestResponder(t)
	ep := seedGoodPeer(t, db, "10.0.0.1:8333", NodeNetwork)

	req := new(dns.Msg)
	req.SetQuestion("seed.example.com.", dns.TypeA)
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.NotNil(t, w.written)
	require.Equal(t, dns.RcodeSuccess, w.written.Rcode)
	require.True(t, w.written.Authoritative)
	require.Len(t, w.written.Answer, 1)
	a, ok := w.written.Answer[0].(*dns.A)
	require.True(t, ok)
	require.Equal(t, ep.IP().String(), a.A.String())
}

func TestServeDNSFlagLabelFiltersServices(t *testing.T) {
	r, db := newTestResponder(t)
	seedGoodPeer(t, db, "10.0.0.2:8333", NodeNetworkLimited)

	req := new(dns.Msg)
	req.SetQuestion("x400.seed.example.com.", dns.TypeA)
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.Equal(t, dns.RcodeSuccess, w.written.Rcode)
	require.Len(t, w.written.Answer, 1)
}

func TestServeDNSNonWhitelistedFlagYieldsNoData(t *testing.T) {
	r, db := newTestResponder(t)
	seedGoodPeer(t, db, "10.0.0.3:8333", NodeBloom)

	req := new(dns.Msg)
	req.SetQuestion("x4.seed.example.com.", dns.TypeA) // NodeBloom = 4, not whitelisted
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.Equal(t, dns.RcodeSuccess, w.written.Rcode)
	require.Empty(t, w.written.Answer)
}

func TestServeDNSApexIgnoresWhitelist(t *testing.T) {
	db := seeddb.NewDB(testScheduleParams(), 1)
	zone := Zone{Host: "seed.example.com", NS: "ns.example.com", Mailbox: "hostmaster@example.com"}
	// Whitelist deliberately does not include NodeNetwork (DefaultFlags):
	// the apex query must still answer, since the whitelist only gates
	// the x<HEX> label branch.
	wl := Whitelist{NodeNetworkLimited: true}
	r := New(db, zone, wl, NodeNetwork, 10, 1)
	ep := seedGoodPeer(t, db, "10.0.0.9:8333", NodeNetwork)

	req := new(dns.Msg)
	req.SetQuestion("seed.example.com.", dns.TypeA)
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.Equal(t, dns.RcodeSuccess, w.written.Rcode)
	require.Len(t, w.written.Answer, 1)
	a, ok := w.written.Answer[0].(*dns.A)
	require.True(t, ok)
	require.Equal(t, ep.IP().String(), a.A.String())
}

func TestServeDNSUnrelatedNameYieldsNameError(t *testing.T) {
	r, _ := newTestResponder(t)

	req := new(dns.Msg)
	req.SetQuestion("totally.unrelated.example.org.", dns.TypeA)
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.Equal(t, dns.RcodeNameError, w.written.Rcode)
}

func TestServeDNSSOAQuery(t *testing.T) {
	r, _ := newTestResponder(t)

	req := new(dns.Msg)
	req.SetQuestion("seed.example.com.", dns.TypeSOA)
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.Len(t, w.written.Answer, 1)
	soa, ok := w.written.Answer[0].(*dns.SOA)
	require.True(t, ok)
	require.Equal(t, "ns.example.com.", soa.Ns)
}

func TestServeDNSInvalidLeadingZeroLabelIsNameError(t *testing.T) {
	r, _ := newTestResponder(t)

	req := new(dns.Msg)
	req.SetQuestion("x0400.seed.example.com.", dns.TypeA)
	w := &fakeWriter{}
	r.ServeDNS(w, req)

	require.Equal(t, dns.RcodeNameError, w.written.Rcode)
}

