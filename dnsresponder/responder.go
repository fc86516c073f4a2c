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

// Package dnsresponder implements the authoritative DNS responder: the
// x<HEX> subdomain label protocol, a per-flag cache with a self-tuning
// refresh policy, and partial Fisher-Yates selection over the database's
// currently-good peers. Message parsing/serialization is delegated to
// github.com/miekg/dns rather than hand-rolled, per SPEC_FULL.md §2.
package dnsresponder

import (
	"math/rand"
	"strings"

	"github.com/miekg/dns"

	"github.com/coinseed/dnsseed/address"
	"github.com/coinseed/dnsseed/seeddb"
)

// Responder answers queries for one zone against one database. It is not
// safe for concurrent use: each DNS worker goroutine owns its own
// Responder (and therefore its own cache and PRNG), per spec.md §4.2.
type Responder struct {
	DB        *seeddb.DB
	Zone      Zone
	Whitelist Whitelist

	// DefaultFlags is the service-flag mask used for a bare apex query
	// (no subdomain label) — typically NodeNetwork.
	DefaultFlags uint64
	// MaxAnswers bounds how many addresses are returned per query even
	// when the cache holds more.
	MaxAnswers int

	rnd    *rand.Rand
	caches map[uint64]*flagCache
}

// New builds a Responder with its own PRNG seeded from seed.
func New(db *seeddb.DB, zone Zone, whitelist Whitelist, defaultFlags uint64, maxAnswers int, seed int64) *Responder {
	return &Responder{
		DB:           db,
		Zone:         zone,
		Whitelist:    whitelist,
		DefaultFlags: defaultFlags,
		MaxAnswers:   maxAnswers,
		rnd:          rand.New(rand.NewSource(seed)),
		caches:       make(map[uint64]*flagCache),
	}
}

// ServeDNS implements dns.Handler.
func (r *Responder) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true
	msg.RecursionAvailable = false
	msg.Compress = true

	if len(req.Question) != 1 {
		msg.Rcode = dns.RcodeFormatError
		_ = w.WriteMsg(msg)
		return
	}
	q := req.Question[0]
	qname := strings.ToLower(strings.TrimSuffix(q.Name, "."))
	host := strings.ToLower(r.Zone.Host)

	flags, labeled, match := r.resolveFlags(qname, host)
	if !match {
		msg.Rcode = dns.RcodeNameError
		_ = w.WriteMsg(msg)
		return
	}
	// The whitelist only gates the x<HEX> subdomain label; the bare apex
	// query always answers with DefaultFlags, matching original_source's
	// GetIPList (whitelist check lives inside the "x" branch only).
	if labeled && !r.Whitelist.Allowed(flags) {
		// NODATA: authoritative, no error, no answers.
		_ = w.WriteMsg(msg)
		return
	}

	switch q.Qtype {
	case dns.TypeSOA:
		msg.Answer = append(msg.Answer, r.Zone.soa())
	case dns.TypeNS:
		msg.Answer = append(msg.Answer, r.Zone.ns())
	case dns.TypeA:
		msg.Answer = append(msg.Answer, r.answers(flags, seeddb.NetFilter{IPv4: true}, q.Name)...)
	case dns.TypeAAAA:
		msg.Answer = append(msg.Answer, r.answers(flags, seeddb.NetFilter{IPv6: true}, q.Name)...)
	case dns.TypeANY:
		msg.Answer = append(msg.Answer, r.Zone.soa(), r.Zone.ns())
		msg.Answer = append(msg.Answer, r.answers(flags, seeddb.NetFilter{IPv4: true, IPv6: true}, q.Name)...)
	default:
		// Authoritative NODATA for any other pinned-zone query type.
	}

	msg.Ns = append(msg.Ns, r.Zone.ns())

	if msg.Len() > 512 {
		msg.Truncated = true
		for len(msg.Answer) > 0 && msg.Len() > 512 {
			msg.Answer = msg.Answer[:len(msg.Answer)-1]
		}
	}

	_ = w.WriteMsg(msg)
}

// resolveFlags implements the label protocol from spec.md §4.2: an exact
// apex match uses DefaultFlags and is never whitelist-gated; a single extra
// "x<HEX>" label before the apex requests those flags, subject to the
// whitelist (labeled=true tells the caller to apply that gate); anything
// else does not match this zone at all.
func (r *Responder) resolveFlags(qname, host string) (flags uint64, labeled bool, match bool) {
	if qname == host {
		return r.DefaultFlags, false, true
	}

	first, rest := address.SplitFirstLabel(qname)
	if rest != host {
		return 0, false, false
	}
	parsed, err := address.ParseServiceLabel(first)
	if err != nil {
		return 0, false, false
	}
	return parsed, true, true
}

func (r *Responder) answers(flags uint64, netFilter seeddb.NetFilter, qnameFQDN string) []dns.RR {
	cache, ok := r.caches[flags]
	if !ok {
		cache = &flagCache{}
		r.caches[flags] = cache
	}
	// A cache created just now holds nothing yet; force its first fill so
	// the query that created it is answered.
	cache.maybeRefresh(r.DB, flags, seeddb.NetFilter{IPv4: true, IPv6: true}, !ok)

	picked := cache.selectEndpoints(r.MaxAnswers, netFilter, r.rnd)

	out := make([]dns.RR, 0, len(picked))
	for _, ep := range picked {
		switch ep.Family {
		case address.FamilyV4:
			out = append(out, &dns.A{
				Hdr: dns.RR_Header{Name: qnameFQDN, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: dataTTL},
				A:   ep.IP(),
			})
		case address.FamilyV6:
			out = append(out, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: qnameFQDN, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: dataTTL},
				AAAA: ep.IP(),
			})
		}
	}
	return out
}
