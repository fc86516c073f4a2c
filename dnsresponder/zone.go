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

import "github.com/miekg/dns"

// Fixed TTLs from spec.md §4.2: data records (A/AAAA) cache for an hour,
// NS records for much longer since the nameserver set changes rarely.
const (
	dataTTL = 3600
	nsTTL   = 40000
)

// Zone describes the single authoritative zone this responder serves.
type Zone struct {
	Host    string // apex, e.g. "seed.example.com"
	NS      string // nameserver hostname advertised in NS/SOA
	Mailbox string // hostmaster address, "user@domain" form
}

func (z Zone) soa() *dns.SOA {
	return &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(z.Host),
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    nsTTL,
		},
		Ns:      dns.Fqdn(z.NS),
		Mbox:    mailboxToRname(z.Mailbox),
		Serial:  1,
		Refresh: 604800,
		Retry:   86400,
		Expire:  2419200,
		Minttl:  604800,
	}
}

func (z Zone) ns() *dns.NS {
	return &dns.NS{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(z.Host),
			Rrtype: dns.TypeNS,
			Class:  dns.ClassINET,
			Ttl:    nsTTL,
		},
		Ns: dns.Fqdn(z.NS),
	}
}

// mailboxToRname converts "user@domain" to the dotted RNAME form SOA
// records use, escaping any literal dots already in the local part.
func mailboxToRname(mailbox string) string {
	out := make([]byte, 0, len(mailbox)+1)
	for i := 0; i < len(mailbox); i++ {
		c := mailbox[i]
		switch c {
		case '@':
			out = append(out, '.')
		case '.':
			out = append(out, '\\', '.')
		default:
			out = append(out, c)
		}
	}
	return dns.Fqdn(string(out))
}
