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

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/coinseed/dnsseed/address"
)

// snapshotMagic and snapshotVersion identify the binary crash-safe dump
// format (SPEC_FULL.md §3): a self-delimiting header mirroring the
// original's sentinel-plus-version-int approach.
var snapshotMagic = [4]byte{'D', 'S', 'E', '1'}

const snapshotVersion uint32 = 1

// WriteSnapshot serializes the full database state to w: header, then every
// peer record, then every live ban. Callers are expected to write to a
// temp file and rename into place for crash safety (done by the dumper,
// not here).
func (d *DB) WriteSnapshot(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bw := bufio.NewWriter(w)

	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, snapshotVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(d.peers))); err != nil {
		return err
	}
	for _, p := range d.peers {
		if err := writePeer(bw, p); err != nil {
			return err
		}
	}

	now := time.Now()
	live := make([]address.Endpoint, 0, len(d.bans))
	for ep, until := range d.bans {
		if until.After(now) {
			live = append(live, ep)
		}
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(live))); err != nil {
		return err
	}
	for _, ep := range live {
		if err := writeEndpoint(bw, ep); err != nil {
			return err
		}
		if err := writeTime(bw, d.bans[ep]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// LoadSnapshot replaces d's state with what is read from r. d must be
// freshly constructed (NewDB) before calling this.
func (d *DB) LoadSnapshot(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return fmt.Errorf("seeddb: reading snapshot magic: %w", err)
	}
	if magic != snapshotMagic {
		return fmt.Errorf("seeddb: bad snapshot magic %q", magic)
	}
	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("seeddb: unsupported snapshot version %d", version)
	}

	var peerCount uint32
	if err := binary.Read(br, binary.BigEndian, &peerCount); err != nil {
		return err
	}
	d.peers = make(map[PeerId]*peer, peerCount)
	d.byAddr = make(map[address.Endpoint]PeerId, peerCount)
	var maxID PeerId
	for i := uint32(0); i < peerCount; i++ {
		p, err := readPeer(br)
		if err != nil {
			return fmt.Errorf("seeddb: reading peer %d: %w", i, err)
		}
		d.peers[p.id] = p
		d.byAddr[p.endpoint] = p.id
		if p.id >= maxID {
			maxID = p.id + 1
		}
		if p.state == stateInFlight {
			// A crash mid-probe leaves no in-flight survivors; return to
			// the tracked queue rather than leaking a permanently-stuck
			// entry.
			p.state = stateTracked
			p.flightAt = time.Time{}
		}
		switch p.state {
		case stateNew:
			d.unknown.push(p.id, p.dueAt)
		case stateTracked:
			d.tracked.push(p.id, p.dueAt)
		}
	}
	d.nextID = maxID

	var banCount uint32
	if err := binary.Read(br, binary.BigEndian, &banCount); err != nil {
		return err
	}
	d.bans = make(map[address.Endpoint]time.Time, banCount)
	for i := uint32(0); i < banCount; i++ {
		ep, err := readEndpoint(br)
		if err != nil {
			return fmt.Errorf("seeddb: reading ban endpoint %d: %w", i, err)
		}
		until, err := readTime(br)
		if err != nil {
			return err
		}
		d.bans[ep] = until
	}

	return nil
}

func writeEndpoint(w io.Writer, ep address.Endpoint) error {
	enc := address.EncodePeerList([]address.Endpoint{ep})
	_, err := w.Write(enc)
	return err
}

func readEndpoint(r io.Reader) (address.Endpoint, error) {
	buf := make([]byte, 19) // wireEntrySize, kept in sync with address package
	if _, err := io.ReadFull(r, buf); err != nil {
		return address.Endpoint{}, err
	}
	eps, err := address.DecodePeerList(buf)
	if err != nil {
		return address.Endpoint{}, err
	}
	if len(eps) != 1 {
		return address.Endpoint{}, fmt.Errorf("seeddb: corrupt endpoint entry")
	}
	return eps[0], nil
}

func writeTime(w io.Writer, t time.Time) error {
	return binary.Write(w, binary.BigEndian, t.UnixNano())
}

func readTime(r io.Reader) (time.Time, error) {
	var ns int64
	if err := binary.Read(r, binary.BigEndian, &ns); err != nil {
		return time.Time{}, err
	}
	if ns == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, ns).UTC(), nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeWindow(w io.Writer, win window) error {
	vals := []float64{win.tau.Seconds(), win.minCount, win.minReliability, win.weight, win.count, win.reliability}
	for _, v := range vals {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readWindow(r io.Reader) (window, error) {
	var vals [6]float64
	for i := range vals {
		if err := binary.Read(r, binary.BigEndian, &vals[i]); err != nil {
			return window{}, err
		}
	}
	return window{
		tau:            time.Duration(vals[0] * float64(time.Second)),
		minCount:       vals[1],
		minReliability: vals[2],
		weight:         vals[3],
		count:          vals[4],
		reliability:    vals[5],
	}, nil
}

func writePeer(w io.Writer, p *peer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(p.id)); err != nil {
		return err
	}
	if err := writeEndpoint(w, p.endpoint); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, p.services); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, p.clientVersion); err != nil {
		return err
	}
	if err := writeString(w, p.clientSubVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, p.blocks); err != nil {
		return err
	}
	for _, t := range []time.Time{p.lastTry, p.ourLastTry, p.ignoreTill, p.ourLastSuccess, p.dueAt, p.flightAt} {
		if err := writeTime(w, t); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, p.total); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, p.success); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(p.consecutiveFailures)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint8(p.state)); err != nil {
		return err
	}
	lastGood := uint8(0)
	if p.lastGood {
		lastGood = 1
	}
	if err := binary.Write(w, binary.BigEndian, lastGood); err != nil {
		return err
	}
	for _, win := range []window{p.win2H, p.win8H, p.win1D, p.win7D, p.win30D} {
		if err := writeWindow(w, win); err != nil {
			return err
		}
	}
	return nil
}

func readPeer(r io.Reader) (*peer, error) {
	p := &peer{}

	var id uint32
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return nil, err
	}
	p.id = PeerId(id)

	ep, err := readEndpoint(r)
	if err != nil {
		return nil, err
	}
	p.endpoint = ep

	if err := binary.Read(r, binary.BigEndian, &p.services); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &p.clientVersion); err != nil {
		return nil, err
	}
	sv, err := readString(r)
	if err != nil {
		return nil, err
	}
	p.clientSubVersion = sv
	if err := binary.Read(r, binary.BigEndian, &p.blocks); err != nil {
		return nil, err
	}

	times := make([]*time.Time, 6)
	times[0], times[1], times[2] = &p.lastTry, &p.ourLastTry, &p.ignoreTill
	times[3], times[4], times[5] = &p.ourLastSuccess, &p.dueAt, &p.flightAt
	for _, tp := range times {
		t, err := readTime(r)
		if err != nil {
			return nil, err
		}
		*tp = t
	}

	if err := binary.Read(r, binary.BigEndian, &p.total); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &p.success); err != nil {
		return nil, err
	}
	var cf int32
	if err := binary.Read(r, binary.BigEndian, &cf); err != nil {
		return nil, err
	}
	p.consecutiveFailures = int(cf)

	var state uint8
	if err := binary.Read(r, binary.BigEndian, &state); err != nil {
		return nil, err
	}
	p.state = lifecycleState(state)

	var lastGood uint8
	if err := binary.Read(r, binary.BigEndian, &lastGood); err != nil {
		return nil, err
	}
	p.lastGood = lastGood != 0

	wins := []*window{&p.win2H, &p.win8H, &p.win1D, &p.win7D, &p.win30D}
	for _, wp := range wins {
		w, err := readWindow(r)
		if err != nil {
			return nil, err
		}
		*wp = w
	}

	return p, nil
}
