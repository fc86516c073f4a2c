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
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/coinseed/dnsseed/seeddb"
)

const humanDumpHeader = "# address                                        good  lastSuccess    %(2h)   %(8h)   %(1d)   %(7d)  %(30d)  blocks      svcs  version\n"

// writeHumanDumpFile renders records to path, the dnsseed.dump format
// pinned by spec.md §6, sorted per spec.md §4.5.
func writeHumanDumpFile(path string, records []seeddb.PeerRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := writeHumanDump(bw, records); err != nil {
		return err
	}
	return bw.Flush()
}

// writeHumanDump sorts a copy of records by uptime[30d], then uptime[7d],
// then clientVersion, all descending, and writes one fixed-width line per
// peer, matching the original dump format column-for-column.
func writeHumanDump(w io.Writer, records []seeddb.PeerRecord) error {
	sorted := make([]seeddb.PeerRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Stat30D.Reliability != b.Stat30D.Reliability {
			return a.Stat30D.Reliability > b.Stat30D.Reliability
		}
		if a.Stat7D.Reliability != b.Stat7D.Reliability {
			return a.Stat7D.Reliability > b.Stat7D.Reliability
		}
		return a.ClientVersion > b.ClientVersion
	})

	if _, err := io.WriteString(w, humanDumpHeader); err != nil {
		return err
	}

	for _, r := range sorted {
		good := 0
		if r.LastGood {
			good = 1
		}
		_, err := fmt.Fprintf(w, "%-47s  %4d  %11d  %6.2f%% %6.2f%% %6.2f%% %6.2f%% %6.2f%%  %6d  %08x  %5d \"%s\"\n",
			r.Endpoint.String(),
			good,
			r.OurLastSuccess.Unix(),
			100.0*r.Stat2H.Reliability,
			100.0*r.Stat8H.Reliability,
			100.0*r.Stat1D.Reliability,
			100.0*r.Stat7D.Reliability,
			100.0*r.Stat30D.Reliability,
			r.Blocks,
			r.Services,
			r.ClientVersion,
			r.ClientSubVersion,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
