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

package main

import (
	"context"
	"flag"
	"fmt"
	"math/bits"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	syscall "golang.org/x/sys/unix"

	"github.com/coinseed/dnsseed/dnsresponder"
	"github.com/coinseed/dnsseed/prober"
	"github.com/coinseed/dnsseed/seeder"
	"github.com/coinseed/dnsseed/stats"
)

const (
	defaultP2PPort    = 8333
	testnetP2PPort    = 18333
	defaultDNSAddr    = ":53"
	defaultMinHeight  = 0
	defaultLogLevel   = "info"
)

func main() {
	var (
		host       string
		ns         string
		mbox       string
		probeThr   int
		dnsThr     int
		dnsAddr    string
		udpPort    int
		torProxy   string
		ipv4Proxy  string
		ipv6Proxy  string
		p2pPort    int
		magicHex   string
		minHeight  int
		testnet    bool
		wipeBan    bool
		wipeIgnore bool
		configFile string
		monPort    int
		datFile    string
		dumpFile   string
		statsFile  string
		logLevel   string
	)

	var whitelist uint64List
	var seedHosts stringList

	flag.StringVar(&host, "h", "", "Host name of the seeder")
	flag.StringVar(&ns, "n", "", "Hostname of the nameserver, required if -h is set")
	flag.StringVar(&mbox, "m", "", "E-mail address reported in SOA records, required if -n is set")
	flag.IntVar(&probeThr, "t", 24, "Number of threads for probing peers")
	flag.IntVar(&dnsThr, "d", 2, "Number of threads for handling DNS queries")
	flag.StringVar(&dnsAddr, "a", defaultDNSAddr, "Address to listen on")
	flag.IntVar(&udpPort, "p", 53, "UDP port to listen on (overrides the port in -a)")
	flag.StringVar(&torProxy, "o", "", "Tor proxy IP:port")
	flag.StringVar(&ipv4Proxy, "i", "", "IPv4 SOCKS5 proxy IP:port")
	flag.StringVar(&ipv6Proxy, "k", "", "IPv6 SOCKS5 proxy IP:port")
	flag.Var(&whitelist, "w", "Service-flag masks clients may request via an x<HEX> subdomain; comma-separated, repeatable")
	flag.IntVar(&p2pPort, "p2port", defaultP2PPort, "P2P port to connect to and to assume for discovered peers")
	flag.StringVar(&magicHex, "magic", "", "Override the network magic, as 8 hex digits")
	flag.IntVar(&minHeight, "minheight", defaultMinHeight, "Minimum chain height a peer must report to count as good")
	flag.BoolVar(&testnet, "testnet", false, "Use testnet defaults for magic and port")
	flag.BoolVar(&wipeBan, "wipeban", false, "Wipe list of banned nodes on startup")
	flag.BoolVar(&wipeIgnore, "wipeignore", false, "Wipe list of ignored nodes on startup")
	flag.Var(&seedHosts, "s", "Seed host to resolve for bootstrap peers; repeatable, none by default")
	flag.StringVar(&configFile, "c", "", "Dynamic config YAML file; absent means built-in defaults")
	flag.IntVar(&monPort, "monitoringport", 0, "Port to serve JSON stats on; 0 disables it")
	flag.StringVar(&datFile, "dat", "dnsseed.dat", "Snapshot file")
	flag.StringVar(&dumpFile, "dump", "dnsseed.dump", "Human-readable dump file")
	flag.StringVar(&statsFile, "statslog", "dnsstats.log", "Reliability statistics log file")
	flag.StringVar(&logLevel, "loglevel", defaultLogLevel, "Log level: debug, info, warning, error")
	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", logLevel)
	}

	if host != "" && ns == "" {
		fmt.Fprintln(os.Stderr, "-h requires -n to be set")
		os.Exit(1)
	}
	if ns != "" && mbox == "" {
		fmt.Fprintln(os.Stderr, "-n requires -m to be set")
		os.Exit(1)
	}

	dyn := seeder.DefaultDynamicConfig()
	if configFile != "" {
		loaded, err := seeder.ReadDynamicConfig(configFile)
		if err != nil {
			log.Fatalf("reading -c %s: %v", configFile, err)
		}
		dyn = loaded
	}
	// A Dial func can't round-trip through YAML; re-apply the transport
	// default (or wrap it for a configured proxy) after loading.
	dyn.ProbeConfig.Dial = applyProxyDialer(torProxy, ipv4Proxy, ipv6Proxy)

	if testnet {
		dyn.ProbeConfig.Magic = wire.TestNet3
		if p2pPort == defaultP2PPort {
			p2pPort = testnetP2PPort
		}
	}
	if magicHex != "" {
		magic, err := parseMagic(magicHex)
		if err != nil {
			log.Fatalf("invalid -magic: %v", err)
		}
		dyn.ProbeConfig.Magic = magic
	}
	dyn.ProbeConfig.BestHeight = int32(minHeight)
	dyn.Schedule.MinHeight = int32(minHeight)

	if len(whitelist) > 0 {
		wl := make(dnsresponder.Whitelist, len(whitelist))
		for _, f := range whitelist {
			wl[f] = true
		}
		dyn.Whitelist = wl
	}

	addr := dnsAddr
	if udpPort != 53 {
		addr = fmt.Sprintf("%s:%d", hostOf(dnsAddr), udpPort)
	}

	cfg := seeder.Config{
		StaticConfig: seeder.StaticConfig{
			Host:         host,
			NS:           ns,
			Mailbox:      mbox,
			ProbeThreads: probeThr,
			DNSThreads:   dnsThr,
			DNSAddr:      addr,
			P2PPort:      p2pPort,
			DatFile:      datFile,
			DumpFile:     dumpFile,
			StatsLogFile: statsFile,
			SeedHosts:    seedHosts,
			WipeBan:        wipeBan,
			WipeIgnore:     wipeIgnore,
			PRNGSeed:       time.Now().UnixNano(),
			MonitoringPort: monPort,
		},
		DynamicConfig: dyn,
	}

	st := &stats.JSONStats{}
	s := seeder.New(cfg, st)

	ctx, cancelFunc := context.WithCancel(context.Background())

	sigStop := make(chan os.Signal, 1)
	shutdownFinish := make(chan struct{})
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigStop:
			log.Warning("Graceful shutdown")
			cancelFunc()
			close(shutdownFinish)
		case <-ctx.Done():
			log.Error("Internal error shutdown")
			close(shutdownFinish)
		}
	}()

	go s.Start(ctx, cancelFunc)
	<-shutdownFinish
}

// parseMagic parses an 8-hex-digit network magic, as printed by e.g.
// "f9 be b4 d9" without separators.
func parseMagic(s string) (wire.BitcoinNet, error) {
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	// The digits are in wire byte order; wire.BitcoinNet holds the
	// little-endian value of those bytes.
	return wire.BitcoinNet(bits.ReverseBytes32(uint32(n))), nil
}

// applyProxyDialer returns the default direct dialer. The Tor/IPv4/IPv6
// proxy addresses are accepted so the CLI surface is complete, but they are
// ignored: no SOCKS5 or onion negotiation is performed.
func applyProxyDialer(torProxy, ipv4Proxy, ipv6Proxy string) prober.Dialer {
	_ = torProxy
	_ = ipv4Proxy
	_ = ipv6Proxy
	return prober.DefaultConfig().Dial
}

func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
