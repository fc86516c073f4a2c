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
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Worker owns one UDP socket bound with SO_REUSEPORT and one Responder
// (and therefore one private cache and PRNG). Binding every worker to the
// same address:port with SO_REUSEPORT lets the kernel load-balance
// incoming datagrams across workers without a shared task queue —
// generalized from the teacher's per-worker independent-socket pattern
// (ptp4u/server/worker.go binds its own sockets per sendWorker) combined
// with the reuseport idiom needed here because, unlike ptp4u's send
// sockets, all workers must listen on the identical address.
type Worker struct {
	ID        int
	Addr      string
	Responder *Responder
}

// Start binds the reuseport socket and serves until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp", w.Addr)
	if err != nil {
		return fmt.Errorf("dnsresponder: worker %d: binding %s: %w", w.ID, w.Addr, err)
	}

	srv := &dns.Server{PacketConn: conn, Handler: w.Responder}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ActivateAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown()
		return nil
	case err := <-errCh:
		if err != nil {
			log.Errorf("[dnsresponder] worker %d exited: %v", w.ID, err)
		}
		return err
	}
}
