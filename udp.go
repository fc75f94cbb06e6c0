/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

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

package netflow

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

var (
	// readPollInterval bounds how long a read blocks before the listener
	// checks for cancellation. Shutdown latency is at most this.
	readPollInterval = 500 * time.Millisecond

	// restartBackoff is waited before rebinding the socket after a read
	// error outside of shutdown
	restartBackoff = 1 * time.Second
)

// datagram is one received UDP payload together with its source address.
// Flow export datagrams are self-contained PDUs, no state spans two of them
// on the transport level.
type datagram struct {
	payload []byte
	addr    *net.UDPAddr
}

// UDPListener reads flow export datagrams from a UDP socket into a bounded
// queue consumed by the decoding workers. When the queue is full, incoming
// datagrams are dropped: UDP is lossy anyway and a stalled decoder must not
// back-pressure into unbounded memory.
type UDPListener struct {
	bindAddr string

	bufferSize int

	queue chan datagram
}

func NewUDPListener(bindAddr string, bufferSize int, queueSize int) *UDPListener {
	return &UDPListener{
		bindAddr:   bindAddr,
		bufferSize: bufferSize,
		queue:      make(chan datagram, queueSize),
	}
}

// Listen binds the socket and reads datagrams until ctx is cancelled. The
// initial bind error is returned to the caller, a configuration problem is
// fatal at startup. Read errors during operation close and rebind the socket
// after a short backoff instead. On return the queue channel is closed so
// consumers can drain and exit.
func (l *UDPListener) Listen(ctx context.Context) (err error) {
	logger := FromContext(ctx)
	// do this last such that consumers of the queue observe the close only
	// after the read loop has exited
	defer close(l.queue)

	listenConfig := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var err error
			controlErr := c.Control(func(fd uintptr) {
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if err != nil {
					return
				}
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if controlErr != nil {
				err = controlErr
			}
			return err
		},
	}

	conn, err := listenConfig.ListenPacket(ctx, "udp", l.bindAddr)
	if err != nil {
		logger.Error(err, "failed to bind udp listener", "addr", l.bindAddr)
		return err
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	logger.Info("started UDP listener", "addr", l.bindAddr)

	buffer := make([]byte, l.bufferSize)
	for {
		if ctx.Err() != nil {
			logger.Info("shutting down UDP listener", "addr", l.bindAddr)
			return nil
		}

		conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, raddr, rerr := conn.ReadFrom(buffer)
		if rerr != nil {
			if errors.Is(rerr, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(rerr, net.ErrClosed) || ctx.Err() != nil {
				logger.Info("shutting down UDP listener", "addr", l.bindAddr)
				return nil
			}

			UDPErrorsTotal.Inc()
			logger.Error(rerr, "failed to read from UDP socket, restarting listener", "addr", l.bindAddr)
			conn.Close()
			conn = nil

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(restartBackoff):
			}

			conn, err = listenConfig.ListenPacket(ctx, "udp", l.bindAddr)
			if err != nil {
				logger.Error(err, "failed to rebind udp listener", "addr", l.bindAddr)
				return err
			}
			continue
		}

		UDPPacketsTotal.Inc()
		UDPPacketBytes.Add(float64(n))

		addr, ok := raddr.(*net.UDPAddr)
		if !ok {
			continue
		}

		// allocate a trimmed copy, the read buffer is reused for the next
		// datagram
		payload := make([]byte, n)
		copy(payload, buffer[:n])

		select {
		case l.queue <- datagram{payload: payload, addr: addr}:
		default:
			UDPDroppedDatagrams.Inc()
		}
	}
}

// Messages returns the queue of received datagrams. The channel is closed
// when the listener shuts down.
func (l *UDPListener) Messages() <-chan datagram {
	return l.queue
}

var (
	UDPPacketsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udp_listener_packets_total",
		Help: "Total number of packets received via UDP listener",
	})
	UDPErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udp_listener_errors_total",
		Help: "Total number of errors encountered in the UDP listener",
	})
	UDPPacketBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udp_listener_packet_bytes",
		Help: "Total number of bytes read in the UDP listener",
	})
	UDPDroppedDatagrams = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udp_listener_dropped_datagrams_total",
		Help: "Total number of datagrams dropped because the worker queue was full",
	})
)
