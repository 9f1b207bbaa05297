package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// MaxDatagram is the largest payload SendTo accepts: the IPv4 UDP maximum.
const MaxDatagram = 65507

const (
	readBufferSize = 64 << 10

	readRetryMin = 10 * time.Millisecond
	readRetryMax = time.Second
	// maxReadFailures consecutive read errors stop the read loop.
	maxReadFailures = 50
)

// Telemetry is the unreliable, connectionless channel. It is bound to a fixed
// local port and sends to peers at PeerPort.
type Telemetry struct {
	conn     net.PacketConn
	peerPort int
	logger   *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// ListenTelemetry binds a UDP socket on addr. peerPort is the port remote
// telemetry sockets listen on.
func ListenTelemetry(addr string, peerPort int, logger *slog.Logger) (*Telemetry, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: binding telemetry %s: %w", addr, err)
	}
	logger.Info("transport: telemetry bound", "addr", conn.LocalAddr().String(), "peer_port", peerPort)
	return NewTelemetry(conn, peerPort, logger), nil
}

// NewTelemetry wraps an already bound packet connection.
func NewTelemetry(conn net.PacketConn, peerPort int, logger *slog.Logger) *Telemetry {
	return &Telemetry{
		conn:     conn,
		peerPort: peerPort,
		logger:   logger,
		closed:   make(chan struct{}),
	}
}

// LocalAddr returns the bound address.
func (t *Telemetry) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// SendTo sends one datagram to host at the peer telemetry port.
func (t *Telemetry) SendTo(host string, data []byte) error {
	if len(data) > MaxDatagram {
		return fmt.Errorf("transport: telemetry datagram of %d bytes exceeds %d", len(data), MaxDatagram)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(t.peerPort)))
	if err != nil {
		return fmt.Errorf("transport: resolving telemetry peer %s: %w", host, err)
	}
	if _, err := t.conn.WriteTo(data, addr); err != nil {
		return fmt.Errorf("transport: telemetry send to %s: %w", addr, err)
	}
	return nil
}

// readLoop delivers datagrams until the socket closes. Read errors are
// reported and retried with backoff; a run of maxReadFailures ends the loop.
func (t *Telemetry) readLoop(emit func(Event)) {
	buf := make([]byte, readBufferSize)
	failures := 0
	delay := readRetryMin
	for {
		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			if t.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			failures++
			emit(Event{Type: EventError, Err: err})
			if failures >= maxReadFailures {
				t.logger.Error("transport: telemetry read loop stopped", "failures", failures, "error", err)
				return
			}
			t.logger.Warn("transport: telemetry read failed", "error", err, "retry_in", delay)
			select {
			case <-t.closed:
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, readRetryMax)
			continue
		}
		failures, delay = 0, readRetryMin
		data := make([]byte, n)
		copy(data, buf[:n])
		emit(Event{Type: EventBinaryMessage, Addr: from.String(), Data: data})
	}
}

func (t *Telemetry) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Close releases the socket.
func (t *Telemetry) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}
