// Package transport carries opaque payloads between processes over two
// independent channels: a reliable, ordered websocket connection for
// structural messages and a connectionless UDP socket for telemetry.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultPath        = "/ws"
	defaultSendBuffer  = 256
	defaultEventBuffer = 1024
	defaultWriteWait   = 10 * time.Second
	defaultReadLimit   = 16 << 20
)

var (
	// ErrUnknownPeer is returned when sending to a peer that is not connected.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrSendQueueFull is returned when a peer's outbound queue overflows. The
	// peer is disconnected because the reliable channel cannot drop messages.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrNoTelemetry is returned by SendUnreliable when no telemetry socket is attached.
	ErrNoTelemetry = errors.New("telemetry channel not attached")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
)

// State is the lifecycle of an endpoint.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventType is one of the externally observable transport events.
type EventType int

const (
	EventOpen EventType = iota + 1
	EventClose
	EventError
	EventMessage
	EventBinaryMessage
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventMessage:
		return "message"
	case EventBinaryMessage:
		return "binary-message"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is delivered on an endpoint's Events channel. Peer is empty for
// datagrams received on the telemetry socket; Addr is the remote address.
type Event struct {
	Type EventType
	Peer string
	Addr string
	Data []byte
	Err  error
}

// Options tunes an endpoint. Zero values select defaults.
type Options struct {
	// Path is the HTTP path the server upgrades on.
	Path string
	// SendBuffer bounds each peer's outbound queue.
	SendBuffer int
	// EventBuffer bounds the Events channel.
	EventBuffer int
	// WriteWait is the per-message write deadline.
	WriteWait time.Duration
	// ReadLimit caps a single inbound message.
	ReadLimit int64
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = defaultPath
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	return o
}

// endpoint is the peer bookkeeping shared by Server and Client.
type endpoint struct {
	opts   Options
	logger *slog.Logger

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	mu        sync.Mutex
	peers     map[string]*peer
	telemetry *Telemetry

	onPeerClosed func(id string)
}

func (e *endpoint) init(opts Options, logger *slog.Logger) {
	opts = opts.withDefaults()
	e.opts = opts
	e.logger = logger
	e.events = make(chan Event, opts.EventBuffer)
	e.closed = make(chan struct{})
	e.peers = make(map[string]*peer)
}

// Events returns the channel on which open/close/error/message events arrive.
func (e *endpoint) Events() <-chan Event { return e.events }

// State returns the endpoint's lifecycle state.
func (e *endpoint) State() State { return State(e.state.Load()) }

func (e *endpoint) setState(s State) { e.state.Store(int32(s)) }

func (e *endpoint) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

// Peers returns the connected peer IDs, sorted.
func (e *endpoint) Peers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.peers))
	for id := range e.peers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PeerHost returns the remote host of a connected peer.
func (e *endpoint) PeerHost(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.peers[id]
	if !ok {
		return "", false
	}
	return p.host, true
}

// Send queues a text message on a peer's reliable connection. Messages to one
// peer are written in the order they were queued.
func (e *endpoint) Send(peerID string, data []byte) error {
	e.mu.Lock()
	p, ok := e.peers[peerID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return p.enqueue(data)
}

// SendUnreliable sends data to the peer's host over the telemetry socket.
func (e *endpoint) SendUnreliable(peerID string, data []byte) error {
	e.mu.Lock()
	t := e.telemetry
	p, ok := e.peers[peerID]
	e.mu.Unlock()
	if t == nil {
		return ErrNoTelemetry
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return t.SendTo(p.host, data)
}

// Disconnect closes a peer's connection. Queued messages are dropped. The
// close event is delivered asynchronously, so Disconnect never blocks on a
// full Events channel.
func (e *endpoint) Disconnect(peerID string) {
	e.mu.Lock()
	p, ok := e.peers[peerID]
	e.mu.Unlock()
	if ok {
		go p.close()
	}
}

// Gone returns a channel closed once the peer has disconnected and its close
// event has been emitted. Unknown peers yield an already closed channel.
func (e *endpoint) Gone(peerID string) <-chan struct{} {
	e.mu.Lock()
	p, ok := e.peers[peerID]
	e.mu.Unlock()
	if !ok {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.gone
}

// AttachTelemetry routes datagrams received on t into this endpoint's events
// and enables SendUnreliable.
func (e *endpoint) AttachTelemetry(t *Telemetry) {
	e.mu.Lock()
	e.telemetry = t
	e.mu.Unlock()
	go t.readLoop(e.emit)
}

func (e *endpoint) emit(ev Event) {
	select {
	case <-e.closed:
		return
	default:
	}
	select {
	case e.events <- ev:
	case <-e.closed:
	}
}

func (e *endpoint) addPeer(conn *websocket.Conn, host string) *peer {
	conn.SetReadLimit(e.opts.ReadLimit)
	p := &peer{
		id:    uuid.NewString(),
		host:  host,
		conn:  conn,
		send:  make(chan []byte, e.opts.SendBuffer),
		done:  make(chan struct{}),
		gone:  make(chan struct{}),
		owner: e,
	}
	e.mu.Lock()
	e.peers[p.id] = p
	e.mu.Unlock()

	e.logger.Info("transport: peer connected", "peer", p.id, "host", host)
	e.emit(Event{Type: EventOpen, Peer: p.id, Addr: conn.RemoteAddr().String()})

	go p.writeLoop()
	go p.readLoop()
	return p
}

func (e *endpoint) removePeer(p *peer) {
	e.mu.Lock()
	delete(e.peers, p.id)
	hook := e.onPeerClosed
	e.mu.Unlock()

	e.logger.Info("transport: peer disconnected", "peer", p.id)
	e.emit(Event{Type: EventClose, Peer: p.id, Addr: p.host})
	if hook != nil {
		hook(p.id)
	}
}

// shutdown stops event delivery, then closes every peer and the telemetry socket.
func (e *endpoint) shutdown() {
	e.closeOnce.Do(func() {
		e.setState(StateClosed)
		close(e.closed)
		e.mu.Lock()
		peers := make([]*peer, 0, len(e.peers))
		for _, p := range e.peers {
			peers = append(peers, p)
		}
		t := e.telemetry
		e.mu.Unlock()

		for _, p := range peers {
			p.close()
		}
		if t != nil {
			_ = t.Close()
		}
	})
}

// hostOf strips the port from a host:port address.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
