// Package replication keeps hierarchies in separate processes consistent. It
// turns local hierarchy events into wire messages, applies inbound messages
// without echoing them back to their source, and exchanges full snapshots
// when a peer joins or falls out of step.
//
// A Manager is not safe for concurrent use. Every method must run on the
// goroutine that owns the Hierarchy (see package engine).
package replication

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Abhio2i/TDF-sub001/internal/metrics"
	"github.com/Abhio2i/TDF-sub001/internal/protocol"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
	"github.com/Abhio2i/TDF-sub001/internal/transport"
)

const defaultResyncAfterFailures = 3

// Role selects which side of the protocol a Manager plays.
type Role int

const (
	// Master is the authority: it answers snapshot requests and broadcasts frames.
	Master Role = iota
	// Slave mirrors one upstream master and requests a snapshot on connect.
	Slave
)

func (r Role) String() string {
	if r == Slave {
		return "slave"
	}
	return "master"
}

// PeerState is the per-connection replication state.
type PeerState int

const (
	Disconnected PeerState = iota
	Connecting
	Connected
	Replicating
)

func (s PeerState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Replicating:
		return "replicating"
	default:
		return fmt.Sprintf("peerState(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON.
func (s PeerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Sender is the outbound half of a transport endpoint.
type Sender interface {
	Send(peerID string, data []byte) error
	SendUnreliable(peerID string, data []byte) error
}

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	// ResyncAfterFailures is the number of consecutive apply failures from
	// one peer after which a fresh snapshot is exchanged.
	ResyncAfterFailures int
	// Now is the clock used for frame bookkeeping.
	Now func() time.Time
	// MaxFrameBytes bounds each telemetry datagram. Larger frames are split.
	MaxFrameBytes int
}

// PeerStatus is a point-in-time view of one peer.
type PeerStatus struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr,omitempty"`
	State    PeerState `json:"state"`
	Failures int       `json:"consecutive_failures"`
}

type peerInfo struct {
	addr     string
	state    PeerState
	failures int
}

// Manager replicates one Hierarchy over one transport endpoint.
type Manager struct {
	h      *scene.Hierarchy
	tx     Sender
	role   Role
	opts   Options
	logger *slog.Logger

	peers map[string]*peerInfo

	// source is the peer whose message is being applied; events raised
	// during the apply are not sent back to it.
	source   string
	applying bool

	lastFrame   map[string]time.Time
	unsubscribe func()
}

// New creates a Manager and subscribes it to h's events.
func New(h *scene.Hierarchy, tx Sender, role Role, opts Options, logger *slog.Logger) *Manager {
	if opts.ResyncAfterFailures <= 0 {
		opts.ResyncAfterFailures = defaultResyncAfterFailures
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = transport.MaxDatagram
	}
	m := &Manager{
		h:         h,
		tx:        tx,
		role:      role,
		opts:      opts,
		logger:    logger.With("role", role.String()),
		peers:     make(map[string]*peerInfo),
		lastFrame: make(map[string]time.Time),
	}
	m.unsubscribe = h.Subscribe(m.onEvent)
	return m
}

// Close detaches the Manager from its hierarchy.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Role returns the side this Manager plays.
func (m *Manager) Role() Role { return m.role }

// HandleTransportEvent dispatches one transport event.
func (m *Manager) HandleTransportEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventOpen:
		m.PeerConnected(ev.Peer, ev.Addr)
	case transport.EventClose:
		m.PeerDisconnected(ev.Peer)
	case transport.EventError:
		m.logger.Warn("replication: transport error", "peer", ev.Peer, "addr", ev.Addr, "error", ev.Err)
	case transport.EventMessage, transport.EventBinaryMessage:
		if ev.Peer == "" {
			m.HandleDatagram(ev.Addr, ev.Data)
			return
		}
		m.HandleMessage(ev.Peer, ev.Data)
	}
}

// PeerConnecting records an outbound dial in progress.
func (m *Manager) PeerConnecting(id string) {
	m.peer(id).state = Connecting
}

// PeerConnected records an open connection. A slave immediately asks the
// new peer for a snapshot.
func (m *Manager) PeerConnected(id, addr string) {
	p := m.peer(id)
	p.addr = addr
	p.state = Connected
	p.failures = 0
	m.logger.Info("replication: peer connected", "peer", id, "addr", addr)
	if m.role == Slave {
		m.requestSnapshot(id)
	}
}

// PeerDisconnected forgets a peer.
func (m *Manager) PeerDisconnected(id string) {
	if _, ok := m.peers[id]; !ok {
		return
	}
	delete(m.peers, id)
	m.logger.Info("replication: peer disconnected", "peer", id)
}

// Peers reports every known peer, sorted by ID.
func (m *Manager) Peers() []PeerStatus {
	out := make([]PeerStatus, 0, len(m.peers))
	for id, p := range m.peers {
		out = append(out, PeerStatus{ID: id, Addr: p.addr, State: p.state, Failures: p.failures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns a peer's state, Disconnected for unknown peers.
func (m *Manager) State(id string) PeerState {
	if p, ok := m.peers[id]; ok {
		return p.state
	}
	return Disconnected
}

func (m *Manager) peer(id string) *peerInfo {
	p, ok := m.peers[id]
	if !ok {
		p = &peerInfo{state: Disconnected}
		m.peers[id] = p
	}
	return p
}

// HandleDatagram applies one payload received on the telemetry socket. Only
// frames are accepted there; structural changes travel on the reliable
// channel alone, so anything else is counted and dropped.
func (m *Manager) HandleDatagram(from string, data []byte) {
	metrics.Inc(metrics.MessagesReceived)
	msg, err := protocol.Decode(data)
	if err != nil {
		metrics.Inc(metrics.MessagesDropped)
		m.logger.Warn("replication: dropping malformed datagram", "from", from, "error", err)
		return
	}
	if msg.Type != protocol.TypeFrame {
		metrics.Inc(metrics.DatagramsRejected)
		m.logger.Warn("replication: dropping non-frame datagram",
			"from", from, "role", msg.Role, "type", msg.Type)
		return
	}
	if err := m.applyFrameMessage(msg); err != nil {
		metrics.Inc(metrics.MessagesDropped)
		m.logger.Warn("replication: dropping frame", "from", from, "error", err)
	}
}

// HandleMessage decodes and applies one inbound payload from a reliable
// peer. An empty peer is treated as a datagram. Malformed payloads and apply
// failures are logged and dropped.
func (m *Manager) HandleMessage(peer string, data []byte) {
	if peer == "" {
		m.HandleDatagram("", data)
		return
	}
	metrics.Inc(metrics.MessagesReceived)
	msg, err := protocol.Decode(data)
	if err != nil {
		metrics.Inc(metrics.MessagesDropped)
		m.logger.Warn("replication: dropping malformed message", "peer", peer, "error", err)
		return
	}

	switch {
	case msg.IsSnapshotRequest():
		m.handleSnapshotRequest(peer)
	case msg.Role == protocol.RoleInit:
		m.handleSnapshot(peer, msg)
	case msg.Type == protocol.TypeFrame:
		if err := m.applyFrameMessage(msg); err != nil {
			metrics.Inc(metrics.MessagesDropped)
			m.logger.Warn("replication: dropping frame", "peer", peer, "error", err)
		}
	default:
		m.applyStructural(peer, msg)
	}
}

func (m *Manager) applyStructural(peer string, msg protocol.Message) {
	m.source, m.applying = peer, true
	err := Apply(m.h, msg)
	m.source, m.applying = "", false

	p, known := m.peers[peer]
	if err != nil {
		metrics.Inc(metrics.MessagesDropped)
		m.logger.Warn("replication: apply failed",
			"peer", peer, "role", msg.Role, "type", msg.Type, "id", msg.ID, "error", err)
		if !known {
			return
		}
		p.failures++
		if p.failures >= m.opts.ResyncAfterFailures {
			m.resync(peer)
		}
		return
	}
	metrics.Inc(metrics.MessagesApplied)
	if known {
		p.failures = 0
	}
}

// resync re-establishes a common baseline with peer after repeated failures.
func (m *Manager) resync(peer string) {
	metrics.Inc(metrics.Resyncs)
	m.logger.Info("replication: resyncing peer", "peer", peer)
	if p, ok := m.peers[peer]; ok {
		p.failures = 0
	}
	if m.role == Slave {
		m.requestSnapshot(peer)
		return
	}
	m.sendSnapshot(peer)
}

func (m *Manager) requestSnapshot(peer string) {
	if err := m.send(peer, protocol.SnapshotRequest()); err != nil {
		m.logger.Warn("replication: snapshot request failed", "peer", peer, "error", err)
	}
}

func (m *Manager) handleSnapshotRequest(peer string) {
	if m.role != Master {
		m.logger.Warn("replication: ignoring snapshot request", "peer", peer)
		return
	}
	m.sendSnapshot(peer)
}

// sendSnapshot sends the full tree and starts streaming to peer.
func (m *Manager) sendSnapshot(peer string) {
	msg, err := protocol.Snapshot(m.h.ToDocument())
	if err != nil {
		m.logger.Error("replication: encoding snapshot", "error", err)
		return
	}
	if err := m.send(peer, msg); err != nil {
		m.logger.Warn("replication: snapshot send failed", "peer", peer, "error", err)
		return
	}
	metrics.Inc(metrics.SnapshotsSent)
	p := m.peer(peer)
	p.state = Replicating
	p.failures = 0
}

func (m *Manager) handleSnapshot(peer string, msg protocol.Message) {
	if m.role != Slave {
		m.logger.Warn("replication: ignoring snapshot from peer", "peer", peer)
		return
	}
	doc, err := msg.Document()
	if err == nil {
		m.source, m.applying = peer, true
		err = m.h.FromDocument(doc)
		m.source, m.applying = "", false
	}
	if err != nil {
		metrics.Inc(metrics.MessagesDropped)
		m.logger.Error("replication: snapshot rejected", "peer", peer, "error", err)
		return
	}
	metrics.Inc(metrics.MessagesApplied)
	p := m.peer(peer)
	p.state = Replicating
	p.failures = 0
	m.lastFrame = make(map[string]time.Time)
	m.logger.Info("replication: snapshot applied", "peer", peer, "entities", len(m.h.EntityIDs()))
}

// onEvent forwards a local hierarchy event to every replicating peer except
// the one whose message caused it.
func (m *Manager) onEvent(ev scene.Event) {
	if ev.Type == scene.EventReset {
		if m.role == Master {
			for _, id := range m.replicatingPeers() {
				m.sendSnapshot(id)
			}
		}
		return
	}
	msg, ok, err := protocol.FromEvent(ev)
	if err != nil {
		m.logger.Error("replication: encoding event", "event", ev.Type, "id", ev.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error("replication: encoding event", "event", ev.Type, "id", ev.ID, "error", err)
		return
	}
	for _, id := range m.replicatingPeers() {
		if m.applying && id == m.source {
			continue
		}
		if err := m.tx.Send(id, data); err != nil {
			m.logger.Warn("replication: send failed", "peer", id, "error", err)
			continue
		}
		metrics.Inc(metrics.MessagesSent)
	}
}

func (m *Manager) replicatingPeers() []string {
	ids := make([]string, 0, len(m.peers))
	for id, p := range m.peers {
		if p.state == Replicating {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) send(peer string, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := m.tx.Send(peer, data); err != nil {
		return err
	}
	metrics.Inc(metrics.MessagesSent)
	return nil
}

// BroadcastFrame samples every active transform and sends the frame to each
// replicating peer over the unreliable channel. A frame larger than one
// datagram is split by entity; receivers apply each part independently.
func (m *Manager) BroadcastFrame() {
	peers := m.replicatingPeers()
	if len(peers) == 0 {
		return
	}
	datagrams, err := protocol.EncodeFrames(protocol.CaptureFrame(m.h), m.opts.MaxFrameBytes)
	if err != nil {
		m.logger.Error("replication: encoding frame", "error", err)
		return
	}
	for _, id := range peers {
		for _, data := range datagrams {
			if err := m.tx.SendUnreliable(id, data); err != nil {
				if errors.Is(err, transport.ErrNoTelemetry) {
					return
				}
				m.logger.Warn("replication: frame send failed", "peer", id, "bytes", len(data), "error", err)
				break
			}
			metrics.Inc(metrics.FramesSent)
		}
	}
}

func (m *Manager) applyFrameMessage(msg protocol.Message) error {
	f, err := msg.Frame()
	if err != nil {
		return err
	}
	m.ApplyFrame(f)
	return nil
}

// ApplyFrame sets the transform of every known entity named in f. Entries
// for unknown entities, or entities without a transform, are skipped.
func (m *Manager) ApplyFrame(f protocol.Frame) {
	now := m.opts.Now()
	for id, entry := range f {
		pos, heading := protocol.Sample(entry)
		if err := m.h.SetTransform(id, pos, heading); err != nil {
			continue
		}
		m.lastFrame[id] = now
		metrics.Inc(metrics.FramesApplied)
	}
}

// StaleEntities returns the IDs of entities whose last frame is older than
// maxAge, sorted. Entities that never received a frame are not reported.
// Stale entities are never removed; telemetry does not imply structure.
func (m *Manager) StaleEntities(maxAge time.Duration) []string {
	now := m.opts.Now()
	var out []string
	for id, at := range m.lastFrame {
		if _, ok := m.h.Entity(id); !ok {
			delete(m.lastFrame, id)
			continue
		}
		if now.Sub(at) > maxAge {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
