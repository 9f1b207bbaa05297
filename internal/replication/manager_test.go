package replication_test

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhio2i/TDF-sub001/internal/metrics"
	"github.com/Abhio2i/TDF-sub001/internal/protocol"
	"github.com/Abhio2i/TDF-sub001/internal/replication"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
	"github.com/Abhio2i/TDF-sub001/internal/transport"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingSender captures outbound payloads per peer.
type recordingSender struct {
	reliable   map[string][][]byte
	unreliable map[string][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{reliable: map[string][][]byte{}, unreliable: map[string][][]byte{}}
}

func (s *recordingSender) Send(peer string, data []byte) error {
	s.reliable[peer] = append(s.reliable[peer], data)
	return nil
}

func (s *recordingSender) SendUnreliable(peer string, data []byte) error {
	s.unreliable[peer] = append(s.unreliable[peer], data)
	return nil
}

// drain returns and clears everything sent to peer on the reliable channel.
func (s *recordingSender) drain(peer string) [][]byte {
	out := s.reliable[peer]
	delete(s.reliable, peer)
	return out
}

func decode(t *testing.T, data []byte) protocol.Message {
	t.Helper()
	m, err := protocol.Decode(data)
	require.NoError(t, err)
	return m
}

func encode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	b, err := protocol.Encode(m)
	require.NoError(t, err)
	return b
}

type node struct {
	h   *scene.Hierarchy
	tx  *recordingSender
	mgr *replication.Manager
}

func newNode(role replication.Role, opts replication.Options) *node {
	h := scene.New()
	tx := newRecordingSender()
	return &node{h: h, tx: tx, mgr: replication.New(h, tx, role, opts, newTestLogger())}
}

// pair connects a master and a slave through recording senders and performs
// the snapshot handshake. The slave sees the master as peer "m"; the master
// sees the slave as peer slaveID.
func pair(t *testing.T, master *node, slaveID string) *node {
	t.Helper()
	slave := newNode(replication.Slave, replication.Options{})
	master.mgr.PeerConnected(slaveID, "127.0.0.1")
	slave.mgr.PeerConnected("m", "127.0.0.1")

	req := slave.tx.drain("m")
	require.Len(t, req, 1)
	assert.True(t, decode(t, req[0]).IsSnapshotRequest())
	master.mgr.HandleMessage(slaveID, req[0])

	deliver(master, slaveID, slave)
	require.Equal(t, replication.Replicating, slave.mgr.State("m"))
	require.Equal(t, replication.Replicating, master.mgr.State(slaveID))
	return slave
}

// deliver moves everything master has queued for slaveID into slave.
func deliver(from *node, peer string, to *node) {
	for _, data := range from.tx.drain(peer) {
		to.mgr.HandleMessage("m", data)
	}
}

func TestReplication_Convergence(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	slave := pair(t, master, "s1")

	p, err := master.h.AddProfileCategory("Platform")
	require.NoError(t, err)
	e, err := master.h.AddEntity(p.ID(), "Jet1", true)
	require.NoError(t, err)
	require.NoError(t, master.h.AddComponent(e.ID(), scene.ComponentCollider))

	sent := master.tx.drain("s1")
	require.Len(t, sent, 3)
	for _, data := range sent {
		slave.mgr.HandleMessage("m", data)
	}

	assert.Equal(t, master.h.ToDocument(), slave.h.ToDocument())
	assert.Empty(t, slave.tx.reliable, "slave never echoes applied messages upstream")
}

func TestReplication_ConvergenceAcrossEveryOperation(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	p, _ := master.h.AddProfileCategory("Platform")
	preexisting, _ := master.h.AddEntity(p.ID(), "Tanker", true)
	require.NoError(t, master.h.AddComponent(preexisting.ID(), scene.ComponentTrajectory))

	slave := pair(t, master, "s1")
	assert.Equal(t, master.h.ToDocument(), slave.h.ToDocument(), "snapshot")

	f, _ := master.h.AddFolder(p.ID(), "Blue", true)
	sub, _ := master.h.AddFolder(f.ID(), "Wing", false)
	e, _ := master.h.AddEntity(sub.ID(), "Jet1", false)
	require.NoError(t, master.h.AddComponent(e.ID(), scene.ComponentDynamicModel))
	require.NoError(t, master.h.AddComponent(e.ID(), scene.ComponentMeshRenderer2D))
	require.NoError(t, master.h.UpdateComponent(e.ID(), scene.ComponentRigidbody, scene.Document{"mass": 9000.0}))
	require.NoError(t, master.h.RemoveComponent(e.ID(), scene.ComponentCollider))
	require.NoError(t, master.h.RenameFolder(sub.ID(), "Wing 2"))
	require.NoError(t, master.h.RenameEntity(e.ID(), "Jet7"))
	require.NoError(t, master.h.SetActive(e.ID(), false))
	require.NoError(t, master.h.RemoveEntity(preexisting.ID()))
	r, _ := master.h.AddProfileCategory("Radio")
	require.NoError(t, master.h.RenameProfileCategory(r.ID(), "Radios"))
	require.NoError(t, master.h.RemoveProfileCategory(r.ID()))

	deliver(master, "s1", slave)
	assert.Equal(t, master.h.ToDocument(), slave.h.ToDocument())
}

func TestReplication_SlaveEditsRelayToOtherSlaves(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	a := pair(t, master, "a")
	b := pair(t, master, "b")

	p, err := a.h.AddProfileCategory("Sensor")
	require.NoError(t, err)

	up := a.tx.drain("m")
	require.Len(t, up, 1)
	master.mgr.HandleMessage("a", up[0])

	assert.Empty(t, master.tx.drain("a"), "no echo to the source peer")
	relayed := master.tx.drain("b")
	require.Len(t, relayed, 1)
	b.mgr.HandleMessage("m", relayed[0])

	_, ok := master.h.ProfileCategory(p.ID())
	assert.True(t, ok)
	assert.Equal(t, a.h.ToDocument(), master.h.ToDocument())
	assert.Equal(t, a.h.ToDocument(), b.h.ToDocument())
}

func TestReplication_StructuralOnlyToReplicatingPeers(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	master.mgr.PeerConnected("pending", "127.0.0.1")

	_, err := master.h.AddProfileCategory("Platform")
	require.NoError(t, err)
	assert.Empty(t, master.tx.drain("pending"))
	assert.Equal(t, replication.Connected, master.mgr.State("pending"))
}

func TestReplication_MalformedAndFailedMessagesAreDropped(t *testing.T) {
	master := newNode(replication.Master, replication.Options{ResyncAfterFailures: 10})
	slave := pair(t, master, "s1")
	before := slave.h.ToDocument()

	slave.mgr.HandleMessage("m", []byte(`{"role":`))
	slave.mgr.HandleMessage("m", encode(t, protocol.Message{Role: protocol.RoleRemove, Type: protocol.TypeEntity, ID: "ghost"}))
	slave.mgr.HandleMessage("m", encode(t, protocol.Message{
		Role: protocol.RoleUpdate, Type: protocol.TypePhysics, ID: "ghost", Name: scene.ComponentRigidbody, Delta: []byte(`{}`),
	}))

	assert.Equal(t, before, slave.h.ToDocument())
	status := slave.mgr.Peers()
	require.Len(t, status, 1)
	assert.Equal(t, 2, status[0].Failures)
}

func TestReplication_SlaveResyncsAfterRepeatedFailures(t *testing.T) {
	slave := newNode(replication.Slave, replication.Options{ResyncAfterFailures: 2})
	slave.mgr.PeerConnected("m", "")
	slave.tx.drain("m")

	bad := encode(t, protocol.Message{Role: protocol.RoleRemove, Type: protocol.TypeFolder, ID: "missing"})
	slave.mgr.HandleMessage("m", bad)
	assert.Empty(t, slave.tx.drain("m"))
	slave.mgr.HandleMessage("m", bad)

	req := slave.tx.drain("m")
	require.Len(t, req, 1)
	assert.True(t, decode(t, req[0]).IsSnapshotRequest())
	assert.Equal(t, 0, slave.mgr.Peers()[0].Failures)
}

func TestReplication_MasterPushesSnapshotAfterRepeatedFailures(t *testing.T) {
	master := newNode(replication.Master, replication.Options{ResyncAfterFailures: 2})
	_ = pair(t, master, "s1")

	bad := encode(t, protocol.Message{Role: protocol.RoleRename, Type: protocol.TypeEntity, ID: "missing", NewName: "x"})
	master.mgr.HandleMessage("s1", bad)
	master.mgr.HandleMessage("s1", bad)

	out := master.tx.drain("s1")
	require.Len(t, out, 1)
	m := decode(t, out[0])
	assert.Equal(t, protocol.RoleInit, m.Role)
	assert.Equal(t, protocol.TypeData, m.Type)
}

func TestReplication_MasterResetPushesSnapshot(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	slave := pair(t, master, "s1")

	src := scene.New()
	p, _ := src.AddProfileCategory("Platform")
	_, _ = src.AddEntity(p.ID(), "Loaded", true)
	require.NoError(t, master.h.FromDocument(src.ToDocument()))

	deliver(master, "s1", slave)
	assert.Equal(t, master.h.ToDocument(), slave.h.ToDocument())
}

func TestReplication_FrameForUnknownEntityIsDropped(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	slave := pair(t, master, "s1")

	p, _ := master.h.AddProfileCategory("Platform")
	known, _ := master.h.AddEntity(p.ID(), "Known", true)
	require.NoError(t, master.h.AddComponent(known.ID(), scene.ComponentTransform))
	deliver(master, "s1", slave)

	frame := func(f protocol.Frame) []byte {
		m, err := protocol.FrameMessage(f)
		require.NoError(t, err)
		return encode(t, m)
	}

	slave.mgr.HandleMessage("", frame(protocol.Frame{
		"late":     {9, 9, 9, 9},
		known.ID(): {1, 2, 3, 90},
	}))
	tr, _ := slave.h.ComponentData(known.ID(), scene.ComponentTransform)
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0, "z": 3.0}, tr["position"])

	late, err := master.h.AddEntity(p.ID(), "Late", true, scene.WithID("late"))
	require.NoError(t, err)
	require.NoError(t, master.h.AddComponent(late.ID(), scene.ComponentTransform))
	deliver(master, "s1", slave)

	slave.mgr.HandleMessage("", frame(protocol.Frame{"late": {4, 5, 6, 180}}))
	e, ok := slave.h.Entity("late")
	require.True(t, ok)
	lt, _ := e.Transform()
	assert.Equal(t, scene.Vector3{X: 4, Y: 5, Z: 6}, lt.Position)
	assert.Equal(t, 180.0, lt.Heading())
	kt, _ := mustEntity(t, slave.h, known.ID()).Transform()
	assert.Equal(t, scene.Vector3{X: 1, Y: 2, Z: 3}, kt.Position, "other entities untouched")
}

func mustEntity(t *testing.T, h *scene.Hierarchy, id string) *scene.Entity {
	t.Helper()
	e, ok := h.Entity(id)
	require.True(t, ok)
	return e
}

func TestReplication_EmptyRenameKeepsReplicasConverged(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	slave := pair(t, master, "s1")

	p, _ := master.h.AddProfileCategory("Platform")
	e, _ := master.h.AddEntity(p.ID(), "Jet1", true)
	deliver(master, "s1", slave)

	assert.ErrorIs(t, master.h.RenameEntity(e.ID(), ""), scene.ErrEmptyName)
	assert.Empty(t, master.tx.drain("s1"), "a rejected rename is never sent")

	require.NoError(t, master.h.RenameEntity(e.ID(), "Lead"))
	deliver(master, "s1", slave)
	assert.Equal(t, master.h.ToDocument(), slave.h.ToDocument())
}

func TestReplication_DatagramsCarryOnlyFrames(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	_ = pair(t, master, "s1")
	before := metrics.DatagramsRejected.Value()

	injected := encode(t, protocol.Message{Role: protocol.RoleAdd, Type: protocol.TypeProfile, ID: "udp-injected", Name: "Spoofed"})
	master.mgr.HandleTransportEvent(transport.Event{Type: transport.EventBinaryMessage, Addr: "10.0.0.9:9999", Data: injected})
	master.mgr.HandleMessage("", injected)

	_, ok := master.h.ProfileCategory("udp-injected")
	assert.False(t, ok, "structure never arrives over telemetry")
	assert.Empty(t, master.tx.drain("s1"), "nothing is relayed to slaves")
	assert.Equal(t, before+2, metrics.DatagramsRejected.Value())

	p, _ := master.h.AddProfileCategory("Platform")
	e, _ := master.h.AddEntity(p.ID(), "Jet", true)
	require.NoError(t, master.h.AddComponent(e.ID(), scene.ComponentTransform))
	master.tx.drain("s1")

	m, err := protocol.FrameMessage(protocol.Frame{e.ID(): {7, 8, 9, 45}})
	require.NoError(t, err)
	master.mgr.HandleTransportEvent(transport.Event{Type: transport.EventBinaryMessage, Data: encode(t, m)})
	tr, _ := mustEntity(t, master.h, e.ID()).Transform()
	assert.Equal(t, scene.Vector3{X: 7, Y: 8, Z: 9}, tr.Position, "frames are still applied")
}

func TestReplication_BroadcastFrameSplitsLargeFrames(t *testing.T) {
	master := newNode(replication.Master, replication.Options{MaxFrameBytes: 1024})
	_ = pair(t, master, "s1")

	p, _ := master.h.AddProfileCategory("Platform")
	want := protocol.Frame{}
	for i := 0; i < 40; i++ {
		e, err := master.h.AddEntity(p.ID(), fmt.Sprintf("Jet%d", i), true)
		require.NoError(t, err)
		require.NoError(t, master.h.AddComponent(e.ID(), scene.ComponentTransform))
		require.NoError(t, master.h.SetTransform(e.ID(), scene.Vector3{X: float64(i)}, 90))
		want[e.ID()] = [4]float64{float64(i), 0, 0, 90}
	}

	master.mgr.BroadcastFrame()
	parts := master.tx.unreliable["s1"]
	require.Greater(t, len(parts), 1)

	got := protocol.Frame{}
	for _, data := range parts {
		assert.LessOrEqual(t, len(data), 1024)
		f, err := decode(t, data).Frame()
		require.NoError(t, err)
		for id, entry := range f {
			got[id] = entry
		}
	}
	assert.Equal(t, want, got)
}

func TestReplication_BroadcastFrame(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	_ = pair(t, master, "s1")
	master.mgr.PeerConnected("pending", "")

	p, _ := master.h.AddProfileCategory("Platform")
	e, _ := master.h.AddEntity(p.ID(), "Jet", true)
	require.NoError(t, master.h.AddComponent(e.ID(), scene.ComponentTransform))
	require.NoError(t, master.h.SetTransform(e.ID(), scene.Vector3{X: 5}, 270))

	master.mgr.BroadcastFrame()
	require.Len(t, master.tx.unreliable["s1"], 1)
	assert.Empty(t, master.tx.unreliable["pending"])

	m := decode(t, master.tx.unreliable["s1"][0])
	f, err := m.Frame()
	require.NoError(t, err)
	assert.Equal(t, [4]float64{5, 0, 0, 270}, f[e.ID()])
}

func TestReplication_StaleEntities(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	slave := newNode(replication.Slave, replication.Options{Now: clock})

	p, _ := slave.h.AddProfileCategory("Platform")
	a, _ := slave.h.AddEntity(p.ID(), "A", true)
	b, _ := slave.h.AddEntity(p.ID(), "B", true)
	silent, _ := slave.h.AddEntity(p.ID(), "Silent", true)
	for _, e := range []*scene.Entity{a, b, silent} {
		require.NoError(t, slave.h.AddComponent(e.ID(), scene.ComponentTransform))
	}

	slave.mgr.ApplyFrame(protocol.Frame{a.ID(): {}, b.ID(): {}})
	now = now.Add(5 * time.Second)
	slave.mgr.ApplyFrame(protocol.Frame{b.ID(): {}})
	now = now.Add(2 * time.Second)

	assert.Equal(t, []string{a.ID()}, slave.mgr.StaleEntities(3*time.Second))
	_, ok := slave.h.Entity(a.ID())
	assert.True(t, ok, "stale entities are reported, never removed")

	require.NoError(t, slave.h.RemoveEntity(a.ID()))
	assert.Empty(t, slave.mgr.StaleEntities(3*time.Second))
}

func TestReplication_TransportEvents(t *testing.T) {
	slave := newNode(replication.Slave, replication.Options{})
	slave.mgr.PeerConnecting("m")
	assert.Equal(t, replication.Connecting, slave.mgr.State("m"))

	slave.mgr.HandleTransportEvent(transport.Event{Type: transport.EventOpen, Peer: "m", Addr: "10.0.0.1:9000"})
	assert.Equal(t, replication.Connected, slave.mgr.State("m"))
	require.Len(t, slave.tx.drain("m"), 1)

	slave.mgr.HandleTransportEvent(transport.Event{Type: transport.EventClose, Peer: "m"})
	assert.Equal(t, replication.Disconnected, slave.mgr.State("m"))
	assert.Empty(t, slave.mgr.Peers())
}

func TestReplication_CloseStopsForwarding(t *testing.T) {
	master := newNode(replication.Master, replication.Options{})
	_ = pair(t, master, "s1")
	master.mgr.Close()

	_, err := master.h.AddProfileCategory("Platform")
	require.NoError(t, err)
	assert.Empty(t, master.tx.drain("s1"))
}
