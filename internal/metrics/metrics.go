// Package metrics provides process-wide replication counters using stdlib
// expvar. Counters are exported on /debug/vars by the API server.
package metrics

import "expvar"

// Replication counters.
var (
	MessagesSent     = expvar.NewInt("tdf_messages_sent_total")
	MessagesReceived = expvar.NewInt("tdf_messages_received_total")
	MessagesApplied  = expvar.NewInt("tdf_messages_applied_total")
	MessagesDropped  = expvar.NewInt("tdf_messages_dropped_total")
	FramesSent       = expvar.NewInt("tdf_frames_sent_total")
	FramesApplied    = expvar.NewInt("tdf_frames_applied_total")
	SnapshotsSent    = expvar.NewInt("tdf_snapshots_sent_total")
	Resyncs          = expvar.NewInt("tdf_resyncs_total")
)

// DatagramsRejected counts non-frame messages arriving on the telemetry socket.
var DatagramsRejected = expvar.NewInt("tdf_datagrams_rejected_total")

// Engine counters.
var (
	Ticks         = expvar.NewInt("tdf_ticks_total")
	TasksRejected = expvar.NewInt("tdf_tasks_rejected_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Snapshot returns the current value of every counter, keyed by its
// exported name.
func Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, c := range []*expvar.Int{
		MessagesSent, MessagesReceived, MessagesApplied, MessagesDropped,
		FramesSent, FramesApplied, SnapshotsSent, Resyncs, DatagramsRejected,
		Ticks, TasksRejected,
	} {
		out[name(c)] = c.Value()
	}
	return out
}

func name(c *expvar.Int) string {
	var found string
	expvar.Do(func(kv expvar.KeyValue) {
		if kv.Value == c {
			found = kv.Key
		}
	})
	return found
}
