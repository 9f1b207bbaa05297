package protocol

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

const (
	// frameEnvelope bounds the bytes an update/frame message adds around
	// its delta object.
	frameEnvelope = 64
	// maxEntryValue bounds one encoded entry after its key: colon, brackets,
	// separators and four shortest-form float64s of at most 25 bytes each.
	maxEntryValue = 1 + 2 + 3 + 1 + 4*25
)

// Frame is a complete telemetry snapshot: entity ID to [x, y, z, headingDegrees].
type Frame map[string][4]float64

// CaptureFrame samples the transform of every active entity that has one.
func CaptureFrame(h *scene.Hierarchy) Frame {
	f := Frame{}
	for _, e := range h.Entities() {
		if !e.Active() {
			continue
		}
		t, ok := e.Transform()
		if !ok {
			continue
		}
		f[e.ID()] = [4]float64{t.Position.X, t.Position.Y, t.Position.Z, t.Heading()}
	}
	return f
}

// Sample splits a frame entry into position and heading.
func Sample(entry [4]float64) (scene.Vector3, float64) {
	return scene.Vector3{X: entry[0], Y: entry[1], Z: entry[2]}, entry[3]
}

// FrameMessage wraps f as an update/frame message.
func FrameMessage(f Frame) (Message, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: RoleUpdate, Type: TypeFrame, Delta: b}, nil
}

// EncodeFrames renders f as encoded update/frame messages of at most limit
// bytes each, splitting by entity in ID order. An empty frame yields one
// empty message. Every part is a valid frame on its own.
func EncodeFrames(f Frame, limit int) ([][]byte, error) {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out [][]byte
	part := Frame{}
	size := frameEnvelope
	flush := func() error {
		msg, err := FrameMessage(part)
		if err != nil {
			return err
		}
		b, err := Encode(msg)
		if err != nil {
			return err
		}
		if len(b) > limit {
			return fmt.Errorf("frame part of %d bytes exceeds %d", len(b), limit)
		}
		out = append(out, b)
		part = Frame{}
		size = frameEnvelope
		return nil
	}

	for _, id := range ids {
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		entry := len(key) + maxEntryValue
		if len(part) > 0 && size+entry > limit {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		part[id] = f[id]
		size += entry
	}
	if len(part) > 0 || len(out) == 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
