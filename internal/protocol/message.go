// Package protocol defines the JSON wire messages exchanged between master
// and slave processes, and their mapping from hierarchy events.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// ErrMalformedMessage is returned by Decode for undecodable or incomplete payloads.
var ErrMalformedMessage = errors.New("malformed message")

// Role is the operation a message performs.
type Role string

const (
	RoleAdd    Role = "add"
	RoleRemove Role = "remove"
	RoleRename Role = "rename"
	RoleUpdate Role = "update"
	RoleInit   Role = "init"
)

// Type is the kind of node or payload a message targets.
type Type string

const (
	TypeProfile    Type = "profile"
	TypeFolder     Type = "folder"
	TypeEntity     Type = "entity"
	TypeEntityJSON Type = "entityJson"
	TypeComponent  Type = "component"
	TypeMesh       Type = "mesh"
	TypePhysics    Type = "physics"
	TypeFrame      Type = "frame"
	TypeData       Type = "data"
)

// Message is one wire message. Delta stays raw until the receiver knows
// whether it holds a document or a frame.
type Message struct {
	Role     Role            `json:"role"`
	Type     Type            `json:"type,omitempty"`
	ID       string          `json:"id,omitempty"`
	ParentID string          `json:"parentID,omitempty"`
	Name     string          `json:"name,omitempty"`
	NewName  string          `json:"newName,omitempty"`
	Profile  bool            `json:"Profile,omitempty"`
	Delta    json.RawMessage `json:"delta,omitempty"`
}

// IsComponentType reports whether t addresses a component.
func (t Type) IsComponentType() bool {
	return t == TypeComponent || t == TypeMesh || t == TypePhysics
}

// IsSnapshotRequest reports whether m asks the authority for a full snapshot.
func (m Message) IsSnapshotRequest() bool {
	return m.Role == RoleInit && m.Type == ""
}

// Document decodes Delta as a JSON object.
func (m Message) Document() (scene.Document, error) {
	if len(m.Delta) == 0 {
		return nil, fmt.Errorf("%w: %s/%s has no delta", ErrMalformedMessage, m.Role, m.Type)
	}
	var doc scene.Document
	if err := json.Unmarshal(m.Delta, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s/%s delta: %v", ErrMalformedMessage, m.Role, m.Type, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s/%s delta is null", ErrMalformedMessage, m.Role, m.Type)
	}
	return doc, nil
}

// Frame decodes Delta as a telemetry frame.
func (m Message) Frame() (Frame, error) {
	var f Frame
	if err := json.Unmarshal(m.Delta, &f); err != nil {
		return nil, fmt.Errorf("%w: frame delta: %v", ErrMalformedMessage, err)
	}
	return f, nil
}

// Encode renders m as JSON.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s/%s message: %w", m.Role, m.Type, err)
	}
	return b, nil
}

// Decode parses and validates a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks that the role/type combination is known and that the
// fields it needs are present.
func (m Message) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s/%s requires %s", ErrMalformedMessage, m.Role, m.Type, field)
	}

	switch m.Role {
	case RoleInit:
		switch m.Type {
		case "":
			return nil
		case TypeData:
			if len(m.Delta) == 0 {
				return missing("delta")
			}
			return nil
		}
	case RoleAdd:
		switch m.Type {
		case TypeProfile:
			if m.ID == "" {
				return missing("id")
			}
			return nil
		case TypeFolder, TypeEntity, TypeEntityJSON:
			if m.ID == "" {
				return missing("id")
			}
			if m.ParentID == "" {
				return missing("parentID")
			}
			if m.Type == TypeEntityJSON && len(m.Delta) == 0 {
				return missing("delta")
			}
			return nil
		case TypeComponent, TypeMesh, TypePhysics:
			return requireIDName(m, missing)
		}
	case RoleRemove:
		switch m.Type {
		case TypeProfile, TypeFolder, TypeEntity:
			if m.ID == "" {
				return missing("id")
			}
			return nil
		case TypeComponent, TypeMesh, TypePhysics:
			return requireIDName(m, missing)
		}
	case RoleRename:
		switch m.Type {
		case TypeProfile, TypeFolder, TypeEntity:
			if m.ID == "" {
				return missing("id")
			}
			if m.NewName == "" {
				return missing("newName")
			}
			return nil
		}
	case RoleUpdate:
		switch m.Type {
		case TypeEntity:
			if m.ID == "" {
				return missing("id")
			}
			if len(m.Delta) == 0 {
				return missing("delta")
			}
			return nil
		case TypeComponent, TypeMesh, TypePhysics:
			if err := requireIDName(m, missing); err != nil {
				return err
			}
			if len(m.Delta) == 0 {
				return missing("delta")
			}
			return nil
		case TypeFrame:
			if len(m.Delta) == 0 {
				return missing("delta")
			}
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, m.Role)
	}
	return fmt.Errorf("%w: unsupported type %q for role %q", ErrMalformedMessage, m.Type, m.Role)
}

func requireIDName(m Message, missing func(string) error) error {
	if m.ID == "" {
		return missing("id")
	}
	if m.Name == "" {
		return missing("name")
	}
	return nil
}
