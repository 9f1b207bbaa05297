package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// SnapshotRequest asks the authority for a full-tree init message.
func SnapshotRequest() Message {
	return Message{Role: RoleInit}
}

// Snapshot wraps a full hierarchy document as an init/data message.
func Snapshot(doc scene.Document) (Message, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return Message{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	return Message{Role: RoleInit, Type: TypeData, Delta: b}, nil
}

// ComponentType returns the wire type used for a component: renderer
// components travel as mesh, physics components as physics.
func ComponentType(name string) Type {
	switch name {
	case scene.ComponentMeshRenderer2D:
		return TypeMesh
	case scene.ComponentRigidbody, scene.ComponentCollider, scene.ComponentDynamicModel:
		return TypePhysics
	default:
		return TypeComponent
	}
}

// FromEvent translates a hierarchy event into its structural wire message.
// The boolean is false for events that do not replicate as a discrete message
// (EventReset travels as a snapshot instead).
func FromEvent(ev scene.Event) (Message, bool, error) {
	m := Message{ID: ev.ID, ParentID: ev.ParentID, Profile: ev.Profile}

	switch ev.Type {
	case scene.EventProfileAdded:
		m.Role, m.Type, m.Name = RoleAdd, TypeProfile, ev.Name
	case scene.EventFolderAdded:
		m.Role, m.Type, m.Name = RoleAdd, TypeFolder, ev.Name
	case scene.EventEntityAdded:
		m.Role, m.Type, m.Name = RoleAdd, TypeEntityJSON, ev.Name
	case scene.EventProfileRemoved:
		m.Role, m.Type = RoleRemove, TypeProfile
	case scene.EventFolderRemoved:
		m.Role, m.Type = RoleRemove, TypeFolder
	case scene.EventEntityRemoved:
		m.Role, m.Type = RoleRemove, TypeEntity
	case scene.EventProfileRenamed:
		m.Role, m.Type, m.Name, m.NewName = RoleRename, TypeProfile, ev.OldName, ev.Name
	case scene.EventFolderRenamed:
		m.Role, m.Type, m.Name, m.NewName = RoleRename, TypeFolder, ev.OldName, ev.Name
	case scene.EventEntityRenamed:
		m.Role, m.Type, m.Name, m.NewName = RoleRename, TypeEntity, ev.OldName, ev.Name
	case scene.EventEntityUpdated:
		m.Role, m.Type = RoleUpdate, TypeEntity
	case scene.EventComponentAdded:
		m.Role, m.Type, m.Name = RoleAdd, ComponentType(ev.Component), ev.Component
	case scene.EventComponentUpdated:
		m.Role, m.Type, m.Name = RoleUpdate, ComponentType(ev.Component), ev.Component
	case scene.EventComponentRemoved:
		m.Role, m.Type, m.Name = RoleRemove, ComponentType(ev.Component), ev.Component
	default:
		return Message{}, false, nil
	}

	if ev.Document != nil {
		b, err := json.Marshal(ev.Document)
		if err != nil {
			return Message{}, false, fmt.Errorf("encoding %s delta: %w", ev.Type, err)
		}
		m.Delta = b
	}
	return m, true, nil
}
