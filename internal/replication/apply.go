package replication

import (
	"fmt"

	"github.com/Abhio2i/TDF-sub001/internal/protocol"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// Apply performs one structural message on h, preserving the IDs chosen by
// the sender. Snapshot and frame messages are handled by the Manager.
func Apply(h *scene.Hierarchy, msg protocol.Message) error {
	switch msg.Role {
	case protocol.RoleAdd:
		return applyAdd(h, msg)
	case protocol.RoleRemove:
		return applyRemove(h, msg)
	case protocol.RoleRename:
		return applyRename(h, msg)
	case protocol.RoleUpdate:
		return applyUpdate(h, msg)
	}
	return unsupported(msg)
}

func applyAdd(h *scene.Hierarchy, msg protocol.Message) error {
	id := scene.WithID(msg.ID)
	var err error
	switch msg.Type {
	case protocol.TypeProfile:
		_, err = h.AddProfileCategory(msg.Name, id)
	case protocol.TypeFolder:
		_, err = h.AddFolder(msg.ParentID, msg.Name, msg.Profile, id)
	case protocol.TypeEntity:
		_, err = h.AddEntity(msg.ParentID, msg.Name, msg.Profile, id)
	case protocol.TypeEntityJSON:
		var doc scene.Document
		if doc, err = msg.Document(); err != nil {
			return err
		}
		_, err = h.AddEntityFromDocument(msg.ParentID, doc, msg.Profile, id)
	case protocol.TypeComponent, protocol.TypeMesh, protocol.TypePhysics:
		err = h.AddComponent(msg.ID, msg.Name)
	default:
		return unsupported(msg)
	}
	return err
}

func applyRemove(h *scene.Hierarchy, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeProfile:
		return h.RemoveProfileCategory(msg.ID)
	case protocol.TypeFolder:
		return h.RemoveFolder(msg.ID)
	case protocol.TypeEntity:
		return h.RemoveEntity(msg.ID)
	case protocol.TypeComponent, protocol.TypeMesh, protocol.TypePhysics:
		return h.RemoveComponent(msg.ID, msg.Name)
	}
	return unsupported(msg)
}

func applyRename(h *scene.Hierarchy, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeProfile:
		return h.RenameProfileCategory(msg.ID, msg.NewName)
	case protocol.TypeFolder:
		return h.RenameFolder(msg.ID, msg.NewName)
	case protocol.TypeEntity:
		return h.RenameEntity(msg.ID, msg.NewName)
	}
	return unsupported(msg)
}

func applyUpdate(h *scene.Hierarchy, msg protocol.Message) error {
	doc, err := msg.Document()
	if err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeEntity:
		active, ok := doc["active"].(bool)
		if !ok {
			return fmt.Errorf("%w: entity update without active flag", protocol.ErrMalformedMessage)
		}
		return h.SetActive(msg.ID, active)
	case protocol.TypeComponent, protocol.TypeMesh, protocol.TypePhysics:
		return h.UpdateComponent(msg.ID, msg.Name, doc)
	}
	return unsupported(msg)
}

func unsupported(msg protocol.Message) error {
	return fmt.Errorf("%w: cannot apply %s/%s", protocol.ErrMalformedMessage, msg.Role, msg.Type)
}
