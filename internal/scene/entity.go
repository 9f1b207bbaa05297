package scene

import (
	"fmt"
)

const (
	branchProfile = "profile"
	branchFolder  = "folder"
	branchEntity  = "entity"
)

// Entity is a simulated object with identity and a dynamic component set.
type Entity struct {
	id         string
	name       string
	parentID   string
	active     bool
	kind       Kind
	components map[string]Component
	owner      *Hierarchy
}

func newEntity(id, name, parentID string, kind Kind, owner *Hierarchy) *Entity {
	return &Entity{
		id:         id,
		name:       name,
		parentID:   parentID,
		active:     true,
		kind:       kind,
		components: make(map[string]Component),
		owner:      owner,
	}
}

func (e *Entity) ID() string       { return e.id }
func (e *Entity) Name() string     { return e.name }
func (e *Entity) ParentID() string { return e.parentID }
func (e *Entity) Active() bool     { return e.active }
func (e *Entity) Kind() Kind       { return e.kind }

func (e *Entity) ownerHierarchy() *Hierarchy { return e.owner }

// Component returns the named component if present.
func (e *Entity) Component(name string) (Component, bool) {
	c, ok := e.components[name]
	return c, ok
}

// Has reports whether the entity carries the named component.
func (e *Entity) Has(name string) bool {
	_, ok := e.components[name]
	return ok
}

// Components returns the names of the present components in canonical order.
func (e *Entity) Components() []string {
	var out []string
	for _, name := range componentOrder {
		if e.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Transform returns the entity's transform if present.
func (e *Entity) Transform() (*Transform, bool) {
	t, ok := e.components[ComponentTransform].(*Transform)
	return t, ok
}

// Rigidbody returns the entity's rigidbody if present.
func (e *Entity) Rigidbody() (*Rigidbody, bool) {
	r, ok := e.components[ComponentRigidbody].(*Rigidbody)
	return r, ok
}

// Trajectory returns the entity's trajectory if present.
func (e *Entity) Trajectory() (*Trajectory, bool) {
	t, ok := e.components[ComponentTrajectory].(*Trajectory)
	return t, ok
}

// AddComponent attaches the named component, first ensuring its
// prerequisites. Adding a component that is already present is a no-op and
// emits nothing.
func (e *Entity) AddComponent(name string) error {
	if !IsComponent(name) {
		return fmt.Errorf("%w: unknown component %q", ErrUnsupportedComponent, name)
	}
	if e.Has(name) {
		return nil
	}
	if !e.kind.Supports(name) {
		return fmt.Errorf("%w: %s cannot carry %s", ErrUnsupportedComponent, e.kind, name)
	}
	e.ensureComponent(name)
	e.emit(Event{Type: EventComponentAdded, ID: e.id, ParentID: e.parentID, Component: name})
	return nil
}

// ensureComponent adds name and, recursively, everything it requires.
func (e *Entity) ensureComponent(name string) {
	if e.Has(name) {
		return
	}
	for _, p := range prerequisites[name] {
		e.ensureComponent(p)
	}
	c, err := NewComponent(name)
	if err != nil {
		return
	}
	e.components[name] = c
}

// RemoveComponent detaches the named component and every present component
// that requires it.
func (e *Entity) RemoveComponent(name string) error {
	if !e.Has(name) {
		return fmt.Errorf("%w: entity %s has no %s", ErrComponentNotFound, e.id, name)
	}
	e.detachComponent(name)
	e.emit(Event{Type: EventComponentRemoved, ID: e.id, ParentID: e.parentID, Component: name})
	return nil
}

func (e *Entity) detachComponent(name string) {
	for _, other := range componentOrder {
		if e.Has(other) && requires(other, name) {
			delete(e.components, other)
		}
	}
	delete(e.components, name)
}

// UpdateComponent merges delta into the named component. The update is
// atomic: a delta that fails to decode leaves the component unchanged.
func (e *Entity) UpdateComponent(name string, delta Document) error {
	c, ok := e.components[name]
	if !ok {
		return fmt.Errorf("%w: entity %s has no %s", ErrComponentNotFound, e.id, name)
	}
	next, err := cloneComponent(c)
	if err != nil {
		return err
	}
	if err := next.FromDocument(delta); err != nil {
		return err
	}
	e.components[name] = next
	e.emit(Event{Type: EventComponentUpdated, ID: e.id, ParentID: e.parentID, Component: name, Document: cloneDocument(delta)})
	return nil
}

// ComponentData returns the named component's document.
func (e *Entity) ComponentData(name string) (Document, error) {
	c, ok := e.components[name]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s has no %s", ErrComponentNotFound, e.id, name)
	}
	return c.ToDocument(), nil
}

// ToDocument serializes the entity and its components.
func (e *Entity) ToDocument() Document {
	doc := Document{
		"name":      e.name,
		"branch":    branchEntity,
		"id":        e.id,
		"parent_id": e.parentID,
		"active":    e.active,
		"kind": Document{
			"type":    "option",
			"options": kindOptions(),
			"value":   string(e.kind),
		},
	}
	for name, c := range e.components {
		doc[name] = c.ToDocument()
	}
	return doc
}

func (e *Entity) emit(ev Event) {
	if e.owner != nil {
		e.owner.emit(ev)
	}
}

// entityFromDocument decodes an entity. id and parentID come from the caller
// since the document's own values may be stale or reassigned.
func entityFromDocument(id, parentID string, doc Document, owner *Hierarchy) (*Entity, error) {
	name, _ := doc["name"].(string)
	kind := KindPlatform
	if raw, ok := doc["kind"]; ok {
		k, err := parseKindValue(raw)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	e := newEntity(id, name, parentID, kind, owner)
	if active, ok := doc["active"].(bool); ok {
		e.active = active
	}

	for _, cname := range componentOrder {
		raw, ok := doc[cname]
		if !ok {
			continue
		}
		cdoc, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: entity %s: component %s is not an object", ErrInvalidDocument, id, cname)
		}
		if !kind.Supports(cname) {
			return nil, fmt.Errorf("%w: %s cannot carry %s", ErrUnsupportedComponent, kind, cname)
		}
		c, err := ComponentFromDocument(cname, cdoc)
		if err != nil {
			return nil, err
		}
		e.components[cname] = c
	}

	for cname := range e.components {
		for _, p := range prerequisites[cname] {
			if !e.Has(p) {
				return nil, fmt.Errorf("%w: entity %s: %s requires %s", ErrPrerequisiteMissing, id, cname, p)
			}
		}
	}
	return e, nil
}

// parseKindValue accepts either the inspector option object or a bare kind name.
func parseKindValue(raw any) (Kind, error) {
	var name string
	switch v := raw.(type) {
	case string:
		name = v
	case map[string]any:
		name, _ = v["value"].(string)
	}
	k, ok := ParseKind(name)
	if !ok {
		return "", fmt.Errorf("%w: unknown entity kind %v", ErrInvalidDocument, raw)
	}
	return k, nil
}

// cloneDocument deep-copies the JSON-shaped parts of doc.
func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
