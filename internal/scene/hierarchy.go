package scene

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Hierarchy is the aggregate root of one scene graph. It owns every
// ProfileCategory and keeps flattened indices of all folders and entities.
//
// Hierarchy has no internal locking: every call must come from the single
// mutation thread (see engine.Loop).
type Hierarchy struct {
	profiles map[string]*ProfileCategory
	folders  map[string]*Folder
	entities map[string]*Entity

	newID   func() string
	subs    []subscription
	nextSub int
}

// Option configures a Hierarchy.
type Option func(*Hierarchy)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(h *Hierarchy) {
		if fn != nil {
			h.newID = fn
		}
	}
}

// New creates an empty Hierarchy.
func New(opts ...Option) *Hierarchy {
	h := &Hierarchy{
		profiles: make(map[string]*ProfileCategory),
		folders:  make(map[string]*Folder),
		entities: make(map[string]*Entity),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddOption customizes a single add operation.
type AddOption func(*addOptions)

type addOptions struct {
	id   string
	kind Kind
}

// WithID keeps an existing ID instead of generating one. Replication uses it
// to preserve the authority's IDs.
func WithID(id string) AddOption {
	return func(o *addOptions) { o.id = id }
}

// WithKind selects the entity kind for AddEntity.
func WithKind(k Kind) AddOption {
	return func(o *addOptions) { o.kind = k }
}

func collectAddOptions(opts []AddOption) addOptions {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (h *Hierarchy) inUse(id string) bool {
	if _, ok := h.profiles[id]; ok {
		return true
	}
	if _, ok := h.folders[id]; ok {
		return true
	}
	_, ok := h.entities[id]
	return ok
}

func (h *Hierarchy) allocID(requested string) (string, error) {
	if requested != "" {
		if h.inUse(requested) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateID, requested)
		}
		return requested, nil
	}
	for {
		id := h.newID()
		if !h.inUse(id) {
			return id, nil
		}
	}
}

// parent resolves a container ID. isProfile selects which index is searched.
func (h *Hierarchy) parent(parentID string, isProfile bool) (*container, error) {
	if isProfile {
		if p, ok := h.profiles[parentID]; ok {
			return &p.container, nil
		}
		return nil, fmt.Errorf("%w: profile category %s", ErrNotFound, parentID)
	}
	if f, ok := h.folders[parentID]; ok {
		return &f.container, nil
	}
	return nil, fmt.Errorf("%w: folder %s", ErrNotFound, parentID)
}

func (h *Hierarchy) isProfile(id string) bool {
	_, ok := h.profiles[id]
	return ok
}

// rootProfile walks up from a container to its ProfileCategory.
func (h *Hierarchy) rootProfile(containerID string) (*ProfileCategory, bool) {
	for seen := 0; seen <= len(h.folders); seen++ {
		if p, ok := h.profiles[containerID]; ok {
			return p, true
		}
		f, ok := h.folders[containerID]
		if !ok {
			return nil, false
		}
		containerID = f.parentID
	}
	return nil, false
}

// AddProfileCategory creates a root container.
func (h *Hierarchy) AddProfileCategory(name string, opts ...AddOption) (*ProfileCategory, error) {
	o := collectAddOptions(opts)
	id, err := h.allocID(o.id)
	if err != nil {
		return nil, err
	}
	p := &ProfileCategory{container: newContainer(id, name, "", h)}
	h.profiles[id] = p
	h.emit(Event{Type: EventProfileAdded, ID: id, Name: name})
	return p, nil
}

// AddFolder creates a folder under a ProfileCategory (isProfileParent) or another Folder.
func (h *Hierarchy) AddFolder(parentID, name string, isProfileParent bool, opts ...AddOption) (*Folder, error) {
	parent, err := h.parent(parentID, isProfileParent)
	if err != nil {
		return nil, err
	}
	o := collectAddOptions(opts)
	id, err := h.allocID(o.id)
	if err != nil {
		return nil, err
	}
	f := &Folder{container: newContainer(id, name, parentID, h)}
	h.folders[id] = f
	parent.folders[id] = struct{}{}
	h.emit(Event{Type: EventFolderAdded, ID: id, ParentID: parentID, Profile: isProfileParent, Name: name})
	return f, nil
}

// AddEntity creates an empty entity. Without WithKind the kind follows the
// root ProfileCategory's name when it names a kind, else Platform.
func (h *Hierarchy) AddEntity(parentID, name string, isProfileParent bool, opts ...AddOption) (*Entity, error) {
	parent, err := h.parent(parentID, isProfileParent)
	if err != nil {
		return nil, err
	}
	o := collectAddOptions(opts)
	kind := o.kind
	if kind == "" {
		kind = h.defaultKind(parentID)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidDocument, kind)
	}
	id, err := h.allocID(o.id)
	if err != nil {
		return nil, err
	}
	e := newEntity(id, name, parentID, kind, h)
	h.insertEntity(parent, e, isProfileParent)
	return e, nil
}

// AddEntityFromDocument reconstructs an entity and its components from doc
// under the given parent. The entity receives a new ID unless WithID is given.
func (h *Hierarchy) AddEntityFromDocument(parentID string, doc Document, isProfileParent bool, opts ...AddOption) (*Entity, error) {
	parent, err := h.parent(parentID, isProfileParent)
	if err != nil {
		return nil, err
	}
	o := collectAddOptions(opts)
	id, err := h.allocID(o.id)
	if err != nil {
		return nil, err
	}
	e, err := entityFromDocument(id, parentID, doc, h)
	if err != nil {
		return nil, err
	}
	h.insertEntity(parent, e, isProfileParent)
	return e, nil
}

func (h *Hierarchy) insertEntity(parent *container, e *Entity, isProfileParent bool) {
	h.entities[e.id] = e
	parent.entities[e.id] = struct{}{}
	h.emit(Event{
		Type:     EventEntityAdded,
		ID:       e.id,
		ParentID: e.parentID,
		Profile:  isProfileParent,
		Name:     e.name,
		Document: e.ToDocument(),
	})
}

func (h *Hierarchy) defaultKind(parentID string) Kind {
	if p, ok := h.rootProfile(parentID); ok {
		if k, ok := ParseKind(p.name); ok {
			return k
		}
	}
	return KindPlatform
}

// RemoveProfileCategory destroys a profile and everything under it.
func (h *Hierarchy) RemoveProfileCategory(id string) error {
	p, ok := h.profiles[id]
	if !ok {
		return fmt.Errorf("%w: profile category %s", ErrNotFound, id)
	}
	h.destroyChildren(&p.container)
	delete(h.profiles, id)
	p.owner = nil
	h.emit(Event{Type: EventProfileRemoved, ID: id, Name: p.name})
	return nil
}

// RemoveFolder destroys a folder and everything under it.
func (h *Hierarchy) RemoveFolder(id string) error {
	f, ok := h.folders[id]
	if !ok {
		return fmt.Errorf("%w: folder %s", ErrNotFound, id)
	}
	profile := h.isProfile(f.parentID)
	h.destroyFolder(f)
	h.emit(Event{Type: EventFolderRemoved, ID: id, ParentID: f.parentID, Profile: profile, Name: f.name})
	return nil
}

// RemoveEntity destroys an entity and all its components.
func (h *Hierarchy) RemoveEntity(id string) error {
	e, ok := h.entities[id]
	if !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	profile := h.isProfile(e.parentID)
	h.destroyEntity(e)
	h.emit(Event{Type: EventEntityRemoved, ID: id, ParentID: e.parentID, Profile: profile, Name: e.name})
	return nil
}

func (h *Hierarchy) destroyChildren(c *container) {
	for fid := range c.folders {
		if f, ok := h.folders[fid]; ok {
			h.destroyFolder(f)
		}
	}
	for eid := range c.entities {
		if e, ok := h.entities[eid]; ok {
			h.destroyEntity(e)
		}
	}
}

func (h *Hierarchy) destroyFolder(f *Folder) {
	h.destroyChildren(&f.container)
	if parent := h.containerByID(f.parentID); parent != nil {
		delete(parent.folders, f.id)
	}
	delete(h.folders, f.id)
	f.owner = nil
}

func (h *Hierarchy) destroyEntity(e *Entity) {
	if parent := h.containerByID(e.parentID); parent != nil {
		delete(parent.entities, e.id)
	}
	delete(h.entities, e.id)
	e.components = make(map[string]Component)
	e.owner = nil
}

func (h *Hierarchy) containerByID(id string) *container {
	if p, ok := h.profiles[id]; ok {
		return &p.container
	}
	if f, ok := h.folders[id]; ok {
		return &f.container
	}
	return nil
}

// RenameProfileCategory changes a profile's name. Names must not be empty.
func (h *Hierarchy) RenameProfileCategory(id, name string) error {
	p, ok := h.profiles[id]
	if !ok {
		return fmt.Errorf("%w: profile category %s", ErrNotFound, id)
	}
	if name == "" {
		return fmt.Errorf("%w: profile category %s", ErrEmptyName, id)
	}
	old := p.name
	p.name = name
	h.emit(Event{Type: EventProfileRenamed, ID: id, Name: name, OldName: old})
	return nil
}

// RenameFolder changes a folder's name.
func (h *Hierarchy) RenameFolder(id, name string) error {
	f, ok := h.folders[id]
	if !ok {
		return fmt.Errorf("%w: folder %s", ErrNotFound, id)
	}
	if name == "" {
		return fmt.Errorf("%w: folder %s", ErrEmptyName, id)
	}
	old := f.name
	f.name = name
	h.emit(Event{Type: EventFolderRenamed, ID: id, ParentID: f.parentID, Profile: h.isProfile(f.parentID), Name: name, OldName: old})
	return nil
}

// RenameEntity changes an entity's name.
func (h *Hierarchy) RenameEntity(id, name string) error {
	e, ok := h.entities[id]
	if !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	if name == "" {
		return fmt.Errorf("%w: entity %s", ErrEmptyName, id)
	}
	old := e.name
	e.name = name
	h.emit(Event{Type: EventEntityRenamed, ID: id, ParentID: e.parentID, Profile: h.isProfile(e.parentID), Name: name, OldName: old})
	return nil
}

// SetActive toggles whether the simulation advances an entity.
func (h *Hierarchy) SetActive(id string, active bool) error {
	e, ok := h.entities[id]
	if !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	e.active = active
	h.emit(Event{Type: EventEntityUpdated, ID: id, ParentID: e.parentID, Name: e.name, Document: Document{"active": active}})
	return nil
}

func (h *Hierarchy) entity(id string) (*Entity, error) {
	e, ok := h.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return e, nil
}

// AddComponent attaches a component (and its prerequisites) to an entity.
func (h *Hierarchy) AddComponent(entityID, name string) error {
	e, err := h.entity(entityID)
	if err != nil {
		return err
	}
	return e.AddComponent(name)
}

// ComponentData returns the document of an entity's component.
func (h *Hierarchy) ComponentData(entityID, name string) (Document, error) {
	e, err := h.entity(entityID)
	if err != nil {
		return nil, err
	}
	return e.ComponentData(name)
}

// UpdateComponent merge-patches an entity's component with delta.
func (h *Hierarchy) UpdateComponent(entityID, name string, delta Document) error {
	e, err := h.entity(entityID)
	if err != nil {
		return err
	}
	return e.UpdateComponent(name, delta)
}

// RemoveComponent detaches a component and its dependents from an entity.
func (h *Hierarchy) RemoveComponent(entityID, name string) error {
	e, err := h.entity(entityID)
	if err != nil {
		return err
	}
	return e.RemoveComponent(name)
}

// SetTransform applies a telemetry sample. It emits no structural event.
func (h *Hierarchy) SetTransform(entityID string, position Vector3, heading float64) error {
	e, err := h.entity(entityID)
	if err != nil {
		return err
	}
	t, ok := e.Transform()
	if !ok {
		return fmt.Errorf("%w: entity %s has no %s", ErrComponentNotFound, entityID, ComponentTransform)
	}
	t.Position = position
	t.Rotation.Z = heading
	return nil
}

// ProfileCategory looks up a profile by ID.
func (h *Hierarchy) ProfileCategory(id string) (*ProfileCategory, bool) {
	p, ok := h.profiles[id]
	return p, ok
}

// Folder looks up a folder by ID.
func (h *Hierarchy) Folder(id string) (*Folder, bool) {
	f, ok := h.folders[id]
	return f, ok
}

// Entity looks up an entity by ID.
func (h *Hierarchy) Entity(id string) (*Entity, bool) {
	e, ok := h.entities[id]
	return e, ok
}

// ProfileIDs returns every profile ID, sorted.
func (h *Hierarchy) ProfileIDs() []string { return sortedIDs(h.profiles) }

// FolderIDs returns every indexed folder ID, sorted.
func (h *Hierarchy) FolderIDs() []string { return sortedIDs(h.folders) }

// EntityIDs returns every indexed entity ID, sorted.
func (h *Hierarchy) EntityIDs() []string { return sortedIDs(h.entities) }

// Entities returns every indexed entity ordered by ID.
func (h *Hierarchy) Entities() []*Entity {
	ids := h.EntityIDs()
	out := make([]*Entity, len(ids))
	for i, id := range ids {
		out[i] = h.entities[id]
	}
	return out
}

// Walk visits every node reachable from the profiles, depth first, parents
// before children. Returning false from fn stops the walk.
func (h *Hierarchy) Walk(fn func(Node) bool) {
	for _, id := range h.ProfileIDs() {
		p := h.profiles[id]
		if !fn(p) || !h.walkContainer(&p.container, fn) {
			return
		}
	}
}

func (h *Hierarchy) walkContainer(c *container, fn func(Node) bool) bool {
	for _, fid := range c.FolderIDs() {
		f, ok := h.folders[fid]
		if !ok {
			continue
		}
		if !fn(f) || !h.walkContainer(&f.container, fn) {
			return false
		}
	}
	for _, eid := range c.EntityIDs() {
		e, ok := h.entities[eid]
		if !ok {
			continue
		}
		if !fn(e) {
			return false
		}
	}
	return true
}

func sortedIDs[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
