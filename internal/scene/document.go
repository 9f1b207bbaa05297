package scene

import (
	"fmt"
)

const (
	profileCategoriesKey = "profileCategories"
	foldersKey           = "folders"
	entitiesKey          = "entities"
)

// ToDocument serializes the whole tree. Profile categories nest their child
// folders and entities under "folders" and "entities"; the top-level
// "folders" and "entities" maps index every folder (without children) and
// every entity by ID.
func (h *Hierarchy) ToDocument() Document {
	profiles := Document{}
	for id, p := range h.profiles {
		profiles[id] = h.containerDocument(&p.container, branchProfile)
	}
	folders := Document{}
	for id, f := range h.folders {
		folders[id] = Document{
			"name":      f.name,
			"branch":    branchFolder,
			"id":        f.id,
			"parent_id": f.parentID,
		}
	}
	entities := Document{}
	for id, e := range h.entities {
		entities[id] = e.ToDocument()
	}
	return Document{
		profileCategoriesKey: profiles,
		foldersKey:           folders,
		entitiesKey:          entities,
	}
}

func (h *Hierarchy) containerDocument(c *container, branch string) Document {
	folders := Document{}
	for fid := range c.folders {
		if f, ok := h.folders[fid]; ok {
			folders[fid] = h.containerDocument(&f.container, branchFolder)
		}
	}
	entities := Document{}
	for eid := range c.entities {
		if e, ok := h.entities[eid]; ok {
			entities[eid] = e.ToDocument()
		}
	}
	return Document{
		"name":      c.name,
		"branch":    branch,
		"id":        c.id,
		"parent_id": c.parentID,
		foldersKey:  folders,
		entitiesKey: entities,
	}
}

// FromDocument replaces the whole tree with doc. It never merges: on success
// every previous node is detached; on error the hierarchy is left unchanged.
// One EventReset is emitted. The nesting under "profileCategories" is
// authoritative; top-level "folders" and "entities" indexes are optional and,
// when present, must name exactly the nodes the nesting produces.

func (h *Hierarchy) FromDocument(doc Document) error {
	next := &Hierarchy{
		profiles: make(map[string]*ProfileCategory),
		folders:  make(map[string]*Folder),
		entities: make(map[string]*Entity),
	}

	raw, ok := doc[profileCategoriesKey]
	if ok && raw != nil {
		profiles, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s is not an object", ErrInvalidDocument, profileCategoriesKey)
		}
		for key, praw := range profiles {
			pdoc, ok := praw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: profile %s is not an object", ErrInvalidDocument, key)
			}
			id := stringField(pdoc, "id", key)
			if next.inUse(id) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, id)
			}
			p := &ProfileCategory{container: newContainer(id, stringField(pdoc, "name", ""), "", h)}
			next.profiles[id] = p
			if err := next.decodeChildren(&p.container, pdoc, h); err != nil {
				return err
			}
		}
	}

	if err := checkIndex(doc, foldersKey, next.folders); err != nil {
		return err
	}
	if err := checkIndex(doc, entitiesKey, next.entities); err != nil {
		return err
	}

	for _, p := range h.profiles {
		p.owner = nil
	}
	for _, f := range h.folders {
		f.owner = nil
	}
	for _, e := range h.entities {
		e.owner = nil
	}
	h.profiles = next.profiles
	h.folders = next.folders
	h.entities = next.entities

	h.emit(Event{Type: EventReset, Document: h.ToDocument()})
	return nil
}

// decodeChildren fills c from its document. Parent IDs follow the nesting,
// not the documents' parent_id fields.
func (h *Hierarchy) decodeChildren(c *container, doc Document, owner *Hierarchy) error {
	if raw, ok := doc[foldersKey]; ok && raw != nil {
		folders, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: folders of %s is not an object", ErrInvalidDocument, c.id)
		}
		for key, fraw := range folders {
			fdoc, ok := fraw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: folder %s is not an object", ErrInvalidDocument, key)
			}
			id := stringField(fdoc, "id", key)
			if h.inUse(id) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, id)
			}
			f := &Folder{container: newContainer(id, stringField(fdoc, "name", ""), c.id, owner)}
			h.folders[id] = f
			c.folders[id] = struct{}{}
			if err := h.decodeChildren(&f.container, fdoc, owner); err != nil {
				return err
			}
		}
	}

	if raw, ok := doc[entitiesKey]; ok && raw != nil {
		entities, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: entities of %s is not an object", ErrInvalidDocument, c.id)
		}
		for key, eraw := range entities {
			edoc, ok := eraw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: entity %s is not an object", ErrInvalidDocument, key)
			}
			id := stringField(edoc, "id", key)
			if h.inUse(id) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, id)
			}
			e, err := entityFromDocument(id, c.id, edoc, owner)
			if err != nil {
				return err
			}
			h.entities[id] = e
			c.entities[id] = struct{}{}
		}
	}
	return nil
}

// checkIndex cross-checks a top-level index against the decoded nodes.
func checkIndex[T any](doc Document, key string, decoded map[string]T) error {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return nil
	}
	index, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: top-level %s is not an object", ErrInvalidDocument, key)
	}
	if len(index) != len(decoded) {
		return fmt.Errorf("%w: top-level %s lists %d nodes, tree has %d", ErrInvalidDocument, key, len(index), len(decoded))
	}
	for id := range index {
		if _, ok := decoded[id]; !ok {
			return fmt.Errorf("%w: top-level %s names %s, which is not in the tree", ErrInvalidDocument, key, id)
		}
	}
	return nil
}

func stringField(doc Document, key, fallback string) string {
	if s, ok := doc[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
