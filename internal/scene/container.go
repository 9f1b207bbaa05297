package scene

// Node is any member of the ownership graph.
type Node interface {
	ID() string
	Name() string
	ownerHierarchy() *Hierarchy
}

// OwnerOf returns the hierarchy that owns n. A removed node has no owner.
func OwnerOf(n Node) (*Hierarchy, bool) {
	if n == nil {
		return nil, false
	}
	h := n.ownerHierarchy()
	return h, h != nil
}

// container is the shared shape of ProfileCategory and Folder: identity plus
// the IDs of direct child folders and entities.
type container struct {
	id       string
	name     string
	parentID string
	folders  map[string]struct{}
	entities map[string]struct{}
	owner    *Hierarchy
}

func newContainer(id, name, parentID string, owner *Hierarchy) container {
	return container{
		id:       id,
		name:     name,
		parentID: parentID,
		folders:  make(map[string]struct{}),
		entities: make(map[string]struct{}),
		owner:    owner,
	}
}

func (c *container) ID() string       { return c.id }
func (c *container) Name() string     { return c.name }
func (c *container) ParentID() string { return c.parentID }

// FolderIDs returns the IDs of direct child folders, sorted.
func (c *container) FolderIDs() []string { return sortedKeys(c.folders) }

// EntityIDs returns the IDs of direct child entities, sorted.
func (c *container) EntityIDs() []string { return sortedKeys(c.entities) }

func (c *container) ownerHierarchy() *Hierarchy { return c.owner }

// ProfileCategory is a named root container attached directly under the Hierarchy.
type ProfileCategory struct {
	container
}

// Folder is a nestable container of folders and entities.
type Folder struct {
	container
}
