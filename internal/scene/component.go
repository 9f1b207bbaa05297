package scene

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Document is the JSON object form used for persistence, replication payloads
// and the inspector. It is an alias so decoded JSON maps can be used directly.
type Document = map[string]any

// typeKey tags every component document with its component name.
const typeKey = "type"

// Component names. These are stable: they appear on the wire and in scenario files.
const (
	ComponentTransform      = "transform"
	ComponentRigidbody      = "rigidbody"
	ComponentCollider       = "collider"
	ComponentTrajectory     = "trajectory"
	ComponentMeshRenderer2D = "meshRenderer2D"
	ComponentDynamicModel   = "dynamicModel"
	ComponentMission        = "mission"
	ComponentNetworkObject  = "networkObject"
)

// componentOrder fixes iteration order for documents and listings.
var componentOrder = []string{
	ComponentTransform,
	ComponentRigidbody,
	ComponentCollider,
	ComponentTrajectory,
	ComponentMeshRenderer2D,
	ComponentDynamicModel,
	ComponentMission,
	ComponentNetworkObject,
}

// Component is an attachable capability/data bundle on an Entity.
type Component interface {
	// Name returns the component's registry name.
	Name() string

	// ToDocument returns the component's persisted fields tagged with its type.
	ToDocument() Document

	// FromDocument overwrites the fields present in doc. Absent fields are left untouched.
	FromDocument(doc Document) error
}

var factories = map[string]func() Component{
	ComponentTransform:      func() Component { return NewTransform() },
	ComponentRigidbody:      func() Component { return NewRigidbody() },
	ComponentCollider:       func() Component { return NewCollider() },
	ComponentTrajectory:     func() Component { return &Trajectory{} },
	ComponentMeshRenderer2D: func() Component { return NewMeshRenderer2D() },
	ComponentDynamicModel:   func() Component { return &DynamicModel{} },
	ComponentMission:        func() Component { return &Mission{} },
	ComponentNetworkObject:  func() Component { return &NetworkObject{SyncTransform: true} },
}

// prerequisites is the component dependency table. Adding a component first
// ensures every listed prerequisite; removing one removes its dependents.
var prerequisites = map[string][]string{
	ComponentRigidbody:      {ComponentTransform},
	ComponentCollider:       {ComponentTransform},
	ComponentTrajectory:     {ComponentTransform},
	ComponentMeshRenderer2D: {ComponentTransform},
	ComponentDynamicModel:   {ComponentTransform, ComponentRigidbody, ComponentCollider, ComponentTrajectory},
}

// ComponentNames returns every known component name in canonical order.
func ComponentNames() []string {
	out := make([]string, len(componentOrder))
	copy(out, componentOrder)
	return out
}

// IsComponent reports whether name is a known component.
func IsComponent(name string) bool {
	_, ok := factories[name]
	return ok
}

// Prerequisites returns the components that must be present before name can be added.
func Prerequisites(name string) []string {
	deps := prerequisites[name]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// requires reports whether component name depends, directly or transitively, on dep.
func requires(name, dep string) bool {
	for _, p := range prerequisites[name] {
		if p == dep || requires(p, dep) {
			return true
		}
	}
	return false
}

// NewComponent returns a component with default values.
func NewComponent(name string) (Component, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown component %q", ErrUnsupportedComponent, name)
	}
	return f(), nil
}

// ComponentFromDocument builds a component of the given name from its document.
func ComponentFromDocument(name string, doc Document) (Component, error) {
	c, err := NewComponent(name)
	if err != nil {
		return nil, err
	}
	if err := c.FromDocument(doc); err != nil {
		return nil, err
	}
	return c, nil
}

// cloneComponent deep-copies c through its document form.
func cloneComponent(c Component) (Component, error) {
	return ComponentFromDocument(c.Name(), c.ToDocument())
}

// encodeComponent renders v's JSON fields as a Document tagged with name.
func encodeComponent(name string, v any) Document {
	doc := Document{}
	if b, err := json.Marshal(v); err == nil {
		_ = json.Unmarshal(b, &doc)
	}
	doc[typeKey] = name
	return doc
}

// decodeComponent merges doc into v. Keys present in doc overwrite; nested
// objects merge; arrays replace.
func decodeComponent(name string, doc Document, v any) error {
	fields := make(Document, len(doc))
	for k, val := range doc {
		if k == typeKey {
			continue
		}
		fields[k] = val
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, name, err)
	}
	return nil
}

// sortedKeys returns the keys of a string set in ascending order.
func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
