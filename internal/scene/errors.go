package scene

import "errors"

var (
	// ErrNotFound is returned when an ID does not resolve to a node of the expected type.
	ErrNotFound = errors.New("node not found")

	// ErrComponentNotFound is returned when an operation targets a component the entity does not have.
	ErrComponentNotFound = errors.New("component not found")

	// ErrPrerequisiteMissing is returned when a component is present without the components it requires.
	ErrPrerequisiteMissing = errors.New("component prerequisite missing")

	// ErrUnsupportedComponent is returned when an entity kind cannot carry the requested component.
	ErrUnsupportedComponent = errors.New("component not supported by entity kind")

	// ErrDuplicateID is returned when an explicit ID is already in use in the hierarchy.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrEmptyName is returned when a rename would leave a node without a name.
	ErrEmptyName = errors.New("name must not be empty")

	// ErrInvalidDocument is returned when a document cannot be decoded into the data model.
	ErrInvalidDocument = errors.New("invalid document")
)
