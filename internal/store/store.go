// Package store persists scenario documents: the full hierarchy tree as
// produced by scene.Hierarchy.ToDocument.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// ErrNotFound is returned by Load and Delete when the scenario does not exist.
var ErrNotFound = errors.New("scenario not found")

// ErrInvalidName is returned for names that cannot be stored safely.
var ErrInvalidName = errors.New("invalid scenario name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks that name is a plain identifier with no path elements.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Info describes one stored scenario.
type Info struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for scenario persistence.
type Store interface {
	// Save writes doc under name, replacing any previous version.
	Save(ctx context.Context, name string, doc scene.Document) error

	// Load returns the document stored under name.
	Load(ctx context.Context, name string) (scene.Document, error)

	// List returns every stored scenario sorted by name.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a scenario.
	Delete(ctx context.Context, name string) error
}
