// Package uuid generates cycle and catalog row ids.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator returns UUIDv7 strings. Ids created later sort after earlier
// ones, which keeps catalog rows and cycle logs in creation order.
type Generator struct {
	source func() (uuid.UUID, error)
}

// New returns a Generator backed by uuid.NewV7.
func New() *Generator {
	return &Generator{source: uuid.NewV7}
}

// NewID implements crawler.IDGenerator.
func (g *Generator) NewID() (string, error) {
	id, err := g.source()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
