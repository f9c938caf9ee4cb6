// Package uuid provides time-ordered identifiers for API requests.
package uuid

import (
	"github.com/google/uuid"
)

// Generator creates UUID strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewString returns a UUID v7 string, falling back to v4 if the clock source fails.
func (Generator) NewString() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
