// Package jobid derives job identifiers from creation time and targets.
package jobid

import (
	"time"

	"github.com/JakeFAU/artexin/internal/hash/md5"
)

// Generator hashes the creation time followed by every target.
// Identical target lists submitted at different times get different ids.
type Generator struct {
	hasher *md5.Hasher
}

// New returns a Generator.
func New() *Generator {
	return &Generator{hasher: md5.New()}
}

// NewID returns the hex digest for the given creation time and targets.
func (g *Generator) NewID(createdAt time.Time, targets []string) string {
	parts := make([]string, 0, len(targets)+1)
	parts = append(parts, createdAt.UTC().Format(time.RFC3339Nano))
	parts = append(parts, targets...)
	return g.hasher.HashStrings(parts...)
}
