package topic

import (
	"fmt"
	"strings"
)

// Builder constructs topic strings under a shared root namespace.
// Pattern: {root}/{segment}/{identifier}
type Builder struct {
	// root is the base namespace for all topics (e.g., "rc/v1").
	root string
}

// NewBuilder creates a Builder for the given root namespace. Leading and
// trailing separators are trimmed.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, Separator)}
}

// Root returns the namespace the builder was created with.
func (b *Builder) Root() string {
	return b.root
}

// Build returns the topic for a single identifier.
func (b *Builder) Build(segment, id string) string {
	if b.root == "" {
		return fmt.Sprintf("%s/%s", segment, id)
	}
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Wildcard returns the filter matching every identifier under segment.
// Result: {root}/{segment}/+
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}

// Identifier extracts the trailing identifier from a topic built for segment.
// It reports false if the topic does not belong to segment.
func (b *Builder) Identifier(segment, topic string) (string, bool) {
	prefix := b.Build(segment, "")
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, Separator) {
		return "", false
	}
	return id, true
}
