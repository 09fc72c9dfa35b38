// Package ids allocates unique identifiers for sessions, messages, agents,
// and evaluations: a monotonic wall-clock component plus a random suffix of
// at least 48 bits of entropy, guaranteed unique within a process. No
// ordering guarantee is made across processes.
package ids

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Generator allocates opaque, lexicographically sortable identifiers. The
// zero value is not usable; construct with NewGenerator.
//
// ulid.Monotonic is not itself safe for concurrent use, so every call to
// New is serialized behind mu — one entropy source per process.
type Generator struct {
	mu      sync.Mutex
	entropy ulid.MonotonicReader
}

// NewGenerator builds a Generator backed by crypto/rand entropy.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// New allocates a new identifier. Calls made within the same millisecond on
// the same Generator are strictly increasing, which is stronger than the
// "unique within a process" floor this package guarantees.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Now(), g.entropy)
	return id.String()
}

// Default is a package-level Generator for call sites that don't need to
// thread one through explicitly (tests, one-off tooling). Production
// wiring in pkg/core should construct its own Generator instances instead
// of relying on this one, per the "no ambient globals" design note.
var Default = NewGenerator()

// New allocates an identifier from Default.
func New() string {
	return Default.New()
}
