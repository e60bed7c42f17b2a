// Package id provides centralized ID generation for the browser host.
//
// All identifiers are prefixed ULIDs: lexicographically sortable,
// unique without coordination, and readable in logs (tab_*, req_*,
// surf_*, chk_*). Separate Go types keep a tab id from ever being
// passed where a request id is expected.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TabID identifies one browser tab for its lifetime.
type TabID string

// RequestID identifies one streaming chat request.
type RequestID string

// SurfaceID identifies one connected renderer surface.
type SurfaceID string

// CheckID identifies one system-check run.
type CheckID string

const (
	tabPrefix     = "tab"
	requestPrefix = "req"
	surfacePrefix = "surf"
	checkPrefix   = "chk"
)

// Generator generates ULIDs from a guarded entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator from the given entropy source.
// Deterministic sources are useful in tests.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewTabID generates a new tab ID.
func NewTabID() TabID {
	return TabID(Default().GenerateWithPrefix(tabPrefix))
}

// NewRequestID generates a new streaming request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(requestPrefix))
}

// NewSurfaceID generates a new renderer surface ID.
func NewSurfaceID() SurfaceID {
	return SurfaceID(Default().GenerateWithPrefix(surfacePrefix))
}

// NewCheckID generates a new system-check run ID.
func NewCheckID() CheckID {
	return CheckID(Default().GenerateWithPrefix(checkPrefix))
}

func (id TabID) String() string     { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id SurfaceID) String() string { return string(id) }
func (id CheckID) String() string   { return string(id) }
