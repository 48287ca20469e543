// Package catalog is the configuration layer: it stores view definitions
// and the optional per-band descriptive metadata collections. The view core
// treats everything served from here as read-only.
package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/view"
)

var ErrNotFound = errors.New("catalog: view not found")

type Catalog interface {
	// View returns the stored definition for name, or ErrNotFound.
	View(ctx context.Context, name string) (*view.Definition, error)

	// Dimensions returns the stored per-band metadata for name. An empty
	// (nil) result is valid: metadata is then synthesized at read time.
	Dimensions(ctx context.Context, name string) ([]raster.SampleDimension, error)
}

// NormalizeName maps a coverage name to its catalog key form. Lookups are
// case-insensitive, matching the reader's coverage-name check.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SanitizeKey collapses a coverage name into a storage-safe key segment.
func SanitizeKey(name string) string {
	s := NormalizeName(name)
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}

// Memory is a map-backed catalog, used in tests and when no store is
// configured.
type Memory struct {
	mu    sync.RWMutex
	views map[string]*view.Definition
	dims  map[string][]raster.SampleDimension
}

func NewMemory() *Memory {
	return &Memory{
		views: map[string]*view.Definition{},
		dims:  map[string][]raster.SampleDimension{},
	}
}

func (m *Memory) PutView(def *view.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[NormalizeName(def.Name)] = def
	return nil
}

func (m *Memory) PutDimensions(name string, dims []raster.SampleDimension) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dims[NormalizeName(name)] = dims
}

func (m *Memory) View(_ context.Context, name string) (*view.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.views[NormalizeName(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

func (m *Memory) Dimensions(_ context.Context, name string) ([]raster.SampleDimension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dims[NormalizeName(name)], nil
}
