package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/view"
)

func testDef(name string) *view.Definition {
	return &view.Definition{
		Name: name,
		Bands: []view.Band{
			{Index: 0, Definition: "red", Inputs: []view.InputRef{{SourceName: "a", Band: "0"}}},
		},
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"RGB", "rgb"},
		{"  Composite ", "composite"},
		{"already", "already"},
	}
	for _, tc := range tests {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"RGB View", "rgb_view"},
		{"ws:layer", "ws:layer"},
		{"a//b", "a-b"},
		{"a  b", "a_b"},
	}
	for _, tc := range tests {
		if got := SanitizeKey(tc.in); got != tc.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.View(ctx, "rgb"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("View on empty catalog = %v, want ErrNotFound", err)
	}

	if err := m.PutView(testDef("RGB")); err != nil {
		t.Fatalf("PutView: %v", err)
	}
	// Lookups are case-insensitive.
	def, err := m.View(ctx, "rgb")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if def.Name != "RGB" {
		t.Fatalf("Name = %q", def.Name)
	}

	dims, err := m.Dimensions(ctx, "rgb")
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if dims != nil {
		t.Fatalf("unset dimensions = %v, want nil", dims)
	}

	m.PutDimensions("RGB", []raster.SampleDimension{{Name: "red"}})
	dims, err = m.Dimensions(ctx, "Rgb")
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if len(dims) != 1 || dims[0].Name != "red" {
		t.Fatalf("dims = %v", dims)
	}
}

func TestMemoryRejectsInvalidDefinition(t *testing.T) {
	m := NewMemory()
	if err := m.PutView(&view.Definition{Name: "broken"}); err == nil {
		t.Fatal("expected an error storing a definition with no bands")
	}
}
