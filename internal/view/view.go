// Package view implements composite coverage views: a virtual multi-band
// raster whose bands are drawn from independently stored source datasets.
// The package owns the view definition model, the read planner, the source
// consistency checker and the composing reader.
package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// InputRef points one output band at a band of a source dataset. The band
// index is stored as a string in the persisted form but is always numeric.
type InputRef struct {
	SourceName string `json:"coverageName"`
	Band       string `json:"band"`
}

func (r InputRef) BandIndex() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.Band))
	if err != nil {
		return 0, fmt.Errorf("input band %q of %q is not numeric", r.Band, r.SourceName)
	}
	if n < 0 {
		return 0, fmt.Errorf("input band %d of %q is negative", n, r.SourceName)
	}
	return n, nil
}

// Band is one output band of a view. Stored bands carry exactly one InputRef;
// a band with several inputs exists only as a planning-time grouping
// artifact, never in configuration.
type Band struct {
	Index      int        `json:"index"`
	Definition string     `json:"definition"`
	Inputs     []InputRef `json:"inputCoverageBands"`
}

// Definition is the static band catalog of a view. Immutable once loaded.
type Definition struct {
	Name  string `json:"name"`
	Bands []Band `json:"coverageBands"`
}

func (d *Definition) Validate() error {
	if d == nil {
		return errors.New("view definition is nil")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("view definition: name is required")
	}
	if len(d.Bands) == 0 {
		return fmt.Errorf("view %q: at least one band is required", d.Name)
	}
	for i, b := range d.Bands {
		if b.Index != i {
			return fmt.Errorf("view %q: band at position %d has index %d", d.Name, i, b.Index)
		}
		if len(b.Inputs) != 1 {
			return fmt.Errorf("view %q: band %d must reference exactly one input band, has %d",
				d.Name, i, len(b.Inputs))
		}
		in := b.Inputs[0]
		if strings.TrimSpace(in.SourceName) == "" {
			return fmt.Errorf("view %q: band %d has no source coverage name", d.Name, i)
		}
		if _, err := in.BandIndex(); err != nil {
			return fmt.Errorf("view %q: band %d: %w", d.Name, i, err)
		}
	}
	return nil
}

// ReferenceSource is the source the metadata facade delegates to: the first
// band's first input. Callers must Validate first.
func (d *Definition) ReferenceSource() string {
	return d.Bands[0].Inputs[0].SourceName
}

// SourceNames returns the distinct source names referenced by the view, in
// first-appearance order.
func (d *Definition) SourceNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, b := range d.Bands {
		for _, in := range b.Inputs {
			if _, ok := seen[in.SourceName]; ok {
				continue
			}
			seen[in.SourceName] = struct{}{}
			out = append(out, in.SourceName)
		}
	}
	return out
}

// Digest is a content hash of the definition, used as its version in
// invalidation events. Two definitions with the same bands hash equal.
func (d *Definition) Digest() uint64 {
	buf, err := json.Marshal(d)
	if err != nil {
		// Definition marshals from plain structs; this cannot fail.
		return 0
	}
	return xxhash.Sum64(buf)
}
