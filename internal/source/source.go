// Package source defines the contract between the view layer and the
// per-format dataset readers it composes. The view core never decodes pixels
// itself; it opens handles by source name and reads through them.
package source

import (
	"context"

	"github.com/openrasters/coverageview/internal/raster"
)

// ParamDescriptor describes one read parameter a format understands.
type ParamDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// FormatDescriptor is the static description of a reader's format surface.
type FormatDescriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Vendor      string            `json:"vendor,omitempty"`
	Version     string            `json:"version,omitempty"`
	DocURL      string            `json:"docURL,omitempty"`
	ReadParams  []ParamDescriptor `json:"readParams,omitempty"`
}

// ReadParams carries a read request to a handle. Bands is interpreted by the
// view layer only; everything else is forwarded unchanged to every
// per-source read.
type ReadParams struct {
	// Bands selects output bands by index, in order. nil means all bands;
	// an explicitly empty slice means none.
	Bands []int

	// Window restricts the read to a pixel sub-region, if the reader
	// supports it.
	Window *raster.GridRange

	// Resolution is an optional target resolution hint (x, y).
	Resolution []float64

	// Extra holds format-specific parameters passed through verbatim.
	Extra map[string]string
}

// WithoutBands returns a copy of p with the band selection cleared, keeping
// all pass-through parameters.
func (p ReadParams) WithoutBands() ReadParams {
	p.Bands = nil
	return p
}

// Handle is a name-addressed accessor over one opened source dataset. The
// metadata getters answer from the dataset header; only Read touches pixels.
// A handle is request-scoped: callers must Close it before the request
// returns, and must not reuse it across requests.
type Handle interface {
	Name() string
	Envelope() raster.Envelope
	GridRange() raster.GridRange
	CRS() raster.CRS
	MetadataNames() []string
	MetadataValue(name string) string
	DynamicParameters() []ParamDescriptor
	ImageLayout() raster.ImageLayout
	Format() FormatDescriptor
	ResolutionLevels() [][]float64
	NumOverviews() int

	// Structured reports whether the underlying reader exposes subdatasets.
	// The flag is fixed at construction; callers branch on it instead of on
	// the concrete type.
	Structured() bool

	Read(ctx context.Context, p ReadParams) (*raster.Raster, error)
	Close() error
}

// Opener opens a handle for a source dataset by name.
type Opener interface {
	Open(ctx context.Context, name string) (Handle, error)
}
