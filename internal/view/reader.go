package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openrasters/coverageview/internal/observability"
	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/source"
)

// BandsParam is the synthetic read parameter the view appends to the
// reference format's descriptor: an ordered output band selection.
var BandsParam = source.ParamDescriptor{
	Name:        "Bands",
	Description: "Ordered output band indices to read",
}

// Reader assembles a composite raster out of the view's source datasets and
// answers every non-pixel query by delegating to the reference source (the
// source of the view's first band's first input).
//
// A Reader is safe for concurrent use: every read allocates its own plan,
// fingerprint and per-request source caches, and handles are opened and
// closed within a single call.
type Reader struct {
	def     *Definition
	dims    []raster.SampleDimension
	opener  source.Opener
	proc    raster.Processor
	log     *slog.Logger
	refName string
}

// Options tunes reader construction. Zero values select the in-memory
// processor and a discarding logger.
type Options struct {
	Processor raster.Processor
	Logger    *slog.Logger
}

// NewReader builds a reader over a validated view definition. dims is the
// stored per-band descriptive metadata collection; it may be empty, in which
// case metadata is synthesized from the band definitions at read time.
func NewReader(def *Definition, dims []raster.SampleDimension, opener source.Opener, opts Options) (*Reader, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, errors.New("view reader: source opener is required")
	}
	if len(dims) > 0 && len(dims) < len(def.Bands) {
		return nil, fmt.Errorf("view %q: %d stored dimensions for %d bands", def.Name, len(dims), len(def.Bands))
	}
	proc := opts.Processor
	if proc == nil {
		proc = raster.StdProcessor{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Reader{
		def:     def,
		dims:    dims,
		opener:  opener,
		proc:    proc,
		log:     log,
		refName: def.ReferenceSource(),
	}, nil
}

func (r *Reader) Name() string {
	return r.def.Name
}

func (r *Reader) Definition() *Definition {
	return r.def
}

// checkName validates a caller-supplied coverage name against the view's
// own. The comparison is case-insensitive.
func (r *Reader) checkName(name string) error {
	if !strings.EqualFold(name, r.def.Name) {
		return &NameMismatchError{Requested: name, Actual: r.def.Name}
	}
	return nil
}

// Read executes one composite read. p.Bands selects output bands (nil = all,
// explicitly empty = none); all other parameters are forwarded unchanged to
// every per-source read. A plan that resolves to zero bands returns
// (nil, nil) without opening any source.
func (r *Reader) Read(ctx context.Context, p source.ReadParams) (*raster.Raster, error) {
	start := time.Now()
	out, err := r.read(ctx, p)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		var inc *IncompatibleSourceError
		if errors.As(err, &inc) {
			outcome = "incompatible"
			observability.IncConsistencyFailure(inc.Aspect)
		}
	case out == nil:
		outcome = "no_result"
	}
	observability.ObserveCompositeRead(r.def.Name, outcome, time.Since(start).Seconds())
	return out, err
}

// ReadNamed is the by-name variant of Read.
func (r *Reader) ReadNamed(ctx context.Context, coverageName string, p source.ReadParams) (*raster.Raster, error) {
	if err := r.checkName(coverageName); err != nil {
		return nil, err
	}
	return r.Read(ctx, p)
}

func (r *Reader) read(ctx context.Context, p source.ReadParams) (*raster.Raster, error) {
	plan, err := PlanRead(r.def, p.Bands)
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		r.log.Debug("composite read resolved to no bands", "view", r.def.Name)
		return nil, nil
	}

	// Band selection is performed in step two, not pushed into the decode
	// call; each source is read whole, once, and cached for this request.
	srcParams := p.WithoutBands()

	handles := map[string]source.Handle{}
	defer func() {
		for _, h := range handles {
			if cerr := h.Close(); cerr != nil {
				r.log.Warn("source handle close failed", "view", r.def.Name, "err", cerr)
			}
		}
	}()

	rasters := map[string]*raster.Raster{}
	var baseline *Fingerprint
	for _, name := range plan.SourceNames() {
		h, err := r.opener.Open(ctx, name)
		if err != nil {
			return nil, &SourceReadError{SourceName: name, Err: err}
		}
		handles[name] = h

		if baseline == nil {
			baseline = Capture(h)
		} else if err := baseline.Validate(h); err != nil {
			return nil, err
		}

		t0 := time.Now()
		ras, err := h.Read(ctx, srcParams)
		observability.ObserveSourceRead(name, err, time.Since(t0).Seconds())
		if err != nil {
			return nil, &SourceReadError{SourceName: name, Err: err}
		}
		rasters[name] = ras
	}

	parts := make([]*raster.Raster, 0, len(plan.Groups))
	for _, g := range plan.Groups {
		sel, err := r.proc.SelectBands(rasters[g.SourceName], g.SourceBands)
		if err != nil {
			return nil, fmt.Errorf("select bands %v of %q: %w", g.SourceBands, g.SourceName, err)
		}
		parts = append(parts, sel)
	}

	out := parts[0]
	if len(parts) > 1 {
		merged, err := r.proc.MergeBands(parts)
		if err != nil {
			return nil, fmt.Errorf("merge %d band groups: %w", len(parts), err)
		}
		// The merge operator's own geometry and properties are discarded in
		// favor of the first group's.
		merged.Envelope = parts[0].Envelope
		merged.Grid = parts[0].Grid
		merged.Properties = parts[0].Properties
		out = merged
	}

	r.attachBandMetadata(out, plan)

	r.log.Debug("composite read done",
		"view", r.def.Name,
		"sources", len(rasters),
		"groups", len(plan.Groups),
		"bands", out.NumBands())
	return out, nil
}

// attachBandMetadata wraps each delivered band's sample dimension with the
// view's stored descriptive metadata for that band index, or with metadata
// synthesized from the band's definition label when none is stored.
func (r *Reader) attachBandMetadata(out *raster.Raster, plan Plan) {
	pos := 0
	for _, g := range plan.Groups {
		for _, viewIdx := range g.ViewBands {
			info := raster.SampleDimension{Name: r.def.Bands[viewIdx].Definition}
			if len(r.dims) > 0 {
				info = r.dims[viewIdx]
			}
			out.Bands[pos].Dim = wrapDimension(out.Bands[pos].Dim, info)
			pos++
		}
	}
}

// wrapDimension overlays stored descriptive metadata on the sample
// dimension coming from the source, keeping source-level null values when
// the stored metadata declares none.
func wrapDimension(sample, info raster.SampleDimension) raster.SampleDimension {
	out := info
	if len(out.NullValues) == 0 {
		out.NullValues = sample.NullValues
	}
	if out.Unit == "" {
		out.Unit = sample.Unit
	}
	return out
}

// Close exists for symmetry with the source-reader contract. Handles are
// request-scoped, so there is nothing to release here.
func (r *Reader) Close() error {
	return nil
}

// withRef opens the reference source, runs fn against it and closes it.
func (r *Reader) withRef(ctx context.Context, fn func(source.Handle) error) error {
	h, err := r.opener.Open(ctx, r.refName)
	if err != nil {
		return &SourceReadError{SourceName: r.refName, Err: err}
	}
	defer func() { _ = h.Close() }()
	return fn(h)
}

func (r *Reader) Envelope(ctx context.Context) (raster.Envelope, error) {
	var out raster.Envelope
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.Envelope()
		return nil
	})
	return out, err
}

func (r *Reader) GridRange(ctx context.Context) (raster.GridRange, error) {
	var out raster.GridRange
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.GridRange()
		return nil
	})
	return out, err
}

func (r *Reader) CRS(ctx context.Context) (raster.CRS, error) {
	var out raster.CRS
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.CRS()
		return nil
	})
	return out, err
}

func (r *Reader) MetadataNames(ctx context.Context) ([]string, error) {
	var out []string
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.MetadataNames()
		return nil
	})
	return out, err
}

func (r *Reader) MetadataValue(ctx context.Context, name string) (string, error) {
	var out string
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.MetadataValue(name)
		return nil
	})
	return out, err
}

func (r *Reader) DynamicParameters(ctx context.Context) ([]source.ParamDescriptor, error) {
	var out []source.ParamDescriptor
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.DynamicParameters()
		return nil
	})
	return out, err
}

func (r *Reader) ResolutionLevels(ctx context.Context) ([][]float64, error) {
	var out [][]float64
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.ResolutionLevels()
		return nil
	})
	return out, err
}

func (r *Reader) NumOverviews(ctx context.Context) (int, error) {
	var out int
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.NumOverviews()
		return nil
	})
	return out, err
}

// Structured reports the reference source's subdataset capability.
func (r *Reader) Structured(ctx context.Context) (bool, error) {
	var out bool
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.Structured()
		return nil
	})
	return out, err
}

// ImageLayout is the view's derived layout: the reference source's layout
// with the sample layout rebuilt for the view's band count.
func (r *Reader) ImageLayout(ctx context.Context) (raster.ImageLayout, error) {
	var out raster.ImageLayout
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.ImageLayout().WithBandCount(len(r.def.Bands))
		return nil
	})
	return out, err
}

// Format returns the reference source's format descriptor with the
// synthetic band-selection parameter appended to its read parameters.
func (r *Reader) Format(ctx context.Context) (source.FormatDescriptor, error) {
	var out source.FormatDescriptor
	err := r.withRef(ctx, func(h source.Handle) error {
		out = h.Format()
		params := make([]source.ParamDescriptor, 0, len(out.ReadParams)+1)
		params = append(params, out.ReadParams...)
		params = append(params, BandsParam)
		out.ReadParams = params
		return nil
	})
	return out, err
}

// By-name variants of the metadata queries, mirroring the composite-reader
// contract: each validates the coverage name, then answers for the view.

func (r *Reader) EnvelopeNamed(ctx context.Context, name string) (raster.Envelope, error) {
	if err := r.checkName(name); err != nil {
		return raster.Envelope{}, err
	}
	return r.Envelope(ctx)
}

func (r *Reader) GridRangeNamed(ctx context.Context, name string) (raster.GridRange, error) {
	if err := r.checkName(name); err != nil {
		return raster.GridRange{}, err
	}
	return r.GridRange(ctx)
}

func (r *Reader) CRSNamed(ctx context.Context, name string) (raster.CRS, error) {
	if err := r.checkName(name); err != nil {
		return raster.CRS{}, err
	}
	return r.CRS(ctx)
}

func (r *Reader) MetadataNamesNamed(ctx context.Context, name string) ([]string, error) {
	if err := r.checkName(name); err != nil {
		return nil, err
	}
	return r.MetadataNames(ctx)
}

func (r *Reader) MetadataValueNamed(ctx context.Context, name, key string) (string, error) {
	if err := r.checkName(name); err != nil {
		return "", err
	}
	return r.MetadataValue(ctx, key)
}

func (r *Reader) DynamicParametersNamed(ctx context.Context, name string) ([]source.ParamDescriptor, error) {
	if err := r.checkName(name); err != nil {
		return nil, err
	}
	return r.DynamicParameters(ctx)
}

func (r *Reader) ResolutionLevelsNamed(ctx context.Context, name string) ([][]float64, error) {
	if err := r.checkName(name); err != nil {
		return nil, err
	}
	return r.ResolutionLevels(ctx)
}

func (r *Reader) NumOverviewsNamed(ctx context.Context, name string) (int, error) {
	if err := r.checkName(name); err != nil {
		return 0, err
	}
	return r.NumOverviews(ctx)
}

func (r *Reader) ImageLayoutNamed(ctx context.Context, name string) (raster.ImageLayout, error) {
	if err := r.checkName(name); err != nil {
		return raster.ImageLayout{}, err
	}
	return r.ImageLayout(ctx)
}

func (r *Reader) StructuredNamed(ctx context.Context, name string) (bool, error) {
	if err := r.checkName(name); err != nil {
		return false, err
	}
	return r.Structured(ctx)
}

func (r *Reader) FormatNamed(ctx context.Context, name string) (source.FormatDescriptor, error) {
	if err := r.checkName(name); err != nil {
		return source.FormatDescriptor{}, err
	}
	return r.Format(ctx)
}
