package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openrasters/coverageview/internal/raster"
)

// Dataset is an in-memory source dataset. It stands in for the per-format
// decode layer: pixel planes are held decoded, and reads copy them out.
type Dataset struct {
	Name          string
	Envelope      raster.Envelope
	Grid          raster.GridRange
	DataType      raster.DataType
	Metadata      map[string]string
	Dimensions    []raster.SampleDimension
	Planes        [][]float64
	Resolutions   [][]float64
	Overviews     int
	Structured    bool
	DynamicParams []ParamDescriptor
	Format        FormatDescriptor

	// FailRead, when set, makes every read fail with this error.
	FailRead error

	reads atomic.Int64
}

func (d *Dataset) Validate() error {
	if d.Name == "" {
		return errors.New("dataset: name is required")
	}
	if d.Grid.Width <= 0 || d.Grid.Height <= 0 {
		return fmt.Errorf("dataset %q: grid %s is empty", d.Name, d.Grid)
	}
	if len(d.Planes) == 0 {
		return fmt.Errorf("dataset %q: no bands", d.Name)
	}
	for i, p := range d.Planes {
		if len(p) != d.Grid.Pixels() {
			return fmt.Errorf("dataset %q: band %d has %d pixels, grid wants %d",
				d.Name, i, len(p), d.Grid.Pixels())
		}
	}
	if len(d.Dimensions) > 0 && len(d.Dimensions) != len(d.Planes) {
		return fmt.Errorf("dataset %q: %d dimensions for %d bands", d.Name, len(d.Dimensions), len(d.Planes))
	}
	return nil
}

// Reads returns how many pixel reads this dataset has served.
func (d *Dataset) Reads() int64 {
	return d.reads.Load()
}

// Registry holds named datasets and opens handles over them.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*Dataset
}

func NewRegistry() *Registry {
	return &Registry{sets: map[string]*Dataset{}}
}

func (r *Registry) Add(d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[d.Name]; ok {
		return fmt.Errorf("dataset %q already registered", d.Name)
	}
	r.sets[d.Name] = d
	return nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for n := range r.sets {
		out = append(out, n)
	}
	return out
}

// Open implements Opener.
func (r *Registry) Open(_ context.Context, name string) (Handle, error) {
	r.mu.RLock()
	d, ok := r.sets[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no dataset registered under %q", name)
	}
	return &memHandle{ds: d}, nil
}

type memHandle struct {
	ds     *Dataset
	closed atomic.Bool
}

func (h *memHandle) Name() string                { return h.ds.Name }
func (h *memHandle) Envelope() raster.Envelope   { return h.ds.Envelope }
func (h *memHandle) GridRange() raster.GridRange { return h.ds.Grid }
func (h *memHandle) CRS() raster.CRS             { return h.ds.Envelope.CRS }
func (h *memHandle) Structured() bool            { return h.ds.Structured }
func (h *memHandle) NumOverviews() int           { return h.ds.Overviews }
func (h *memHandle) Format() FormatDescriptor    { return h.ds.Format }

func (h *memHandle) MetadataNames() []string {
	out := make([]string, 0, len(h.ds.Metadata))
	for k := range h.ds.Metadata {
		out = append(out, k)
	}
	return out
}

func (h *memHandle) MetadataValue(name string) string {
	return h.ds.Metadata[name]
}

func (h *memHandle) DynamicParameters() []ParamDescriptor {
	return append([]ParamDescriptor(nil), h.ds.DynamicParams...)
}

func (h *memHandle) ResolutionLevels() [][]float64 {
	out := make([][]float64, 0, len(h.ds.Resolutions))
	for _, lvl := range h.ds.Resolutions {
		out = append(out, append([]float64(nil), lvl...))
	}
	return out
}

func (h *memHandle) ImageLayout() raster.ImageLayout {
	return raster.ImageLayout{
		MinX:     h.ds.Grid.MinX,
		MinY:     h.ds.Grid.MinY,
		Width:    h.ds.Grid.Width,
		Height:   h.ds.Grid.Height,
		NBands:   len(h.ds.Planes),
		DataType: h.ds.DataType,
	}
}

// Read decodes the full dataset, or a pixel window of it when requested.
// The band subset in p is ignored: band selection happens in the view layer.
func (h *memHandle) Read(ctx context.Context, p ReadParams) (*raster.Raster, error) {
	if h.closed.Load() {
		return nil, fmt.Errorf("dataset %q: handle is closed", h.ds.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.ds.FailRead != nil {
		return nil, h.ds.FailRead
	}
	h.ds.reads.Add(1)

	grid := h.ds.Grid
	if p.Window != nil {
		w := *p.Window
		if w.MinX < grid.MinX || w.MinY < grid.MinY ||
			w.MinX+w.Width > grid.MinX+grid.Width ||
			w.MinY+w.Height > grid.MinY+grid.Height {
			return nil, fmt.Errorf("dataset %q: window %s outside grid %s", h.ds.Name, w, grid)
		}
		grid = w
	}

	out := &raster.Raster{
		Envelope: h.ds.Envelope,
		Grid:     grid,
		DataType: h.ds.DataType,
		Bands:    make([]raster.Band, 0, len(h.ds.Planes)),
		Properties: map[string]string{
			"source": h.ds.Name,
		},
	}
	for i, plane := range h.ds.Planes {
		b := raster.Band{Pixels: h.window(plane, grid)}
		if i < len(h.ds.Dimensions) {
			b.Dim = h.ds.Dimensions[i]
		} else {
			b.Dim = raster.SampleDimension{Name: fmt.Sprintf("%s_%d", h.ds.Name, i)}
		}
		out.Bands = append(out.Bands, b)
	}
	return out, nil
}

func (h *memHandle) window(plane []float64, grid raster.GridRange) []float64 {
	full := h.ds.Grid
	if grid == full {
		return append([]float64(nil), plane...)
	}
	out := make([]float64, 0, grid.Pixels())
	for row := 0; row < grid.Height; row++ {
		srcRow := grid.MinY - full.MinY + row
		start := srcRow*full.Width + (grid.MinX - full.MinX)
		out = append(out, plane[start:start+grid.Width]...)
	}
	return out
}

func (h *memHandle) Close() error {
	h.closed.Store(true)
	return nil
}
