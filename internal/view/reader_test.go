package view

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/source"
)

// countingOpener wraps a registry and tracks per-source open counts.
type countingOpener struct {
	inner source.Opener

	mu    sync.Mutex
	opens map[string]int
}

func newCountingOpener(inner source.Opener) *countingOpener {
	return &countingOpener{inner: inner, opens: map[string]int{}}
}

func (o *countingOpener) Open(ctx context.Context, name string) (source.Handle, error) {
	o.mu.Lock()
	o.opens[name]++
	o.mu.Unlock()
	return o.inner.Open(ctx, name)
}

func (o *countingOpener) count(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[name]
}

func fillDataset(name string, bands int, base float64) *source.Dataset {
	grid := raster.GridRange{Width: 4, Height: 4}
	d := &source.Dataset{
		Name:     name,
		Envelope: raster.Envelope{MinX: 0, MinY: 0, MaxX: 40, MaxY: 40, CRS: raster.CRS{Code: "EPSG:4326"}},
		Grid:     grid,
		DataType: raster.DTFloat32,
		Metadata: map[string]string{"kind": "test"},
	}
	for i := 0; i < bands; i++ {
		plane := make([]float64, grid.Pixels())
		for j := range plane {
			plane[j] = base + float64(i)
		}
		d.Planes = append(d.Planes, plane)
	}
	return d
}

// compositeFixture is a two-source view: bands 0,1 on A (values 10,11) and
// band 2 on B (value 20).
func compositeFixture(t *testing.T) (*Reader, *countingOpener, *source.Dataset, *source.Dataset) {
	t.Helper()
	a := fillDataset("A", 2, 10)
	b := fillDataset("B", 1, 20)

	reg := source.NewRegistry()
	for _, d := range []*source.Dataset{a, b} {
		if err := reg.Add(d); err != nil {
			t.Fatalf("Add(%q): %v", d.Name, err)
		}
	}
	opener := newCountingOpener(reg)

	rd, err := NewReader(twoSourceView(), nil, opener, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return rd, opener, a, b
}

func TestNewReaderRejectsBadInputs(t *testing.T) {
	reg := source.NewRegistry()
	if _, err := NewReader(def("v"), nil, reg, Options{}); err == nil {
		t.Fatal("expected an error for an invalid definition")
	}
	if _, err := NewReader(twoSourceView(), nil, nil, Options{}); err == nil {
		t.Fatal("expected an error for a nil opener")
	}
	short := []raster.SampleDimension{{Name: "only-one"}}
	if _, err := NewReader(twoSourceView(), short, reg, Options{}); err == nil {
		t.Fatal("expected an error for too few stored dimensions")
	}
}

func TestReadAllBands(t *testing.T) {
	rd, opener, a, b := compositeFixture(t)

	out, err := rd.Read(context.Background(), source.ReadParams{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.NumBands() != 3 {
		t.Fatalf("got %d bands, want 3", out.NumBands())
	}
	wantVals := []float64{10, 11, 20}
	for i, v := range wantVals {
		if out.Bands[i].Pixels[0] != v {
			t.Fatalf("band %d pixel 0 = %v, want %v", i, out.Bands[i].Pixels[0], v)
		}
	}
	// Metadata comes from the band catalog when no dimensions are stored.
	wantNames := []string{"a0", "a1", "b0"}
	for i, n := range wantNames {
		if out.Bands[i].Dim.Name != n {
			t.Fatalf("band %d name = %q, want %q", i, out.Bands[i].Dim.Name, n)
		}
	}
	if a.Reads() != 1 || b.Reads() != 1 {
		t.Fatalf("reads A=%d B=%d, want one each", a.Reads(), b.Reads())
	}
	if opener.count("A") != 1 || opener.count("B") != 1 {
		t.Fatalf("opens A=%d B=%d, want one each", opener.count("A"), opener.count("B"))
	}
}

func TestReadReorderedAcrossSources(t *testing.T) {
	rd, _, a, b := compositeFixture(t)

	out, err := rd.Read(context.Background(), source.ReadParams{Bands: []int{2, 0, 1}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	wantVals := []float64{20, 10, 11}
	for i, v := range wantVals {
		if out.Bands[i].Pixels[0] != v {
			t.Fatalf("band %d pixel 0 = %v, want %v", i, out.Bands[i].Pixels[0], v)
		}
	}
	wantNames := []string{"b0", "a0", "a1"}
	for i, n := range wantNames {
		if out.Bands[i].Dim.Name != n {
			t.Fatalf("band %d name = %q, want %q", i, out.Bands[i].Dim.Name, n)
		}
	}
	if a.Reads() != 1 || b.Reads() != 1 {
		t.Fatalf("reads A=%d B=%d, want one each", a.Reads(), b.Reads())
	}
}

func TestReadSingleGroupSkipsMerge(t *testing.T) {
	rd, opener, a, b := compositeFixture(t)

	out, err := rd.Read(context.Background(), source.ReadParams{Bands: []int{1, 0}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.NumBands() != 2 {
		t.Fatalf("got %d bands, want 2", out.NumBands())
	}
	if out.Bands[0].Pixels[0] != 11 || out.Bands[1].Pixels[0] != 10 {
		t.Fatalf("pixels = [%v %v], want [11 10]",
			out.Bands[0].Pixels[0], out.Bands[1].Pixels[0])
	}
	if a.Reads() != 1 || b.Reads() != 0 {
		t.Fatalf("reads A=%d B=%d; B must not be touched", a.Reads(), b.Reads())
	}
	if opener.count("B") != 0 {
		t.Fatal("B must not be opened for an A-only request")
	}
}

func TestReadRepeatedBandDuplicates(t *testing.T) {
	rd, _, _, _ := compositeFixture(t)

	out, err := rd.Read(context.Background(), source.ReadParams{Bands: []int{0, 0}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.NumBands() != 2 {
		t.Fatalf("got %d bands, want 2", out.NumBands())
	}
	out.Bands[0].Pixels[0] = 999
	if out.Bands[1].Pixels[0] == 999 {
		t.Fatal("a repeated output band must be a physical copy")
	}
}

func TestReadExplicitlyEmpty(t *testing.T) {
	rd, opener, _, _ := compositeFixture(t)

	out, err := rd.Read(context.Background(), source.ReadParams{Bands: []int{}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out != nil {
		t.Fatalf("out = %+v, want nil for an empty selection", out)
	}
	if opener.count("A") != 0 || opener.count("B") != 0 {
		t.Fatal("an empty plan must not open any source")
	}
}

func TestReadOutOfRangeFailsBeforeOpening(t *testing.T) {
	rd, opener, _, _ := compositeFixture(t)

	var invalid *InvalidRequestError
	_, err := rd.Read(context.Background(), source.ReadParams{Bands: []int{7}})
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidRequestError", err)
	}
	if opener.count("A") != 0 || opener.count("B") != 0 {
		t.Fatal("request validation must precede any source open")
	}
}

func TestReadIncompatibleSourceAborts(t *testing.T) {
	a := fillDataset("A", 2, 10)
	b := fillDataset("B", 1, 20)
	b.DataType = raster.DTUInt16

	reg := source.NewRegistry()
	for _, d := range []*source.Dataset{a, b} {
		if err := reg.Add(d); err != nil {
			t.Fatalf("Add(%q): %v", d.Name, err)
		}
	}
	rd, err := NewReader(twoSourceView(), nil, reg, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var inc *IncompatibleSourceError
	_, err = rd.Read(context.Background(), source.ReadParams{})
	if !errors.As(err, &inc) {
		t.Fatalf("error = %v, want IncompatibleSourceError", err)
	}
	if inc.Aspect != "dataType" {
		t.Fatalf("aspect = %q, want dataType", inc.Aspect)
	}
	if inc.Baseline != "A" || inc.SourceName != "B" {
		t.Fatalf("baseline/source = %q/%q", inc.Baseline, inc.SourceName)
	}
	// The failed source must never be read.
	if b.Reads() != 0 {
		t.Fatalf("B reads = %d, want 0", b.Reads())
	}
}

func TestReadSourceFailureWrapped(t *testing.T) {
	a := fillDataset("A", 2, 10)
	b := fillDataset("B", 1, 20)
	boom := errors.New("disk gone")
	b.FailRead = boom

	reg := source.NewRegistry()
	for _, d := range []*source.Dataset{a, b} {
		if err := reg.Add(d); err != nil {
			t.Fatalf("Add(%q): %v", d.Name, err)
		}
	}
	rd, err := NewReader(twoSourceView(), nil, reg, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var srcErr *SourceReadError
	_, err = rd.Read(context.Background(), source.ReadParams{})
	if !errors.As(err, &srcErr) {
		t.Fatalf("error = %v, want SourceReadError", err)
	}
	if srcErr.SourceName != "B" {
		t.Fatalf("SourceName = %q, want B", srcErr.SourceName)
	}
	if !errors.Is(err, boom) {
		t.Fatal("wrapped cause must survive errors.Is")
	}
}

func TestReadStoredDimensionsOverride(t *testing.T) {
	a := fillDataset("A", 2, 10)
	a.Dimensions = []raster.SampleDimension{
		{Name: "src_red", Unit: "reflectance", NullValues: []float64{-9999}},
		{Name: "src_green"},
	}
	b := fillDataset("B", 1, 20)

	reg := source.NewRegistry()
	for _, d := range []*source.Dataset{a, b} {
		if err := reg.Add(d); err != nil {
			t.Fatalf("Add(%q): %v", d.Name, err)
		}
	}

	dims := []raster.SampleDimension{
		{Name: "red", Description: "visible red"},
		{Name: "green"},
		{Name: "nir", NullValues: []float64{0}},
	}
	rd, err := NewReader(twoSourceView(), dims, reg, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	out, err := rd.Read(context.Background(), source.ReadParams{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.Bands[0].Dim.Name != "red" || out.Bands[0].Dim.Description != "visible red" {
		t.Fatalf("band 0 dim = %+v", out.Bands[0].Dim)
	}
	// Stored metadata without null values inherits the source's.
	if len(out.Bands[0].Dim.NullValues) != 1 || out.Bands[0].Dim.NullValues[0] != -9999 {
		t.Fatalf("band 0 null values = %v, want [-9999]", out.Bands[0].Dim.NullValues)
	}
	if out.Bands[0].Dim.Unit != "reflectance" {
		t.Fatalf("band 0 unit = %q, want source unit", out.Bands[0].Dim.Unit)
	}
	// Stored null values win over the source's.
	if len(out.Bands[2].Dim.NullValues) != 1 || out.Bands[2].Dim.NullValues[0] != 0 {
		t.Fatalf("band 2 null values = %v, want [0]", out.Bands[2].Dim.NullValues)
	}
}

func TestReadNamed(t *testing.T) {
	rd, _, _, _ := compositeFixture(t)

	if _, err := rd.ReadNamed(context.Background(), "COMPOSITE", source.ReadParams{}); err != nil {
		t.Fatalf("case-insensitive name must match: %v", err)
	}

	var mismatch *NameMismatchError
	_, err := rd.ReadNamed(context.Background(), "other", source.ReadParams{})
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want NameMismatchError", err)
	}
}

func TestFacadeDelegatesToReference(t *testing.T) {
	rd, _, a, _ := compositeFixture(t)
	ctx := context.Background()

	env, err := rd.Envelope(ctx)
	if err != nil {
		t.Fatalf("Envelope: %v", err)
	}
	if !env.EqualWithin(a.Envelope, 0) {
		t.Fatalf("envelope = %+v, want reference's", env)
	}

	grid, err := rd.GridRange(ctx)
	if err != nil {
		t.Fatalf("GridRange: %v", err)
	}
	if !grid.Equal(a.Grid) {
		t.Fatalf("grid = %v, want %v", grid, a.Grid)
	}

	crs, err := rd.CRS(ctx)
	if err != nil {
		t.Fatalf("CRS: %v", err)
	}
	if crs.Code != "EPSG:4326" {
		t.Fatalf("crs = %q", crs.Code)
	}

	val, err := rd.MetadataValue(ctx, "kind")
	if err != nil {
		t.Fatalf("MetadataValue: %v", err)
	}
	if val != "test" {
		t.Fatalf("metadata kind = %q", val)
	}
}

func TestImageLayoutUsesViewBandCount(t *testing.T) {
	rd, _, _, _ := compositeFixture(t)

	l, err := rd.ImageLayout(context.Background())
	if err != nil {
		t.Fatalf("ImageLayout: %v", err)
	}
	// The reference source has two bands; the view has three.
	if l.NBands != 3 {
		t.Fatalf("NBands = %d, want 3", l.NBands)
	}
	if l.Width != 4 || l.Height != 4 || l.DataType != raster.DTFloat32 {
		t.Fatalf("layout = %+v", l)
	}
}

func TestFormatAppendsBandsParam(t *testing.T) {
	a := fillDataset("A", 2, 10)
	a.Format = source.FormatDescriptor{
		Name:       "GeoTIFF",
		ReadParams: []source.ParamDescriptor{{Name: "OverviewPolicy"}},
	}
	b := fillDataset("B", 1, 20)

	reg := source.NewRegistry()
	for _, d := range []*source.Dataset{a, b} {
		if err := reg.Add(d); err != nil {
			t.Fatalf("Add(%q): %v", d.Name, err)
		}
	}
	rd, err := NewReader(twoSourceView(), nil, reg, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	f, err := rd.Format(context.Background())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(f.ReadParams) != 2 {
		t.Fatalf("got %d read params, want 2", len(f.ReadParams))
	}
	if f.ReadParams[1].Name != BandsParam.Name {
		t.Fatalf("last param = %q, want %q", f.ReadParams[1].Name, BandsParam.Name)
	}
}

func TestNamedFacadeChecksName(t *testing.T) {
	rd, _, _, _ := compositeFixture(t)
	ctx := context.Background()

	var mismatch *NameMismatchError
	if _, err := rd.EnvelopeNamed(ctx, "nope"); !errors.As(err, &mismatch) {
		t.Fatalf("EnvelopeNamed error = %v", err)
	}
	if _, err := rd.ImageLayoutNamed(ctx, "nope"); !errors.As(err, &mismatch) {
		t.Fatalf("ImageLayoutNamed error = %v", err)
	}
	if _, err := rd.GridRangeNamed(ctx, "Composite"); err != nil {
		t.Fatalf("GridRangeNamed with matching name: %v", err)
	}
}
