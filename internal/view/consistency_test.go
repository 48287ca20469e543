package view

import (
	"context"
	"errors"
	"testing"

	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/source"
)

// openHandle registers a dataset and opens a handle over it.
func openHandle(t *testing.T, d *source.Dataset) source.Handle {
	t.Helper()
	reg := source.NewRegistry()
	if err := reg.Add(d); err != nil {
		t.Fatalf("Add(%q): %v", d.Name, err)
	}
	h, err := reg.Open(context.Background(), d.Name)
	if err != nil {
		t.Fatalf("Open(%q): %v", d.Name, err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func baseDataset(name string) *source.Dataset {
	grid := raster.GridRange{Width: 8, Height: 8}
	return &source.Dataset{
		Name:     name,
		Envelope: raster.Envelope{MinX: 0, MinY: 0, MaxX: 80, MaxY: 80, CRS: raster.CRS{Code: "EPSG:4326"}},
		Grid:     grid,
		DataType: raster.DTFloat32,
		Metadata: map[string]string{"acquisition": "2026-06-01", "platform": "s2a"},
		Planes:   [][]float64{make([]float64, grid.Pixels())},
	}
}

func wantAspect(t *testing.T, err error, aspect string) {
	t.Helper()
	var inc *IncompatibleSourceError
	if !errors.As(err, &inc) {
		t.Fatalf("error = %v, want IncompatibleSourceError", err)
	}
	if inc.Aspect != aspect {
		t.Fatalf("aspect = %q, want %q", inc.Aspect, aspect)
	}
}

func TestValidateAccepts(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))
	if err := fp.Validate(openHandle(t, baseDataset("other"))); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateEnvelopeWithinTolerance(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))
	d := baseDataset("other")
	d.Envelope.MaxX += 5e-11
	if err := fp.Validate(openHandle(t, d)); err != nil {
		t.Fatalf("a sub-tolerance envelope delta must pass: %v", err)
	}
}

func TestValidateEnvelopeMismatch(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))
	d := baseDataset("other")
	d.Envelope.MaxX += 1e-6
	wantAspect(t, fp.Validate(openHandle(t, d)), "envelope")
}

func TestValidateGridRangeMismatch(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))
	d := baseDataset("other")
	// Off by a single row: grid comparison is exact.
	d.Grid.Height++
	d.Planes = [][]float64{make([]float64, d.Grid.Pixels())}
	wantAspect(t, fp.Validate(openHandle(t, d)), "gridRange")
}

func TestValidateMetadataNameSet(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))

	d := baseDataset("other")
	d.Metadata = map[string]string{"platform": "s2b", "acquisition": "2026-07-01"}
	// Same name set, different values and iteration order: values are not
	// part of the check.
	if err := fp.Validate(openHandle(t, d)); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	d = baseDataset("other")
	d.Metadata = map[string]string{"acquisition": "2026-06-01", "cloudCover": "3"}
	wantAspect(t, fp.Validate(openHandle(t, d)), "metadata")

	d = baseDataset("other")
	d.Metadata = map[string]string{"acquisition": "2026-06-01"}
	wantAspect(t, fp.Validate(openHandle(t, d)), "metadata")
}

func TestValidateCRS(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))

	// An aliased code is reachable by an identity transform and passes.
	d := baseDataset("other")
	d.Envelope.CRS = raster.CRS{Code: "WGS84"}
	if err := fp.Validate(openHandle(t, d)); err != nil {
		t.Fatalf("aliased CRS must pass: %v", err)
	}

	d = baseDataset("other")
	d.Envelope.CRS = raster.CRS{Code: "EPSG:3857"}
	wantAspect(t, fp.Validate(openHandle(t, d)), "crs")
}

func TestValidateDataTypeMismatch(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))
	d := baseDataset("other")
	d.DataType = raster.DTUInt16
	wantAspect(t, fp.Validate(openHandle(t, d)), "dataType")
}

func TestValidateIgnoresDynamicParameters(t *testing.T) {
	fp := Capture(openHandle(t, baseDataset("ref")))
	d := baseDataset("other")
	d.DynamicParams = []source.ParamDescriptor{{Name: "TIME"}}
	if err := fp.Validate(openHandle(t, d)); err != nil {
		t.Fatalf("dynamic parameter sets are not compared: %v", err)
	}
}
