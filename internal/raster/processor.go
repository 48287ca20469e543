package raster

import (
	"errors"
	"fmt"
)

// Processor is the generic raster-operator layer: band selection and band
// merging over already-decoded rasters. Implementations must be synchronous
// and side-effect free beyond producing a new raster.
type Processor interface {
	// SelectBands produces a raster containing exactly the requested bands of
	// src, in the requested order. A repeated index yields a physically
	// duplicated band, never an aliased one.
	SelectBands(src *Raster, indices []int) (*Raster, error)

	// MergeBands concatenates the bands of the given rasters, in order, into
	// one raster. Sources are assumed spatially aligned; geometry and
	// properties are taken from the first raster.
	MergeBands(srcs []*Raster) (*Raster, error)
}

// StdProcessor is the default in-memory Processor.
type StdProcessor struct{}

func (StdProcessor) SelectBands(src *Raster, indices []int) (*Raster, error) {
	if src == nil {
		return nil, errors.New("select bands: nil source raster")
	}
	out := &Raster{
		Envelope:   src.Envelope,
		Grid:       src.Grid,
		DataType:   src.DataType,
		Bands:      make([]Band, 0, len(indices)),
		Properties: copyProperties(src.Properties),
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(src.Bands) {
			return nil, fmt.Errorf("select bands: index %d out of range [0,%d)", idx, len(src.Bands))
		}
		out.Bands = append(out.Bands, copyBand(src.Bands[idx]))
	}
	return out, nil
}

func (StdProcessor) MergeBands(srcs []*Raster) (*Raster, error) {
	if len(srcs) == 0 {
		return nil, errors.New("merge bands: no source rasters")
	}
	first := srcs[0]
	out := &Raster{
		Envelope:   first.Envelope,
		Grid:       first.Grid,
		DataType:   first.DataType,
		Properties: copyProperties(first.Properties),
	}
	for i, src := range srcs {
		if src == nil {
			return nil, fmt.Errorf("merge bands: nil source raster at %d", i)
		}
		if !src.Grid.Equal(first.Grid) {
			return nil, fmt.Errorf("merge bands: source %d grid %s does not match %s", i, src.Grid, first.Grid)
		}
		if src.DataType != first.DataType {
			return nil, fmt.Errorf("merge bands: source %d data type %s does not match %s", i, src.DataType, first.DataType)
		}
		for _, b := range src.Bands {
			out.Bands = append(out.Bands, copyBand(b))
		}
	}
	return out, nil
}
