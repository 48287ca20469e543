package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/source"
	"github.com/openrasters/coverageview/internal/view"
)

// seedFile declares the datasets served by the in-memory source registry
// and the view definitions loaded into the catalog at boot.
type seedFile struct {
	Datasets []seedDataset `json:"datasets"`
	Views    []seedView    `json:"views"`
}

type seedBand struct {
	Name string  `json:"name"`
	Unit string  `json:"unit,omitempty"`
	Fill float64 `json:"fill"`
}

type seedDataset struct {
	Name        string                   `json:"name"`
	Envelope    raster.Envelope          `json:"envelope"`
	Grid        raster.GridRange         `json:"grid"`
	DataType    string                   `json:"dataType"`
	Metadata    map[string]string        `json:"metadata,omitempty"`
	Structured  bool                     `json:"structured,omitempty"`
	Overviews   int                      `json:"overviews,omitempty"`
	Resolutions [][]float64              `json:"resolutions,omitempty"`
	Format      source.FormatDescriptor  `json:"format"`
	Dynamic     []source.ParamDescriptor `json:"dynamicParams,omitempty"`
	Bands       []seedBand               `json:"bands"`
}

type seedView struct {
	Definition view.Definition          `json:"definition"`
	Dimensions []raster.SampleDimension `json:"dimensions,omitempty"`
}

func loadSeed(path string) (*source.Registry, []seedView, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read seed file: %w", err)
	}
	var sf seedFile
	if err := json.Unmarshal(buf, &sf); err != nil {
		return nil, nil, fmt.Errorf("decode seed file: %w", err)
	}

	reg := source.NewRegistry()
	for _, sd := range sf.Datasets {
		dt, err := raster.ParseDataType(sd.DataType)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %q: %w", sd.Name, err)
		}
		ds := &source.Dataset{
			Name:          sd.Name,
			Envelope:      sd.Envelope,
			Grid:          sd.Grid,
			DataType:      dt,
			Metadata:      sd.Metadata,
			Resolutions:   sd.Resolutions,
			Overviews:     sd.Overviews,
			Structured:    sd.Structured,
			DynamicParams: sd.Dynamic,
			Format:        sd.Format,
		}
		for _, b := range sd.Bands {
			plane := make([]float64, sd.Grid.Pixels())
			for i := range plane {
				plane[i] = b.Fill
			}
			ds.Planes = append(ds.Planes, plane)
			ds.Dimensions = append(ds.Dimensions, raster.SampleDimension{Name: b.Name, Unit: b.Unit})
		}
		if err := reg.Add(ds); err != nil {
			return nil, nil, err
		}
	}

	for _, sv := range sf.Views {
		if err := sv.Definition.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return reg, sf.Views, nil
}
