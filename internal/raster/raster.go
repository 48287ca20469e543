// Package raster holds the in-memory raster model shared by the source and
// view layers: geometry (envelope, grid range, CRS), pixel sample typing and
// the decoded raster itself. Pixel planes are stored as float64 regardless of
// the declared sample type; DataType records what the source decoded from.
package raster

import (
	"fmt"
	"strings"
)

// DataType is the numeric kind of a raster's pixel samples.
type DataType uint8

const (
	DTUnknown DataType = iota
	DTByte
	DTInt16
	DTUInt16
	DTInt32
	DTUInt32
	DTFloat32
	DTFloat64
)

func (d DataType) String() string {
	switch d {
	case DTByte:
		return "Byte"
	case DTInt16:
		return "Int16"
	case DTUInt16:
		return "UInt16"
	case DTInt32:
		return "Int32"
	case DTUInt32:
		return "UInt32"
	case DTFloat32:
		return "Float32"
	case DTFloat64:
		return "Float64"
	default:
		return "Unknown"
	}
}

// ParseDataType maps a type name to a DataType. Accepts the names produced
// by String, case-insensitively.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "byte", "uint8":
		return DTByte, nil
	case "int16", "short":
		return DTInt16, nil
	case "uint16":
		return DTUInt16, nil
	case "int32":
		return DTInt32, nil
	case "uint32":
		return DTUInt32, nil
	case "float32":
		return DTFloat32, nil
	case "float64", "double":
		return DTFloat64, nil
	}
	return DTUnknown, fmt.Errorf("unknown raster data type %q", s)
}

// GridRange is the pixel-space origin and span of a raster.
type GridRange struct {
	MinX   int `json:"minX"`
	MinY   int `json:"minY"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (g GridRange) Equal(o GridRange) bool {
	return g == o
}

func (g GridRange) Pixels() int {
	return g.Width * g.Height
}

func (g GridRange) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", g.Width, g.Height, g.MinX, g.MinY)
}

// Envelope is the real-world bounding extent of a raster under its CRS.
type Envelope struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
	CRS  CRS     `json:"crs"`
}

// EqualWithin compares the four ordinates with an absolute per-coordinate
// tolerance. CRS metadata is deliberately ignored; CRS comparison is a
// separate concern.
func (e Envelope) EqualWithin(o Envelope, tol float64) bool {
	return abs(e.MinX-o.MinX) <= tol &&
		abs(e.MinY-o.MinY) <= tol &&
		abs(e.MaxX-o.MaxX) <= tol &&
		abs(e.MaxY-o.MaxY) <= tol
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ImageLayout describes the shape of a raster without its pixels.
type ImageLayout struct {
	MinX     int      `json:"minX"`
	MinY     int      `json:"minY"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	NBands   int      `json:"bands"`
	DataType DataType `json:"dataType"`
}

// WithBandCount returns a copy of the layout with the sample layout rebuilt
// for n bands. All other fields are carried over.
func (l ImageLayout) WithBandCount(n int) ImageLayout {
	l.NBands = n
	return l
}

// SampleDimension is the descriptive metadata attached to one band.
type SampleDimension struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	NullValues  []float64 `json:"nullValues,omitempty"`
}

// Band is one pixel plane of a raster together with its sample metadata.
type Band struct {
	Dim    SampleDimension
	Pixels []float64
}

// Raster is a decoded in-memory raster: geometry, typed bands and free-form
// properties carried from the producing reader or operator.
type Raster struct {
	Envelope   Envelope
	Grid       GridRange
	DataType   DataType
	Bands      []Band
	Properties map[string]string
}

func (r *Raster) NumBands() int {
	return len(r.Bands)
}

func (r *Raster) Layout() ImageLayout {
	return ImageLayout{
		MinX:     r.Grid.MinX,
		MinY:     r.Grid.MinY,
		Width:    r.Grid.Width,
		Height:   r.Grid.Height,
		NBands:   len(r.Bands),
		DataType: r.DataType,
	}
}

func copyProperties(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBand(b Band) Band {
	out := Band{Dim: b.Dim}
	if b.Dim.NullValues != nil {
		out.Dim.NullValues = append([]float64(nil), b.Dim.NullValues...)
	}
	out.Pixels = append([]float64(nil), b.Pixels...)
	return out
}
