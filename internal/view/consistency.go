package view

import (
	"fmt"
	"sort"

	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/source"
)

// envelopeTolerance is the absolute per-ordinate tolerance for envelope
// equality between composing sources.
const envelopeTolerance = 1e-10

// Fingerprint is the geometric and radiometric baseline captured from the
// first source touched in a composite read. It is request-scoped: built at
// the start of a read, compared against every other source touched by the
// same read, then discarded.
type Fingerprint struct {
	SourceName    string
	Envelope      raster.Envelope
	Grid          raster.GridRange
	CRS           raster.CRS
	MetadataNames []string
	DataType      raster.DataType

	// DynamicParams are captured but intentionally never compared.
	// Enforcing their equality could reject configurations that compose
	// fine today; kept as a recorded no-op pending a product decision.
	DynamicParams []source.ParamDescriptor
}

// Capture reads the five checked properties (plus the unchecked dynamic
// parameter set) from a source and stores them as the baseline.
func Capture(h source.Handle) *Fingerprint {
	return &Fingerprint{
		SourceName:    h.Name(),
		Envelope:      h.Envelope(),
		Grid:          h.GridRange(),
		CRS:           h.CRS(),
		MetadataNames: h.MetadataNames(),
		DataType:      h.ImageLayout().DataType,
		DynamicParams: h.DynamicParameters(),
	}
}

// Validate re-reads the same properties from another source and compares
// them against the baseline. Any mismatch returns an
// IncompatibleSourceError naming the offending aspect.
func (f *Fingerprint) Validate(h source.Handle) error {
	fail := func(aspect, detail string) error {
		return &IncompatibleSourceError{
			Aspect:     aspect,
			SourceName: h.Name(),
			Baseline:   f.SourceName,
			Detail:     detail,
		}
	}

	if env := h.Envelope(); !env.EqualWithin(f.Envelope, envelopeTolerance) {
		return fail("envelope", fmt.Sprintf("%+v vs %+v", env, f.Envelope))
	}

	if grid := h.GridRange(); !grid.Equal(f.Grid) {
		return fail("gridRange", fmt.Sprintf("%s vs %s", grid, f.Grid))
	}

	names := h.MetadataNames()
	if len(names) != len(f.MetadataNames) {
		return fail("metadata", fmt.Sprintf("%d names vs %d", len(names), len(f.MetadataNames)))
	}
	if !sameNameSet(names, f.MetadataNames) {
		return fail("metadata", "metadata name sets differ")
	}

	if crs := h.CRS(); !crs.Equivalent(f.CRS) {
		tr, err := crs.TransformTo(f.CRS)
		if err != nil {
			return fail("crs", err.Error())
		}
		if !tr.Identity {
			return fail("crs", fmt.Sprintf("%s vs %s", crs, f.CRS))
		}
		// identity transform, accepted silently
	}

	if dt := h.ImageLayout().DataType; dt != f.DataType {
		return fail("dataType", fmt.Sprintf("%s vs %s", dt, f.DataType))
	}

	return nil
}

// sameNameSet compares two name lists as sets; order is irrelevant and the
// caller has already checked cardinality.
func sameNameSet(a, b []string) bool {
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
