package view

import "fmt"

// Group is one leg of a read plan: a maximal run of consecutive requested
// output bands that share the same source.
type Group struct {
	SourceName string

	// SourceBands are the band indices to select from the source raster,
	// in per-band input order.
	SourceBands []int

	// ViewBands are the requested view-band indices covered by the group,
	// one per output position.
	ViewBands []int

	// OutputPositions are the positions the group's bands occupy in the
	// final output raster.
	OutputPositions []int
}

// Plan is the derived, request-scoped read plan. Groups partition the
// requested output positions in order; a source referenced by several groups
// is still physically read only once.
type Plan struct {
	Groups []Group
}

func (p Plan) Empty() bool {
	return len(p.Groups) == 0
}

// SourceNames returns the distinct sources the plan touches, in first
// occurrence order. This is the read (and consistency-check) order.
func (p Plan) SourceNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, g := range p.Groups {
		if _, ok := seen[g.SourceName]; ok {
			continue
		}
		seen[g.SourceName] = struct{}{}
		out = append(out, g.SourceName)
	}
	return out
}

// OutputWidth is the number of bands the plan delivers.
func (p Plan) OutputWidth() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.OutputPositions)
	}
	return n
}

// PlanRead resolves a requested output-band sequence against the view's band
// catalog. requested follows the caller's order and may repeat or reorder
// indices; nil means all bands in catalog order, an explicitly empty slice
// yields an empty plan. Grouping is run-length by source name: two
// non-adjacent runs on the same source become two groups, trading a little
// extra merge work for output order preserved without a re-sort.
func PlanRead(def *Definition, requested []int) (Plan, error) {
	if requested == nil {
		requested = make([]int, len(def.Bands))
		for i := range requested {
			requested[i] = i
		}
	}

	for _, idx := range requested {
		if idx < 0 || idx >= len(def.Bands) {
			return Plan{}, &InvalidRequestError{
				Reason: fmt.Sprintf("band index %d out of range [0,%d)", idx, len(def.Bands)),
			}
		}
	}

	var plan Plan
	var cur *Group
	pos := 0
	for _, idx := range requested {
		band := def.Bands[idx]
		if len(band.Inputs) == 0 {
			// Should not occur for a well-formed catalog; an all-empty
			// request resolves to an empty plan and a no-result read.
			continue
		}
		name := band.Inputs[0].SourceName
		if cur == nil || cur.SourceName != name {
			plan.Groups = append(plan.Groups, Group{SourceName: name})
			cur = &plan.Groups[len(plan.Groups)-1]
		}
		for _, in := range band.Inputs {
			sb, err := in.BandIndex()
			if err != nil {
				return Plan{}, fmt.Errorf("view %q band %d: %w", def.Name, idx, err)
			}
			cur.SourceBands = append(cur.SourceBands, sb)
		}
		cur.ViewBands = append(cur.ViewBands, idx)
		cur.OutputPositions = append(cur.OutputPositions, pos)
		pos++
	}
	return plan, nil
}
