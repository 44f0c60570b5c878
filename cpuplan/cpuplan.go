// Package cpuplan implements CpuPlanner (spec.md §4.E): deriving the
// row-striping worksize plan for the CPU simulator from the grid height
// and user hints.
package cpuplan

import "github.com/sarchlab/predprey/ppcerr"

// DMin is the minimum row separation between concurrently processed rows
// so that movement radius 1 cannot create write conflicts (spec.md §4.E,
// Glossary).
const DMin = 3

// Plan is the CPU planner's output: the global/local worksizes and the
// number of barrier-separated turns per tick.
type Plan struct {
	GWS           int
	LWS           int
	MaxGWS        int
	RowsPerWorker int
}

// Builder derives a Plan from a grid height and optional user hints.
type Builder struct {
	gridHeight int
	gws, lws   int // 0 means "not given"
}

// NewBuilder creates a Builder for the given grid height.
func NewBuilder(gridHeight int) Builder {
	return Builder{gridHeight: gridHeight}
}

// WithGWS sets the user-requested global work size (spec.md §6
// --globalsize). 0 means "let the planner choose".
func (b Builder) WithGWS(gws int) Builder {
	b.gws = gws
	return b
}

// WithLWS sets the user-requested local work size (spec.md §6
// --localsize). 0 means "unconstrained".
func (b Builder) WithLWS(lws int) Builder {
	b.lws = lws
	return b
}

// Build computes the plan, failing with InvalidArgs on gws > max_gws or an
// LWS/GWS incompatibility (spec.md §4.E).
func (b Builder) Build() (Plan, error) {
	maxGWS := b.gridHeight / 3
	if maxGWS < 1 {
		return Plan{}, ppcerr.New(ppcerr.InvalidArgs,
			"grid height %d is too small: max_gws would be %d (need >= 1)", b.gridHeight, maxGWS)
	}

	if b.gws > 0 {
		return b.buildExplicit(maxGWS)
	}

	return b.buildAuto(maxGWS)
}

// buildExplicit validates a user-requested gws against max_gws and, if an
// lws was also given, against gws % lws == 0.
func (b Builder) buildExplicit(maxGWS int) (Plan, error) {
	if b.gws > maxGWS {
		return Plan{}, ppcerr.New(ppcerr.InvalidArgs,
			"global work size %d exceeds maximum %d for grid height %d", b.gws, maxGWS, b.gridHeight)
	}
	if b.lws > 0 && b.gws%b.lws != 0 {
		return Plan{}, ppcerr.New(ppcerr.InvalidArgs,
			"global work size %d is not a multiple of local work size %d", b.gws, b.lws)
	}

	return Plan{
		GWS:           b.gws,
		LWS:           b.lws,
		MaxGWS:        maxGWS,
		RowsPerWorker: rowsPerWorker(b.gridHeight, b.gws),
	}, nil
}

// buildAuto picks an effective gws when the user didn't request one: the
// largest multiple of lws not exceeding max_gws, else max_gws itself
// (spec.md §4.E). It additionally prefers the largest such gws for which
// the last worker's row count stays >= DMin, since an auto-selected
// worksize must not strand the scheduler below the movement-radius safety
// margin (see DESIGN.md for why this search, rather than a direct
// formula, resolves spec.md §4.E's "incremented... only if" clause).
func (b Builder) buildAuto(maxGWS int) (Plan, error) {
	candidate := maxGWS
	if b.lws > 0 {
		candidate = (maxGWS / b.lws) * b.lws
		if candidate == 0 {
			candidate = maxGWS
		}
	}

	gws := candidate
	for g := candidate; g >= 1; g-- {
		if b.lws > 0 && g%b.lws != 0 {
			continue
		}
		rpw := rowsPerWorker(b.gridHeight, g)
		if lastWorkerRows(b.gridHeight, g, rpw) >= DMin {
			gws = g
			break
		}
		gws = g // fall back to the smallest examined if none qualifies
	}

	return Plan{
		GWS:           gws,
		LWS:           b.lws,
		MaxGWS:        maxGWS,
		RowsPerWorker: rowsPerWorker(b.gridHeight, gws),
	}, nil
}

func rowsPerWorker(gridHeight, gws int) int {
	return (gridHeight + gws - 1) / gws
}

func lastWorkerRows(gridHeight, gws, rowsPerWorker int) int {
	return gridHeight - (gws-1)*rowsPerWorker
}
