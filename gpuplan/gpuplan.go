// Package gpuplan implements GpuPlanner (spec.md §4.F): deriving worksizes
// and vector widths for the ten GPU-simulator kernels from the device and
// the simulation parameters.
//
// The ten kernels named by spec.md §6's local-size flags are: init_cell,
// init_agent, grass, reduce_grass (a reduction pair: reduce_grass1 and
// reduce_grass2 share one local-size input), reduce_agent (likewise a
// pair), move_agent, sort_agent, find_cell_idx, action_agent, plus the
// generic default (--l-def) local size used by any kernel not given its
// own override.
package gpuplan

import (
	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/ppcerr"
)

// MinAgents is the floor applied to max_agents_iter (spec.md §4.H).
const MinAgents = 2

// ReductionPlan is the worksize pair for a two-pass tree reduction
// (spec.md §4.F): reduce1 processes the input, reduce2 is guaranteed to
// run as a single workgroup that finalises the result.
type ReductionPlan struct {
	Reduce1GWS int
	Reduce1LWS int
	Reduce2GWS int
	Reduce2LWS int
}

// Plan is the GpuPlanner's output.
type Plan struct {
	InitCellLWS   int
	InitAgentLWS  int
	GrassLWS      int
	GrassGWS      int
	MoveAgentLWS  int
	SortAgentLWS  int
	FindIndexLWS  int
	ActionAgentLWS int

	ReduceGrass ReductionPlan
	ReduceAgent ReductionPlan

	VWGrass       int
	VWReduceGrass int
	VWReduceAgent int

	MaxLWS int
}

// Overrides carries the user-supplied hints from spec.md §6's per-kernel
// local-size flags and three vector-width flags. A zero value for any
// field means "not given" (use the default/auto rule).
type Overrides struct {
	LDef        int
	LInitCell   int
	LInitAgent  int
	LGrass      int
	LReduceGrass int
	LReduceAgent int
	LMoveAgent  int
	LSortAgent  int
	LFindIndex  int
	LActionAgent int

	VWGrass       int
	VWReduceGrass int
	VWReduceAgent int
}

// warning records one clamp/round-up decision, surfaced to the caller
// instead of silently applied (spec.md §4.F: "clamped with a warning").
type warning struct {
	kernel, message string
}

// Builder derives a Plan for a device and parameter set.
type Builder struct {
	device    compute.Device
	overrides Overrides
	gridXY    int
	initSheep int
	initWolves int
	maxAgents int
}

// NewBuilder creates a Builder for the given device.
func NewBuilder(dev compute.Device) Builder {
	return Builder{device: dev}
}

// WithOverrides sets the CLI-supplied local-size/vector-width hints.
func (b Builder) WithOverrides(o Overrides) Builder {
	b.overrides = o
	return b
}

// WithGrid sets grid_xy (width*height), used to size the grass kernel and
// the grass reduction.
func (b Builder) WithGrid(gridXY int) Builder {
	b.gridXY = gridXY
	return b
}

// WithPopulation sets the initial sheep/wolves counts, validated against
// max agents (spec.md §4.F resource validation).
func (b Builder) WithPopulation(initSheep, initWolves int) Builder {
	b.initSheep = initSheep
	b.initWolves = initWolves
	return b
}

// WithMaxAgents sets the max_agents capacity.
func (b Builder) WithMaxAgents(maxAgents int) Builder {
	b.maxAgents = maxAgents
	return b
}

// Build computes the plan, failing with OutOfResources if
// init_sheep+init_wolves exceeds max_agents.
func (b Builder) Build() (Plan, []string, error) {
	if b.initSheep+b.initWolves > b.maxAgents {
		return Plan{}, nil, ppcerr.New(ppcerr.OutOfResources,
			"initial population %d exceeds max_agents %d", b.initSheep+b.initWolves, b.maxAgents)
	}

	info := b.device.Info()
	var warnings []warning

	def := b.clampLWS(&warnings, info.MaxWorkGroupSize, "default", b.overrides.LDef, b.defaultLWS())
	lws := func(name string, override int) int {
		return b.clampLWS(&warnings, info.MaxWorkGroupSize, name, override, def)
	}
	reduceLWS := func(name string, override int) int {
		return b.clampReductionLWS(&warnings, info.MaxWorkGroupSize, name, override, def)
	}

	plan := Plan{
		InitCellLWS:    lws("init_cell", b.overrides.LInitCell),
		InitAgentLWS:   lws("init_agent", b.overrides.LInitAgent),
		GrassLWS:       lws("grass", b.overrides.LGrass),
		MoveAgentLWS:   lws("move_agent", b.overrides.LMoveAgent),
		SortAgentLWS:   lws("sort_agent", b.overrides.LSortAgent),
		FindIndexLWS:   lws("find_cell_idx", b.overrides.LFindIndex),
		ActionAgentLWS: lws("action_agent", b.overrides.LActionAgent),
		MaxLWS:         info.MaxWorkGroupSize,
	}

	plan.VWGrass = b.vectorWidth(&warnings, info, "grass", b.overrides.VWGrass)
	plan.VWReduceGrass = b.vectorWidth(&warnings, info, "reduce_grass", b.overrides.VWReduceGrass)
	plan.VWReduceAgent = b.vectorWidth(&warnings, info, "reduce_agent", b.overrides.VWReduceAgent)

	plan.GrassGWS = ceilToMultiple(b.gridXY, plan.GrassLWS)

	reduceGrassLWS := reduceLWS("reduce_grass", b.overrides.LReduceGrass)
	plan.ReduceGrass = reductionSizing(b.gridXY, reduceGrassLWS, plan.VWReduceGrass)

	reduceAgentLWS := reduceLWS("reduce_agent", b.overrides.LReduceAgent)
	plan.ReduceAgent = reductionSizing(b.maxAgents, reduceAgentLWS, plan.VWReduceAgent)

	msgs := make([]string, len(warnings))
	for i, w := range warnings {
		msgs[i] = w.kernel + ": " + w.message
	}

	return plan, msgs, nil
}

func (b Builder) defaultLWS() int {
	if b.overrides.LDef > 0 {
		return b.overrides.LDef
	}
	return b.device.Info().MaxWorkGroupSize
}

// clampLWS applies the "default is device max unless narrowed; values
// above max clamped with a warning" rule.
func (b Builder) clampLWS(warnings *[]warning, deviceMax int, kernel string, override, def int) int {
	if override <= 0 {
		return def
	}
	if override > deviceMax {
		*warnings = append(*warnings, warning{kernel, "local size clamped to device maximum"})
		return deviceMax
	}
	return override
}

// clampReductionLWS additionally enforces the power-of-two requirement
// for reduction kernels.
func (b Builder) clampReductionLWS(warnings *[]warning, deviceMax int, kernel string, override, def int) int {
	lws := b.clampLWS(warnings, deviceMax, kernel, override, def)
	if !isPowerOfTwo(lws) {
		rounded := nextPowerOfTwo(lws)
		if rounded > deviceMax {
			rounded = prevPowerOfTwo(deviceMax)
		}
		*warnings = append(*warnings, warning{kernel, "local size rounded to a power of two"})
		lws = rounded
	}
	return lws
}

func (b Builder) vectorWidth(warnings *[]warning, info compute.DeviceInfo, kernel string, override int) int {
	if override == 0 {
		return int(info.PreferredVectorInt)
	}
	if !isPowerOfTwo(override) || override > 16 {
		*warnings = append(*warnings, warning{kernel, "invalid vector width, falling back to device preferred width"})
		return int(info.PreferredVectorInt)
	}
	return override
}

// reductionSizing implements spec.md §4.F's two-pass reduction formula.
func reductionSizing(n, lws, vw int) ReductionPlan {
	if vw < 1 {
		vw = 1
	}
	elements := ceilDiv(n, vw)
	reduce1GWS := min(lws*lws, ceilToMultiple(elements, lws))
	reduce2 := nextPowerOfTwo(ceilDiv(reduce1GWS, lws))

	return ReductionPlan{
		Reduce1GWS: reduce1GWS,
		Reduce1LWS: lws,
		Reduce2GWS: reduce2,
		Reduce2LWS: reduce2,
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func ceilToMultiple(a, m int) int {
	if m <= 0 {
		return a
	}
	return ceilDiv(a, m) * m
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func prevPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p <<= 1
	}
	return p
}
