// Package gpudriver implements GpuDriver (spec.md §4.H): the pipelined,
// two-command-queue dataflow that drives the GPU simulator, including
// the dynamic max_agents_iter sizing and the agent-compaction sort
// sub-driver.
//
// Modeled as an akita TickingComponent, the same way cpudriver.Driver is:
// one engine tick advances the whole pipelined dataflow by one
// simulation tick, since the ordering contracts between queue-0 and
// queue-1's kernels are host-issued event-wait-list dependencies, not
// something the engine's own scheduling needs to arbitrate.
package gpudriver

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/gpuplan"
	"github.com/sarchlab/predprey/ppcerr"
	"github.com/sarchlab/predprey/profiler"
	"github.com/sarchlab/predprey/sort"
	"github.com/sarchlab/predprey/stats"
)

// MinAgents floors max_agents_iter (spec.md §4.H).
const MinAgents = gpuplan.MinAgents

// Kernels holds every named entry point GpuDriver drives, aside from the
// pluggable sort sub-driver.
type Kernels struct {
	ReduceGrass1 compute.Kernel
	ReduceGrass2 compute.Kernel
	ReduceAgent1 compute.Kernel
	ReduceAgent2 compute.Kernel
	ReadStats    compute.Kernel
	Grass        compute.Kernel
	MoveAgent    compute.Kernel
	FindCellIdx  compute.Kernel
	ActionAgent  compute.Kernel
}

// ReadTickStats reads back the statistics-of-current-tick mapping (kept
// mapped for the whole run, spec.md §4.H "Stats pinning") and returns its
// totals; their sheep/wolves counts feed the dynamic max_agents_iter
// recurrence.
type ReadTickStats func(mapped []byte, tick int) (stats.Totals, error)

// Driver is the GpuDriver component.
type Driver struct {
	*sim.TickingComponent

	queueCells  compute.CommandQueue
	queueAgents compute.CommandQueue
	kernels     Kernels
	sortDriver  sort.Driver
	plan        gpuplan.Plan
	maxAgents   int
	iters       int

	statsBuf    compute.Buffer
	statsMapped []byte
	unmapStats  func() error

	readStats ReadTickStats
	sink      *stats.Sink
	prof      *profiler.Shim

	maxAgentsIter int
	lastAction    compute.Event
	lastReadStats compute.Event

	tick int
	done bool
}

// Builder constructs a Driver.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	queueCells  compute.CommandQueue
	queueAgents compute.CommandQueue
	kernels     Kernels
	sortDriver  sort.Driver
	plan        gpuplan.Plan
	maxAgents   int
	iters       int
	initSheep   int
	initWolves  int

	statsBuf  compute.Buffer
	readStats ReadTickStats
	sink      *stats.Sink
	prof      *profiler.Shim
}

// NewBuilder creates an empty Builder.
func NewBuilder() Builder {
	return Builder{}
}

func (b Builder) WithEngine(engine sim.Engine) Builder { b.engine = engine; return b }
func (b Builder) WithFreq(freq sim.Freq) Builder       { b.freq = freq; return b }

// WithQueues sets the cells-lane (queue-0) and agents-lane (queue-1)
// command queues (spec.md §4.H, §5: "two command queues... independent
// lanes run concurrently").
func (b Builder) WithQueues(cells, agents compute.CommandQueue) Builder {
	b.queueCells = cells
	b.queueAgents = agents
	return b
}

// WithKernels sets every fixed per-tick kernel handle.
func (b Builder) WithKernels(k Kernels) Builder {
	b.kernels = k
	return b
}

// WithSortDriver sets the agent-compaction sub-driver (spec.md §4.H:
// "a sort sub-driver (bitonic by default)").
func (b Builder) WithSortDriver(d sort.Driver) Builder {
	b.sortDriver = d
	return b
}

// WithPlan sets the GpuPlanner worksize plan.
func (b Builder) WithPlan(p gpuplan.Plan) Builder {
	b.plan = p
	return b
}

// WithMaxAgents sets the fixed max_agents capacity.
func (b Builder) WithMaxAgents(maxAgents int) Builder {
	b.maxAgents = maxAgents
	return b
}

// WithInitialPopulation sets init_sheep/init_wolves, from which the
// initial max_agents_iter is derived (spec.md §4.H).
func (b Builder) WithInitialPopulation(initSheep, initWolves int) Builder {
	b.initSheep = initSheep
	b.initWolves = initWolves
	return b
}

// WithIters sets the number of simulation ticks to run.
func (b Builder) WithIters(iters int) Builder {
	b.iters = iters
	return b
}

// WithStatsBuffer sets the statistics-of-current-tick destination buffer,
// mapped once for the whole run (spec.md §4.H "Stats pinning").
func (b Builder) WithStatsBuffer(buf compute.Buffer) Builder {
	b.statsBuf = buf
	return b
}

// WithStatsReader sets the callback that turns the pinned mapping's
// current bytes into Totals for a given tick.
func (b Builder) WithStatsReader(r ReadTickStats) Builder {
	b.readStats = r
	return b
}

// WithStatsSink sets the sink every derived row is written to.
func (b Builder) WithStatsSink(s *stats.Sink) Builder {
	b.sink = s
	return b
}

// WithProfiler sets the profiler shim.
func (b Builder) WithProfiler(p *profiler.Shim) Builder {
	b.prof = p
	return b
}

// Build constructs the Driver, maps the statistics buffer once for the
// whole run, and registers the driver with the engine.
func (b Builder) Build(name string) *Driver {
	d := &Driver{
		queueCells:    b.queueCells,
		queueAgents:   b.queueAgents,
		kernels:       b.kernels,
		sortDriver:    b.sortDriver,
		plan:          b.plan,
		maxAgents:     b.maxAgents,
		iters:         b.iters,
		statsBuf:      b.statsBuf,
		readStats:     b.readStats,
		sink:          b.sink,
		prof:          b.prof,
		maxAgentsIter: max(b.initSheep+b.initWolves, MinAgents),
	}
	d.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, d)
	return d
}

// mapStatsOnce performs the once-per-run non-blocking host mapping
// described by spec.md §4.H.
func (d *Driver) mapStatsOnce() error {
	if d.statsMapped != nil || d.statsBuf == nil {
		return nil
	}
	data, unmap, err := d.statsBuf.MapRead()
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "mapping statistics-of-current-tick buffer")
	}
	d.statsMapped = data
	d.unmapStats = unmap
	return nil
}

// Close unmaps the pinned statistics buffer, once the run's tick loop has
// finished (spec.md §4.H: "unmapped after the loop finishes").
func (d *Driver) Close() error {
	if d.unmapStats == nil {
		return nil
	}
	err := d.unmapStats()
	d.unmapStats = nil
	d.statsMapped = nil
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "unmapping statistics-of-current-tick buffer")
	}
	return nil
}

// Tick advances the pipelined dataflow by one simulation tick. Returns
// false once every tick through iters has produced a statistics row.
func (d *Driver) Tick(now sim.VTimeInSec) (madeProgress bool) {
	if d.done {
		return false
	}

	if d.tick == 0 {
		if err := d.mapStatsOnce(); err != nil {
			panic(err)
		}
	}

	if d.tick > d.iters {
		d.done = true
		return false
	}

	tick := d.tick
	// Tick 0 is the initial snapshot (no prior action_agent to advance
	// from) and tick == iters is the run's final tick; both run only the
	// reductions-plus-readback (spec.md §4.H: "the last tick runs only
	// the reductions-plus-readback, not the state-advancing kernels").
	// Ticks in between run the full pipeline, advancing state for the
	// next tick's reduce_grass_1 to build on.
	reductionOnly := tick == 0 || tick == d.iters

	if err := d.runTick(tick, reductionOnly); err != nil {
		panic(err)
	}

	d.tick++
	return true
}

func (d *Driver) runTick(tick int, reductionOnly bool) error {
	rg1, err := d.enqueueCells(d.kernels.ReduceGrass1, "reduce_grass1", waitOn(d.lastAction), d.plan.ReduceGrass.Reduce1GWS, d.plan.ReduceGrass.Reduce1LWS)
	if err != nil {
		return err
	}
	rg2, err := d.enqueueCells(d.kernels.ReduceGrass2, "reduce_grass2", waitAll(rg1, d.lastReadStats), d.plan.ReduceGrass.Reduce2GWS, d.plan.ReduceGrass.Reduce2LWS)
	if err != nil {
		return err
	}

	ra1, err := d.enqueueAgents(d.kernels.ReduceAgent1, "reduce_agent1", waitOn(d.lastAction), d.plan.ReduceAgent.Reduce1GWS, d.plan.ReduceAgent.Reduce1LWS)
	if err != nil {
		return err
	}
	ra2, err := d.enqueueAgents(d.kernels.ReduceAgent2, "reduce_agent2", waitAll(ra1, d.lastReadStats), d.plan.ReduceAgent.Reduce2GWS, d.plan.ReduceAgent.Reduce2LWS)
	if err != nil {
		return err
	}

	readEv, err := d.enqueueCells(d.kernels.ReadStats, "read_stats", waitAll(rg2, ra2), 1, 1)
	if err != nil {
		return err
	}
	if err := readEv.Wait(); err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "waiting on read_stats tick %d", tick)
	}
	d.lastReadStats = readEv

	if err := d.reportStats(tick); err != nil {
		return err
	}

	if reductionOnly {
		if err := d.queueCells.Finish(); err != nil {
			return ppcerr.Wrap(ppcerr.LibraryError, err, "finishing cells queue at tick %d", tick)
		}
		if err := d.queueAgents.Finish(); err != nil {
			return ppcerr.Wrap(ppcerr.LibraryError, err, "finishing agents queue at tick %d", tick)
		}
		return nil
	}

	if _, err := d.enqueueCells(d.kernels.Grass, "grass", []compute.Event{rg2}, d.plan.GrassGWS, d.plan.GrassLWS); err != nil {
		return err
	}

	moveEv, err := d.enqueueAgents(d.kernels.MoveAgent, "move_agent", []compute.Event{readEv}, d.maxAgentsIter, d.plan.MoveAgentLWS)
	if err != nil {
		return err
	}

	sortEv, err := d.sortDriver.DriveIterations(d.queueAgents, d.maxAgentsIter, d.plan.SortAgentLWS, []compute.Event{moveEv})
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "sort driver tick %d", tick)
	}

	findEv, err := d.enqueueAgents(d.kernels.FindCellIdx, "find_cell_idx", []compute.Event{sortEv}, d.maxAgentsIter, d.plan.FindIndexLWS)
	if err != nil {
		return err
	}

	// action_agent may at most double the population via reproduction, so
	// the capacity check happens before it runs, against double today's
	// gws (spec.md §4.H: "If... action_agent.gws × 2 > max_agents at any
	// point, fail").
	if d.maxAgentsIter*2 > d.maxAgents {
		return ppcerr.New(ppcerr.OutOfResources,
			"action_agent global size %d doubled would exceed max_agents %d", d.maxAgentsIter, d.maxAgents)
	}

	actionEv, err := d.enqueueAgents(d.kernels.ActionAgent, "action_agent", []compute.Event{findEv}, d.maxAgentsIter, d.plan.ActionAgentLWS)
	if err != nil {
		return err
	}
	d.lastAction = actionEv

	d.maxAgentsIter = max(d.maxAgentsIter*2, d.plan.ActionAgentLWS)
	if d.maxAgentsIter > d.maxAgents {
		return ppcerr.New(ppcerr.OutOfResources,
			"max_agents_iter %d exceeds max_agents %d after tick %d", d.maxAgentsIter, d.maxAgents, tick)
	}

	if d.prof != nil {
		for name, ev := range map[string]compute.Event{
			"reduce_grass1": rg1, "reduce_grass2": rg2, "reduce_agent1": ra1, "reduce_agent2": ra2,
			"read_stats": readEv, "move_agent": moveEv, "find_cell_idx": findEv, "action_agent": actionEv,
		} {
			if start, end, ok := ev.Profile(); ok {
				d.prof.Record(name, start, end)
			}
		}
	}

	return nil
}

// reportStats decodes the current tick's pinned mapping into Totals,
// derives the row, writes it, and updates max_agents_iter from the
// reported population (spec.md §4.H: "After stats arrive for tick k:
// max(MIN_AGENTS, sheep_k + wolves_k)").
func (d *Driver) reportStats(tick int) error {
	if d.readStats == nil {
		return nil
	}

	totals, err := d.readStats(d.statsMapped, tick)
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "reading statistics for tick %d", tick)
	}
	if d.sink != nil {
		if err := d.sink.Write(stats.Derive(totals)); err != nil {
			return err
		}
	}

	d.maxAgentsIter = max(totals.Sheep+totals.Wolves, MinAgents)
	if d.maxAgentsIter > d.maxAgents {
		return ppcerr.New(ppcerr.OutOfResources,
			"max_agents_iter %d exceeds max_agents %d after tick %d stats", d.maxAgentsIter, d.maxAgents, tick)
	}

	return nil
}

func (d *Driver) enqueueCells(k compute.Kernel, name string, wait []compute.Event, gws, lws int) (compute.Event, error) {
	return enqueue(d.queueCells, k, name, wait, gws, lws)
}

func (d *Driver) enqueueAgents(k compute.Kernel, name string, wait []compute.Event, gws, lws int) (compute.Event, error) {
	return enqueue(d.queueAgents, k, name, wait, gws, lws)
}

func enqueue(q compute.CommandQueue, k compute.Kernel, name string, wait []compute.Event, gws, lws int) (compute.Event, error) {
	global := []int{gws}
	var local []int
	if lws > 0 {
		local = []int{lws}
	}
	ev, err := q.Enqueue(k, name, global, local, wait)
	if err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing %s", name)
	}
	return ev, nil
}

// waitOn wraps a possibly-nil event into a wait list; tick 1 has no
// previous action event to wait on.
func waitOn(ev compute.Event) []compute.Event {
	if ev == nil {
		return nil
	}
	return []compute.Event{ev}
}

// waitAll builds a wait list from possibly-nil events (lastReadStats is
// nil until the first tick has run), dropping any that are nil.
func waitAll(evs ...compute.Event) []compute.Event {
	out := make([]compute.Event, 0, len(evs))
	for _, ev := range evs {
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}
