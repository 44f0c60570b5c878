// Package cpudriver implements CpuDriver (spec.md §4.G): the row-striped
// cooperative scheduler that drives the CPU simulator's two-kernel,
// two-phase tick sequence over a single in-order command queue.
//
// Modeled as an akita TickingComponent the way core.Core is (one engine
// tick advances the simulation by one full predator-prey iteration),
// since the host orchestration here has no sub-tick state worth exposing
// to the engine: each call either completes an entire tick's barrier
// chain or reports the run finished.
package cpudriver

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/cpuplan"
	"github.com/sarchlab/predprey/ppcerr"
	"github.com/sarchlab/predprey/profiler"
	"github.com/sarchlab/predprey/stats"
)

// Kernels holds the two per-tick entry points (spec.md §4.G: "two kernels
// run in the device's command queue").
type Kernels struct {
	MoveGrow    compute.Kernel
	ActionsStats compute.Kernel
}

// ReadTickStats reads back the statistics-array slot for the given tick
// (0-indexed) and returns its raw totals. The statistics buffer's byte
// layout is produced by the kernel bodies (out of scope, spec.md §1); the
// driver only needs someone who can turn a tick index into Totals, so
// this is injected rather than decoded here.
type ReadTickStats func(tick int) (stats.Totals, error)

// Driver is the CpuDriver component.
type Driver struct {
	*sim.TickingComponent

	queue   compute.CommandQueue
	kernels Kernels
	plan    cpuplan.Plan
	iters   int

	readStats ReadTickStats
	sink      *stats.Sink
	prof      *profiler.Shim

	tick int
	done bool
}

// Builder constructs a Driver.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	queue   compute.CommandQueue
	kernels Kernels
	plan    cpuplan.Plan
	iters   int

	readStats ReadTickStats
	sink      *stats.Sink
	prof      *profiler.Shim
}

// NewBuilder creates an empty Builder.
func NewBuilder() Builder {
	return Builder{}
}

// WithEngine sets the discrete-event engine driving this component.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the component's tick frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithQueue sets the single in-order command queue the CPU driver issues
// every enqueue and barrier against (spec.md §5: "single in-order queue").
func (b Builder) WithQueue(q compute.CommandQueue) Builder {
	b.queue = q
	return b
}

// WithKernels sets the move+grow and actions+stats kernel handles.
func (b Builder) WithKernels(k Kernels) Builder {
	b.kernels = k
	return b
}

// WithPlan sets the row-striping worksize plan from CpuPlanner.
func (b Builder) WithPlan(p cpuplan.Plan) Builder {
	b.plan = p
	return b
}

// WithIters sets the number of simulation ticks to run.
func (b Builder) WithIters(iters int) Builder {
	b.iters = iters
	return b
}

// WithStatsReader sets the callback used to read back each tick's raw
// statistics totals.
func (b Builder) WithStatsReader(r ReadTickStats) Builder {
	b.readStats = r
	return b
}

// WithStatsSink sets the sink every derived row is written to.
func (b Builder) WithStatsSink(s *stats.Sink) Builder {
	b.sink = s
	return b
}

// WithProfiler sets the profiler shim; a nil or disabled shim records
// nothing (spec.md §4.J).
func (b Builder) WithProfiler(p *profiler.Shim) Builder {
	b.prof = p
	return b
}

// Build constructs the Driver and registers it with the engine.
func (b Builder) Build(name string) *Driver {
	d := &Driver{
		queue:     b.queue,
		kernels:   b.kernels,
		plan:      b.plan,
		iters:     b.iters,
		readStats: b.readStats,
		sink:      b.sink,
		prof:      b.prof,
	}
	d.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, d)
	return d
}

// Tick runs one full simulation iteration: the move+grow phase, then the
// actions+stats phase, each dispatched rows_per_worker times with a
// barrier between every turn (spec.md §4.G). Returns false once every
// tick 0..iters has produced a statistics row.
func (d *Driver) Tick(now sim.VTimeInSec) (madeProgress bool) {
	if d.done {
		return false
	}

	if d.tick == 0 {
		if err := d.writeTickStats(0); err != nil {
			panic(err)
		}
		d.tick = 1
		return true
	}

	if d.tick > d.iters {
		d.done = true
		return false
	}

	if err := d.runPhase(d.kernels.MoveGrow, "move_grow", -1); err != nil {
		panic(err)
	}
	if err := d.runPhase(d.kernels.ActionsStats, "actions_stats", d.tick); err != nil {
		panic(err)
	}

	if err := d.queue.Finish(); err != nil {
		panic(ppcerr.Wrap(ppcerr.LibraryError, err, "finishing queue after tick %d", d.tick))
	}

	if err := d.writeTickStats(d.tick); err != nil {
		panic(err)
	}

	d.tick++
	return true
}

// runPhase dispatches kernel rows_per_worker times, with turn index t as
// its first argument and, when iterArg >= 0, the current iteration number
// as its second (spec.md §4.G: "identical structure, but with the current
// iteration number as an additional kernel argument").
func (d *Driver) runPhase(kernel compute.Kernel, name string, iterArg int) error {
	global := []int{d.plan.GWS}
	var local []int
	if d.plan.LWS > 0 {
		local = []int{d.plan.LWS}
	}

	for t := 0; t < d.plan.RowsPerWorker; t++ {
		if err := kernel.SetArg(0, int32(t)); err != nil {
			return ppcerr.Wrap(ppcerr.LibraryError, err, "setting %s turn argument", name)
		}
		if iterArg >= 0 {
			if err := kernel.SetArg(1, int32(iterArg)); err != nil {
				return ppcerr.Wrap(ppcerr.LibraryError, err, "setting %s iteration argument", name)
			}
		}

		ev, err := d.queue.Enqueue(kernel, name, global, local, nil)
		if err != nil {
			return ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing %s turn %d", name, t)
		}
		if err := ev.Wait(); err != nil {
			return ppcerr.Wrap(ppcerr.LibraryError, err, "waiting on %s turn %d", name, t)
		}
		if err := d.queue.Barrier(); err != nil {
			return ppcerr.Wrap(ppcerr.LibraryError, err, "barrier after %s turn %d", name, t)
		}
		if d.prof != nil {
			if start, end, ok := ev.Profile(); ok {
				d.prof.Record(name, start, end)
			}
		}
	}

	return nil
}

func (d *Driver) writeTickStats(tick int) error {
	if d.readStats == nil {
		return nil
	}

	totals, err := d.readStats(tick)
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "reading statistics for tick %d", tick)
	}
	if d.sink == nil {
		return nil
	}
	if err := d.sink.Write(stats.Derive(totals)); err != nil {
		return err
	}
	return nil
}
