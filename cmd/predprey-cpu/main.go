// Command predprey-cpu runs the row-striped CPU predator-prey simulator:
// ParamStore -> SeedSource -> DeviceBinder -> BufferRegistry -> CpuPlanner
// -> CpuDriver -> StatsSink, tearing down every acquired resource in
// reverse construction order on exit (spec.md §4.K).
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rs/xid"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/predprey/buffer"
	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/cpudriver"
	"github.com/sarchlab/predprey/cpuplan"
	"github.com/sarchlab/predprey/device"
	"github.com/sarchlab/predprey/params"
	"github.com/sarchlab/predprey/ppcerr"
	"github.com/sarchlab/predprey/profiler"
	"github.com/sarchlab/predprey/seed"
	"github.com/sarchlab/predprey/stats"
)

// devProfile is the optional --device-profile YAML overlay (SPEC_FULL.md
// §2 Configuration): CLI flags still win over whatever it sets.
type devProfile struct {
	GlobalSize   int `yaml:"globalsize"`
	LocalSize    int `yaml:"localsize"`
	MaxAgents    int `yaml:"max_agents"`
	MaxAgentShuf int `yaml:"max_agents_shuff"`
}

func main() {
	var (
		paramsPath  = flag.String("params", "", "parameters file (required)")
		statsPath   = flag.String("stats", "stats.tsv", "statistics output file")
		statsDBPath = flag.String("stats-db", "", "optional sqlite mirror of the statistics table")
		compiler    = flag.String("compiler", "", "extra kernel-program compile options")
		globalSize  = flag.Int("globalsize", 0, "worker global work size (0: let CpuPlanner choose)")
		localSize   = flag.Int("localsize", 0, "worker local work size (0: unconstrained)")
		deviceIndex = flag.Int("device", -1, "compute device index (-1: choose interactively if ambiguous)")
		listDevices = flag.Bool("list-devices", false, "list compute devices and exit")
		rngSeed     = flag.Uint64("rng-seed", 1, "master RNG seed")
		rngen       = flag.String("rngen", "mt19937_64", "RNG generator name (only mt19937_64 is implemented)")
		maxAgents   = flag.Int("max-agents", 0, "fixed agent capacity (0: derive from initial population)")
		maxAgentShuf = flag.Int("max-agents-shuff", 0, "MAX_AGENT_SHUF compile constant (0: use max-agents)")
		deviceProfile = flag.String("device-profile", "", "optional YAML file of worksize overrides")
		enableProfiler = flag.Bool("profile", false, "enable ProfilerShim timing/host-resource sampling")
	)
	flag.Parse()

	if *listDevices {
		device.ListDevices(os.Stdout, hostPlatform())
		return
	}

	if *paramsPath == "" {
		fmt.Fprintln(os.Stderr, "predprey-cpu: --params is required")
		atexit.Exit(ppcerr.UnknownArgs.Code())
	}
	if *rngen != "" && *rngen != "mt19937_64" {
		fail(ppcerr.New(ppcerr.InvalidArgs, "unknown --rngen %q (only mt19937_64 is implemented)", *rngen))
	}

	p, err := params.Load(*paramsPath)
	if err != nil {
		fail(err)
	}

	if *deviceProfile != "" {
		applyDeviceProfile(*deviceProfile, globalSize, localSize, maxAgents, maxAgentShuf)
	}

	if *maxAgents <= 0 {
		*maxAgents = p.InitSheep + p.InitWolves
		if *maxAgents < 1 {
			*maxAgents = 1
		}
	}
	if *maxAgentShuf <= 0 {
		*maxAgentShuf = *maxAgents
	}

	runID := xid.New().String()
	monitor := monitoring.NewMonitor()
	engine := sim.NewSerialEngine()
	monitor.RegisterEngine(engine)

	binder := device.NewBuilder().WithPlatform(hostPlatform()).WithIndex(*deviceIndex).
		WithInteractivePrompt(os.Stdin, os.Stdout).Build()
	dev, err := binder.Bind()
	if err != nil {
		fail(err)
	}
	atexit.Register(func() { _ = dev.Release() })

	constants := device.CompileConstants{
		MaxAgents:       *maxAgents,
		MaxAgentShuf:    *maxAgentShuf,
		RowsPerWorkItem: 1, // refined below once CpuPlanner runs
		CellNum:         p.GridXY,
		GridX:           p.GridX,
		GridY:           p.GridY,
		Iters:           p.Iters,
		InitSheep:       p.InitSheep, SheepGainFromFood: p.SheepGainFromFood,
		SheepReproduceThreshold: p.SheepReproduceThreshold, SheepReproduceProb: p.SheepReproduceProb,
		InitWolves: p.InitWolves, WolvesGainFromFood: p.WolvesGainFromFood,
		WolvesReproduceThreshold: p.WolvesReproduceThreshold, WolvesReproduceProb: p.WolvesReproduceProb,
		GrassRestart: p.GrassRestart,
		AgentWidth64: false,
		RNGVariant:   *rngen,
		Extra:        *compiler,
	}

	plan, err := cpuplan.NewBuilder(p.GridY).WithGWS(*globalSize).WithLWS(*localSize).Build()
	if err != nil {
		fail(err)
	}
	constants.RowsPerWorkItem = plan.RowsPerWorker

	prog, err := device.Build(dev, cpuKernelSource, constants)
	if err != nil {
		fail(err)
	}
	atexit.Register(func() { _ = prog.Release() })

	registry := buffer.New(dev)
	atexit.Register(func() { _ = registry.Release() })

	const cellRecordSize = 8
	const agentRecordSize = 16
	const statsRecordSize = 48

	if _, err := registry.Alloc(buffer.Statistics, statsRecordSize); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.Cells, p.GridXY*cellRecordSize); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.Agents, *maxAgents*agentRecordSize); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.RNGSeeds, plan.GWS*8); err != nil {
		fail(err)
	}

	src := seed.NewSource(uint32(*rngSeed))
	if err := initCells(registry, src, p); err != nil {
		fail(err)
	}
	if err := initAgents(registry, src, p, *maxAgents); err != nil {
		fail(err)
	}
	seedsBuf, _ := registry.Get(buffer.RNGSeeds)
	if err := writeSeeds(seedsBuf, src.Generate(plan.GWS)); err != nil {
		fail(err)
	}

	moveGrow, err := prog.CreateKernel("move_grow")
	if err != nil {
		fail(ppcerr.Wrap(ppcerr.LibraryError, err, "creating move_grow kernel"))
	}
	actionsStats, err := prog.CreateKernel("actions_stats")
	if err != nil {
		fail(ppcerr.Wrap(ppcerr.LibraryError, err, "creating actions_stats kernel"))
	}

	sink, err := stats.Open(*statsPath)
	if err != nil {
		fail(err)
	}
	atexit.Register(func() { _ = sink.Close() })
	if *statsDBPath != "" {
		if err := sink.WithSQLiteMirror(*statsDBPath, runID); err != nil {
			fail(err)
		}
	}

	prof := profiler.New(*enableProfiler, runID)
	if prof.Enabled() {
		monitor.StartServer()
	}

	readStats := func(tick int) (stats.Totals, error) {
		var t stats.Totals
		err := registry.WithRead(buffer.Statistics, func(data []byte) error {
			t = decodeStats(data, p.GridXY)
			return nil
		})
		return t, err
	}

	queue := dev.NewCommandQueue()
	queue.EnableProfiling(prof.Enabled())

	driver := cpudriver.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithQueue(queue).
		WithKernels(cpudriver.Kernels{MoveGrow: moveGrow, ActionsStats: actionsStats}).
		WithPlan(plan).
		WithIters(p.Iters).
		WithStatsReader(readStats).
		WithStatsSink(sink).
		WithProfiler(prof).
		Build("CpuDriver")
	prof.RegisterComponent(monitor, driver)

	runTicks(driver)

	if prof.Enabled() {
		for _, t := range prof.Report() {
			fmt.Printf("kernel %-16s count=%-6d wall=%v\n", t.Name, t.Count, t.WallClock)
		}
	}

	fmt.Printf("predprey-cpu: run %s wrote %d statistics rows to %s\n", runID, sink.Rows(), *statsPath)
	atexit.Exit(0)
}

// runTicks drives the driver to completion, recovering the *ppcerr.Error
// panics Tick uses to signal failure (sim.TickingComponent's Tick(now) bool
// signature has no room for a return error) and routing them through fail
// so every atexit.Register teardown — including the stats sink close that
// keeps rows written so far — still runs (SPEC_FULL.md §5).
func runTicks(driver *cpudriver.Driver) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ppcerr.Error)
			if !ok {
				panic(r)
			}
			fail(pe)
		}
	}()
	for driver.Tick(0) {
	}
}

func applyDeviceProfile(path string, globalSize, localSize, maxAgents, maxAgentShuf *int) {
	data, err := os.ReadFile(path)
	if err != nil {
		fail(ppcerr.Wrap(ppcerr.InvalidArgs, err, "reading device profile %q", path))
	}
	var prof devProfile
	if err := yaml.Unmarshal(data, &prof); err != nil {
		fail(ppcerr.Wrap(ppcerr.InvalidArgs, err, "parsing device profile %q", path))
	}
	if *globalSize == 0 {
		*globalSize = prof.GlobalSize
	}
	if *localSize == 0 {
		*localSize = prof.LocalSize
	}
	if *maxAgents == 0 {
		*maxAgents = prof.MaxAgents
	}
	if *maxAgentShuf == 0 {
		*maxAgentShuf = prof.MaxAgentShuf
	}
}

// nullAgent is the UINT_MAX sentinel the original (PredPreyCPU.h's
// NULL_AGENT_POINTER) uses for "no agent here": an empty cell's agent_head,
// and the tail of every per-cell agent chain.
const nullAgent = ^uint32(0)

// Species IDs, matching PredPreyCommon.h's SHEEP_ID/WOLF_ID.
const (
	sheepID = 0
	wolfID  = 1
)

// initCells fills the Cells buffer's grass timers and agent_head sentinels
// host-side, the way the CPU driver's original (pp_cpu.c) initializes state
// before the tick loop begins — the CPU kernels only ever move/grow/act,
// they never init (spec.md §9 keeps the CPU and GPU grass-timer draws
// distinct). Every cell starts with no agent chained to it; initAgents
// links agents in afterward.
func initCells(registry *buffer.Registry, src *seed.Source, p params.Parameters) error {
	return registry.WithWrite(buffer.Cells, func(data []byte) error {
		const cellRecordSize = 8
		for i := 0; i < p.GridXY; i++ {
			timer := src.NextGrassTimerCPU(p.GrassRestart)
			binary.LittleEndian.PutUint32(data[i*cellRecordSize:], timer)
			binary.LittleEndian.PutUint32(data[i*cellRecordSize+4:], nullAgent)
		}
		return nil
	})
}

// initAgents places and energizes the initial sheep and wolves, mirroring
// pp_cpu.c:583-623: each of the first InitSheep+InitWolves slots draws a
// random grid position and is prepended (or appended, if the target cell
// already holds a chain) to that cell's agent_head linked list. Remaining
// slots up to maxAgents are left inert, energy zeroed explicitly rather
// than relying on any implementation-defined zero-fill.
func initAgents(registry *buffer.Registry, src *seed.Source, p params.Parameters, maxAgents int) error {
	return registry.WithWrite(buffer.Cells, func(cells []byte) error {
		return registry.WithWrite(buffer.Agents, func(agents []byte) error {
			const cellRecordSize = 8
			const agentRecordSize = 16
			initial := p.InitSheep + p.InitWolves

			for i := 0; i < maxAgents; i++ {
				rec := agents[i*agentRecordSize:]
				if i >= initial {
					binary.LittleEndian.PutUint32(rec[0:4], 0) // energy
					continue
				}

				x := src.IntRange(0, p.GridX)
				y := src.IntRange(0, p.GridY)
				gridIndex := x + y*p.GridX

				var energy, species uint32
				if i < p.InitSheep {
					energy = uint32(src.IntRange(1, p.SheepGainFromFood*2+1))
					species = sheepID
				} else {
					energy = uint32(src.IntRange(1, p.WolvesGainFromFood*2+1))
					species = wolfID
				}

				binary.LittleEndian.PutUint32(rec[0:4], energy)
				binary.LittleEndian.PutUint32(rec[4:8], 0) // action
				binary.LittleEndian.PutUint32(rec[8:12], species)
				binary.LittleEndian.PutUint32(rec[12:16], nullAgent)

				head := cells[gridIndex*cellRecordSize+4:]
				chainHead := binary.LittleEndian.Uint32(head)
				if chainHead == nullAgent {
					binary.LittleEndian.PutUint32(head, uint32(i))
					continue
				}
				tail := chainHead
				for {
					next := agents[int(tail)*agentRecordSize+12:]
					n := binary.LittleEndian.Uint32(next)
					if n == nullAgent {
						binary.LittleEndian.PutUint32(next, uint32(i))
						break
					}
					tail = n
				}
			}
			return nil
		})
	})
}

func writeSeeds(buf compute.Buffer, seeds []uint64) error {
	data, unmap, err := buf.MapWrite()
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "mapping RNG seed buffer")
	}
	defer unmap()
	for i, s := range seeds {
		binary.LittleEndian.PutUint64(data[i*8:], s)
	}
	return nil
}

func decodeStats(data []byte, gridXY int) stats.Totals {
	return stats.Totals{
		Sheep:            int(binary.LittleEndian.Uint32(data[0:4])),
		Wolves:           int(binary.LittleEndian.Uint32(data[4:8])),
		Grass:            int(binary.LittleEndian.Uint32(data[8:12])),
		SheepEnergyTotal: int64(binary.LittleEndian.Uint64(data[16:24])),
		WolfEnergyTotal:  int64(binary.LittleEndian.Uint64(data[24:32])),
		GrassTimerTotal:  int64(binary.LittleEndian.Uint64(data[32:40])),
		GridXY:           gridXY,
	}
}

// hostPlatform builds the reference in-memory device this binary targets.
// A real deployment would substitute a compute.Platform backed by an
// actual accelerator; the OpenCL-shaped kernel bodies enumerated by
// spec.md §6 are fixed by their interfaces, not implemented here (spec.md
// §1), so the stand-in device below runs each named kernel as a trivial
// pass-through, the same fake backend the test suites exercise the
// drivers against.
func hostPlatform() compute.Platform {
	return fake.NewPlatform(fake.NewDevice(
		compute.DeviceInfo{
			Name:               "predprey-reference-cpu",
			MaxWorkGroupSize:   64,
			ComputeUnits:       4,
			PreferredVectorInt: 4,
		},
		map[string]fake.KernelFunc{
			"move_grow":     func(args map[int]any, g, l []int) error { return nil },
			"actions_stats": func(args map[int]any, g, l []int) error { return nil },
		},
	))
}

// cpuKernelSource is the program text handed to BuildProgram. The
// reference device above ignores it; a real OpenCL backend would compile
// it against the kernel bodies out of this repo's scope.
const cpuKernelSource = "// kernel bodies supplied by the device toolchain"

func fail(err error) {
	pe, ok := ppcerr.As(err)
	if !ok {
		log.Fatalf("predprey-cpu: %v", err)
	}
	fmt.Fprintf(os.Stderr, "predprey-cpu: %v\n", pe)
	atexit.Exit(pe.Code())
}
