// Command predprey-gpu runs the pipelined, two-command-queue GPU
// predator-prey simulator: ParamStore -> SeedSource -> DeviceBinder ->
// BufferRegistry -> GpuPlanner -> GpuDriver -> StatsSink, tearing down
// every acquired resource in reverse construction order on exit
// (spec.md §4.K).
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
	"github.com/sarchlab/predprey/device"
	"github.com/sarchlab/predprey/gpudriver"
	"github.com/sarchlab/predprey/gpuplan"
	"github.com/sarchlab/predprey/params"
	"github.com/sarchlab/predprey/ppcerr"
	"github.com/sarchlab/predprey/profiler"
	"github.com/sarchlab/predprey/seed"
	"github.com/sarchlab/predprey/sort"
	"github.com/sarchlab/predprey/stats"
)

// devProfile is the optional --device-profile YAML overlay (SPEC_FULL.md
// §2 Configuration): CLI flags still win over whatever it sets.
type devProfile struct {
	MaxAgents     int `yaml:"max_agents"`
	LDef          int `yaml:"l_def"`
	LInitCell     int `yaml:"l_init_cell"`
	LInitAgent    int `yaml:"l_init_agent"`
	LGrass        int `yaml:"l_grass"`
	LReduceGrass  int `yaml:"l_reduce_grass"`
	LReduceAgent  int `yaml:"l_reduce_agent"`
	LMoveAgent    int `yaml:"l_move_agent"`
	LSortAgent    int `yaml:"l_sort_agent"`
	LFindIndex    int `yaml:"l_find_index"`
	LActionAgent  int `yaml:"l_action_agent"`
	VWGrass       int `yaml:"vw_grass"`
	VWReduceGrass int `yaml:"vw_reduce_grass"`
	VWReduceAgent int `yaml:"vw_reduce_agent"`
}

func main() {
	var (
		paramsPath  = flag.String("params", "", "parameters file (required)")
		statsPath   = flag.String("stats", "stats.tsv", "statistics output file")
		statsDBPath = flag.String("stats-db", "", "optional sqlite mirror of the statistics table")
		compiler    = flag.String("compiler", "", "extra kernel-program compile options")
		deviceIndex = flag.Int("device", -1, "compute device index (-1: choose interactively if ambiguous)")
		listDevices = flag.Bool("list-devices", false, "list compute devices and exit")
		rngSeed     = flag.Uint64("rng-seed", 1, "master RNG seed")
		rngen       = flag.String("rngen", "mt19937_64", "RNG generator name (only mt19937_64 is implemented)")
		maxAgents   = flag.Int("max-agents", 0, "fixed agent capacity (0: derive from initial population)")
		agentSize   = flag.Int("agent-size", 64, "packed agent record width in bits: 32 or 64")

		lDef         = flag.Int("l-def", 0, "default local work size for any kernel without its own override")
		lInitCell    = flag.Int("l-init-cell", 0, "init_cell local work size")
		lInitAgent   = flag.Int("l-init-agent", 0, "init_agent local work size")
		lGrass       = flag.Int("l-grass", 0, "grass local work size")
		lReduceGrass = flag.Int("l-reduce-grass", 0, "reduce_grass local work size")
		lReduceAgent = flag.Int("l-reduce-agent", 0, "reduce_agent local work size")
		lMoveAgent   = flag.Int("l-move-agent", 0, "move_agent local work size")
		lSortAgent   = flag.Int("l-sort-agent", 0, "sort_agent local work size")
		lFindIndex   = flag.Int("l-find-index", 0, "find_cell_idx local work size")
		lActionAgent = flag.Int("l-action-agent", 0, "action_agent local work size")

		vwGrass       = flag.Int("vw-grass", 0, "grass kernel vector width (0: device preferred)")
		vwReduceGrass = flag.Int("vw-reduce-grass", 0, "reduce_grass vector width (0: device preferred)")
		vwReduceAgent = flag.Int("vw-reduce-agent", 0, "reduce_agent vector width (0: device preferred)")

		aSort        = flag.String("a-sort", "simple-bitonic", "agent-compaction sort variant: "+fmt.Sprint(sort.Names()))
		aSortOpts    = flag.String("a-sort-opts", "", "options string passed to the sort variant")
		deviceProfile = flag.String("device-profile", "", "optional YAML file of worksize overrides")
		enableProfiler = flag.Bool("profile", false, "enable ProfilerShim timing/host-resource sampling")
	)
	flag.Parse()

	if *listDevices {
		device.ListDevices(os.Stdout, hostPlatform())
		return
	}

	if *paramsPath == "" {
		fmt.Fprintln(os.Stderr, "predprey-gpu: --params is required")
		atexit.Exit(ppcerr.UnknownArgs.Code())
	}
	if *rngen != "" && *rngen != "mt19937_64" {
		fail(ppcerr.New(ppcerr.InvalidArgs, "unknown --rngen %q (only mt19937_64 is implemented)", *rngen))
	}
	if *agentSize != 32 && *agentSize != 64 {
		fail(ppcerr.New(ppcerr.InvalidArgs, "--agent-size must be 32 or 64, got %d", *agentSize))
	}

	p, err := params.Load(*paramsPath)
	if err != nil {
		fail(err)
	}

	overrides := gpuplan.Overrides{
		LDef: *lDef, LInitCell: *lInitCell, LInitAgent: *lInitAgent, LGrass: *lGrass,
		LReduceGrass: *lReduceGrass, LReduceAgent: *lReduceAgent, LMoveAgent: *lMoveAgent,
		LSortAgent: *lSortAgent, LFindIndex: *lFindIndex, LActionAgent: *lActionAgent,
		VWGrass: *vwGrass, VWReduceGrass: *vwReduceGrass, VWReduceAgent: *vwReduceAgent,
	}
	if *deviceProfile != "" {
		applyDeviceProfile(*deviceProfile, maxAgents, &overrides)
	}
	if *maxAgents <= 0 {
		*maxAgents = 4 * (p.InitSheep + p.InitWolves)
		if *maxAgents < gpuplan.MinAgents {
			*maxAgents = gpuplan.MinAgents
		}
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

	plan, warnings, err := gpuplan.NewBuilder(dev).
		WithOverrides(overrides).
		WithGrid(p.GridXY).
		WithPopulation(p.InitSheep, p.InitWolves).
		WithMaxAgents(*maxAgents).
		Build()
	if err != nil {
		fail(err)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "predprey-gpu: warning: %s\n", w)
	}

	constants := device.CompileConstants{
		MaxAgents: *maxAgents,
		VWGrass:   plan.VWGrass, VWGrassReduce: plan.VWReduceGrass, VWAgentReduce: plan.VWReduceAgent,
		ReduceGrassNumWorkgroups: plan.ReduceGrass.Reduce1GWS / plan.ReduceGrass.Reduce1LWS,
		MaxLWS:                   plan.MaxLWS,
		CellNum:                  p.GridXY, GridX: p.GridX, GridY: p.GridY, Iters: p.Iters,
		InitSheep: p.InitSheep, SheepGainFromFood: p.SheepGainFromFood,
		SheepReproduceThreshold: p.SheepReproduceThreshold, SheepReproduceProb: p.SheepReproduceProb,
		InitWolves: p.InitWolves, WolvesGainFromFood: p.WolvesGainFromFood,
		WolvesReproduceThreshold: p.WolvesReproduceThreshold, WolvesReproduceProb: p.WolvesReproduceProb,
		GrassRestart: p.GrassRestart,
		AgentWidth64: *agentSize == 64,
		RNGVariant:   *rngen,
		Extra:        *compiler,
	}

	prog, err := device.Build(dev, gpuKernelSource, constants)
	if err != nil {
		fail(err)
	}
	atexit.Register(func() { _ = prog.Release() })

	sortDriver, err := sort.New(*aSort, *aSortOpts)
	if err != nil {
		fail(err)
	}
	if err := sortDriver.CreateKernels(prog); err != nil {
		fail(ppcerr.Wrap(ppcerr.LibraryError, err, "creating %s kernels", *aSort))
	}
	atexit.Register(func() { _ = sortDriver.Free() })

	registry := buffer.New(dev)
	atexit.Register(func() { _ = registry.Release() })

	agentRecordSize := *agentSize / 8
	const cellRecordSize = 8
	const statsRecordSize = 48

	if _, err := registry.Alloc(buffer.Statistics, statsRecordSize); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.Cells, p.GridXY*cellRecordSize); err != nil {
		fail(err)
	}
	agentsBuf, err := registry.Alloc(buffer.Agents, *maxAgents*agentRecordSize)
	if err != nil {
		fail(err)
	}
	// The 32-bit mode additionally allocates a second agent buffer
	// (spec.md §4.D "agents (one or two buffers by agent width)"). The sort
	// driver is bound to the primary buffer only, and no kernel argument
	// set in this binary refers to the second one.
	if *agentSize == 32 {
		if _, err := registry.Alloc(buffer.AgentsAlt, *maxAgents*agentRecordSize); err != nil {
			fail(err)
		}
	}
	if err := sortDriver.SetArgs(agentsBuf); err != nil {
		fail(ppcerr.Wrap(ppcerr.LibraryError, err, "binding sort driver args"))
	}
	if _, err := registry.Alloc(buffer.RNGSeeds, *maxAgents*8); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.ReduceGrass, (plan.ReduceGrass.Reduce1GWS)*8); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.ReduceAgent, (plan.ReduceAgent.Reduce1GWS)*8); err != nil {
		fail(err)
	}
	if _, err := registry.Alloc(buffer.CellIndex, p.GridXY*4); err != nil {
		fail(err)
	}

	src := seed.NewSource(uint32(*rngSeed))
	seedsBuf, _ := registry.Get(buffer.RNGSeeds)
	if err := writeSeeds(seedsBuf, src.Generate(*maxAgents)); err != nil {
		fail(err)
	}

	queueCells := dev.NewCommandQueue()
	queueAgents := dev.NewCommandQueue()

	prof := profiler.New(*enableProfiler, runID)
	if prof.Enabled() {
		monitor.StartServer()
	}
	queueCells.EnableProfiling(prof.Enabled())
	queueAgents.EnableProfiling(prof.Enabled())

	if err := runInit(prog, queueCells, plan, p.GridXY, *maxAgents); err != nil {
		fail(err)
	}

	kernels := gpudriver.Kernels{}
	for name, dst := range map[string]*compute.Kernel{
		"reduce_grass1": &kernels.ReduceGrass1, "reduce_grass2": &kernels.ReduceGrass2,
		"reduce_agent1": &kernels.ReduceAgent1, "reduce_agent2": &kernels.ReduceAgent2,
		"read_stats": &kernels.ReadStats, "grass": &kernels.Grass,
		"move_agent": &kernels.MoveAgent, "find_cell_idx": &kernels.FindCellIdx,
		"action_agent": &kernels.ActionAgent,
	} {
		k, err := prog.CreateKernel(name)
		if err != nil {
			fail(ppcerr.Wrap(ppcerr.LibraryError, err, "creating %s kernel", name))
		}
		*dst = k
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

	statsBuf, _ := registry.Get(buffer.Statistics)
	readStats := func(mapped []byte, tick int) (stats.Totals, error) {
		return decodeStats(mapped, p.GridXY), nil
	}

	driver := gpudriver.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithQueues(queueCells, queueAgents).
		WithKernels(kernels).
		WithSortDriver(sortDriver).
		WithPlan(plan).
		WithMaxAgents(*maxAgents).
		WithInitialPopulation(p.InitSheep, p.InitWolves).
		WithIters(p.Iters).
		WithStatsBuffer(statsBuf).
		WithStatsReader(readStats).
		WithStatsSink(sink).
		WithProfiler(prof).
		Build("GpuDriver")
	prof.RegisterComponent(monitor, driver)
	atexit.Register(func() { _ = driver.Close() })

	runTicks(driver)

	if prof.Enabled() {
		for _, t := range prof.Report() {
			fmt.Printf("kernel %-16s count=%-6d wall=%v\n", t.Name, t.Count, t.WallClock)
		}
	}

	fmt.Printf("predprey-gpu: run %s wrote %d statistics rows to %s\n", runID, sink.Rows(), *statsPath)
	atexit.Exit(0)
}

// runInit enqueues the once-per-run init_cell/init_agent kernels against
// the freshly seeded RNG buffer. These two kernels exist only at setup
// time, so unlike the per-tick kernel set they are not part of
// gpudriver.Kernels.
func runInit(prog compute.Program, queue compute.CommandQueue, plan gpuplan.Plan, gridXY, maxAgents int) error {
	initCell, err := prog.CreateKernel("init_cell")
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "creating init_cell kernel")
	}
	initAgent, err := prog.CreateKernel("init_agent")
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "creating init_agent kernel")
	}

	cellEv, err := queue.Enqueue(initCell, "init_cell", []int{gridXY}, []int{plan.InitCellLWS}, nil)
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing init_cell")
	}
	if err := cellEv.Wait(); err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "waiting on init_cell")
	}

	agentEv, err := queue.Enqueue(initAgent, "init_agent", []int{maxAgents}, []int{plan.InitAgentLWS}, nil)
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing init_agent")
	}
	if err := agentEv.Wait(); err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "waiting on init_agent")
	}

	return queue.Finish()
}

// runTicks drives the driver to completion, recovering the *ppcerr.Error
// panics Tick uses to signal failure (sim.TickingComponent's Tick(now) bool
// signature has no room for a return error) and routing them through fail
// so every atexit.Register teardown — including the stats sink close that
// keeps rows written so far — still runs (SPEC_FULL.md §5).
func runTicks(driver *gpudriver.Driver) {
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

func applyDeviceProfile(path string, maxAgents *int, o *gpuplan.Overrides) {
	data, err := os.ReadFile(path)
	if err != nil {
		fail(ppcerr.Wrap(ppcerr.InvalidArgs, err, "reading device profile %q", path))
	}
	var prof devProfile
	if err := yaml.Unmarshal(data, &prof); err != nil {
		fail(ppcerr.Wrap(ppcerr.InvalidArgs, err, "parsing device profile %q", path))
	}

	if *maxAgents == 0 {
		*maxAgents = prof.MaxAgents
	}
	apply := func(field *int, fromProfile int) {
		if *field == 0 {
			*field = fromProfile
		}
	}
	apply(&o.LDef, prof.LDef)
	apply(&o.LInitCell, prof.LInitCell)
	apply(&o.LInitAgent, prof.LInitAgent)
	apply(&o.LGrass, prof.LGrass)
	apply(&o.LReduceGrass, prof.LReduceGrass)
	apply(&o.LReduceAgent, prof.LReduceAgent)
	apply(&o.LMoveAgent, prof.LMoveAgent)
	apply(&o.LSortAgent, prof.LSortAgent)
	apply(&o.LFindIndex, prof.LFindIndex)
	apply(&o.LActionAgent, prof.LActionAgent)
	apply(&o.VWGrass, prof.VWGrass)
	apply(&o.VWReduceGrass, prof.VWReduceGrass)
	apply(&o.VWReduceAgent, prof.VWReduceAgent)
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
// §1), so the stand-in device below runs every named kernel as a trivial
// pass-through, the same fake backend the test suites exercise the
// drivers against.
func hostPlatform() compute.Platform {
	names := []string{
		"init_cell", "init_agent", "reduce_grass1", "reduce_grass2",
		"reduce_agent1", "reduce_agent2", "read_stats", "grass",
		"move_agent", "find_cell_idx", "action_agent",
		"bitonic_sort_step", "bitonic_sort_local",
	}
	fns := map[string]fake.KernelFunc{}
	for _, n := range names {
		fns[n] = func(args map[int]any, g, l []int) error { return nil }
	}
	return fake.NewPlatform(fake.NewDevice(
		compute.DeviceInfo{
			Name:               "predprey-reference-gpu",
			MaxWorkGroupSize:   256,
			ComputeUnits:       32,
			PreferredVectorInt: 4,
		},
		fns,
	))
}

// gpuKernelSource is the program text handed to BuildProgram. The
// reference device above ignores it; a real OpenCL backend would compile
// it against the kernel bodies out of this repo's scope.
const gpuKernelSource = "// kernel bodies supplied by the device toolchain"

func fail(err error) {
	pe, ok := ppcerr.As(err)
	if !ok {
		log.Fatalf("predprey-gpu: %v", err)
	}
	fmt.Fprintf(os.Stderr, "predprey-gpu: %v\n", pe)
	atexit.Exit(pe.Code())
}
