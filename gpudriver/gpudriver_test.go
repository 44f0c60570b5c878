package gpudriver_test

import (
	"testing"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/gpudriver"
	"github.com/sarchlab/predprey/gpuplan"
	"github.com/sarchlab/predprey/ppcerr"
	"github.com/sarchlab/predprey/sort"
	"github.com/sarchlab/predprey/stats"
)

func kernelNames() []string {
	return []string{
		"reduce_grass1", "reduce_grass2", "reduce_agent1", "reduce_agent2",
		"read_stats", "grass", "move_agent", "find_cell_idx", "action_agent",
		"bitonic_sort_step",
	}
}

func buildKernels(t *testing.T, prog compute.Program) gpudriver.Kernels {
	t.Helper()
	get := func(name string) compute.Kernel {
		k, err := prog.CreateKernel(name)
		if err != nil {
			t.Fatalf("CreateKernel %q: %v", name, err)
		}
		return k
	}
	return gpudriver.Kernels{
		ReduceGrass1: get("reduce_grass1"),
		ReduceGrass2: get("reduce_grass2"),
		ReduceAgent1: get("reduce_agent1"),
		ReduceAgent2: get("reduce_agent2"),
		ReadStats:    get("read_stats"),
		Grass:        get("grass"),
		MoveAgent:    get("move_agent"),
		FindCellIdx:  get("find_cell_idx"),
		ActionAgent:  get("action_agent"),
	}
}

func noopKernelFuncs() map[string]fake.KernelFunc {
	fns := map[string]fake.KernelFunc{}
	for _, n := range kernelNames() {
		fns[n] = func(args map[int]any, g, l []int) error { return nil }
	}
	return fns
}

func TestDriverProducesItersPlusOneRows(t *testing.T) {
	dev := fake.NewDevice(compute.DeviceInfo{Name: "fake-gpu", MaxWorkGroupSize: 64}, noopKernelFuncs())
	prog, err := dev.BuildProgram("", "")
	if err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}
	kernels := buildKernels(t, prog)

	sortDriver, err := sort.New("simple-bitonic", "")
	if err != nil {
		t.Fatalf("sort.New: %v", err)
	}
	if err := sortDriver.CreateKernels(prog); err != nil {
		t.Fatalf("sort CreateKernels: %v", err)
	}
	keysBuf, _ := dev.NewBuffer(64)
	if err := sortDriver.SetArgs(keysBuf); err != nil {
		t.Fatalf("sort SetArgs: %v", err)
	}

	plan, warnings, err := gpuplan.NewBuilder(dev).
		WithPopulation(2, 2).WithMaxAgents(1000).WithGrid(100).
		Build()
	if err != nil {
		t.Fatalf("gpuplan.Build: %v (warnings %v)", err, warnings)
	}

	engine := sim.NewSerialEngine()
	cellsQ := dev.NewCommandQueue()
	agentsQ := dev.NewCommandQueue()

	readCalls := 0
	readStats := func(mapped []byte, tick int) (stats.Totals, error) {
		readCalls++
		return stats.Totals{Sheep: 2, Wolves: 2, Grass: 1, GridXY: 100}, nil
	}

	statsBuf, _ := dev.NewBuffer(64)

	d := gpudriver.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithQueues(cellsQ, agentsQ).
		WithKernels(kernels).
		WithSortDriver(sortDriver).
		WithPlan(plan).
		WithMaxAgents(1000).
		WithInitialPopulation(2, 2).
		WithIters(3).
		WithStatsBuffer(statsBuf).
		WithStatsReader(readStats).
		Build("GpuDriver")

	for d.Tick(0) {
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if readCalls != 4 {
		t.Fatalf("readStats called %d times, want 4 (ticks 0..3)", readCalls)
	}
}

func TestOutOfResourcesWhenPopulationExceedsCapacity(t *testing.T) {
	dev := fake.NewDevice(compute.DeviceInfo{Name: "fake-gpu", MaxWorkGroupSize: 64}, noopKernelFuncs())
	prog, _ := dev.BuildProgram("", "")
	kernels := buildKernels(t, prog)

	sortDriver, _ := sort.New("simple-bitonic", "")
	_ = sortDriver.CreateKernels(prog)
	keysBuf, _ := dev.NewBuffer(64)
	_ = sortDriver.SetArgs(keysBuf)

	plan, _, err := gpuplan.NewBuilder(dev).WithPopulation(2, 2).WithMaxAgents(10).WithGrid(100).Build()
	if err != nil {
		t.Fatalf("gpuplan.Build: %v", err)
	}

	engine := sim.NewSerialEngine()
	cellsQ := dev.NewCommandQueue()
	agentsQ := dev.NewCommandQueue()
	statsBuf, _ := dev.NewBuffer(64)

	readStats := func(mapped []byte, tick int) (stats.Totals, error) {
		return stats.Totals{Sheep: 6, Wolves: 6, Grass: 1, GridXY: 100}, nil
	}

	d := gpudriver.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithQueues(cellsQ, agentsQ).
		WithKernels(kernels).
		WithSortDriver(sortDriver).
		WithPlan(plan).
		WithMaxAgents(10).
		WithInitialPopulation(2, 2).
		WithIters(3).
		WithStatsBuffer(statsBuf).
		WithStatsReader(readStats).
		Build("GpuDriver")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic carrying an OutOfResources error")
		}
		err, ok := r.(*ppcerr.Error)
		if !ok || err.Kind != ppcerr.OutOfResources {
			t.Fatalf("got %v, want OutOfResources", r)
		}
	}()

	for d.Tick(0) {
	}
}
