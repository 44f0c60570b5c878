package cpudriver_test

import (
	"testing"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/cpudriver"
	"github.com/sarchlab/predprey/cpuplan"
	"github.com/sarchlab/predprey/stats"
)

func TestDriverProducesOneRowPerTickPlusInitial(t *testing.T) {
	var moveGrowCalls, actionsStatsCalls int

	dev := fake.NewDevice(compute.DeviceInfo{Name: "fake-cpu", MaxWorkGroupSize: 64}, map[string]fake.KernelFunc{
		"move_grow":     func(args map[int]any, g, l []int) error { moveGrowCalls++; return nil },
		"actions_stats": func(args map[int]any, g, l []int) error { actionsStatsCalls++; return nil },
	})

	prog, err := dev.BuildProgram("", "")
	if err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}
	moveGrow, err := prog.CreateKernel("move_grow")
	if err != nil {
		t.Fatalf("CreateKernel move_grow: %v", err)
	}
	actionsStats, err := prog.CreateKernel("actions_stats")
	if err != nil {
		t.Fatalf("CreateKernel actions_stats: %v", err)
	}

	plan, err := cpuplan.NewBuilder(12).WithGWS(4).WithLWS(2).Build()
	if err != nil {
		t.Fatalf("cpuplan.Build: %v", err)
	}

	engine := sim.NewSerialEngine()
	queue := dev.NewCommandQueue()

	readCalls := 0
	readStats := func(tick int) (stats.Totals, error) {
		readCalls++
		return stats.Totals{Sheep: tick, Wolves: tick, Grass: 1, GridXY: 100}, nil
	}

	d := cpudriver.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithQueue(queue).
		WithKernels(cpudriver.Kernels{MoveGrow: moveGrow, ActionsStats: actionsStats}).
		WithPlan(plan).
		WithIters(3).
		WithStatsReader(readStats).
		Build("CpuDriver")

	for {
		madeProgress := d.Tick(0)
		if !madeProgress {
			break
		}
	}

	if readCalls != 4 {
		t.Fatalf("readStats called %d times, want 4 (ticks 0..3)", readCalls)
	}
	if moveGrowCalls != plan.RowsPerWorker*3 {
		t.Fatalf("move_grow enqueued %d times, want %d", moveGrowCalls, plan.RowsPerWorker*3)
	}
	if actionsStatsCalls != plan.RowsPerWorker*3 {
		t.Fatalf("actions_stats enqueued %d times, want %d", actionsStatsCalls, plan.RowsPerWorker*3)
	}
}
