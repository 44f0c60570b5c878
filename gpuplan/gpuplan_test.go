package gpuplan_test

import (
	"testing"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/gpuplan"
	"github.com/sarchlab/predprey/ppcerr"
)

func device(maxLWS int) compute.Device {
	return fake.NewDevice(compute.DeviceInfo{
		Name:               "fake-gpu",
		MaxWorkGroupSize:   maxLWS,
		ComputeUnits:       16,
		PreferredVectorInt: 4,
	}, nil)
}

func TestResourceValidation(t *testing.T) {
	b := gpuplan.NewBuilder(device(256)).WithPopulation(8, 4).WithMaxAgents(10)
	_, _, err := b.Build()
	if err == nil {
		t.Fatal("expected OutOfResources")
	}
	pe, ok := ppcerr.As(err)
	if !ok || pe.Kind != ppcerr.OutOfResources {
		t.Fatalf("got %v, want OutOfResources", err)
	}
}

func TestDefaultLWSIsDeviceMax(t *testing.T) {
	b := gpuplan.NewBuilder(device(128)).WithPopulation(5, 5).WithMaxAgents(100).WithGrid(400)
	plan, _, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.InitCellLWS != 128 {
		t.Fatalf("init_cell lws = %d, want 128 (device max)", plan.InitCellLWS)
	}
}

func TestOverrideAboveMaxIsClampedWithWarning(t *testing.T) {
	b := gpuplan.NewBuilder(device(128)).
		WithPopulation(5, 5).WithMaxAgents(100).WithGrid(400).
		WithOverrides(gpuplan.Overrides{LInitCell: 512})
	plan, warnings, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.InitCellLWS != 128 {
		t.Fatalf("init_cell lws = %d, want clamped to 128", plan.InitCellLWS)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a clamp warning")
	}
}

func TestReductionLWSRoundedToPowerOfTwo(t *testing.T) {
	b := gpuplan.NewBuilder(device(128)).
		WithPopulation(5, 5).WithMaxAgents(100).WithGrid(400).
		WithOverrides(gpuplan.Overrides{LReduceGrass: 24})
	plan, warnings, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.ReduceGrass.Reduce1LWS != 16 && plan.ReduceGrass.Reduce1LWS != 32 {
		t.Fatalf("reduce1 lws = %d, want a power of two near 24", plan.ReduceGrass.Reduce1LWS)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a rounding warning")
	}
}

func TestReductionSizingInvariant(t *testing.T) {
	cases := []struct {
		n, lws, vw int
	}{
		{400, 64, 1},
		{1000, 32, 4},
		{16777216, 256, 8},
		{3, 8, 1},
	}

	for _, c := range cases {
		b := gpuplan.NewBuilder(device(256)).
			WithPopulation(1, 1).WithMaxAgents(c.n).WithGrid(c.n).
			WithOverrides(gpuplan.Overrides{LReduceGrass: c.lws, VWReduceGrass: c.vw})
		plan, _, err := b.Build()
		if err != nil {
			t.Fatalf("n=%d: Build: %v", c.n, err)
		}

		rp := plan.ReduceGrass
		if rp.Reduce2LWS != rp.Reduce2GWS {
			t.Fatalf("n=%d: reduce2 lws %d != gws %d", c.n, rp.Reduce2LWS, rp.Reduce2GWS)
		}
		if !isPow2(rp.Reduce2LWS) {
			t.Fatalf("n=%d: reduce2 lws %d not a power of two", c.n, rp.Reduce2LWS)
		}
		if !isPow2(rp.Reduce1LWS) {
			t.Fatalf("n=%d: reduce1 lws %d not a power of two (requested lws should already be, or rounded)", c.n, rp.Reduce1LWS)
		}
		if ceilDiv(rp.Reduce1GWS, rp.Reduce1LWS) > rp.Reduce2LWS {
			t.Fatalf("n=%d: reduce1_gws/reduce1_lws = %d exceeds reduce2_lws = %d",
				c.n, ceilDiv(rp.Reduce1GWS, rp.Reduce1LWS), rp.Reduce2LWS)
		}
	}
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

func ceilDiv(a, b int) int { return (a + b - 1) / b }
