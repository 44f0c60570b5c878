package gpudriver_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/gpudriver"
	"github.com/sarchlab/predprey/gpuplan"
	"github.com/sarchlab/predprey/sort"
	"github.com/sarchlab/predprey/stats"
)

var _ = Describe("Driver pipeline ordering", func() {
	var order []string

	recordingKernel := func(name string) fake.KernelFunc {
		return func(args map[int]any, g, l []int) error {
			order = append(order, name)
			return nil
		}
	}

	It("runs read_stats only after both reduction chains complete, every tick", func() {
		order = nil

		fns := map[string]fake.KernelFunc{}
		for _, n := range kernelNames() {
			fns[n] = recordingKernel(n)
		}

		dev := fake.NewDevice(compute.DeviceInfo{Name: "fake-gpu", MaxWorkGroupSize: 64}, fns)
		prog, err := dev.BuildProgram("", "")
		Expect(err).NotTo(HaveOccurred())

		get := func(name string) compute.Kernel {
			k, err := prog.CreateKernel(name)
			Expect(err).NotTo(HaveOccurred())
			return k
		}
		kernels := gpudriver.Kernels{
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

		sortDriver, err := sort.New("simple-bitonic", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(sortDriver.CreateKernels(prog)).To(Succeed())
		keysBuf, _ := dev.NewBuffer(64)
		Expect(sortDriver.SetArgs(keysBuf)).To(Succeed())

		plan, _, err := gpuplan.NewBuilder(dev).
			WithPopulation(2, 2).WithMaxAgents(1000).WithGrid(100).
			Build()
		Expect(err).NotTo(HaveOccurred())

		engine := sim.NewSerialEngine()
		cellsQ := dev.NewCommandQueue()
		agentsQ := dev.NewCommandQueue()
		statsBuf, _ := dev.NewBuffer(64)

		readStats := func(mapped []byte, tick int) (stats.Totals, error) {
			return stats.Totals{Sheep: 2, Wolves: 2, Grass: 1, GridXY: 100}, nil
		}

		d := gpudriver.NewBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithQueues(cellsQ, agentsQ).
			WithKernels(kernels).
			WithSortDriver(sortDriver).
			WithPlan(plan).
			WithMaxAgents(1000).
			WithInitialPopulation(2, 2).
			WithIters(2).
			WithStatsBuffer(statsBuf).
			WithStatsReader(readStats).
			Build("GpuDriver")

		for d.Tick(0) {
		}
		Expect(d.Close()).To(Succeed())

		// Every read_stats must be preceded, since the previous read_stats
		// in program order, by both halves of the reduction pipeline for
		// that tick.
		readAt := indicesOf(order, "read_stats")
		Expect(readAt).To(HaveLen(3)) // ticks 0, 1, 2

		prev := -1
		for _, idx := range readAt {
			before := order[prev+1 : idx]
			Expect(before).To(ContainElement("reduce_grass2"))
			Expect(before).To(ContainElement("reduce_agent2"))
			prev = idx
		}

		// The middle tick (the only one that isn't reduction-only) is the
		// sole tick where action_agent actually runs.
		Expect(countOf(order, "action_agent")).To(Equal(1))
	})
})

func indicesOf(haystack []string, needle string) []int {
	var out []int
	for i, s := range haystack {
		if s == needle {
			out = append(out, i)
		}
	}
	return out
}

func countOf(haystack []string, needle string) int {
	return len(indicesOf(haystack, needle))
}
