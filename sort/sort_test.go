package sort_test

import (
	"encoding/binary"
	"testing"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/sort"
)

// compareExchange is the standard bitonic compare-exchange body, reused
// by both the one-pass-per-enqueue and the local-stage kernels since they
// implement the same network over the same key layout.
func compareExchange(data []byte, j, k, idx int) {
	ixj := idx ^ j
	if ixj <= idx {
		return
	}
	up := (idx & k) == 0
	a := readU32(data, idx)
	b := readU32(data, ixj)
	if (up && a > b) || (!up && a < b) {
		writeU32(data, idx, b)
		writeU32(data, ixj, a)
	}
}

func readU32(data []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(data[i*4:])
}

func writeU32(data []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(data[i*4:], v)
}

func stepKernel(data []byte) fake.KernelFunc {
	return func(args map[int]any, globalSize, localSize []int) error {
		j := int(args[1].(int32))
		k := int(args[2].(int32))
		n := globalSize[0] * 2
		for idx := 0; idx < n; idx++ {
			compareExchange(data, j, k, idx)
		}
		return nil
	}
}

func localStageKernel(data []byte) fake.KernelFunc {
	return func(args map[int]any, globalSize, localSize []int) error {
		jStart := int(args[1].(int32))
		k := int(args[2].(int32))
		n := globalSize[0] * 2
		for j := jStart; j > 0; j >>= 1 {
			for idx := 0; idx < n; idx++ {
				compareExchange(data, j, k, idx)
			}
		}
		return nil
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func runVariant(t *testing.T, name string, input []uint32) []uint32 {
	t.Helper()

	padded := nextPow2(len(input))
	data := make([]byte, padded*4)
	for i := range padded {
		writeU32(data, i, 0xFFFFFFFF)
	}
	for i, v := range input {
		writeU32(data, i, v)
	}

	dev := fake.NewDevice(compute.DeviceInfo{Name: "fake", MaxWorkGroupSize: 64}, map[string]fake.KernelFunc{
		"bitonic_sort_step":  stepKernel(data),
		"bitonic_sort_local": localStageKernel(data),
	})

	driver, err := sort.New(name, "")
	if err != nil {
		t.Fatalf("New(%q): %v", name, err)
	}

	prog, err := dev.BuildProgram("", "")
	if err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}
	if err := driver.CreateKernels(prog); err != nil {
		t.Fatalf("CreateKernels: %v", err)
	}

	keysBuf, err := dev.NewBuffer(len(data))
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if err := driver.SetArgs(keysBuf); err != nil {
		t.Fatalf("SetArgs: %v", err)
	}

	queue := dev.NewCommandQueue()
	ev, err := driver.DriveIterations(queue, len(input), 8, nil)
	if err != nil {
		t.Fatalf("DriveIterations: %v", err)
	}
	if err := ev.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	out := make([]uint32, len(input))
	for i := range out {
		out[i] = readU32(data, i)
	}
	return out
}

func TestSimpleBitonicSortsAscending(t *testing.T) {
	input := []uint32{9, 3, 7, 1, 8, 2, 6, 4}
	out := runVariant(t, "simple-bitonic", input)
	assertAscending(t, out)
}

func TestStageOptimisedBitonicSortsAscending(t *testing.T) {
	input := []uint32{9, 3, 7, 1, 8, 2, 6, 4, 0, 5}
	out := runVariant(t, "stage-optimised-bitonic", input)
	assertAscending(t, out)
}

func assertAscending(t *testing.T, out []uint32) {
	t.Helper()
	for i := 1; i < len(out); i++ {
		if out[i-1] > out[i] {
			t.Fatalf("output not sorted: %v", out)
		}
	}
}

func TestNewUnknownVariant(t *testing.T) {
	if _, err := sort.New("nonexistent", ""); err == nil {
		t.Fatal("expected an error for an unregistered variant")
	}
}

func TestNamesListsRegisteredVariants(t *testing.T) {
	names := sort.Names()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["simple-bitonic"] || !found["stage-optimised-bitonic"] {
		t.Fatalf("Names() = %v, want both bitonic variants registered", names)
	}
}
