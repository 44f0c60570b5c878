package device_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/device"
)

func twoDevices() *fake.Platform {
	d0 := fake.NewDevice(compute.DeviceInfo{Name: "cpu0", MaxWorkGroupSize: 1, ComputeUnits: 8}, nil)
	d1 := fake.NewDevice(compute.DeviceInfo{Name: "gpu0", MaxWorkGroupSize: 256, ComputeUnits: 32}, nil)
	return fake.NewPlatform(d0, d1)
}

func TestBindExplicitIndex(t *testing.T) {
	p := twoDevices()
	b := device.NewBuilder().WithPlatform(p).WithIndex(1).Build()

	dev, err := b.Bind()
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if dev.Info().Name != "gpu0" {
		t.Fatalf("got %q, want gpu0", dev.Info().Name)
	}
}

func TestBindOutOfRange(t *testing.T) {
	p := twoDevices()
	b := device.NewBuilder().WithPlatform(p).WithIndex(5).Build()

	_, err := b.Bind()
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestBindSingleDeviceNoIndex(t *testing.T) {
	d0 := fake.NewDevice(compute.DeviceInfo{Name: "only"}, nil)
	p := fake.NewPlatform(d0)
	b := device.NewBuilder().WithPlatform(p).Build()

	dev, err := b.Bind()
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if dev.Info().Name != "only" {
		t.Fatalf("got %q, want only", dev.Info().Name)
	}
}

func TestBindAmbiguousWithoutPromptFails(t *testing.T) {
	p := twoDevices()
	b := device.NewBuilder().WithPlatform(p).Build()

	_, err := b.Bind()
	if err == nil {
		t.Fatal("expected an error when ambiguous and non-interactive")
	}
}

func TestBindInteractive(t *testing.T) {
	p := twoDevices()
	in := strings.NewReader("1\n")
	var out bytes.Buffer
	b := device.NewBuilder().WithPlatform(p).WithInteractivePrompt(in, &out).Build()

	dev, err := b.Bind()
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if dev.Info().Name != "gpu0" {
		t.Fatalf("got %q, want gpu0", dev.Info().Name)
	}
	if !strings.Contains(out.String(), "gpu0") {
		t.Fatal("expected device menu to list gpu0")
	}
}

func TestCompileConstantsOptions(t *testing.T) {
	c := device.CompileConstants{
		MaxAgents:    1024,
		CellNum:      100,
		GridX:        10,
		GridY:        10,
		Iters:        5,
		AgentWidth64: true,
	}
	opts := c.Options()
	if !strings.Contains(opts, "-DMAX_AGENTS=1024") {
		t.Fatalf("options missing MAX_AGENTS: %s", opts)
	}
	if !strings.Contains(opts, "-DPPG_AG_64") {
		t.Fatalf("options missing PPG_AG_64: %s", opts)
	}
}

func TestListDevices(t *testing.T) {
	p := twoDevices()
	var out bytes.Buffer
	device.ListDevices(&out, p)

	if !strings.Contains(out.String(), "cpu0") || !strings.Contains(out.String(), "gpu0") {
		t.Fatalf("device table missing entries: %s", out.String())
	}
}
