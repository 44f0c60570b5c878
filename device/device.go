// Package device implements the DeviceBinder component (spec.md §4.C):
// enumerating compute devices, selecting one, and building the device
// program with a compile-option string that embeds simulation constants.
package device

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/ppcerr"
)

// CompileConstants are the simulation constants embedded into the compile
// option string (spec.md §6), named exactly as the kernel-program compile
// options table lists them.
type CompileConstants struct {
	MaxAgents     int
	MaxAgentShuf  int // cpu only
	RowsPerWorkItem int // cpu only

	VWGrass        int // gpu only
	VWGrassReduce  int // gpu only
	VWAgentReduce  int // gpu only
	ReduceGrassNumWorkgroups int // gpu only
	MaxLWS         int // gpu only

	CellNum int
	GridX   int
	GridY   int
	Iters   int

	InitSheep                int
	SheepGainFromFood        int
	SheepReproduceThreshold  int
	SheepReproduceProb       int
	InitWolves               int
	WolvesGainFromFood       int
	WolvesReproduceThreshold int
	WolvesReproduceProb      int
	GrassRestart             int

	// AgentWidth64 selects the PPG_AG_64 (true) or PPG_AG_32 (false) tag.
	AgentWidth64 bool

	// RNGVariant names the RNG implementation selected on the command line.
	// Options does not render it into the compile option string.
	RNGVariant string

	// Extra carries any additional user-supplied --compiler options,
	// appended verbatim after the generated constants.
	Extra string
}

// Options renders the constants (and any Extra string) as a single
// OpenCL-style "-D KEY=VALUE ..." compiler option string.
func (c CompileConstants) Options() string {
	var b strings.Builder

	def := func(key string, val int) {
		fmt.Fprintf(&b, "-D%s=%d ", key, val)
	}

	def("MAX_AGENTS", c.MaxAgents)
	if c.MaxAgentShuf != 0 {
		def("MAX_AGENT_SHUF", c.MaxAgentShuf)
	}
	if c.RowsPerWorkItem != 0 {
		def("ROWS_PER_WORKITEM", c.RowsPerWorkItem)
	}
	if c.VWGrass != 0 {
		def("VW_GRASS", c.VWGrass)
	}
	if c.VWGrassReduce != 0 {
		def("VW_GRASSREDUCE", c.VWGrassReduce)
	}
	if c.VWAgentReduce != 0 {
		def("VW_AGENTREDUCE", c.VWAgentReduce)
	}
	if c.ReduceGrassNumWorkgroups != 0 {
		def("REDUCE_GRASS_NUM_WORKGROUPS", c.ReduceGrassNumWorkgroups)
	}
	if c.MaxLWS != 0 {
		def("MAX_LWS", c.MaxLWS)
	}
	def("CELL_NUM", c.CellNum)
	def("GRID_X", c.GridX)
	def("GRID_Y", c.GridY)
	def("ITERS", c.Iters)
	def("INIT_SHEEP", c.InitSheep)
	def("SHEEP_GAIN_FROM_FOOD", c.SheepGainFromFood)
	def("SHEEP_REPRODUCE_THRESHOLD", c.SheepReproduceThreshold)
	def("SHEEP_REPRODUCE_PROB", c.SheepReproduceProb)
	def("INIT_WOLVES", c.InitWolves)
	def("WOLVES_GAIN_FROM_FOOD", c.WolvesGainFromFood)
	def("WOLVES_REPRODUCE_THRESHOLD", c.WolvesReproduceThreshold)
	def("WOLVES_REPRODUCE_PROB", c.WolvesReproduceProb)
	def("GRASS_RESTART", c.GrassRestart)

	if c.AgentWidth64 {
		fmt.Fprint(&b, "-DPPG_AG_64 ")
	} else {
		fmt.Fprint(&b, "-DPPG_AG_32 ")
	}

	if c.Extra != "" {
		b.WriteString(c.Extra)
	}

	return strings.TrimSpace(b.String())
}

// Binder enumerates and binds to one compute device.
type Binder struct {
	platform compute.Platform
	index    int // -1 means "not explicitly chosen"
	prompt   io.Reader
	out      io.Writer
}

// Builder builds a Binder.
type Builder struct {
	platform compute.Platform
	index    int
	prompt   io.Reader
	out      io.Writer
}

// NewBuilder creates a Builder with no device pre-selected.
func NewBuilder() Builder {
	return Builder{index: -1}
}

// WithPlatform sets the platform to enumerate devices from.
func (b Builder) WithPlatform(p compute.Platform) Builder {
	b.platform = p
	return b
}

// WithIndex sets the explicit device index (spec.md §6 --device INDEX).
// A negative value means "choose interactively if ambiguous".
func (b Builder) WithIndex(index int) Builder {
	b.index = index
	return b
}

// WithInteractivePrompt sets the reader/writer used for the interactive
// device menu when no index is given and more than one device exists.
// Defaults to nil/nil, in which case Bind fails rather than blocking.
func (b Builder) WithInteractivePrompt(in io.Reader, out io.Writer) Builder {
	b.prompt = in
	b.out = out
	return b
}

// Build constructs a Binder.
func (b Builder) Build() Binder {
	return Binder{platform: b.platform, index: b.index, prompt: b.prompt, out: b.out}
}

// Bind selects a device: the explicit index if given, the sole device if
// there is only one, or an interactive choice among several.
func (bd Binder) Bind() (compute.Device, error) {
	devices := bd.platform.Devices()
	if len(devices) == 0 {
		return nil, ppcerr.New(ppcerr.LibraryError, "no compute devices available")
	}

	if bd.index >= 0 {
		if bd.index >= len(devices) {
			return nil, ppcerr.New(ppcerr.InvalidArgs, "device index %d out of range (have %d devices)", bd.index, len(devices))
		}
		return devices[bd.index], nil
	}

	if len(devices) == 1 {
		return devices[0], nil
	}

	return bd.chooseInteractively(devices)
}

func (bd Binder) chooseInteractively(devices []compute.Device) (compute.Device, error) {
	if bd.prompt == nil || bd.out == nil {
		return nil, ppcerr.New(ppcerr.InvalidArgs,
			"more than one device available and no --device index given; interactive selection unavailable")
	}

	fmt.Fprintln(bd.out, "Multiple compute devices found:")
	for i, d := range devices {
		fmt.Fprintf(bd.out, "  [%d] %s\n", i, d.Info().Name)
	}
	fmt.Fprint(bd.out, "Select a device index: ")

	scanner := bufio.NewScanner(bd.prompt)
	if !scanner.Scan() {
		return nil, ppcerr.New(ppcerr.InvalidArgs, "no device index entered")
	}

	var idx int
	if _, err := fmt.Sscanf(strings.TrimSpace(scanner.Text()), "%d", &idx); err != nil {
		return nil, ppcerr.Wrap(ppcerr.InvalidArgs, err, "parsing device index")
	}
	if idx < 0 || idx >= len(devices) {
		return nil, ppcerr.New(ppcerr.InvalidArgs, "device index %d out of range", idx)
	}

	return devices[idx], nil
}

// Build compiles the given kernel source against the bound device with the
// constants' generated option string.
func Build(dev compute.Device, source string, constants CompileConstants) (compute.Program, error) {
	prog, err := dev.BuildProgram(source, constants.Options())
	if err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "building program")
	}
	return prog, nil
}

// ListDevices renders the platform's devices as a table (spec.md §6
// --list-devices), using go-pretty for column alignment in the teacher's
// reporting style.
func ListDevices(w io.Writer, p compute.Platform) {
	devices := p.Devices()
	renderDeviceTable(w, devices)
}
