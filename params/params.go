// Package params loads and validates predator-prey simulation parameters
// from the "KEY = INT" text format described in spec.md §4.A and §6.
package params

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/predprey/ppcerr"
)

// Parameters holds the twelve simulation parameters, immutable after load.
type Parameters struct {
	InitSheep                int
	SheepGainFromFood        int
	SheepReproduceThreshold  int
	SheepReproduceProb       int
	InitWolves               int
	WolvesGainFromFood       int
	WolvesReproduceThreshold int
	WolvesReproduceProb      int
	GrassRestart             int
	GridX                    int
	GridY                    int
	Iters                    int

	// GridXY is derived as GridX * GridY.
	GridXY int
}

// key indexes one of the twelve required keys, used to detect duplicates
// and missing entries with a bitmask, the way the original C loader does.
type key int

const (
	keyInitSheep key = iota
	keySheepGainFromFood
	keySheepReproduceThreshold
	keySheepReproduceProb
	keyInitWolves
	keyWolvesGainFromFood
	keyWolvesReproduceThreshold
	keyWolvesReproduceProb
	keyGrassRestart
	keyGridX
	keyGridY
	keyIters

	numKeys
)

var keyNames = map[string]key{
	"INIT_SHEEP":                 keyInitSheep,
	"SHEEP_GAIN_FROM_FOOD":       keySheepGainFromFood,
	"SHEEP_REPRODUCE_THRESHOLD":  keySheepReproduceThreshold,
	"SHEEP_REPRODUCE_PROB":       keySheepReproduceProb,
	"INIT_WOLVES":                keyInitWolves,
	"WOLVES_GAIN_FROM_FOOD":      keyWolvesGainFromFood,
	"WOLVES_REPRODUCE_THRESHOLD": keyWolvesReproduceThreshold,
	"WOLVES_REPRODUCE_PROB":      keyWolvesReproduceProb,
	"GRASS_RESTART":              keyGrassRestart,
	"GRID_X":                     keyGridX,
	"GRID_Y":                     keyGridY,
	"ITERS":                      keyIters,
}

const allKeysMask = (1 << numKeys) - 1

// Load reads and validates a parameters file. Each of the twelve keys must
// appear exactly once; a missing file is ParamFileNotFound, anything else
// malformed is InvalidParams.
func Load(path string) (Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parameters{}, ppcerr.New(ppcerr.ParamFileNotFound, "parameters file %q not found", path)
		}
		return Parameters{}, ppcerr.Wrap(ppcerr.ParamFileNotFound, err, "opening parameters file %q", path)
	}
	defer f.Close()

	return parse(f, path)
}

func parse(r *os.File, path string) (Parameters, error) {
	var p Parameters
	var seen int

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		name, value, err := parseLine(text)
		if err != nil {
			return Parameters{}, ppcerr.Wrap(ppcerr.InvalidParams, err,
				"%s:%d: malformed line %q", path, line, text)
		}

		k, ok := keyNames[name]
		if !ok {
			return Parameters{}, ppcerr.New(ppcerr.InvalidParams,
				"%s:%d: unknown parameter %q", path, line, name)
		}

		bit := 1 << uint(k)
		if seen&bit != 0 {
			return Parameters{}, ppcerr.New(ppcerr.InvalidParams,
				"%s:%d: duplicate parameter %q", path, line, name)
		}
		seen |= bit

		assign(&p, k, value)
	}
	if err := scanner.Err(); err != nil {
		return Parameters{}, ppcerr.Wrap(ppcerr.InvalidParams, err, "reading %q", path)
	}

	if seen != allKeysMask {
		return Parameters{}, ppcerr.New(ppcerr.InvalidParams,
			"%s: missing required parameters (have mask %#x, want %#x)", path, seen, allKeysMask)
	}

	p.GridXY = p.GridX * p.GridY

	return p, nil
}

func parseLine(text string) (name string, value int, err error) {
	parts := strings.SplitN(text, "=", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected KEY = INT")
	}

	name = strings.TrimSpace(parts[0])
	valStr := strings.TrimSpace(parts[1])

	value, err = strconv.Atoi(valStr)
	if err != nil {
		return "", 0, fmt.Errorf("value %q is not an integer: %w", valStr, err)
	}

	return name, value, nil
}

func assign(p *Parameters, k key, value int) {
	switch k {
	case keyInitSheep:
		p.InitSheep = value
	case keySheepGainFromFood:
		p.SheepGainFromFood = value
	case keySheepReproduceThreshold:
		p.SheepReproduceThreshold = value
	case keySheepReproduceProb:
		p.SheepReproduceProb = value
	case keyInitWolves:
		p.InitWolves = value
	case keyWolvesGainFromFood:
		p.WolvesGainFromFood = value
	case keyWolvesReproduceThreshold:
		p.WolvesReproduceThreshold = value
	case keyWolvesReproduceProb:
		p.WolvesReproduceProb = value
	case keyGrassRestart:
		p.GrassRestart = value
	case keyGridX:
		p.GridX = value
	case keyGridY:
		p.GridY = value
	case keyIters:
		p.Iters = value
	}
}

// Serialize renders the parameters back to the "KEY = INT" text format, the
// inverse of Load (used by the round-trip property test in spec.md §8).
func Serialize(p Parameters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INIT_SHEEP = %d\n", p.InitSheep)
	fmt.Fprintf(&b, "SHEEP_GAIN_FROM_FOOD = %d\n", p.SheepGainFromFood)
	fmt.Fprintf(&b, "SHEEP_REPRODUCE_THRESHOLD = %d\n", p.SheepReproduceThreshold)
	fmt.Fprintf(&b, "SHEEP_REPRODUCE_PROB = %d\n", p.SheepReproduceProb)
	fmt.Fprintf(&b, "INIT_WOLVES = %d\n", p.InitWolves)
	fmt.Fprintf(&b, "WOLVES_GAIN_FROM_FOOD = %d\n", p.WolvesGainFromFood)
	fmt.Fprintf(&b, "WOLVES_REPRODUCE_THRESHOLD = %d\n", p.WolvesReproduceThreshold)
	fmt.Fprintf(&b, "WOLVES_REPRODUCE_PROB = %d\n", p.WolvesReproduceProb)
	fmt.Fprintf(&b, "GRASS_RESTART = %d\n", p.GrassRestart)
	fmt.Fprintf(&b, "GRID_X = %d\n", p.GridX)
	fmt.Fprintf(&b, "GRID_Y = %d\n", p.GridY)
	fmt.Fprintf(&b, "ITERS = %d\n", p.Iters)
	return b.String()
}
