package params_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sarchlab/predprey/params"
	"github.com/sarchlab/predprey/ppcerr"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const validConfig = `INIT_SHEEP = 100
SHEEP_GAIN_FROM_FOOD = 4
SHEEP_REPRODUCE_THRESHOLD = 20
SHEEP_REPRODUCE_PROB = 5
INIT_WOLVES = 50
WOLVES_GAIN_FROM_FOOD = 20
WOLVES_REPRODUCE_THRESHOLD = 20
WOLVES_REPRODUCE_PROB = 5
GRASS_RESTART = 30
GRID_X = 100
GRID_Y = 100
ITERS = 10
`

func TestLoadValid(t *testing.T) {
	path := writeFile(t, validConfig)

	p, err := params.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.InitSheep != 100 || p.InitWolves != 50 || p.Iters != 10 {
		t.Fatalf("unexpected parse result: %+v", p)
	}
	if p.GridXY != 10000 {
		t.Fatalf("GridXY = %d, want 10000", p.GridXY)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := params.Load(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected an error")
	}
	pe, ok := ppcerr.As(err)
	if !ok || pe.Kind != ppcerr.ParamFileNotFound {
		t.Fatalf("got %v, want ParamFileNotFound", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(string) string
	}{
		{
			name: "duplicate key",
			mutate: func(s string) string {
				return s + "INIT_SHEEP = 1\n"
			},
		},
		{
			name: "unknown key",
			mutate: func(s string) string {
				return s + "BOGUS_KEY = 1\n"
			},
		},
		{
			name: "missing key",
			mutate: func(s string) string {
				return strings.Replace(s, "ITERS = 10\n", "", 1)
			},
		},
		{
			name: "malformed line",
			mutate: func(s string) string {
				return strings.Replace(s, "ITERS = 10\n", "ITERS ten\n", 1)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.mutate(validConfig))
			_, err := params.Load(path)
			if err == nil {
				t.Fatal("expected an error")
			}
			pe, ok := ppcerr.As(err)
			if !ok || pe.Kind != ppcerr.InvalidParams {
				t.Fatalf("got %v, want InvalidParams", err)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	path := writeFile(t, validConfig)
	p, err := params.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	serialized := params.Serialize(p)
	path2 := writeFile(t, serialized)
	p2, err := params.Load(path2)
	if err != nil {
		t.Fatalf("Load (round trip): %v", err)
	}

	if p != p2 {
		t.Fatalf("round trip mismatch: %+v != %+v", p, p2)
	}
}
