package scale

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookup(t *testing.T) {
	table := New(map[int]int{0: 100, 1: 120, 2: 150, 3: 200})

	tests := []struct {
		name string
		raw  int
		want int
	}{
		{"zero", 0, 100},
		{"inside", 2, 150},
		{"top", 3, 200},
		{"above range", 4, 0},
		{"negative", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Lookup(tt.raw); got != tt.want {
				t.Errorf("Lookup(%d) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNewCopiesInput(t *testing.T) {
	src := map[int]int{1: 10}
	table := New(src)
	src[1] = 99
	src[2] = 20

	if table.Lookup(1) != 10 {
		t.Errorf("table changed after source mutation: %d", table.Lookup(1))
	}
	if table.Contains(2) {
		t.Error("table gained an entry after source mutation")
	}
}

func TestDefaultTable(t *testing.T) {
	table := Default()

	if table.MaxRaw() != 140 {
		t.Errorf("MaxRaw() = %d, want 140", table.MaxRaw())
	}
	if table.MaxScaled() != 200 {
		t.Errorf("MaxScaled() = %d, want 200", table.MaxScaled())
	}
	if got := table.Lookup(25); got != 100 {
		t.Errorf("Lookup(25) = %d, want 100", got)
	}
	if got := table.Lookup(140); got != 200 {
		t.Errorf("Lookup(140) = %d, want 200", got)
	}
	if got := table.Lookup(24); got != 0 {
		t.Errorf("Lookup(24) = %d, want 0 below the pass mark", got)
	}
	if got := table.Lookup(141); got != 0 {
		t.Errorf("Lookup(141) = %d, want 0", got)
	}

	prev := 0
	for raw := 25; raw <= 140; raw++ {
		v := table.Lookup(raw)
		if v < prev {
			t.Fatalf("table not monotonic at %d: %d < %d", raw, v, prev)
		}
		prev = v
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "scale.json")
	if err := os.WriteFile(good, []byte(`{"0": 0, "1": 150, "2": 200}`), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadFile(good)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if table.Len() != 3 || table.Lookup(1) != 150 {
		t.Errorf("unexpected table: len=%d lookup(1)=%d", table.Len(), table.Lookup(1))
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"one": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected error for non-numeric raw score")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
