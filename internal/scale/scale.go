// Package scale maps raw correct-answer counts onto the external
// 100–200 rating scale.
package scale

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strconv"
)

// Table is an immutable raw → scaled lookup.
type Table struct {
	scores    map[int]int
	maxRaw    int
	maxScaled int
}

// New copies scores into a Table.
func New(scores map[int]int) Table {
	t := Table{scores: maps.Clone(scores)}
	if t.scores == nil {
		t.scores = map[int]int{}
	}
	for raw, scaled := range t.scores {
		if raw > t.maxRaw {
			t.maxRaw = raw
		}
		if scaled > t.maxScaled {
			t.maxScaled = scaled
		}
	}
	return t
}

// Lookup returns the scaled score for raw, or 0 when raw is outside the table.
func (t Table) Lookup(raw int) int {
	return t.scores[raw]
}

// Contains reports whether raw is in the table's domain.
func (t Table) Contains(raw int) bool {
	_, ok := t.scores[raw]
	return ok
}

// MaxRaw returns the largest raw score in the table.
func (t Table) MaxRaw() int { return t.maxRaw }

// MaxScaled returns the largest scaled score in the table.
func (t Table) MaxScaled() int { return t.maxScaled }

// Len returns the number of entries.
func (t Table) Len() int { return len(t.scores) }

const (
	passRaw    = 25
	totalRaw   = 140
	passScaled = 100
	topScaled  = 200
)

var defaultTable = New(linear(passRaw, totalRaw, passScaled, topScaled))

// Default returns the built-in table: raw scores below the pass mark are
// outside the domain and therefore scale to 0.
func Default() Table {
	return defaultTable
}

func linear(fromRaw, toRaw, fromScaled, toScaled int) map[int]int {
	m := make(map[int]int, toRaw-fromRaw+1)
	span := toRaw - fromRaw
	for raw := fromRaw; raw <= toRaw; raw++ {
		// Integer rounding of fromScaled + (raw-fromRaw)*(toScaled-fromScaled)/span.
		m[raw] = fromScaled + ((raw-fromRaw)*(toScaled-fromScaled)*2+span)/(span*2)
	}
	return m
}

// LoadFile reads a JSON object of the form {"25": 100, "26": 101, ...}.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read scale file: %w", err)
	}
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return Table{}, fmt.Errorf("parse scale file %s: %w", path, err)
	}
	scores := make(map[int]int, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return Table{}, fmt.Errorf("scale file %s: raw score %q: %w", path, k, err)
		}
		if n < 0 || v < 0 {
			return Table{}, fmt.Errorf("scale file %s: negative entry %d=%d", path, n, v)
		}
		scores[n] = v
	}
	return New(scores), nil
}
