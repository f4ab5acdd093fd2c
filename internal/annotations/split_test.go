// SPDX-License-Identifier: MIT

package annotations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet(t *testing.T, perLabel map[string]int) *Set {
	t.Helper()
	s := &Set{
		opts:  Options{}.withDefaults(),
		seen:  make(map[string]bool),
		index: make(map[string]int),
	}
	i := 0
	for _, label := range []string{"railspace", "building", "water"} {
		for n := 0; n < perLabel[label]; n++ {
			s.add(Record{
				ID:    fmt.Sprintf("p%03d", i),
				Path:  fmt.Sprintf("p%03d.png", i),
				Label: label,
			})
			i++
		}
	}
	return s
}

func TestFractionsValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Fractions
		ok   bool
	}{
		{"standard", Fractions{Train: 0.7, Val: 0.15, Test: 0.15}, true},
		{"no test", Fractions{Train: 0.8, Val: 0.2}, true},
		{"sum below one", Fractions{Train: 0.5, Val: 0.2}, false},
		{"sum above one", Fractions{Train: 0.8, Val: 0.3}, false},
		{"zero val", Fractions{Train: 1.0, Val: 0}, false},
		{"negative", Fractions{Train: 1.2, Val: -0.2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSplitIsStratified(t *testing.T) {
	s := testSet(t, map[string]int{"railspace": 100, "building": 20, "water": 10})

	sp, err := s.Split(Fractions{Train: 0.7, Val: 0.2, Test: 0.1}, 0)
	require.NoError(t, err)

	assert.Len(t, sp.Train, 91)
	assert.Len(t, sp.Val, 26)
	assert.Len(t, sp.Test, 13)

	count := func(recs []Record, label string) int {
		n := 0
		for _, r := range recs {
			if r.Label == label {
				n++
			}
		}
		return n
	}
	// Each label keeps its proportions within rounding.
	assert.Equal(t, 70, count(sp.Train, "railspace"))
	assert.Equal(t, 14, count(sp.Train, "building"))
	assert.Equal(t, 7, count(sp.Train, "water"))
	assert.Equal(t, 1, count(sp.Test, "water"))
}

func TestSplitNoTestSet(t *testing.T) {
	s := testSet(t, map[string]int{"railspace": 10, "building": 10})

	sp, err := s.Split(Fractions{Train: 0.8, Val: 0.2}, 0)
	require.NoError(t, err)
	assert.Len(t, sp.Train, 16)
	assert.Len(t, sp.Val, 4)
	assert.Empty(t, sp.Test)
}

func TestSplitDeterministicPerSeed(t *testing.T) {
	a := testSet(t, map[string]int{"railspace": 30, "building": 30})
	b := testSet(t, map[string]int{"railspace": 30, "building": 30})

	spA, err := a.Split(Fractions{Train: 0.5, Val: 0.5}, 42)
	require.NoError(t, err)
	spB, err := b.Split(Fractions{Train: 0.5, Val: 0.5}, 42)
	require.NoError(t, err)
	assert.Equal(t, spA.Train, spB.Train)

	spC, err := b.Split(Fractions{Train: 0.5, Val: 0.5}, 43)
	require.NoError(t, err)
	assert.NotEqual(t, spA.Train, spC.Train)
}

func TestSplitCoversEveryRecordOnce(t *testing.T) {
	s := testSet(t, map[string]int{"railspace": 33, "building": 17, "water": 5})

	sp, err := s.Split(Fractions{Train: 0.6, Val: 0.3, Test: 0.1}, 0)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, recs := range [][]Record{sp.Train, sp.Val, sp.Test} {
		for _, r := range recs {
			seen[r.ID]++
		}
	}
	assert.Len(t, seen, s.Len())
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %s assigned to more than one split", id)
	}
}

func TestTrainWeights(t *testing.T) {
	sp := &Split{Train: []Record{
		{ID: "a", Label: "railspace"},
		{ID: "b", Label: "railspace"},
		{ID: "c", Label: "building"},
	}}
	w := sp.TrainWeights()
	require.Len(t, w, 3)
	assert.InDelta(t, 0.5, w[0], 1e-9)
	assert.InDelta(t, 0.5, w[1], 1e-9)
	assert.InDelta(t, 1.0, w[2], 1e-9)
}

func TestWriteTrainCSVIncludesWeights(t *testing.T) {
	sp := &Split{Train: []Record{
		{ID: "a", Path: "a.png", Label: "railspace"},
		{ID: "b", Path: "b.png", Label: "railspace"},
		{ID: "c", Path: "c.png", Label: "building"},
	}}

	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, sp.WriteTrainCSV(path, Options{}))

	data, err := os.ReadFile(path) // #nosec G304
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "image_id,image_path,label,weight", lines[0])
	assert.Equal(t, "a,a.png,railspace,0.5", lines[1])
	assert.Equal(t, "c,c.png,building,1", lines[3])
}

func TestSplitCounts(t *testing.T) {
	sp := &Split{
		Train: []Record{{ID: "a"}, {ID: "b"}},
		Val:   []Record{{ID: "c"}},
	}
	assert.Equal(t, map[string]int{"train": 2, "val": 1, "test": 0}, sp.Counts())
}
