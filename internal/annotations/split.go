// SPDX-License-Identifier: MIT

package annotations

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DefaultSeed is the random seed used for splits when none is given.
const DefaultSeed = 1364

// Fractions describes how records are divided between the dataset splits.
// Train and Val must be positive; Test may be zero. The three must sum
// to one.
type Fractions struct {
	Train float64
	Val   float64
	Test  float64
}

// Validate checks the fractions.
func (f Fractions) Validate() error {
	for name, v := range map[string]float64{"train": f.Train, "val": f.Val, "test": f.Test} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s fraction %g out of range [0, 1]", name, v)
		}
	}
	if f.Train == 0 || f.Val == 0 {
		return fmt.Errorf("train and val fractions must be positive")
	}
	if sum := f.Train + f.Val + f.Test; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("fractions must sum to 1, got %g", sum)
	}
	return nil
}

// Split holds the stratified dataset splits.
type Split struct {
	Train []Record
	Val   []Record
	Test  []Record
}

// Split divides the records into train, val and test sets, stratified by
// label so each split keeps roughly the full set's label proportions. The
// split is deterministic for a given seed; pass 0 to use DefaultSeed.
func (s *Set) Split(f Fractions, seed int64) (*Split, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = DefaultSeed
	}
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- reproducible split, not security

	byLabel := make(map[string][]Record, len(s.labels))
	for _, rec := range s.records {
		byLabel[rec.Label] = append(byLabel[rec.Label], rec)
	}

	out := &Split{}
	// Iterate labels in first-appearance order so the split is stable.
	for _, label := range s.labels {
		group := byLabel[label]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})

		n := len(group)
		nTrain := int(math.Round(f.Train * float64(n)))
		nVal := int(math.Round(f.Val * float64(n)))
		if nTrain+nVal > n {
			nVal = n - nTrain
		}

		out.Train = append(out.Train, group[:nTrain]...)
		out.Val = append(out.Val, group[nTrain:nTrain+nVal]...)
		out.Test = append(out.Test, group[nTrain+nVal:]...)
	}
	return out, nil
}

// TrainWeights returns a sampling weight per training record, the
// reciprocal of its label's frequency in the training set. Rare labels get
// proportionally larger weights, which balances class sampling.
func (sp *Split) TrainWeights() []float64 {
	counts := make(map[string]int)
	for _, rec := range sp.Train {
		counts[rec.Label]++
	}
	weights := make([]float64, len(sp.Train))
	for i, rec := range sp.Train {
		weights[i] = 1 / float64(counts[rec.Label])
	}
	return weights
}

// Counts returns per-split record counts keyed by split name, for logging.
func (sp *Split) Counts() map[string]int {
	return map[string]int{
		"train": len(sp.Train),
		"val":   len(sp.Val),
		"test":  len(sp.Test),
	}
}

// WriteTrainCSV writes the training split to path with an extra "weight"
// column holding each record's sampling weight, so downstream trainers can
// do weighted sampling without recomputing label frequencies.
func (sp *Split) WriteTrainCSV(path string, opts Options) error {
	return writeCSVColumns(path, sp.Train, sp.TrainWeights(), opts)
}

// SortByID orders each split by record id. Useful for deterministic output
// files independent of shuffle order.
func (sp *Split) SortByID() {
	for _, recs := range [][]Record{sp.Train, sp.Val, sp.Test} {
		sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	}
}
