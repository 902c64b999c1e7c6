// Package iforest implements an isolation forest: an ensemble of random
// binary trees in which outliers are isolated in fewer splits than inliers.
package iforest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// autoSampleCap is the subsample size used when Params.MaxSamples is 0.
const autoSampleCap = 256

// Params are the forest hyperparameters.
type Params struct {
	NEstimators   int
	MaxSamples    int     // 0 = min(256, n)
	MaxFeatures   float64 // fraction of columns each tree may split on
	Bootstrap     bool
	Contamination float64
	Workers       int // <= 0 = GOMAXPROCS
	Seed          uint64
}

// Forest is a fitted model. It is safe for concurrent scoring.
type Forest struct {
	Trees         []Tree  `json:"trees"`
	SampleSize    int     `json:"sample_size"`
	NFeatures     int     `json:"n_features"`
	Offset        float64 `json:"offset"`
	Contamination float64 `json:"contamination"`
}

// Fit grows p.NEstimators trees over X and calibrates the decision offset
// so that roughly p.Contamination of X scores below it. Each tree draws
// from its own seeded stream, so the result does not depend on Workers.
func Fit(ctx context.Context, X [][]float64, p Params) (*Forest, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("iforest: empty input")
	}
	cols := len(X[0])
	if cols == 0 {
		return nil, errors.New("iforest: zero-width input")
	}
	for i, row := range X {
		if len(row) != cols {
			return nil, fmt.Errorf("iforest: row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	if p.NEstimators < 1 {
		return nil, fmt.Errorf("iforest: n_estimators must be positive, got %d", p.NEstimators)
	}
	if p.Contamination <= 0 || p.Contamination > 0.5 {
		return nil, fmt.Errorf("iforest: contamination must be in (0, 0.5], got %v", p.Contamination)
	}

	psi := p.MaxSamples
	if psi <= 0 {
		psi = min(autoSampleCap, n)
	}
	psi = min(psi, n)

	nFeat := int(p.MaxFeatures * float64(cols))
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		nFeat = cols
	}
	nFeat = max(1, min(nFeat, cols))

	limit := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]Tree, p.NEstimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(p.Seed, uint64(i)))
			idx := subsample(rng, n, psi, p.Bootstrap)
			feats := featureSubset(rng, cols, nFeat)
			trees[i] = grow(X, idx, feats, limit, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("iforest: grow trees: %w", err)
	}

	f := &Forest{
		Trees:         trees,
		SampleSize:    psi,
		NFeatures:     cols,
		Contamination: p.Contamination,
	}
	f.Offset = Percentile(f.ScoreSamples(X), 100*p.Contamination)
	return f, nil
}

func subsample(rng *rand.Rand, n, psi int, bootstrap bool) []int {
	idx := make([]int, psi)
	if bootstrap {
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
		return idx
	}
	copy(idx, rng.Perm(n)[:psi])
	return idx
}

func featureSubset(rng *rand.Rand, cols, k int) []int {
	if k >= cols {
		feats := make([]int, cols)
		for i := range feats {
			feats[i] = i
		}
		return feats
	}
	return rng.Perm(cols)[:k]
}
