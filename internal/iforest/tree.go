package iforest

import (
	"math"
	"math/rand/v2"
)

// Node is one entry of a flattened tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int32   `json:"l,omitempty"`
	Right     int32   `json:"r,omitempty"`
	Size      int     `json:"n,omitempty"`
}

// Tree is an isolation tree stored as a node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (n *Node) leaf() bool { return n.Feature < 0 }

// grow builds a tree over rows idx of X. idx is partitioned in place.
func grow(X [][]float64, idx []int, feats []int, limit int, rng *rand.Rand) Tree {
	t := Tree{Nodes: make([]Node, 0, 2*len(idx))}
	cands := make([]int, 0, len(feats))
	lows := make([]float64, len(feats))
	highs := make([]float64, len(feats))

	var build func(idx []int, depth int) int32
	build = func(idx []int, depth int) int32 {
		id := int32(len(t.Nodes))
		t.Nodes = append(t.Nodes, Node{Feature: -1, Size: len(idx)})
		if depth >= limit || len(idx) <= 1 {
			return id
		}

		cands = cands[:0]
		for k, f := range feats {
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, r := range idx {
				v := X[r][f]
				lo = min(lo, v)
				hi = max(hi, v)
			}
			if hi > lo {
				lows[k], highs[k] = lo, hi
				cands = append(cands, k)
			}
		}
		if len(cands) == 0 {
			return id
		}

		k := cands[rng.IntN(len(cands))]
		f := feats[k]
		thr := lows[k] + rng.Float64()*(highs[k]-lows[k])

		// partition: values <= thr first
		split := 0
		for i, r := range idx {
			if X[r][f] <= thr {
				idx[i], idx[split] = idx[split], idx[i]
				split++
			}
		}

		left := build(idx[:split], depth+1)
		right := build(idx[split:], depth+1)
		t.Nodes[id] = Node{Feature: f, Threshold: thr, Left: left, Right: right}
		return id
	}
	build(idx, 0)
	return t
}

// pathLength is the depth at which x lands plus the expected remaining
// depth of the leaf's unsplit samples.
func (t *Tree) pathLength(x []float64) float64 {
	var depth float64
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.leaf() {
			return depth + AveragePathLength(n.Size)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}
