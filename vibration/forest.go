package vibration

// Random forest regression
//
// The estimator is an ensemble of multi-output regression trees. Each tree
// is grown on a bootstrap sample of the training rows and, at every node,
// considers a random subset of the feature columns. A split is chosen to
// minimise the summed squared error of all outputs in the two children.
// Leaves store the mean target vector of their samples and the forest
// prediction is the average over trees.
//
// Trees are stored as flat node arrays with absolute child indices so the
// whole forest serialises to JSON and reloads without any rebuilding.

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ForestConfig controls forest growth.
type ForestConfig struct {
	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"maxDepth"`        // 0 means unlimited
	MinSamplesSplit int   `json:"minSamplesSplit"` // smallest node that may be split
	MinSamplesLeaf  int   `json:"minSamplesLeaf"`
	MaxFeatures     int   `json:"maxFeatures"` // 0 means all features
	Seed            int64 `json:"seed"`
	Workers         int   `json:"-"`
}

// DefaultForestConfig mirrors a 100-tree forest grown to purity.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            44,
	}
}

// TreeNode is one node of a flattened regression tree.
type TreeNode struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Leaf      bool      `json:"leaf,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

// RegressionTree is a flattened tree; Nodes[0] is the root.
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// ForestRegressor is a fitted random forest.
type ForestRegressor struct {
	Config  ForestConfig     `json:"config"`
	Inputs  int              `json:"inputs"`
	Outputs int              `json:"outputs"`
	Trees   []RegressionTree `json:"trees"`
}

// FitForest grows a forest on x (rows of features) against y (rows of targets).
func FitForest(ctx context.Context, x, y [][]float64, cfg ForestConfig) (*ForestRegressor, error) {
	inputs, outputs, err := checkTrainingShape(x, y)
	if err != nil {
		return nil, err
	}

	if cfg.Trees <= 0 {
		cfg.Trees = DefaultForestConfig().Trees
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	if cfg.MaxFeatures <= 0 || cfg.MaxFeatures > inputs {
		cfg.MaxFeatures = inputs
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]RegressionTree, cfg.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			builder := &treeBuilder{
				x:       x,
				y:       y,
				cfg:     cfg,
				inputs:  inputs,
				outputs: outputs,
				rnd:     rand.New(rand.NewSource(cfg.Seed + int64(i))),
			}
			trees[i] = builder.grow()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grow forest: %w", err)
	}

	return &ForestRegressor{
		Config:  cfg,
		Inputs:  inputs,
		Outputs: outputs,
		Trees:   trees,
	}, nil
}

func checkTrainingShape(x, y [][]float64) (int, int, error) {
	if len(x) == 0 || len(y) == 0 {
		return 0, 0, errors.New("features or targets empty")
	}
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("features and targets size mismatch: %d vs %d", len(x), len(y))
	}
	inputs, outputs := len(x[0]), len(y[0])
	if inputs == 0 || outputs == 0 {
		return 0, 0, errors.New("rows must have at least one feature and one target")
	}
	for i := range x {
		if len(x[i]) != inputs || len(y[i]) != outputs {
			return 0, 0, fmt.Errorf("row %d has inconsistent width", i)
		}
		for _, v := range x[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("row %d has a non-finite feature", i)
			}
		}
		for _, v := range y[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("row %d has a non-finite target", i)
			}
		}
	}
	return inputs, outputs, nil
}

// InputWidth implements Estimator.
func (f *ForestRegressor) InputWidth() int { return f.Inputs }

// OutputArity implements Estimator.
func (f *ForestRegressor) OutputArity() int { return f.Outputs }

// Predict averages the leaf values reached in every tree.
func (f *ForestRegressor) Predict(row []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	if len(row) != f.Inputs {
		return nil, fmt.Errorf("forest expects %d features, got %d", f.Inputs, len(row))
	}

	out := make([]float64, f.Outputs)
	for t := range f.Trees {
		leaf, err := f.Trees[t].leaf(row)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", t, err)
		}
		if len(leaf) != f.Outputs {
			return nil, fmt.Errorf("tree %d leaf has %d outputs, expected %d", t, len(leaf), f.Outputs)
		}
		for o, v := range leaf {
			out[o] += v
		}
	}
	for o := range out {
		out[o] /= float64(len(f.Trees))
	}
	return out, nil
}

func (t *RegressionTree) leaf(row []float64) ([]float64, error) {
	if len(t.Nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= len(row) {
			return nil, errors.New("feature index out of range")
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		if idx <= 0 || idx >= len(t.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
	return nil, errors.New("tree contains a cycle")
}

type treeBuilder struct {
	x, y    [][]float64
	cfg     ForestConfig
	inputs  int
	outputs int
	rnd     *rand.Rand
	nodes   []TreeNode
}

func (b *treeBuilder) grow() RegressionTree {
	n := len(b.x)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = b.rnd.Intn(n)
	}
	b.nodes = nil
	b.build(samples, 0)
	return RegressionTree{Nodes: b.nodes}
}

func (b *treeBuilder) build(samples []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: -1, Left: -1, Right: -1})

	sum, sumSq := b.moments(samples)
	value := make([]float64, b.outputs)
	for o := range value {
		value[o] = sum[o] / float64(len(samples))
	}
	leaf := TreeNode{Feature: -1, Left: -1, Right: -1, Leaf: true, Value: value}

	if len(samples) < b.cfg.MinSamplesSplit ||
		(b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) ||
		sse(sum, sumSq, len(samples)) <= 1e-12 {
		b.nodes[idx] = leaf
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples, sum, sumSq)
	if !ok {
		b.nodes[idx] = leaf
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return idx
}

func (b *treeBuilder) moments(samples []int) ([]float64, []float64) {
	sum := make([]float64, b.outputs)
	sumSq := make([]float64, b.outputs)
	for _, s := range samples {
		for o, v := range b.y[s] {
			sum[o] += v
			sumSq[o] += v * v
		}
	}
	return sum, sumSq
}

func sse(sum, sumSq []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	var total float64
	for o := range sum {
		total += sumSq[o] - sum[o]*sum[o]/float64(n)
	}
	return total
}

func (b *treeBuilder) bestSplit(samples []int, totalSum, totalSq []float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestSSE := math.Inf(1)

	n := len(samples)
	order := make([]int, n)
	leftSum := make([]float64, b.outputs)
	leftSq := make([]float64, b.outputs)
	rightSum := make([]float64, b.outputs)
	rightSq := make([]float64, b.outputs)

	for _, feature := range b.rnd.Perm(b.inputs)[:b.cfg.MaxFeatures] {
		copy(order, samples)
		sort.SliceStable(order, func(i, j int) bool {
			return b.x[order[i]][feature] < b.x[order[j]][feature]
		})

		for o := range leftSum {
			leftSum[o], leftSq[o] = 0, 0
			rightSum[o], rightSq[o] = totalSum[o], totalSq[o]
		}

		for i := 0; i < n-1; i++ {
			for o, v := range b.y[order[i]] {
				leftSum[o] += v
				leftSq[o] += v * v
				rightSum[o] -= v
				rightSq[o] -= v * v
			}

			lo, hi := b.x[order[i]][feature], b.x[order[i+1]][feature]
			if lo == hi {
				continue
			}
			nl, nr := i+1, n-i-1
			if nl < b.cfg.MinSamplesLeaf || nr < b.cfg.MinSamplesLeaf {
				continue
			}

			candidate := sse(leftSum, leftSq, nl) + sse(rightSum, rightSq, nr)
			if candidate < bestSSE {
				bestSSE = candidate
				bestFeature = feature
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
