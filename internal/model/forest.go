package model

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// RandomForestRegressor averages bagged CART regression trees split on
// squared error.
type RandomForestRegressor struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"` // 0 grows until leaves are pure or too small
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"` // features tried per split; 0 means all
	Bootstrap       bool  `json:"bootstrap"`
	RandomState     int64 `json:"random_state"`
	// Workers bounds concurrent tree fits; 0 means GOMAXPROCS.
	Workers int `json:"-"`

	NFeatures int     `json:"n_features"`
	Trees     []*Tree `json:"trees"`
}

// ForestOption configures a RandomForestRegressor.
type ForestOption func(*RandomForestRegressor)

func WithEstimators(n int) ForestOption     { return func(f *RandomForestRegressor) { f.NEstimators = n } }
func WithMaxDepth(d int) ForestOption       { return func(f *RandomForestRegressor) { f.MaxDepth = d } }
func WithMaxFeatures(k int) ForestOption    { return func(f *RandomForestRegressor) { f.MaxFeatures = k } }
func WithRandomState(s int64) ForestOption  { return func(f *RandomForestRegressor) { f.RandomState = s } }
func WithMinSamplesLeaf(n int) ForestOption { return func(f *RandomForestRegressor) { f.MinSamplesLeaf = n } }
func WithWorkers(n int) ForestOption        { return func(f *RandomForestRegressor) { f.Workers = n } }

// NewRandomForestRegressor returns an unfitted forest of 100 bootstrapped trees
// seeded with 42.
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	f := &RandomForestRegressor{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Name implements Regressor.
func (f *RandomForestRegressor) Name() string { return KindForest }

// Fit grows NEstimators trees concurrently. Tree i draws from a source seeded
// with RandomState+i, so results do not depend on scheduling.
func (f *RandomForestRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if f.NEstimators <= 0 {
		return fmt.Errorf("random forest: n_estimators must be positive, got %d", f.NEstimators)
	}
	if f.MinSamplesSplit < 2 {
		f.MinSamplesSplit = 2
	}
	if f.MinSamplesLeaf < 1 {
		f.MinSamplesLeaf = 1
	}
	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*Tree, f.NEstimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rnd := rand.New(rand.NewSource(f.RandomState + int64(i)))
			idx := make([]int, n)
			for j := range idx {
				if f.Bootstrap {
					idx[j] = rnd.Intn(n)
				} else {
					idx[j] = j
				}
			}
			b := &treeBuilder{X: X, y: y, p: p, forest: f, rnd: rnd}
			trees[i] = b.build(idx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.Trees = trees
	f.NFeatures = p
	return nil
}

// Predict averages the tree predictions per row.
func (f *RandomForestRegressor) Predict(X [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != f.NFeatures {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), f.NFeatures)
		}
		var sum float64
		for _, t := range f.Trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split when Left >= 0, otherwise a leaf predicting Value.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		nd := t.Nodes[i]
		if nd.Left < 0 {
			return nd.Value
		}
		if x[nd.Feature] <= nd.Threshold {
			i = nd.Left
		} else {
			i = nd.Right
		}
	}
}

type treeBuilder struct {
	X      [][]float64
	y      []float64
	p      int
	forest *RandomForestRegressor
	rnd    *rand.Rand
	tree   Tree
}

func (b *treeBuilder) build(idx []int) *Tree {
	b.grow(idx, 0)
	return &b.tree
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Left: -1, Right: -1, Value: b.mean(idx)})

	f := b.forest
	if len(idx) < f.MinSamplesSplit || (f.MaxDepth > 0 && depth >= f.MaxDepth) || b.pure(idx) {
		return id
	}
	feat, thr, ok := b.bestSplit(idx)
	if !ok {
		return id
	}
	var left, right []int
	for _, i := range idx {
		if b.X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[id].Feature = feat
	b.tree.Nodes[id].Threshold = thr
	b.tree.Nodes[id].Left = l
	b.tree.Nodes[id].Right = r
	return id
}

// bestSplit scans candidate features for the threshold that maximizes the
// reduction in squared error. Thresholds sit midway between distinct values.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	features := b.candidates()
	n := len(idx)
	minLeaf := b.forest.MinSamplesLeaf

	var total float64
	for _, i := range idx {
		total += b.y[i]
	}
	// Maximizing sumL²/nL + sumR²/nR minimizes the children's squared error.
	best := total * total / float64(n)
	const tol = 1e-12

	sorted := make([]int, n)
	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })
		var sumL float64
		for k := 0; k < n-1; k++ {
			sumL += b.y[sorted[k]]
			nL := k + 1
			nR := n - nL
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi || nL < minLeaf || nR < minLeaf {
				continue
			}
			sumR := total - sumL
			score := sumL*sumL/float64(nL) + sumR*sumR/float64(nR)
			if score > best+tol {
				best = score
				feature, threshold, ok = f, lo+(hi-lo)/2, true
			}
		}
	}
	return feature, threshold, ok
}

func (b *treeBuilder) candidates() []int {
	k := b.forest.MaxFeatures
	if k <= 0 || k >= b.p {
		all := make([]int, b.p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rnd.Perm(b.p)[:k]
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

func (b *treeBuilder) pure(idx []int) bool {
	for _, i := range idx[1:] {
		if b.y[i] != b.y[idx[0]] {
			return false
		}
	}
	return true
}
