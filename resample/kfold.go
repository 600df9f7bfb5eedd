package resample

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// MatrixSplitter splits already-numeric data into folds. It is the
// matrix-level counterpart of VFold, for engines evaluated outside a
// workflow.
type MatrixSplitter interface {
	Split(X, y mat.Matrix) []Fold
	GetNSplits() int
}

// KFold is a plain k-fold splitter over matrix rows.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a k-fold splitter. nSplits below 2 defaults to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split returns NSplits folds; the first n % NSplits folds get one extra row.
func (kf *KFold) Split(X, _ mat.Matrix) []Fold {
	nSamples, _ := X.Dims()
	indices := seq(nSamples)
	if kf.Shuffle {
		r := newRNG(kf.RandomSeed)
		r.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	assign := make([]int, nSamples)
	foldSize, remainder := nSamples/kf.NSplits, nSamples%kf.NSplits
	cur := 0
	for i := 0; i < kf.NSplits; i++ {
		size := foldSize
		if i < remainder {
			size++
		}
		for _, row := range indices[cur : cur+size] {
			assign[row] = i
		}
		cur += size
	}
	return foldsFromAssignment(assign, kf.NSplits)
}

// StratifiedKFold spreads each class of y evenly across folds.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a stratified k-fold splitter.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split groups rows by the label in column 0 of y and deals each class
// round-robin over the folds, continuing where the previous class stopped.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) []Fold {
	nSamples, _ := X.Dims()

	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for l := range classIndices {
		labels = append(labels, l)
	}
	sort.Float64s(labels)

	r := newRNG(skf.RandomSeed)
	assign := make([]int, nSamples)
	offset := 0
	for _, l := range labels {
		rows := classIndices[l]
		if skf.Shuffle {
			r.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		}
		for i, row := range rows {
			assign[row] = (offset + i) % skf.NSplits
		}
		offset += len(rows)
	}
	return foldsFromAssignment(assign, skf.NSplits)
}

func foldsFromAssignment(assign []int, k int) []Fold {
	folds := make([]Fold, k)
	for v := range folds {
		folds[v].ID = label("Fold", v+1, k)
	}
	for row, v := range assign {
		folds[v].Assessment = append(folds[v].Assessment, row)
		for w := range folds {
			if w != v {
				folds[w].Analysis = append(folds[w].Analysis, row)
			}
		}
	}
	return folds
}
