package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect classifier",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9},
			want:  1.0,
		},
		{
			name:  "Worst classifier",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1},
			want:  0.0,
		},
		{
			name:  "Random classifier",
			yTrue: []float64{0, 1, 0, 1},
			yPred: []float64{0.5, 0.5, 0.5, 0.5},
			want:  0.5,
		},
		{
			name:  "Typical case",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0.1, 0.4, 0.35, 0.8},
			want:  0.75,
		},
		{
			name:  "All positive labels",
			yTrue: []float64{1, 1, 1, 1},
			yPred: []float64{0.1, 0.4, 0.35, 0.8},
			want:  math.NaN(), // undefined
		},
		{
			name:  "All negative labels",
			yTrue: []float64{0, 0, 0, 0},
			yPred: []float64{0.1, 0.4, 0.35, 0.8},
			want:  math.NaN(), // undefined
		},
		{
			name:    "Non-binary labels",
			yTrue:   []float64{0, 0.5, 1},
			yPred:   []float64{0.1, 0.5, 0.9},
			wantErr: true,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0.5},
			wantErr: true,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := AUC(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("AUC() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if math.IsNaN(tt.want) {
				if !math.IsNaN(got) {
					t.Errorf("AUC() = %v, want NaN", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := Accuracy(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Benchmark tests
func BenchmarkAUC(b *testing.B) {
	// Create test data
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < n/2 {
			yTrue[i] = 0
			yPred[i] = float64(i) / float64(n)
		} else {
			yTrue[i] = 1
			yPred[i] = float64(i) / float64(n)
		}
	}
	yTrueVec := mat.NewVecDense(n, yTrue)
	yPredVec := mat.NewVecDense(n, yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yTrueVec, yPredVec)
	}
}

func TestROCAUCBinaryUsesEventColumn(t *testing.T) {
	// level 0 is the event, so column 0 holds its probability
	truth := []float64{0, 0, 1, 1}
	prob := mat.NewDense(4, 2, []float64{
		0.9, 0.1,
		0.35, 0.65,
		0.4, 0.6,
		0.2, 0.8,
	})
	want, err := AUC(mat.NewVecDense(4, []float64{1, 1, 0, 0}), mat.NewVecDense(4, []float64{0.9, 0.35, 0.4, 0.2}))
	if err != nil {
		t.Fatal(err)
	}
	if got := ROCAUC(truth, prob); math.Abs(got-want) > 1e-12 || math.Abs(got-0.75) > 1e-12 {
		t.Errorf("ROCAUC() = %v, want %v", got, want)
	}

	if got := ROCAUC([]float64{1, 1, 1, 1}, prob); !math.IsNaN(got) {
		t.Errorf("ROCAUC() with one class = %v, want NaN", got)
	}
}

func TestROCAUCMulticlass(t *testing.T) {
	truth := []float64{0, 1, 2, 0, 1, 2}
	prob := mat.NewDense(6, 3, []float64{
		0.8, 0.1, 0.1,
		0.1, 0.8, 0.1,
		0.1, 0.1, 0.8,
		0.7, 0.2, 0.1,
		0.2, 0.7, 0.1,
		0.1, 0.2, 0.7,
	})
	if got := ROCAUC(truth, prob); math.Abs(got-1) > 1e-12 {
		t.Errorf("ROCAUC() = %v, want 1", got)
	}
}

func TestMeanLogLoss(t *testing.T) {
	tests := []struct {
		name  string
		truth []float64
		prob  []float64
		want  float64
	}{
		{
			name:  "confident and right",
			truth: []float64{0, 1},
			prob:  []float64{0.9, 0.1, 0.2, 0.8},
			want:  -(math.Log(0.9) + math.Log(0.8)) / 2,
		},
		{
			name:  "zero probability is clipped",
			truth: []float64{0},
			prob:  []float64{0, 1},
			want:  -math.Log(1e-10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob := mat.NewDense(len(tt.truth), 2, tt.prob)
			got := MeanLogLoss(tt.truth, prob)
			if math.IsInf(got, 0) || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MeanLogLoss() = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkMeanLogLoss(b *testing.B) {
	n := 1000
	truth := make([]float64, n)
	prob := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := 0.1 + 0.8*float64(i)/float64(n)
		prob.Set(i, 0, p)
		prob.Set(i, 1, 1-p)
		if i%2 == 0 {
			truth[i] = 1
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = MeanLogLoss(truth, prob)
	}
}
