package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Direction says whether larger or smaller values of a metric are better.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

func (d Direction) String() string {
	if d == Minimize {
		return "minimize"
	}
	return "maximize"
}

// Better reports whether a is strictly better than b.
func (d Direction) Better(a, b float64) bool {
	if d == Minimize {
		return a < b
	}
	return a > b
}

// Kind is the type of prediction a metric consumes.
type Kind int

const (
	// Numeric metrics compare a numeric response with a numeric prediction.
	Numeric Kind = iota
	// Class metrics compare hard class predictions.
	Class
	// Prob metrics need class probabilities.
	Prob
)

func (k Kind) String() string {
	return [...]string{"numeric", "class", "prob"}[k]
}

// Predictions holds the model output for a set of rows. For
// classification Class holds class indices and Prob, when the engine
// produces it, has one column per level. The first level is the event.
type Predictions struct {
	Numeric []float64
	Class   []float64
	Prob    *mat.Dense
	Levels  []string
}

// Len returns the number of predicted rows.
func (p Predictions) Len() int {
	if p.Numeric != nil {
		return len(p.Numeric)
	}
	return len(p.Class)
}

// Metric is a named performance measure.
type Metric struct {
	Name      string
	Direction Direction
	Kind      Kind
	fn        func(truth []float64, pred Predictions) (float64, error)
}

// Estimate is one metric value.
type Estimate struct {
	Metric    string
	Estimator string
	Value     float64
}

func vec(x []float64) *mat.VecDense { return mat.NewVecDense(len(x), x) }

// undefined converts "no variance" failures into NaN with a warning, the
// way a resampled summary expects them.
func undefined(name string, v float64, err error) (float64, error) {
	if err == nil {
		return v, nil
	}
	var ve *errors.ValueError
	var de *errors.DimensionError
	if errors.As(err, &ve) || errors.As(err, &de) {
		return 0, err
	}
	errors.Warn(errors.NewUndefinedMetricWarning(name, err.Error(), math.NaN()))
	return math.NaN(), nil
}

var registry = map[string]Metric{
	"rmse": {Name: "rmse", Direction: Minimize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		return RMSE(vec(t), vec(p.Numeric))
	}},
	"mse": {Name: "mse", Direction: Minimize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		return MSE(vec(t), vec(p.Numeric))
	}},
	"mae": {Name: "mae", Direction: Minimize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		return MAE(vec(t), vec(p.Numeric))
	}},
	"mape": {Name: "mape", Direction: Minimize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		v, err := MAPE(vec(t), vec(p.Numeric))
		return undefined("mape", v, err)
	}},
	// rsq is the squared correlation between truth and prediction.
	"rsq": {Name: "rsq", Direction: Maximize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		if len(t) != len(p.Numeric) {
			return 0, errors.NewDimensionError("rsq", len(t), len(p.Numeric), 0)
		}
		if stat.Variance(t, nil) == 0 || stat.Variance(p.Numeric, nil) == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("rsq", "a constant truth or prediction vector", math.NaN()))
			return math.NaN(), nil
		}
		r := stat.Correlation(t, p.Numeric, nil)
		return r * r, nil
	}},
	"rsq_trad": {Name: "rsq_trad", Direction: Maximize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		v, err := R2Score(vec(t), vec(p.Numeric))
		return undefined("rsq_trad", v, err)
	}},
	"explained_variance": {Name: "explained_variance", Direction: Maximize, Kind: Numeric, fn: func(t []float64, p Predictions) (float64, error) {
		v, err := ExplainedVarianceScore(vec(t), vec(p.Numeric))
		return undefined("explained_variance", v, err)
	}},
	"accuracy": {Name: "accuracy", Direction: Maximize, Kind: Class, fn: func(t []float64, p Predictions) (float64, error) {
		return Accuracy(vec(t), vec(p.Class))
	}},
	"sensitivity": {Name: "sensitivity", Direction: Maximize, Kind: Class, fn: func(t []float64, p Predictions) (float64, error) {
		return Sensitivity(t, p.Class, len(p.Levels)), nil
	}},
	"specificity": {Name: "specificity", Direction: Maximize, Kind: Class, fn: func(t []float64, p Predictions) (float64, error) {
		return Specificity(t, p.Class, len(p.Levels)), nil
	}},
	"precision": {Name: "precision", Direction: Maximize, Kind: Class, fn: func(t []float64, p Predictions) (float64, error) {
		return Precision(t, p.Class, len(p.Levels)), nil
	}},
	"f_meas": {Name: "f_meas", Direction: Maximize, Kind: Class, fn: func(t []float64, p Predictions) (float64, error) {
		return F1(t, p.Class, len(p.Levels)), nil
	}},
	"kap": {Name: "kap", Direction: Maximize, Kind: Class, fn: func(t []float64, p Predictions) (float64, error) {
		return Kappa(t, p.Class, len(p.Levels)), nil
	}},
	"roc_auc": {Name: "roc_auc", Direction: Maximize, Kind: Prob, fn: func(t []float64, p Predictions) (float64, error) {
		return ROCAUC(t, p.Prob), nil
	}},
	"mn_log_loss": {Name: "mn_log_loss", Direction: Minimize, Kind: Prob, fn: func(t []float64, p Predictions) (float64, error) {
		return MeanLogLoss(t, p.Prob), nil
	}},
}

// Lookup returns a registered metric by name.
func Lookup(name string) (Metric, error) {
	m, ok := registry[name]
	if !ok {
		return Metric{}, errors.NewMetricError(name, "unknown metric")
	}
	return m, nil
}

// Names lists the registered metrics.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Set is an ordered list of metrics. The first one is the default for
// ranking and racing.
type Set []Metric

// NewSet looks up each name. Duplicates are an error.
func NewSet(names ...string) (Set, error) {
	if len(names) == 0 {
		return nil, errors.NewValidationError("metrics", "at least one metric is required", names)
	}
	seen := map[string]bool{}
	out := make(Set, 0, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, errors.NewValidationError("metrics", "duplicate metric", n)
		}
		seen[n] = true
		m, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Defaults returns rmse and rsq for regression, accuracy and roc_auc for
// classification.
func Defaults(mode modelspec.Mode) Set {
	if mode == modelspec.Classification {
		return Set{registry["accuracy"], registry["roc_auc"]}
	}
	return Set{registry["rmse"], registry["rsq"]}
}

// Get returns the named metric of the set.
func (s Set) Get(name string) (Metric, bool) {
	for _, m := range s {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Names returns the metric names in order.
func (s Set) Names() []string {
	out := make([]string, len(s))
	for i, m := range s {
		out[i] = m.Name
	}
	return out
}

// Check reports a MetricError for the first metric that cannot be computed
// for the given mode, so a mismatch fails before any model is fitted.
func (s Set) Check(mode modelspec.Mode) error {
	for _, m := range s {
		if (m.Kind == Numeric) != (mode == modelspec.Regression) {
			return errors.NewMetricError(m.Name, "not defined for "+mode.String()+" models")
		}
	}
	return nil
}

// Evaluate computes every metric of the set on one assessment set.
func (s Set) Evaluate(truth []float64, pred Predictions) ([]Estimate, error) {
	if len(truth) == 0 {
		return nil, errors.NewValueError("metrics.Evaluate", "empty truth vector")
	}
	if pred.Len() != len(truth) {
		return nil, errors.NewDimensionError("metrics.Evaluate", len(truth), pred.Len(), 0)
	}

	out := make([]Estimate, 0, len(s))
	for _, m := range s {
		var estimator string
		switch m.Kind {
		case Numeric:
			if pred.Numeric == nil {
				return nil, errors.NewMetricError(m.Name, "needs numeric predictions, got class predictions")
			}
			estimator = "standard"
		case Class:
			if pred.Class == nil {
				return nil, errors.NewMetricError(m.Name, "needs class predictions, got numeric predictions")
			}
			estimator = classEstimator(pred.Levels)
		case Prob:
			if pred.Prob == nil {
				return nil, errors.NewMetricError(m.Name, "needs class probabilities; the model did not produce them")
			}
			if _, c := pred.Prob.Dims(); c != len(pred.Levels) {
				return nil, errors.NewMetricError(m.Name, "probability columns do not match the outcome levels")
			}
			estimator = classEstimator(pred.Levels)
		}
		v, err := m.fn(truth, pred)
		if err != nil {
			return nil, errors.Wrapf(err, "metric %s", m.Name)
		}
		out = append(out, Estimate{Metric: m.Name, Estimator: estimator, Value: v})
	}
	return out, nil
}

func classEstimator(levels []string) string {
	if len(levels) > 2 {
		return "macro"
	}
	return "binary"
}
