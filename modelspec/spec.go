// Package modelspec describes models independently of their fitting
// engine. A Spec names the model type, its mode and its main arguments;
// arguments listed in Tune are filled from a grid point at fit time.
//
//	spec := modelspec.LogisticReg().SetTune(param.Penalty())
//	fitted, err := spec.Fit(X, y, param.Point{"penalty": 0.01})
package modelspec

import (
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/linear"
	"github.com/YuminosukeSato/tidytune/neighbors"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tree"
)

// Mode is the prediction task.
type Mode int

const (
	Regression Mode = iota
	Classification
)

func (m Mode) String() string {
	if m == Classification {
		return "classification"
	}
	return "regression"
}

// Weighting values for the weight_func argument of NearestNeighbor.
const (
	WeightRectangular = 0
	WeightInverse     = 1
)

// Spec is an unfitted model description. It is a value; the setters
// return modified copies.
type Spec struct {
	Name   string
	Engine string
	Mode   Mode
	Args   map[string]float64
	Tune   []param.Param
}

// LinearReg is ridge linear regression. Args: penalty.
func LinearReg() Spec {
	return Spec{Name: "linear_reg", Engine: "normal_equations", Mode: Regression,
		Args: map[string]float64{"penalty": 0}}
}

// LogisticReg is L2-penalized logistic regression. Args: penalty.
func LogisticReg() Spec {
	return Spec{Name: "logistic_reg", Engine: "newton", Mode: Classification,
		Args: map[string]float64{"penalty": 0}}
}

// NearestNeighbor is k-nearest neighbours. Args: neighbors, weight_func.
func NearestNeighbor(mode Mode) Spec {
	return Spec{Name: "nearest_neighbor", Engine: "brute", Mode: mode,
		Args: map[string]float64{"neighbors": 5, "weight_func": WeightRectangular}}
}

// DecisionTree is a CART tree. Args: tree_depth, min_n, cost_complexity.
func DecisionTree(mode Mode) Spec {
	return Spec{Name: "decision_tree", Engine: "cart", Mode: mode,
		Args: map[string]float64{"tree_depth": 30, "min_n": 2, "cost_complexity": 0.01}}
}

// SetArgs returns a copy with the given arguments fixed.
func (s Spec) SetArgs(args map[string]float64) Spec {
	out := s.clone()
	for k, v := range args {
		out.Args[k] = v
	}
	return out
}

// SetTune returns a copy whose listed parameters are read from the grid
// point at fit time.
func (s Spec) SetTune(params ...param.Param) Spec {
	out := s.clone()
	out.Tune = append(out.Tune, params...)
	return out
}

// Tunable returns the parameters marked with SetTune.
func (s Spec) Tunable() param.Set {
	return append(param.Set(nil), s.Tune...)
}

func (s Spec) clone() Spec {
	out := s
	out.Args = make(map[string]float64, len(s.Args))
	for k, v := range s.Args {
		out.Args[k] = v
	}
	out.Tune = append([]param.Param(nil), s.Tune...)
	return out
}

func (s Spec) String() string {
	keys := make([]string, 0, len(s.Args))
	for k := range s.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+len(s.Tune))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, s.Args[k]))
	}
	for _, p := range s.Tune {
		parts = append(parts, p.ID+"=tune()")
	}
	return fmt.Sprintf("%s(%s) [%s/%s]", s.Name, strings.Join(parts, ", "), s.Mode, s.Engine)
}

// Resolve merges the fixed arguments with the tunable values in p. Values
// in p for parameters that are not tunable here are ignored.
func (s Spec) Resolve(p param.Point) (map[string]float64, error) {
	args := make(map[string]float64, len(s.Args))
	for k, v := range s.Args {
		args[k] = v
	}
	for _, t := range s.Tune {
		v, ok := p[t.ID]
		if !ok {
			return nil, errors.NewValidationError(t.ID, "tunable argument has no value in the grid point", p.String())
		}
		args[t.ID] = v
	}
	return args, nil
}

// Fit resolves the arguments against p and fits the engine. For
// classification y holds class indices.
func (s Spec) Fit(X *mat.Dense, y []float64, p param.Point) (*Fitted, error) {
	args, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}
	est, err := s.build(args)
	if err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	if len(y) != r {
		return nil, errors.NewDimensionError(s.Name+".Fit", r, len(y), 0)
	}
	if err := est.Fit(X, mat.NewDense(r, 1, append([]float64(nil), y...))); err != nil {
		var fe *errors.FitError
		var ve *errors.ValidationError
		if errors.As(err, &fe) || errors.As(err, &ve) {
			return nil, err
		}
		return nil, errors.NewFitError(s.Name+".Fit", s.Name, err)
	}
	return &Fitted{Spec: s, Args: args, Engine: est}, nil
}

func (s Spec) build(args map[string]float64) (model.Estimator, error) {
	intArg := func(id string) int { return int(math.Round(args[id])) }
	switch s.Name {
	case "linear_reg":
		if s.Mode != Regression {
			return nil, errors.NewValidationError("mode", "linear_reg only supports regression", s.Mode.String())
		}
		return linear.NewLinearRegression(linear.WithPenalty(args["penalty"])), nil
	case "logistic_reg":
		if s.Mode != Classification {
			return nil, errors.NewValidationError("mode", "logistic_reg only supports classification", s.Mode.String())
		}
		return linear.NewLogisticRegression(linear.WithLogisticPenalty(args["penalty"])), nil
	case "nearest_neighbor":
		wf := neighbors.Rectangular
		if intArg("weight_func") == WeightInverse {
			wf = neighbors.Inverse
		}
		opts := []neighbors.Option{neighbors.WithK(intArg("neighbors")), neighbors.WithWeightFunc(wf)}
		if s.Mode == Classification {
			return neighbors.NewClassifier(opts...), nil
		}
		return neighbors.NewRegressor(opts...), nil
	case "decision_tree":
		opts := []tree.Option{
			tree.WithMaxDepth(intArg("tree_depth")),
			tree.WithMinSamplesSplit(intArg("min_n")),
			tree.WithCostComplexity(args["cost_complexity"]),
		}
		if s.Mode == Classification {
			return tree.NewDecisionTreeClassifier(opts...), nil
		}
		return tree.NewDecisionTreeRegressor(opts...), nil
	}
	return nil, errors.NewValidationError("model", "unknown model type", s.Name)
}

// Fitted is a fitted engine together with the spec and arguments used.
type Fitted struct {
	Spec   Spec
	Args   map[string]float64
	Engine model.Estimator
}

// Predict returns one value per row: the predicted class index for
// classification, the response for regression.
func (f *Fitted) Predict(X mat.Matrix) ([]float64, error) {
	pred, err := f.Engine.Predict(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, pred), nil
}

// PredictProba returns class probabilities with columns in Classes order.
func (f *Fitted) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	c, ok := f.Engine.(model.Classifier)
	if !ok || f.Spec.Mode != Classification {
		return nil, errors.NewValueError(f.Spec.Name+".PredictProba", "model does not produce class probabilities")
	}
	p, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(p), nil
}

// Classes returns the class indices seen during fitting.
func (f *Fitted) Classes() []float64 {
	if c, ok := f.Engine.(model.Classifier); ok {
		return c.Classes()
	}
	return nil
}

// Importance returns the engine's own variable importance, if it has one.
func (f *Fitted) Importance() ([]float64, bool, error) {
	fi, ok := f.Engine.(model.FeatureImporter)
	if !ok {
		return nil, false, nil
	}
	v, err := fi.FeatureImportances()
	return v, true, err
}

// EngineParams returns the engine's hyperparameters as it reports them.
func (f *Fitted) EngineParams() map[string]interface{} {
	if g, ok := f.Engine.(model.ParameterGetter); ok {
		return g.GetParams()
	}
	return nil
}

func init() {
	gob.Register(&linear.LinearRegression{})
	gob.Register(&linear.LogisticRegression{})
	gob.Register(&neighbors.KNN{})
	gob.Register(&tree.DecisionTree{})
}
