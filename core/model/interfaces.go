// Package model provides the estimator contracts shared by every engine in
// tidytune. Engines work on gonum matrices; the workflow layer converts data
// frames into matrices before calling them.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator

	// PredictProba returns probability estimates for each class.
	// Columns follow the order of Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique classes seen during fitting, sorted.
	Classes() []float64
}

// Regressor is a marker for regression models.
type Regressor interface {
	Estimator
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}

// FeatureImporter is implemented by models that carry their own notion of
// feature importance (tree impurity decrease, absolute coefficients).
type FeatureImporter interface {
	// FeatureImportances returns one non-negative value per input column.
	FeatureImportances() ([]float64, error)
}
