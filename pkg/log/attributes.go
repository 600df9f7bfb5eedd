// Package log defines standard attribute keys for tuning workflows.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples", "fold.id") so records from the splitter, the tuner and
// the final evaluator can be filtered the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model engine.
	// Examples: "linear_reg", "logistic_reg", "decision_tree"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "prep", "bake", "evaluate"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	// Examples: "resample", "recipe", "tune"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the workflow.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey is the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of predictor columns.
	FeaturesKey = "data.features"

	// StrataKey is the stratification column of a split.
	StrataKey = "data.strata"
)

// Tuning workflow
const (
	// WorkflowIDKey identifies a (recipe, model) candidate, e.g. "basic_knn".
	WorkflowIDKey = "workflow.id"

	// ConfigIDKey identifies a grid point, e.g. "Preprocessor1_Model03".
	ConfigIDKey = "config.id"

	// FoldIDKey identifies a resample, e.g. "Fold04" or "Bootstrap12".
	FoldIDKey = "fold.id"

	// GridSizeKey is the number of grid points under evaluation.
	GridSizeKey = "grid.size"

	// MetricNameKey names a performance metric, e.g. "roc_auc".
	MetricNameKey = "metric.name"

	// MetricValueKey is a metric estimate.
	MetricValueKey = "metric.value"

	// RunIDKey identifies a single tuning run.
	RunIDKey = "run.id"

	// RaceEliminatedKey is the number of grid points removed by racing.
	RaceEliminatedKey = "race.eliminated"

	// RacePValueKey is the p-value of the racing test that removed a point.
	RacePValueKey = "race.p_value"

	// RaceRemainingKey is the number of grid points still racing.
	RaceRemainingKey = "race.remaining"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey is the number of concurrent evaluation workers.
	WorkersKey = "perf.workers"

	// IterationKey records the current iteration of an iterative fit.
	IterationKey = "training.iteration"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// WarningKey carries a structured warning object.
	WarningKey = "warning"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains the grid point being evaluated.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationPrep     = "prep"
	OperationBake     = "bake"
	OperationEvaluate = "evaluate"

	PhaseSplit   = "split"
	PhaseTuning  = "tuning"
	PhaseSelect  = "select"
	PhaseLastFit = "last_fit"
	PhaseServing = "serving"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorDataShape         = "DATA_SHAPE"
	ErrorFit               = "FIT_FAILURE"
	ErrorMetric            = "METRIC_UNDEFINED"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
)
