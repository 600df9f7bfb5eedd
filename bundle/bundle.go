// Package bundle packages a fitted workflow with the metadata needed to
// deploy it: an id, a name and version, the raw predictor columns new data
// must carry, and free-form metadata such as the test-set metrics.
//
// Bundles are written with encoding/gob through core/model's persistence
// helpers.
package bundle

import (
	"io"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// FormatVersion is bumped when the encoded layout changes.
const FormatVersion = 1

// Bundle is a deployable model.
type Bundle struct {
	ID            uuid.UUID
	Name          string
	Version       string
	FormatVersion int
	CreatedAt     time.Time
	Metadata      map[string]string
	Predictors    []string
	Workflow      *workflow.Fitted
}

// New wraps fitted. The version defaults to "1".
func New(name string, fitted *workflow.Fitted, metadata map[string]string) (*Bundle, error) {
	if fitted == nil {
		return nil, errors.NewValidationError("fitted", "a fitted workflow is required", nil)
	}
	if name == "" {
		name = fitted.WorkflowID
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &Bundle{
		ID:            uuid.New(),
		Name:          name,
		Version:       "1",
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Metadata:      md,
		Predictors:    fitted.Predictors(),
		Workflow:      fitted,
	}, nil
}

// WithMetrics records test-set estimates in the metadata as
// "metric.<name>".
func (b *Bundle) WithMetrics(est []metrics.Estimate) *Bundle {
	for _, e := range est {
		b.Metadata["metric."+e.Metric] = jsonFloat(e.Value)
	}
	return b
}

// Save writes b to w.
func (b *Bundle) Save(w io.Writer) error {
	return model.SaveModelToWriter(b, w)
}

// SaveFile writes b to path.
func (b *Bundle) SaveFile(path string) error {
	return model.SaveModel(b, path)
}

// Load reads a bundle from r.
func Load(r io.Reader) (*Bundle, error) {
	b := &Bundle{}
	if err := model.LoadModelFromReader(b, r); err != nil {
		return nil, err
	}
	return b, b.check()
}

// LoadFile reads a bundle from path.
func LoadFile(path string) (*Bundle, error) {
	b := &Bundle{}
	if err := model.LoadModel(b, path); err != nil {
		return nil, err
	}
	return b, b.check()
}

func (b *Bundle) check() error {
	if b.FormatVersion != FormatVersion {
		return errors.NewValueError("bundle.Load", "unsupported bundle format version")
	}
	if b.Workflow == nil || b.Workflow.Model == nil || b.Workflow.Prepped == nil {
		return errors.NewValueError("bundle.Load", "bundle has no fitted workflow")
	}
	return nil
}

// Predict validates data against the predictor schema and predicts it.
func (b *Bundle) Predict(data *dataset.Frame) (metrics.Predictions, error) {
	if err := dataset.RequireColumns(data, b.Predictors...); err != nil {
		return metrics.Predictions{}, err
	}
	return b.Workflow.Predict(data)
}

// Info is the JSON description of a bundle.
type Info struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Version    string             `json:"version"`
	CreatedAt  time.Time          `json:"created_at"`
	Workflow   string             `json:"workflow"`
	Model      string             `json:"model"`
	Mode       string             `json:"mode"`
	Outcome    string             `json:"outcome"`
	Levels     []string           `json:"levels,omitempty"`
	Predictors []string           `json:"predictors"`
	Params     map[string]float64 `json:"params"`
	Metadata   map[string]string  `json:"metadata"`
}

// Info describes b.
func (b *Bundle) Info() Info {
	return Info{
		ID:         b.ID.String(),
		Name:       b.Name,
		Version:    b.Version,
		CreatedAt:  b.CreatedAt,
		Workflow:   b.Workflow.WorkflowID,
		Model:      b.Workflow.Model.Spec.Name,
		Mode:       b.Workflow.Mode.String(),
		Outcome:    b.Workflow.Outcome,
		Levels:     b.Workflow.Levels,
		Predictors: b.Predictors,
		Params:     b.Workflow.Params(),
		Metadata:   b.Metadata,
	}
}

// MarshalInfo returns Info as JSON.
func (b *Bundle) MarshalInfo() ([]byte, error) {
	data, err := json.Marshal(b.Info())
	if err != nil {
		return nil, errors.Wrap(err, "marshal bundle info")
	}
	return data, nil
}

// MetadataKeys returns the metadata keys in order.
func (b *Bundle) MetadataKeys() []string {
	keys := make([]string, 0, len(b.Metadata))
	for k := range b.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func jsonFloat(v float64) string {
	data, err := json.Marshal(v)
	if err != nil {
		// NaN and Inf are not JSON numbers.
		return "null"
	}
	return string(data)
}
