package workflow

import (
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/recipe"
)

// Named attaches a short name to a recipe or spec; workflow ids are built
// from these names.
type Named[T any] struct {
	Name  string
	Value T
}

// Name is shorthand for building a Named value.
func Name[T any](name string, v T) Named[T] {
	return Named[T]{Name: name, Value: v}
}

// Set is the candidate set: an ordered list of workflows with unique ids.
type Set struct {
	Workflows []*Workflow
}

// NewSet checks ids for uniqueness.
func NewSet(ws ...*Workflow) (*Set, error) {
	if len(ws) == 0 {
		return nil, errors.NewValidationError("workflows", "candidate set is empty", 0)
	}
	seen := make(map[string]bool, len(ws))
	for _, w := range ws {
		if seen[w.ID] {
			return nil, errors.NewValidationError("workflows", "duplicate workflow id", w.ID)
		}
		seen[w.ID] = true
	}
	return &Set{Workflows: append([]*Workflow(nil), ws...)}, nil
}

// Cross pairs every recipe with every spec. Ids are "<recipe>_<model>".
func Cross(recipes []Named[*recipe.Recipe], specs []Named[modelspec.Spec]) (*Set, error) {
	ws := make([]*Workflow, 0, len(recipes)*len(specs))
	for _, r := range recipes {
		for _, s := range specs {
			ws = append(ws, New(r.Name+"_"+s.Name, r.Value, s.Value))
		}
	}
	return NewSet(ws...)
}

// Paired pairs the i-th recipe with the i-th spec.
func Paired(recipes []Named[*recipe.Recipe], specs []Named[modelspec.Spec]) (*Set, error) {
	if len(recipes) != len(specs) {
		return nil, errors.NewValidationError("specs", "paired sets need as many specs as recipes", len(specs))
	}
	ws := make([]*Workflow, len(recipes))
	for i := range recipes {
		ws[i] = New(recipes[i].Name+"_"+specs[i].Name, recipes[i].Value, specs[i].Value)
	}
	return NewSet(ws...)
}

// Len returns the number of workflows.
func (s *Set) Len() int { return len(s.Workflows) }

// IDs returns the workflow ids in sorted order.
func (s *Set) IDs() []string { return sortedIDs(s.Workflows) }

// Get returns the workflow with the given id.
func (s *Set) Get(id string) (*Workflow, error) {
	for _, w := range s.Workflows {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, errors.NewValidationError("id", "no such workflow", id)
}
