package training

import (
	"errors"
	"fmt"

	"github.com/segmed/voxelfit/tensor"
)

// LossFunc computes a scalar loss tensor from predictions and targets.
// In training mode the result must stay connected to the graph so the
// trainer can backpropagate through it.
type LossFunc func(predictions, targets *tensor.Tensor) (*tensor.Tensor, error)

// MetricFunc computes a scalar quality measure from predictions and
// targets. Metrics are higher-is-better and are only evaluated during
// validation.
type MetricFunc func(predictions, targets *tensor.Tensor) (float64, error)

// ObjectiveTerm is one named, weighted loss contribution. Terms combine
// by weighted sum.
type ObjectiveTerm struct {
	Name   string
	Weight float64
	Fn     LossFunc
}

// MetricTerm is one named validation metric.
type MetricTerm struct {
	Name string
	Fn   MetricFunc
}

// Objectives holds the ordered loss terms used in training, the ordered
// loss terms used in validation (primary loss first, optional
// diagnostics after), and the validation metrics. It is pure
// configuration, validated once at construction.
type Objectives struct {
	train   []ObjectiveTerm
	val     []ObjectiveTerm
	metrics []MetricTerm
}

// NewObjectives validates and packages the term collections. Both loss
// collections must be non-empty, every weight non-negative, and every
// function present.
func NewObjectives(train, val []ObjectiveTerm, metrics []MetricTerm) (*Objectives, error) {
	if len(train) == 0 {
		return nil, errors.New("at least one training objective term is required")
	}
	if len(val) == 0 {
		return nil, errors.New("at least one validation objective term is required")
	}
	for _, group := range [][]ObjectiveTerm{train, val} {
		for _, term := range group {
			if term.Name == "" {
				return nil, errors.New("objective terms require a name")
			}
			if term.Weight < 0 {
				return nil, fmt.Errorf("objective term %q has negative weight %v", term.Name, term.Weight)
			}
			if term.Fn == nil {
				return nil, fmt.Errorf("objective term %q has no loss function", term.Name)
			}
		}
	}
	for _, m := range metrics {
		if m.Name == "" {
			return nil, errors.New("metric terms require a name")
		}
		if m.Fn == nil {
			return nil, fmt.Errorf("metric term %q has no function", m.Name)
		}
	}
	return &Objectives{
		train:   append([]ObjectiveTerm(nil), train...),
		val:     append([]ObjectiveTerm(nil), val...),
		metrics: append([]MetricTerm(nil), metrics...),
	}, nil
}

// TrainTerms returns the ordered training loss terms.
func (o *Objectives) TrainTerms() []ObjectiveTerm {
	return append([]ObjectiveTerm(nil), o.train...)
}

// ValTerms returns the ordered validation loss terms.
func (o *Objectives) ValTerms() []ObjectiveTerm {
	return append([]ObjectiveTerm(nil), o.val...)
}

// Metrics returns the validation metric terms.
func (o *Objectives) Metrics() []MetricTerm {
	return append([]MetricTerm(nil), o.metrics...)
}

// DiagnosticNames lists the validation term names after the primary
// loss; these are the per-term columns in the epoch report.
func (o *Objectives) DiagnosticNames() []string {
	names := make([]string, 0, len(o.val)-1)
	for _, term := range o.val[1:] {
		names = append(names, term.Name)
	}
	return names
}

// MetricNames lists the metric term names in order.
func (o *Objectives) MetricNames() []string {
	names := make([]string, 0, len(o.metrics))
	for _, m := range o.metrics {
		names = append(names, m.Name)
	}
	return names
}
