package training

import "fmt"

// DivergedTrainingError reports a non-finite loss. The trainer fails the
// epoch immediately instead of letting NaN or infinity flow into best-
// loss comparisons, where they would silently corrupt improvement
// tracking.
type DivergedTrainingError struct {
	Epoch int
	Batch int
	Loss  float64
}

func (e *DivergedTrainingError) Error() string {
	return fmt.Sprintf("training diverged at epoch %d, batch %d: loss is %v", e.Epoch, e.Batch, e.Loss)
}

// ShapeMismatchError reports an objective or metric result with an
// unexpected shape at the point of aggregation.
type ShapeMismatchError struct {
	Term string
	Want []int
	Got  []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("term %q returned shape %v, want %v", e.Term, e.Got, e.Want)
}
