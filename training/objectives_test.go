package training

import (
	"testing"

	"github.com/segmed/voxelfit/tensor"
)

func mseTerm(name string, weight float64) ObjectiveTerm {
	return ObjectiveTerm{Name: name, Weight: weight, Fn: MSE}
}

func TestNewObjectivesValidation(t *testing.T) {
	valid := []ObjectiveTerm{mseTerm("mse", 1)}
	psnr := []MetricTerm{{Name: "psnr", Fn: PSNR(1)}}

	cases := []struct {
		name    string
		train   []ObjectiveTerm
		val     []ObjectiveTerm
		metrics []MetricTerm
	}{
		{"empty train", nil, valid, nil},
		{"empty val", valid, nil, nil},
		{"unnamed term", []ObjectiveTerm{{Weight: 1, Fn: MSE}}, valid, nil},
		{"negative weight", []ObjectiveTerm{mseTerm("mse", -1)}, valid, nil},
		{"nil loss fn", []ObjectiveTerm{{Name: "mse", Weight: 1}}, valid, nil},
		{"unnamed metric", valid, valid, []MetricTerm{{Fn: PSNR(1)}}},
		{"nil metric fn", valid, valid, []MetricTerm{{Name: "psnr"}}},
	}
	for _, tc := range cases {
		if _, err := NewObjectives(tc.train, tc.val, tc.metrics); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}

	if _, err := NewObjectives(valid, valid, psnr); err != nil {
		t.Errorf("valid objectives rejected: %v", err)
	}
}

func TestObjectivesNames(t *testing.T) {
	obj, err := NewObjectives(
		[]ObjectiveTerm{mseTerm("mse", 1)},
		[]ObjectiveTerm{mseTerm("mse", 1), {Name: "l1", Weight: 0.5, Fn: L1}, {Name: "edge", Weight: 0.1, Fn: L1}},
		[]MetricTerm{{Name: "psnr", Fn: PSNR(1)}, {Name: "r2", Fn: RSquared}},
	)
	if err != nil {
		t.Fatalf("NewObjectives failed: %v", err)
	}

	diag := obj.DiagnosticNames()
	if len(diag) != 2 || diag[0] != "l1" || diag[1] != "edge" {
		t.Errorf("DiagnosticNames = %v, want [l1 edge]", diag)
	}
	metrics := obj.MetricNames()
	if len(metrics) != 2 || metrics[0] != "psnr" || metrics[1] != "r2" {
		t.Errorf("MetricNames = %v, want [psnr r2]", metrics)
	}
}

func TestObjectivesAccessorsReturnCopies(t *testing.T) {
	obj, err := NewObjectives(
		[]ObjectiveTerm{mseTerm("mse", 1)},
		[]ObjectiveTerm{mseTerm("mse", 1)},
		nil,
	)
	if err != nil {
		t.Fatalf("NewObjectives failed: %v", err)
	}
	terms := obj.TrainTerms()
	terms[0].Weight = 99
	if obj.TrainTerms()[0].Weight != 1 {
		t.Error("TrainTerms must return a copy")
	}
}

func TestLossFunctions(t *testing.T) {
	pred := tensor.MustNew([]float64{1, 2, 3, 4}, 4)
	target := tensor.MustNew([]float64{2, 2, 2, 2}, 4)

	mse, err := MSE(pred, target)
	if err != nil {
		t.Fatalf("MSE failed: %v", err)
	}
	// ((1)^2 + 0 + 1 + 4) / 4
	if v, _ := mse.Item(); v != 1.5 {
		t.Errorf("MSE = %v, want 1.5", v)
	}

	l1, err := L1(pred, target)
	if err != nil {
		t.Fatalf("L1 failed: %v", err)
	}
	// (1 + 0 + 1 + 2) / 4
	if v, _ := l1.Item(); v != 1.0 {
		t.Errorf("L1 = %v, want 1.0", v)
	}

	if _, err := MSE(pred, tensor.Ones(3)); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestMSEBackward(t *testing.T) {
	pred := tensor.MustNew([]float64{3, 5}, 2)
	pred.SetRequiresGrad(true)
	target := tensor.MustNew([]float64{1, 1}, 2)

	loss, err := MSE(pred, target)
	if err != nil {
		t.Fatalf("MSE failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	// d/dpred mean((pred-target)^2) = 2(pred-target)/n
	want := []float64{2, 4}
	for i, g := range pred.Grad().Data() {
		if g != want[i] {
			t.Errorf("grad[%d] = %v, want %v", i, g, want[i])
		}
	}
}
