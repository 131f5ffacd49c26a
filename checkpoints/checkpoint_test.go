package checkpoints

import (
	"path/filepath"
	"testing"

	"github.com/segmed/voxelfit/tensor"
)

func testState() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"layer.weight": tensor.MustNew([]float64{1, 2, 3, 4}, 2, 2),
		"layer.bias":   tensor.MustNew([]float64{0.5}, 1),
	}
}

func TestCaptureCopiesData(t *testing.T) {
	state := testState()
	snap := Capture(state, nil)

	if snap.ID == "" {
		t.Error("snapshot must have an id")
	}
	if len(snap.Weights) != 2 {
		t.Fatalf("expected 2 weights, got %d", len(snap.Weights))
	}

	// Snapshots are value copies.
	state["layer.weight"].Raw()[0] = 99
	for _, w := range snap.Weights {
		if w.Name == "layer.weight" && w.Data[0] != 1 {
			t.Error("snapshot aliases live tensor data")
		}
	}
}

func TestCaptureSortsWeightsByName(t *testing.T) {
	snap := Capture(testState(), nil)
	if snap.Weights[0].Name != "layer.bias" || snap.Weights[1].Name != "layer.weight" {
		t.Errorf("weights not sorted: %s, %s", snap.Weights[0].Name, snap.Weights[1].Name)
	}
}

func TestCaptureClonesOptimizerState(t *testing.T) {
	opt := &OptimizerState{
		Type:         "adam",
		Step:         7,
		LearningRate: 0.001,
		Slots: []OptimizerTensor{
			{Name: "m_0", Shape: []int{2}, Data: []float64{0.1, 0.2}},
		},
	}
	snap := Capture(testState(), opt)

	opt.Slots[0].Data[0] = 42
	if snap.Optimizer.Slots[0].Data[0] != 0.1 {
		t.Error("snapshot aliases optimizer slot data")
	}
	if snap.Optimizer.Step != 7 || snap.Optimizer.Type != "adam" {
		t.Errorf("optimizer state not preserved: %+v", snap.Optimizer)
	}
}

func TestWeightMapRebuildsTensors(t *testing.T) {
	snap := Capture(testState(), nil)
	weights, err := snap.WeightMap()
	if err != nil {
		t.Fatalf("WeightMap failed: %v", err)
	}

	w, ok := weights["layer.weight"]
	if !ok {
		t.Fatal("WeightMap missing layer.weight")
	}
	shape := w.Shape()
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 2 {
		t.Errorf("rebuilt shape = %v, want [2 2]", shape)
	}
	if v, _ := w.At(1, 1); v != 4 {
		t.Errorf("rebuilt value = %v, want 4", v)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	ckpt := &Checkpoint{
		Snapshot: Capture(testState(), &OptimizerState{Type: "sgd", LearningRate: 0.01}),
		Training: TrainingRecord{
			Epoch:         12,
			BestEpoch:     9,
			BestTrainLoss: 0.034,
			BestValLoss:   0.051,
			Dropout:       0.25,
		},
	}

	if err := Save(ckpt, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Metadata.Version != FormatVersion {
		t.Errorf("version = %q, want %q", loaded.Metadata.Version, FormatVersion)
	}
	if loaded.Metadata.Framework != "voxelfit" {
		t.Errorf("framework = %q, want voxelfit", loaded.Metadata.Framework)
	}
	if loaded.Training.BestEpoch != 9 || loaded.Training.Dropout != 0.25 {
		t.Errorf("training record not preserved: %+v", loaded.Training)
	}
	if loaded.Snapshot.ID != ckpt.Snapshot.ID {
		t.Errorf("snapshot id changed: %q vs %q", loaded.Snapshot.ID, ckpt.Snapshot.ID)
	}
	if loaded.Snapshot.Optimizer == nil || loaded.Snapshot.Optimizer.Type != "sgd" {
		t.Errorf("optimizer state not preserved: %+v", loaded.Snapshot.Optimizer)
	}

	weights, err := loaded.Snapshot.WeightMap()
	if err != nil {
		t.Fatalf("WeightMap failed: %v", err)
	}
	if v, _ := weights["layer.bias"].At(0); v != 0.5 {
		t.Errorf("restored bias = %v, want 0.5", v)
	}
}

func TestSaveRejectsEmptyCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := Save(nil, path); err == nil {
		t.Error("expected error for nil checkpoint")
	}
	if err := Save(&Checkpoint{}, path); err == nil {
		t.Error("expected error for checkpoint without snapshot")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
