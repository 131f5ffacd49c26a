package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FormatVersion identifies the checkpoint file layout.
const FormatVersion = "1"

// TrainingRecord summarizes where in training a checkpoint was taken.
type TrainingRecord struct {
	Epoch         int     `json:"epoch"`
	BestEpoch     int     `json:"best_epoch"`
	BestTrainLoss float64 `json:"best_train_loss"`
	BestValLoss   float64 `json:"best_val_loss"`
	Dropout       float64 `json:"dropout"`
}

// Metadata describes a checkpoint file.
type Metadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is the on-disk representation: a snapshot plus training
// progress and file metadata.
type Checkpoint struct {
	Snapshot *Snapshot      `json:"snapshot"`
	Training TrainingRecord `json:"training"`
	Metadata Metadata       `json:"metadata"`
}

// Save writes the checkpoint as JSON to path.
func Save(ckpt *Checkpoint, path string) error {
	if ckpt == nil || ckpt.Snapshot == nil {
		return fmt.Errorf("checkpoint requires a snapshot")
	}
	if ckpt.Metadata.Version == "" {
		ckpt.Metadata.Version = FormatVersion
	}
	if ckpt.Metadata.Framework == "" {
		ckpt.Metadata.Framework = "voxelfit"
	}
	if ckpt.Metadata.CreatedAt.IsZero() {
		ckpt.Metadata.CreatedAt = time.Now().UTC()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ckpt); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

// Load reads a JSON checkpoint from path.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var ckpt Checkpoint
	if err := json.NewDecoder(file).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	if ckpt.Snapshot == nil {
		return nil, fmt.Errorf("checkpoint file %s has no snapshot", path)
	}
	return &ckpt, nil
}
