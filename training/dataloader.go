package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/segmed/voxelfit/tensor"
)

// Dataset is the sample-access contract data loaders consume.
type Dataset interface {
	Len() int
	Get(idx int) (input *tensor.Tensor, target *tensor.Tensor, err error)
}

// Batch is one batched input/target pair.
type Batch struct {
	Input  *tensor.Tensor
	Target *tensor.Tensor
}

// DataLoader assembles dataset samples into batches, optionally
// shuffling the order every epoch. A loader is restartable: Reset
// rewinds it for a new pass and Len reports the batch count up front
// for progress display.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a DataLoader over dataset.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool) (*DataLoader, error) {
	if dataset == nil {
		return nil, fmt.Errorf("data loader requires a dataset")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}
	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		indices:   indices,
	}, nil
}

// Len returns the number of batches in one epoch.
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if enabled.
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	if dl.shuffle {
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := rand.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// HasNext reports whether more batches remain in the current epoch.
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// Next returns the next batch, or (nil, nil) at the end of the epoch.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil
	}
	end := dl.position + dl.batchSize
	if end > len(dl.indices) {
		end = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:end]
	dl.position = end

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}
	return batch, nil
}

// loadBatch stacks the selected samples along a new leading dimension.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	firstInput, firstTarget, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %v", indices[0], err)
	}

	batchSize := len(indices)
	inputShape := append([]int{batchSize}, firstInput.Shape()...)
	targetShape := append([]int{batchSize}, firstTarget.Shape()...)
	input := tensor.Zeros(inputShape...)
	target := tensor.Zeros(targetShape...)

	for i, idx := range indices {
		sampleInput, sampleTarget, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		if err := stackInto(input, sampleInput, i); err != nil {
			return nil, fmt.Errorf("failed to stack input for sample %d: %v", idx, err)
		}
		if err := stackInto(target, sampleTarget, i); err != nil {
			return nil, fmt.Errorf("failed to stack target for sample %d: %v", idx, err)
		}
	}
	return &Batch{Input: input, Target: target}, nil
}

// stackInto copies a sample into position i of the batch tensor.
func stackInto(batch, sample *tensor.Tensor, i int) error {
	size := sample.Numel()
	if (i+1)*size > batch.Numel() {
		return fmt.Errorf("sample size %d does not fit batch of %d elements", size, batch.Numel())
	}
	copy(batch.Raw()[i*size:(i+1)*size], sample.Raw())
	return nil
}

// SimpleDataset is an in-memory Dataset over parallel input/target
// slices.
type SimpleDataset struct {
	inputs  []*tensor.Tensor
	targets []*tensor.Tensor
}

// NewSimpleDataset creates a SimpleDataset. The slices must be the same
// length.
func NewSimpleDataset(inputs, targets []*tensor.Tensor) (*SimpleDataset, error) {
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("inputs and targets must have the same length: got %d and %d", len(inputs), len(targets))
	}
	return &SimpleDataset{inputs: inputs, targets: targets}, nil
}

// Len returns the number of samples.
func (ds *SimpleDataset) Len() int { return len(ds.inputs) }

// Get returns the sample at idx.
func (ds *SimpleDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(ds.inputs) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.inputs))
	}
	return ds.inputs[idx], ds.targets[idx], nil
}
