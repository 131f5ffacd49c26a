package tensor

import (
	"math/rand"
	"sync"
)

var (
	rng     = rand.New(rand.NewSource(1))
	rngLock sync.Mutex
)

// SetSeed reseeds the package random source used by initializers and
// dropout masks, for deterministic runs.
func SetSeed(seed int64) {
	rngLock.Lock()
	rng = rand.New(rand.NewSource(seed))
	rngLock.Unlock()
}

// Uniform creates a tensor with elements drawn uniformly from [lo, hi).
func Uniform(lo, hi float64, shape ...int) *Tensor {
	out := Zeros(shape...)
	rngLock.Lock()
	for i := range out.data {
		out.data[i] = lo + (hi-lo)*rng.Float64()
	}
	rngLock.Unlock()
	return out
}

// Randn creates a tensor with standard normal elements.
func Randn(shape ...int) *Tensor {
	out := Zeros(shape...)
	rngLock.Lock()
	for i := range out.data {
		out.data[i] = rng.NormFloat64()
	}
	rngLock.Unlock()
	return out
}
