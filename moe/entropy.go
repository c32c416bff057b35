package moe

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Entropy computes Shannon entropy over the last axis of a probability
// tensor. Eps floors probabilities inside the log; with Normalize set the
// result is divided by log(n) so a uniform distribution scores 1 and a
// one-hot distribution scores 0. Both fields are fixed configuration, not
// per-call data.
//
// Normalize with n == 1 divides by log(1) = 0; callers must pass n > 1 when
// normalizing.
type Entropy struct {
	Eps       float32
	Normalize bool
}

// NewEntropy returns the default configuration: Eps 1e-6, normalized.
func NewEntropy() Entropy {
	return Entropy{Eps: 1e-6, Normalize: true}
}

// Compute takes probabilities of shape (..., n), Float32 or Float64, and
// returns the per-row entropy with shape (...), same dtype. A rank-1 input
// yields a scalar tensor.
func (e Entropy) Compute(probs *tensor.Dense) (*tensor.Dense, error) {
	if probs == nil || probs.Shape().TotalSize() == 0 {
		return nil, errors.New("entropy: nil or empty probability tensor")
	}
	shape := probs.Shape()
	n := shape[len(shape)-1]

	switch data := probs.Data().(type) {
	case []float32:
		return makeRowTensor(entropyRows(data, n, e.Eps, e.Normalize), shape)
	case []float64:
		return makeRowTensor(entropyRows(data, n, float64(e.Eps), e.Normalize), shape)
	default:
		return nil, errors.Errorf("entropy: unsupported dtype %v", probs.Dtype())
	}
}

func entropyRows[T floatN](data []T, n int, eps T, normalize bool) []T {
	rows := len(data) / n
	invLogN := T(0)
	if normalize {
		invLogN = T(1 / math.Log(float64(n)))
	}
	out := make([]T, rows)
	for r := 0; r < rows; r++ {
		row := data[r*n : (r+1)*n]
		var h T
		for _, p := range row {
			h -= p * logFloor(p, eps)
		}
		if normalize {
			h *= invLogN
		}
		out[r] = h
	}
	return out
}

// makeRowTensor wraps one value per input row into a tensor shaped like the
// input minus its last axis.
func makeRowTensor[T floatN](rows []T, in tensor.Shape) (*tensor.Dense, error) {
	if len(in) == 1 {
		return tensor.New(tensor.FromScalar(rows[0])), nil
	}
	return tensor.New(tensor.WithShape(in[:len(in)-1]...), tensor.WithBacking(rows)), nil
}
