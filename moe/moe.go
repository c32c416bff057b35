// Package moe provides auxiliary loss signals for training Mixture-of-Experts
// layers: a normalized entropy metric, pairwise expert-balance losses, the
// router z-loss and a top-k load-balancing loss. Every function is a pure,
// stateless computation over gorgonia tensors; nothing is retained between
// calls.
//
// Probability inputs are taken at face value: rows are expected to sum to 1
// but are never validated, matching the permissiveness of the usual router
// stacks these losses pair with.
package moe

import "math"

type floatN interface {
	~float32 | ~float64
}

// logFloor clips x at eps before the log so that zero probabilities do not
// produce -Inf.
func logFloor[T floatN](x, eps T) T {
	if x < eps {
		x = eps
	}
	return T(math.Log(float64(x)))
}

func log32(x float32) float32 {
	return float32(math.Log(float64(x)))
}
