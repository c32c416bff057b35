package moe

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// RouterZLoss returns the mean over rows of the squared log-sum-exp of raw
// router logits, shape (..., n). Large logit magnitudes inflate the
// log-sum-exp, so minimizing this keeps the router from growing unboundedly
// confident. It is a regularizer, not a balancing signal.
func RouterZLoss(logits *tensor.Dense) (float64, error) {
	if logits == nil || logits.Shape().TotalSize() == 0 {
		return 0, errors.New("z-loss: nil or empty logits tensor")
	}
	shape := logits.Shape()
	n := shape[len(shape)-1]

	// accumulate in float64 regardless of the input dtype
	row := make([]float64, n)
	var sum float64
	var rows int
	switch data := logits.Data().(type) {
	case []float32:
		rows = len(data) / n
		for r := 0; r < rows; r++ {
			for i := 0; i < n; i++ {
				row[i] = float64(data[r*n+i])
			}
			lse := floats.LogSumExp(row)
			sum += lse * lse
		}
	case []float64:
		rows = len(data) / n
		for r := 0; r < rows; r++ {
			copy(row, data[r*n:(r+1)*n])
			lse := floats.LogSumExp(row)
			sum += lse * lse
		}
	default:
		return 0, errors.Errorf("z-loss: unsupported dtype %v", logits.Dtype())
	}
	return sum / float64(rows), nil
}
