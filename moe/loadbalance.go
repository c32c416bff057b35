package moe

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// LoadBalancer computes the auxiliary load-balancing loss for an MoE layer:
// it selects the topK experts per token, accumulates how much probability
// mass and how many tokens each expert received, and penalizes deviation
// from uniform expert usage. numExperts and topK are fixed at construction;
// per-call arguments carry only tensors.
type LoadBalancer struct {
	numExperts int
	topK       int
}

// NewLoadBalancer validates the structural configuration up front; Compute
// never re-checks it.
func NewLoadBalancer(numExperts, topK int) (*LoadBalancer, error) {
	if numExperts <= 0 {
		return nil, errors.Errorf("load balancer: numExperts must be positive, got %d", numExperts)
	}
	if topK <= 0 || topK > numExperts {
		return nil, errors.Errorf("load balancer: topK must be in [1, %d], got %d", numExperts, topK)
	}
	return &LoadBalancer{numExperts: numExperts, topK: topK}, nil
}

// Compute takes router probabilities shaped (tokens, numExperts) or
// (batch, seq, numExperts) and returns the balance loss together with the
// per-expert accumulated probability mass (same dtype as the input) and
// per-expert token counts (always Int32). Rows are assumed, not checked, to
// sum to 1; a non-normalized input silently miscalibrates the loss.
//
// Rank-2 and rank-3 inputs holding the same flattened token set produce
// identical results: the token total is read off the shape before any
// accumulation happens.
func (lb *LoadBalancer) Compute(routerProbs *tensor.Dense) (float64, *tensor.Dense, *tensor.Dense, error) {
	if routerProbs == nil {
		return 0, nil, nil, errors.New("load balancer: nil probability tensor")
	}
	shape := routerProbs.Shape()
	var totalTokens int
	switch shape.Dims() {
	case 2:
		totalTokens = shape[0]
	case 3:
		totalTokens = shape[0] * shape[1]
	default:
		return 0, nil, nil, errors.Errorf("load balancer: want rank 2 or 3 input, got shape %v", shape)
	}
	if n := shape[len(shape)-1]; n != lb.numExperts {
		return 0, nil, nil, errors.Errorf("load balancer: last axis is %d, configured for %d experts", n, lb.numExperts)
	}

	counts := make([]int32, lb.numExperts)
	var aux float64
	var loadT *tensor.Dense
	switch data := routerProbs.Data().(type) {
	case []float32:
		load := make([]float32, lb.numExperts)
		aux = balanceScatter(data, totalTokens, lb.numExperts, lb.topK, load, counts)
		loadT = tensor.New(tensor.WithShape(lb.numExperts), tensor.WithBacking(load))
	case []float64:
		load := make([]float64, lb.numExperts)
		aux = balanceScatter(data, totalTokens, lb.numExperts, lb.topK, load, counts)
		loadT = tensor.New(tensor.WithShape(lb.numExperts), tensor.WithBacking(load))
	default:
		return 0, nil, nil, errors.Errorf("load balancer: unsupported dtype %v", routerProbs.Dtype())
	}
	countsT := tensor.New(tensor.WithShape(lb.numExperts), tensor.WithBacking(counts))
	return aux, loadT, countsT, nil
}

// balanceScatter does top-k selection per row followed by an additive
// scatter into load and counts. Several tokens routing to the same expert
// within one call must all land, so the accumulation runs as one serial
// stream of read-modify-write updates.
func balanceScatter[T floatN](probs []T, rows, numExperts, topK int, load []T, counts []int32) float64 {
	taken := make([]bool, numExperts)
	for t := 0; t < rows; t++ {
		row := probs[t*numExperts : (t+1)*numExperts]
		for e := range taken {
			taken[e] = false
		}
		// repeated argmax over the remainder; ties go to the lowest index
		for k := 0; k < topK; k++ {
			best := -1
			for e := 0; e < numExperts; e++ {
				if taken[e] {
					continue
				}
				if best < 0 || row[e] > row[best] {
					best = e
				}
			}
			taken[best] = true
			load[best] += row[best]
			counts[best]++
		}
	}

	// usage is the fraction of routed mass per expert; the loss is the mean
	// squared deviation from uniform, rescaled by numExperts
	denom := float64(rows * topK)
	ideal := 1 / float64(numExperts)
	var sum float64
	for e := range load {
		d := float64(load[e])/denom - ideal
		sum += d * d
	}
	mean := sum / float64(numExperts)
	return mean * float64(numExperts)
}
