package moe

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// GroupLoss scores how evenly routing probability mass is split between two
// expert branches. pm and ps are the aggregate selection probabilities of
// the two branches for the same tokens, ideally summing near 1.
type GroupLoss interface {
	Compute(pm, ps float32) float32
}

// SelfBalance penalizes the two branch probabilities drifting apart; zero
// whenever pm == ps, regardless of their absolute level.
type SelfBalance struct{}

func (SelfBalance) Compute(pm, ps float32) float32 {
	d := pm - ps
	return d * d
}

// Bounded penalizes each branch probability independently for drifting from
// the 0.5 midpoint.
type Bounded struct{}

func (Bounded) Compute(pm, ps float32) float32 {
	const ideal = 0.5
	return (pm-ideal)*(pm-ideal) + (ps-ideal)*(ps-ideal)
}

// KLUniform approximates KL([pm, ps] || [0.5, 0.5]). The approximation is
// only exact when pm+ps = 1. Eps guards log(0).
type KLUniform struct {
	Eps float32
}

func NewKLUniform() KLUniform {
	return KLUniform{Eps: 1e-8}
}

func (k KLUniform) Compute(pm, ps float32) float32 {
	return pm*log32(2*pm+k.Eps) + ps*log32(2*ps+k.Eps)
}

// JSUniform is the Jensen-Shannon divergence between [pm, ps] and the
// uniform target [0.5, 0.5]. Bounded in [0, log 2] for valid probabilities,
// with smoother gradients near the boundaries than KLUniform.
type JSUniform struct {
	Eps float32
}

func NewJSUniform() JSUniform {
	return JSUniform{Eps: 1e-8}
}

func (j JSUniform) Compute(pm, ps float32) float32 {
	// midpoint M = 0.5 * (P + Q) with Q = [0.5, 0.5]
	mPm := 0.25 + 0.5*pm
	mPs := 0.25 + 0.5*ps

	klPM := pm*log32((pm+j.Eps)/(mPm+j.Eps)) + ps*log32((ps+j.Eps)/(mPs+j.Eps))
	klQM := 0.5*log32(0.5/(mPm+j.Eps)) + 0.5*log32(0.5/(mPs+j.Eps))

	return 0.5 * (klPM + klQM)
}

// ElementwiseGroupLoss applies a group loss pairwise over two matching-shape
// Float32 tensors. The caller decides whether to reduce the result further.
func ElementwiseGroupLoss(gl GroupLoss, pm, ps *tensor.Dense) (*tensor.Dense, error) {
	if pm == nil || ps == nil {
		return nil, errors.New("group loss: nil input tensor")
	}
	if !pm.Shape().Eq(ps.Shape()) {
		return nil, errors.Errorf("group loss: mismatched shapes %v and %v", pm.Shape(), ps.Shape())
	}
	pmData, ok := pm.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("group loss: want Float32 tensors, got %v", pm.Dtype())
	}
	psData, ok := ps.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("group loss: want Float32 tensors, got %v", ps.Dtype())
	}

	out := make([]float32, len(pmData))
	for i := range pmData {
		out[i] = gl.Compute(pmData[i], psData[i])
	}
	return tensor.New(tensor.WithShape(pm.Shape()...), tensor.WithBacking(out)), nil
}
