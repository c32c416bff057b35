package moe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func uniformRow32(n int) []float32 {
	row := make([]float32, n)
	for i := range row {
		row[i] = 1 / float32(n)
	}
	return row
}

func TestEntropyUniformIsOne(t *testing.T) {
	for _, n := range []int{2, 4, 16, 64} {
		probs := tensor.New(tensor.WithShape(1, n), tensor.WithBacking(uniformRow32(n)))
		out, err := NewEntropy().Compute(probs)
		require.NoError(t, err)
		got := out.Data().([]float32)
		assert.InDelta(t, 1.0, got[0], 1e-5, "n=%d", n)
	}
}

func TestEntropyOneHotIsZero(t *testing.T) {
	probs := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]float32{0, 0, 1, 0}))
	out, err := NewEntropy().Compute(probs)
	require.NoError(t, err)
	got := out.Data().([]float32)
	assert.InDelta(t, 0.0, got[0], 1e-5)
}

func TestEntropyUnnormalized(t *testing.T) {
	n := 8
	probs := tensor.New(tensor.WithShape(1, n), tensor.WithBacking(uniformRow32(n)))
	out, err := Entropy{Eps: 1e-6, Normalize: false}.Compute(probs)
	require.NoError(t, err)
	got := out.Data().([]float32)
	assert.InDelta(t, math.Log(float64(n)), float64(got[0]), 1e-5)
}

func TestEntropyKeepsLeadingShape(t *testing.T) {
	backing := make([]float32, 2*3*4)
	for r := 0; r < 6; r++ {
		copy(backing[r*4:], uniformRow32(4))
	}
	probs := tensor.New(tensor.WithShape(2, 3, 4), tensor.WithBacking(backing))
	out, err := NewEntropy().Compute(probs)
	require.NoError(t, err)
	assert.True(t, out.Shape().Eq(tensor.Shape{2, 3}), "got shape %v", out.Shape())
	for _, h := range out.Data().([]float32) {
		assert.InDelta(t, 1.0, h, 1e-5)
	}
}

func TestEntropyRankOneIsScalar(t *testing.T) {
	probs := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{0.5, 0.5}))
	out, err := NewEntropy().Compute(probs)
	require.NoError(t, err)
	require.True(t, out.Shape().IsScalar())
	assert.InDelta(t, 1.0, out.Data().(float32), 1e-5)
}

func TestEntropyFloat64(t *testing.T) {
	probs := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]float64{0.25, 0.25, 0.25, 0.25}))
	out, err := NewEntropy().Compute(probs)
	require.NoError(t, err)
	require.Equal(t, tensor.Float64, out.Dtype())
	assert.InDelta(t, 1.0, out.Data().([]float64)[0], 1e-9)
}

func TestEntropyRejectsBadInput(t *testing.T) {
	_, err := NewEntropy().Compute(nil)
	assert.Error(t, err)

	ints := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]int32{1, 0, 0, 0}))
	_, err = NewEntropy().Compute(ints)
	assert.Error(t, err)
}
