package main

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/tensor"

	"gomoe/moe"
)

const (
	Batch      = 4
	SeqLen     = 16
	NumExperts = 8
	TopK       = 2
)

// softmaxRows turns raw logits into per-token expert distributions, row by
// row over the last axis.
func softmaxRows(logits []float32, n int) []float32 {
	probs := make([]float32, len(logits))
	for r := 0; r < len(logits)/n; r++ {
		row := logits[r*n : (r+1)*n]
		out := probs[r*n : (r+1)*n]
		var sum float32 = 0.0
		for i, value := range row {
			out[i] = float32(math.Max(math.Exp(float64(value)), 1e-06))
			sum += out[i]
		}
		for i := range out {
			out[i] /= sum
		}
	}
	return probs
}

func main() {
	rand.Seed(42)
	logits := make([]float32, Batch*SeqLen*NumExperts)
	for i := range logits {
		logits[i] = float32(rand.NormFloat64())
	}
	logitsT := tensor.New(tensor.WithShape(Batch, SeqLen, NumExperts), tensor.WithBacking(logits))
	probsT := tensor.New(tensor.WithShape(Batch, SeqLen, NumExperts), tensor.WithBacking(softmaxRows(logits, NumExperts)))

	entropy, err := moe.NewEntropy().Compute(probsT)
	if err != nil {
		fmt.Println("Error computing entropy:", err)
		return
	}
	var meanEntropy float32
	for _, h := range entropy.Data().([]float32) {
		meanEntropy += h
	}
	meanEntropy /= float32(Batch * SeqLen)
	fmt.Println(fmt.Sprintf("Mean router entropy = %.4f", meanEntropy))

	zLoss, err := moe.RouterZLoss(logitsT)
	if err != nil {
		fmt.Println("Error computing z-loss:", err)
		return
	}
	fmt.Println(fmt.Sprintf("Router z-loss = %.4f", zLoss))

	balancer, err := moe.NewLoadBalancer(NumExperts, TopK)
	if err != nil {
		fmt.Println("Error configuring load balancer:", err)
		return
	}
	auxLoss, load, counts, err := balancer.Compute(probsT)
	if err != nil {
		fmt.Println("Error computing load balance:", err)
		return
	}
	fmt.Println(fmt.Sprintf("Aux load-balancing loss = %.6f", auxLoss))
	fmt.Println("Expert load:", load.Data().([]float32))
	fmt.Println("Expert token counts:", counts.Data().([]int32))

	// treat the first and second half of the experts as two branches and
	// score how evenly the routed mass splits between them
	var pm, ps float32
	for e, w := range load.Data().([]float32) {
		if e < NumExperts/2 {
			pm += w
		} else {
			ps += w
		}
	}
	total := pm + ps
	pm /= total
	ps /= total

	fmt.Println(fmt.Sprintf("Branch masses pm = %.4f ps = %.4f", pm, ps))
	fmt.Println(fmt.Sprintf("Self-balance loss = %.6f", moe.SelfBalance{}.Compute(pm, ps)))
	fmt.Println(fmt.Sprintf("Bounded loss = %.6f", moe.Bounded{}.Compute(pm, ps)))
	fmt.Println(fmt.Sprintf("KL-to-uniform loss = %.6f", moe.NewKLUniform().Compute(pm, ps)))
	fmt.Println(fmt.Sprintf("JS-to-uniform loss = %.6f", moe.NewJSUniform().Compute(pm, ps)))
}
