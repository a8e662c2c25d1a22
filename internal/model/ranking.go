package model

import (
	"math"
	"sort"
)

// Softmax turns raw logits into a probability distribution.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	exps := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		exps[i] = math.Exp(float64(v - maxVal))
		sum += exps[i]
	}

	probs := make([]float32, len(logits))
	for i, e := range exps {
		probs[i] = float32(e / sum)
	}
	return probs
}

// TopK returns the k most probable classes in descending order. Equal
// probabilities keep class order. k is clamped to [1, len(classes)].
func TopK(probs []float32, classes []string, k int) []Prediction {
	n := len(probs)
	if len(classes) < n {
		n = len(classes)
	}
	if n == 0 {
		return []Prediction{}
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	out := make([]Prediction, k)
	for i, j := range idx[:k] {
		out[i] = Prediction{Class: classes[j], Confidence: probs[j]}
	}
	return out
}
