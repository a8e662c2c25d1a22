package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wheatClasses = []string{"brown_rust", "healthy", "septoria", "yellow_rust"}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float32{1, 2, 3, 4})
	require.Len(t, probs, 4)

	var sum float32
	for i, p := range probs {
		assert.Greater(t, p, float32(0))
		if i > 0 {
			assert.Greater(t, p, probs[i-1])
		}
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestSoftmaxLargeLogits(t *testing.T) {
	probs := Softmax([]float32{1000, 1000})
	assert.InDelta(t, 0.5, probs[0], 1e-6)
	assert.InDelta(t, 0.5, probs[1], 1e-6)
}

func TestSoftmaxEmpty(t *testing.T) {
	assert.Nil(t, Softmax(nil))
}

func TestTopK(t *testing.T) {
	probs := []float32{0.1, 0.6, 0.05, 0.25}

	tests := []struct {
		name string
		k    int
		want []string
	}{
		{"default", 1, []string{"healthy"}},
		{"two", 2, []string{"healthy", "yellow_rust"}},
		{"clamped low", 0, []string{"healthy"}},
		{"negative", -3, []string{"healthy"}},
		{"clamped high", 10, []string{"healthy", "yellow_rust", "brown_rust", "septoria"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TopK(probs, wheatClasses, tt.k)
			labels := make([]string, len(got))
			for i, p := range got {
				labels[i] = p.Class
			}
			assert.Equal(t, tt.want, labels)
		})
	}
}

func TestTopKDescendingAndBounded(t *testing.T) {
	probs := Softmax([]float32{0.3, -1.2, 2.5, 0.9})

	for k := 1; k <= 6; k++ {
		got := TopK(probs, wheatClasses, k)
		want := k
		if want > len(wheatClasses) {
			want = len(wheatClasses)
		}
		require.Len(t, got, want)

		var sum float32
		for i, p := range got {
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Confidence, p.Confidence)
			}
			sum += p.Confidence
		}
		assert.LessOrEqual(t, sum, float32(1.0001))
	}
}

func TestTopKTiesKeepClassOrder(t *testing.T) {
	got := TopK([]float32{0.25, 0.25, 0.25, 0.25}, wheatClasses, 3)
	assert.Equal(t, "brown_rust", got[0].Class)
	assert.Equal(t, "healthy", got[1].Class)
	assert.Equal(t, "septoria", got[2].Class)
}
