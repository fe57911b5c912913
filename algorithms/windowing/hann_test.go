package windowing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestPeriodicHann(t *testing.T) {
	w := ones(8)
	require.NoError(t, NewPeriodicHann(8).ApplyInPlace(w))

	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[4], 1e-12)
	// periodic: w[n] == w[N-n]
	for n := 1; n < 8; n++ {
		assert.InDelta(t, w[n], w[8-n], 1e-12)
	}
	assert.InDelta(t, 0.5-0.5*math.Cos(2*math.Pi/8), w[1], 1e-12)
}

func TestSymmetricHann(t *testing.T) {
	w := ones(5)
	require.NoError(t, NewHann(5, true).ApplyInPlace(w))
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5, 0}, w, 1e-12)
}

func TestHannSizeMismatch(t *testing.T) {
	assert.Error(t, NewPeriodicHann(8).ApplyInPlace(make([]float64, 7)))

	w := ones(1)
	require.NoError(t, NewPeriodicHann(1).ApplyInPlace(w))
	assert.Equal(t, 1.0, w[0])
}
