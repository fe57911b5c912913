package model

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-cough/features"
)

func ones() []float64 {
	out := make([]float64, features.Size)
	for i := range out {
		out[i] = 1
	}
	return out
}

// stump splits on one feature; left leaf favours the first class, right leaf the second
func stump(feature int, threshold float64, left, right []float64) Tree {
	return Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{feature, -2, -2},
		Threshold:     []float64{threshold, -2, -2},
		Value:         [][]float64{{0, 0, 0}, left, right},
	}
}

func testForest(t *testing.T) *Forest {
	t.Helper()
	f := &Forest{
		NFeatures: features.Size,
		Classes:   []string{"covid", "healthy", "symptomatic"},
		Trees: []Tree{
			stump(0, 0.5, []float64{8, 2, 0}, []float64{0, 10, 0}),
			stump(13, 100, []float64{0.2, 0.3, 0.5}, []float64{0, 0, 1}),
			// single-leaf tree
			{
				ChildrenLeft:  []int{-1},
				ChildrenRight: []int{-1},
				Feature:       []int{-2},
				Threshold:     []float64{-2},
				Value:         [][]float64{{1, 1, 2}},
			},
		},
	}
	require.NoError(t, f.Validate())
	return f
}

func TestScalerTransform(t *testing.T) {
	mean := make([]float64, features.Size)
	scale := ones()
	mean[0], scale[0] = 10, 2
	mean[29], scale[29] = -1, 0.5

	s, err := NewScaler(mean, scale)
	require.NoError(t, err)

	var v features.Vector
	v[0], v[29], v[5] = 14, 0, 3
	out := s.Transform(v)

	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 2.0, out[29])
	assert.Equal(t, 3.0, out[5])
}

func TestScalerValidate(t *testing.T) {
	tests := []struct {
		name  string
		mean  []float64
		scale []float64
	}{
		{"short mean", make([]float64, 29), ones()},
		{"short scale", make([]float64, 30), make([]float64, 3)},
		{"zero scale", make([]float64, 30), make([]float64, 30)},
		{"nan mean", func() []float64 { m := make([]float64, 30); m[4] = math.NaN(); return m }(), ones()},
		{"inf scale", make([]float64, 30), func() []float64 { s := ones(); s[7] = math.Inf(1); return s }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScaler(tt.mean, tt.scale)
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestScalerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewScaler(make([]float64, features.Size), ones())
	require.NoError(t, err)

	for _, name := range []string{"scaler.json", "scaler.msgpack"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, s.Save(path))
			loaded, err := LoadScaler(path)
			require.NoError(t, err)
			assert.Equal(t, s, loaded)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadScaler(filepath.Join(dir, "scaler.txt"))
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = LoadScaler(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "forest.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	_, err = LoadForest(garbage)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	short := filepath.Join(dir, "short.json")
	require.NoError(t, os.WriteFile(short, []byte(`{"mean":[1,2],"scale":[1,2]}`), 0o644))
	_, err = LoadScaler(short)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestForestRoundTrip(t *testing.T) {
	f := testForest(t)
	dir := t.TempDir()

	for _, name := range []string{"forest.json", "forest.mp"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, f.Save(path))
			loaded, err := LoadForest(path)
			require.NoError(t, err)
			assert.Equal(t, f.Trees, loaded.Trees)
			assert.Equal(t, f.PredictProba(features.Vector{}), loaded.PredictProba(features.Vector{}))
		})
	}
}

func TestForestPredict(t *testing.T) {
	f := testForest(t)

	var v features.Vector
	// tree 1 -> [0.8 0.2 0], tree 2 -> [0.2 0.3 0.5], tree 3 -> [0.25 0.25 0.5]
	p := f.Predict(v)
	assert.InDelta(t, 1.25/3, p.Probabilities[0], 1e-12)
	assert.InDelta(t, 0.75/3, p.Probabilities[1], 1e-12)
	assert.InDelta(t, 1.0/3, p.Probabilities[2], 1e-12)
	assert.Equal(t, "covid", p.Label)
	assert.Equal(t, 0, p.Index)

	v[0], v[13] = 1, 500
	p = f.Predict(v)
	assert.Equal(t, "symptomatic", p.Label)
}

func TestForestThresholdUsesSinglePrecision(t *testing.T) {
	threshold := float64(float32(0.1))
	f := &Forest{
		NFeatures: features.Size,
		Classes:   []string{"covid", "healthy", "symptomatic"},
		Trees:     []Tree{stump(0, threshold, []float64{1, 0, 0}, []float64{0, 1, 0})},
	}
	require.NoError(t, f.Validate())

	// just above the threshold in double precision, equal to it in single
	var v features.Vector
	v[0] = threshold + 1e-9
	require.Greater(t, v[0], threshold)
	assert.Equal(t, "covid", f.Predict(v).Label)
}

func TestForestClassOrder(t *testing.T) {
	f := &Forest{
		NFeatures: features.Size,
		Classes:   []string{"symptomatic", "covid", "healthy"},
		Trees: []Tree{{
			ChildrenLeft:  []int{-1},
			ChildrenRight: []int{-1},
			Feature:       []int{-2},
			Threshold:     []float64{-2},
			Value:         [][]float64{{0.6, 0.1, 0.3}},
		}},
	}
	require.NoError(t, f.Validate())

	proba := f.PredictProba(features.Vector{})
	assert.InDelta(t, 0.1, proba[0], 1e-12)
	assert.InDelta(t, 0.3, proba[1], 1e-12)
	assert.InDelta(t, 0.6, proba[2], 1e-12)
}

func TestForestTieBreak(t *testing.T) {
	f := &Forest{
		NFeatures: features.Size,
		Classes:   []string{"covid", "healthy", "symptomatic"},
		Trees: []Tree{{
			ChildrenLeft:  []int{-1},
			ChildrenRight: []int{-1},
			Feature:       []int{-2},
			Threshold:     []float64{-2},
			Value:         [][]float64{{0, 1, 1}},
		}},
	}
	require.NoError(t, f.Validate())
	assert.Equal(t, "healthy", f.Predict(features.Vector{}).Label)
}

func TestForestProbabilitiesSumToOne(t *testing.T) {
	f := testForest(t)
	rng := rand.New(rand.NewSource(1))

	for range 200 {
		var v features.Vector
		for i := range v {
			v[i] = rng.NormFloat64() * 100
		}
		proba := f.PredictProba(v)
		sum := 0.0
		for _, p := range proba {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestForestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Forest)
	}{
		{"wrong feature count", func(f *Forest) { f.NFeatures = 20 }},
		{"missing class", func(f *Forest) { f.Classes = []string{"covid", "healthy", "asymptomatic"} }},
		{"extra class", func(f *Forest) { f.Classes = append(f.Classes, "other") }},
		{"no trees", func(f *Forest) { f.Trees = nil }},
		{"ragged arrays", func(f *Forest) { f.Trees[0].Threshold = f.Trees[0].Threshold[:2] }},
		{"child out of range", func(f *Forest) { f.Trees[0].ChildrenRight[0] = 9 }},
		{"cycle", func(f *Forest) { f.Trees[0].ChildrenLeft[0] = 0 }},
		{"single child", func(f *Forest) { f.Trees[0].ChildrenLeft[1] = 2 }},
		{"feature out of range", func(f *Forest) { f.Trees[0].Feature[0] = 30 }},
		{"short leaf value", func(f *Forest) { f.Trees[0].Value[1] = []float64{1, 2} }},
		{"negative weight", func(f *Forest) { f.Trees[0].Value[2] = []float64{-1, 0, 0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testForest(t)
			tt.mutate(f)
			assert.ErrorIs(t, f.Validate(), ErrInvalidArtifact)
		})
	}
}

func TestForestInfo(t *testing.T) {
	info := testForest(t).Info()
	assert.Equal(t, 3, info["trees"])
	assert.Equal(t, 7, info["nodes"])
	assert.Equal(t, features.Size, info["n_features"])
}

func TestEncodingForPath(t *testing.T) {
	enc, err := EncodingForPath("a/b/model.JSON")
	require.NoError(t, err)
	assert.Equal(t, EncodingJSON, enc)

	enc, err = EncodingForPath("model.mpk")
	require.NoError(t, err)
	assert.Equal(t, EncodingMsgpack, enc)

	_, err = EncodingForPath("model.pkl")
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}
