package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/sonido-cough/features"
	"github.com/RyanBlaney/sonido-cough/model"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

const testRate = 44100

func tone(freq float64, seconds float64, rate int) []float64 {
	out := make([]float64, int(seconds*float64(rate)))
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func noise(seconds float64) []float64 {
	rng := rand.New(rand.NewSource(3))
	out := make([]float64, int(seconds*testRate))
	for i := range out {
		out[i] = rng.Float64() - 0.5
	}
	return out
}

func wav(t require.TestingT, samples []float64) []byte {
	data, err := transcode.EncodeWAV(samples, testRate, 1)
	require.NoError(t, err)
	return data
}

// zcrForest sends low zero-crossing clips to covid and noisy ones to symptomatic
func zcrForest() *model.Forest {
	return &model.Forest{
		NFeatures: features.Size,
		Classes:   []string{"covid", "healthy", "symptomatic"},
		Trees: []model.Tree{{
			ChildrenLeft:  []int{1, -1, -1},
			ChildrenRight: []int{2, -1, -1},
			Feature:       []int{features.OffsetZCR, -2, -2},
			Threshold:     []float64{0.1, -2, -2},
			Value:         [][]float64{{0, 0, 0}, {7, 2, 1}, {1, 2, 7}},
		}},
	}
}

func identityScaler(t require.TestingT) *model.Scaler {
	scale := make([]float64, features.Size)
	for i := range scale {
		scale[i] = 1
	}
	s, err := model.NewScaler(make([]float64, features.Size), scale)
	require.NoError(t, err)
	return s
}

type ServiceSuite struct {
	suite.Suite
	service  *Service
	spoolDir string
	ctx      context.Context
}

func (s *ServiceSuite) SetupTest() {
	decoderConfig := transcode.DefaultDecoderConfig()
	decoderConfig.Backend = transcode.BackendNative
	decoder, err := transcode.NewDecoder(decoderConfig)
	s.Require().NoError(err)

	normalizer, err := transcode.NewNormalizer(decoder, testRate, 2*time.Second)
	s.Require().NoError(err)

	extractor, err := features.NewExtractor(features.DefaultFeatureConfig())
	s.Require().NoError(err)

	forest := zcrForest()
	s.Require().NoError(forest.Validate())

	s.spoolDir = s.T().TempDir()
	spool, err := NewSpool(s.spoolDir)
	s.Require().NoError(err)

	s.service, err = NewService(normalizer, extractor, identityScaler(s.T()), forest, spool)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) assertDistribution(result *Result) {
	s.Require().Len(result.Probabilities, 3)
	sum := 0.0
	for i, p := range result.Probabilities {
		s.Equal(model.Labels[i], p.Label)
		s.GreaterOrEqual(p.Score, 0.0)
		s.LessOrEqual(p.Score, 1.0)
		sum += p.Score
	}
	s.InDelta(1.0, sum, 1e-6)
}

func (s *ServiceSuite) assertSpoolEmpty() {
	entries, err := os.ReadDir(s.spoolDir)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *ServiceSuite) TestClassifyTone() {
	result, err := s.service.Classify(s.ctx, wav(s.T(), tone(440, 1, testRate)))
	s.Require().NoError(err)
	s.assertDistribution(result)
	s.Equal("covid", result.Classification)
	s.InDelta(0.7, result.Score("covid"), 1e-9)
}

func (s *ServiceSuite) TestClassifyNoise() {
	result, err := s.service.Classify(s.ctx, wav(s.T(), noise(3)))
	s.Require().NoError(err)
	s.assertDistribution(result)
	s.Equal("symptomatic", result.Classification)
}

func (s *ServiceSuite) TestClassifyErrors() {
	_, err := s.service.Classify(s.ctx, nil)
	s.True(IsKind(err, KindMissingInput))

	_, err = s.service.Classify(s.ctx, []byte("definitely not audio"))
	s.True(IsKind(err, KindDecode), "got %v", err)
	s.ErrorIs(err, transcode.ErrUnsupportedFormat)
}

func (s *ServiceSuite) TestClassifyWaveformResamples() {
	result, err := s.service.ClassifyWaveform(s.ctx, tone(440, 1, 22050), 22050)
	s.Require().NoError(err)
	s.Equal("covid", result.Classification)

	_, err = s.service.ClassifyWaveform(s.ctx, nil, testRate)
	s.True(IsKind(err, KindMissingInput))
}

func (s *ServiceSuite) TestClassifyReaderCleansUp() {
	result, err := s.service.ClassifyReader(s.ctx, bytes.NewReader(wav(s.T(), tone(440, 1, testRate))), "cough.wav")
	s.Require().NoError(err)
	s.Equal("covid", result.Classification)
	s.assertSpoolEmpty()

	_, err = s.service.ClassifyReader(s.ctx, strings.NewReader("garbage bytes"), "cough.wav")
	s.True(IsKind(err, KindDecode))
	s.assertSpoolEmpty()

	_, err = s.service.ClassifyReader(s.ctx, strings.NewReader(""), "empty.wav")
	s.True(IsKind(err, KindMissingInput))
	s.assertSpoolEmpty()

	_, err = s.service.ClassifyReader(s.ctx, nil, "")
	s.True(IsKind(err, KindMissingInput))
}

func (s *ServiceSuite) TestConcurrentReaders() {
	data := wav(s.T(), tone(440, 1, testRate))

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.ClassifyReader(s.ctx, bytes.NewReader(data), fmt.Sprintf("clip%d.wav", i))
			if err == nil && result.Classification != "covid" {
				err = fmt.Errorf("unexpected label %s", result.Classification)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.assertSpoolEmpty()
}

func (s *ServiceSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.service.Classify(ctx, wav(s.T(), tone(440, 1, testRate)))
	s.ErrorIs(err, context.Canceled)
	s.Equal(KindUnknown, KindOf(err))
	s.False(IsKind(err, KindDecode))

	_, err = s.service.ClassifyWaveform(ctx, tone(440, 1, testRate), testRate)
	s.ErrorIs(err, context.Canceled)
	s.Equal(KindUnknown, KindOf(err))
}

func (s *ServiceSuite) TestModelInfo() {
	info := s.service.ModelInfo()
	s.Equal(1, info["trees"])
	s.Equal(testRate, info["sample_rate"])
	s.Equal(2.0, info["duration_seconds"])
}

func TestNewServiceValidatesCollaborators(t *testing.T) {
	decoder, err := transcode.NewDecoder(transcode.DefaultDecoderConfig())
	require.NoError(t, err)
	normalizer, err := transcode.NewNormalizer(decoder, 22050, time.Second)
	require.NoError(t, err)
	extractor, err := features.NewExtractor(features.DefaultFeatureConfig())
	require.NoError(t, err)

	_, err = NewService(normalizer, extractor, identityScaler(t), zcrForest(), nil)
	assert.True(t, IsKind(err, KindConfiguration))

	_, err = NewService(nil, extractor, identityScaler(t), zcrForest(), nil)
	assert.True(t, IsKind(err, KindConfiguration))

	normalizer, err = transcode.NewNormalizer(decoder, testRate, time.Second)
	require.NoError(t, err)
	broken := zcrForest()
	broken.NFeatures = 12
	_, err = NewService(normalizer, extractor, identityScaler(t), broken, nil)
	assert.True(t, IsKind(err, KindConfiguration))
	assert.ErrorIs(t, err, model.ErrInvalidArtifact)

	service, err := NewService(normalizer, extractor, identityScaler(t), zcrForest(), nil)
	require.NoError(t, err)
	_, err = service.ClassifyReader(context.Background(), strings.NewReader("x"), "x.wav")
	assert.True(t, IsKind(err, KindConfiguration))
}

func TestErrorHelpers(t *testing.T) {
	assert.Nil(t, Wrap(KindDecode, "op", "msg", nil))

	cause := errors.New("boom")
	err := Wrap(KindDecode, "classify.decode", "failed", cause)
	assert.Equal(t, "[decode_error:classify.decode] failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindDecode))

	// an already typed error keeps its kind
	rewrapped := Wrap(KindFeatureExtraction, "other", "other", fmt.Errorf("context: %w", err))
	assert.Equal(t, KindDecode, KindOf(rewrapped))

	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, "[missing_input:op] msg", New(KindMissingInput, "op", "msg").Error())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "received", StateReceived.String())
	assert.Equal(t, "extracting_features", StateExtractingFeatures.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestSafeExt(t *testing.T) {
	tests := map[string]string{
		"cough.WAV":        ".wav",
		"a/b/c.mp3":        ".mp3",
		"noext":            "",
		"../../etc/passwd": "",
		"x.w$v":            "",
		"clip.verylongext": "",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeExt(in), in)
	}
}

func TestSpoolWriteAndRemove(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	path, n, err := spool.Write(strings.NewReader("abc"), "x.ogg")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.True(t, strings.HasSuffix(path, ".ogg"))

	other, _, err := spool.Write(strings.NewReader("abc"), "x.ogg")
	require.NoError(t, err)
	assert.NotEqual(t, path, other)

	require.NoError(t, spool.Remove(path))
	require.NoError(t, spool.Remove(path))
	require.NoError(t, spool.Remove(other))

	_, err = NewSpool("")
	assert.Error(t, err)
}
