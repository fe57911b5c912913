package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-cough/algorithms/chroma"
	"github.com/RyanBlaney/sonido-cough/algorithms/common"
	"github.com/RyanBlaney/sonido-cough/algorithms/spectral"
	"github.com/RyanBlaney/sonido-cough/algorithms/windowing"
	"github.com/RyanBlaney/sonido-cough/logging"
)

// ErrEmptyWaveform is returned for a waveform without samples
var ErrEmptyWaveform = errors.New("empty waveform")

// Analysis is a Vector plus the intermediate values worth reporting
type Analysis struct {
	Vector  Vector        `json:"vector"`
	Frames  int           `json:"frames"`
	Tuning  float64       `json:"tuning"` // chroma tuning offset in fractions of a semitone
	Elapsed time.Duration `json:"elapsed"`
}

// Extractor computes Vectors. All algorithm state is built in NewExtractor and only
// read afterwards, so one Extractor can serve concurrent requests.
type Extractor struct {
	config FeatureConfig
	logger logging.Logger

	stft       *spectral.STFT
	stftParams spectral.STFTParams
	window     *windowing.Hann

	mfcc         *spectral.MFCC
	centroid     *spectral.SpectralCentroid
	zeroCrossing *spectral.ZeroCrossingRate
	chromaSTFT   *chroma.ChromaSTFT
	rolloff      *spectral.SpectralRolloff
}

// NewExtractor validates config and prepares every filter bank
func NewExtractor(config FeatureConfig) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Extractor{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
		stft: spectral.NewSTFT(),
		stftParams: spectral.STFTParams{
			WindowSize: config.WindowSize,
			HopSize:    config.HopSize,
			Center:     true,
			PadMode:    spectral.PadConstant,
		},
		window:       windowing.NewPeriodicHann(config.WindowSize),
		centroid:     spectral.NewSpectralCentroid(config.SampleRate, config.WindowSize),
		zeroCrossing: spectral.NewZeroCrossingRateWithParams(config.WindowSize, config.HopSize, true),
		rolloff:      spectral.NewSpectralRolloff(config.SampleRate, config.WindowSize),
	}

	e.mfcc = spectral.NewMFCCWithParams(config.SampleRate, spectral.MFCCParams{
		NumCoefficients: config.NumMFCC,
		NumMelFilters:   config.NumMels,
		HighFreq:        float64(config.SampleRate) / 2.0,
		DB:              spectral.DefaultDBParams(),
	})
	if err := e.mfcc.Initialize(config.WindowSize); err != nil {
		return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
	}

	chromaParams := chroma.DefaultChromaParams()
	chromaParams.FFTSize = config.WindowSize
	chromaParams.EstimateTuning = config.EstimateTuning
	e.chromaSTFT = chroma.NewChromaSTFT(config.SampleRate, chromaParams)

	return e, nil
}

// Config returns the extractor configuration
func (e *Extractor) Config() FeatureConfig { return e.config }

// Extract computes the feature vector of a mono waveform sampled at sampleRate
func (e *Extractor) Extract(ctx context.Context, samples []float64, sampleRate int) (Vector, error) {
	analysis, err := e.Analyze(ctx, samples, sampleRate)
	if err != nil {
		return Vector{}, err
	}
	return analysis.Vector, nil
}

// Analyze is Extract with diagnostics
func (e *Extractor) Analyze(ctx context.Context, samples []float64, sampleRate int) (*Analysis, error) {
	logger := e.logger.WithFields(logging.Fields{
		"function": "Analyze",
		"samples":  len(samples),
	})

	if len(samples) == 0 {
		return nil, ErrEmptyWaveform
	}
	if sampleRate != e.config.SampleRate {
		return nil, fmt.Errorf("waveform sampled at %d Hz, extractor expects %d Hz", sampleRate, e.config.SampleRate)
	}
	if !common.AllFinite(samples) {
		return nil, fmt.Errorf("waveform contains non-finite samples")
	}

	start := time.Now()

	stftResult, err := e.stft.ComputeWithWindow(samples, e.stftParams, e.config.SampleRate, e.window)
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}
	power := stftResult.Power()

	var (
		vector Vector
		tuning float64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		frames, err := e.mfcc.ComputeFromPower(power)
		if err != nil {
			return fmt.Errorf("mfcc: %w", err)
		}
		copy(vector[OffsetMFCC:OffsetCentroid], common.FrameMeans(frames))
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		vector[OffsetCentroid] = common.Mean(e.centroid.ComputeFrames(stftResult.Magnitude))
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		rates := e.zeroCrossing.ComputeFrames(samples)
		if len(rates) == 0 {
			return fmt.Errorf("zero crossing rate: no frames")
		}
		vector[OffsetZCR] = common.Mean(rates)
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		chromagram, t, err := e.chromaSTFT.ComputeFromPower(power)
		if err != nil {
			return fmt.Errorf("chroma: %w", err)
		}
		tuning = t
		copy(vector[OffsetChroma:OffsetRolloff], common.FrameMeans(chromagram))
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		vector[OffsetRolloff] = common.Mean(e.rolloff.ComputeFrames(stftResult.Magnitude, e.config.RolloffPercent))
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(err, "Feature extraction failed")
		return nil, err
	}

	if !common.AllFinite(vector[:]) {
		err := fmt.Errorf("feature vector contains non-finite values")
		logger.Error(err, "Feature extraction failed")
		return nil, err
	}

	analysis := &Analysis{
		Vector:  vector,
		Frames:  stftResult.TimeFrames,
		Tuning:  tuning,
		Elapsed: time.Since(start),
	}

	logger.Debug("Features extracted", logging.Fields{
		"frames":     analysis.Frames,
		"tuning":     analysis.Tuning,
		"elapsed_ms": analysis.Elapsed.Milliseconds(),
	})

	return analysis, nil
}
