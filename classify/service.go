package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-cough/features"
	"github.com/RyanBlaney/sonido-cough/logging"
	"github.com/RyanBlaney/sonido-cough/model"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

// State is a step of the request lifecycle
type State int

const (
	StateReceived State = iota
	StateDecoding
	StateExtractingFeatures
	StateScaling
	StateClassifying
	StateResponding
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDecoding:
		return "decoding"
	case StateExtractingFeatures:
		return "extracting_features"
	case StateScaling:
		return "scaling"
	case StateClassifying:
		return "classifying"
	case StateResponding:
		return "responding"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RequestIDField is the logging field carrying the request id
const RequestIDField = "request_id"

// Service runs the classification pipeline. Everything it holds is read-only after
// NewService, so one Service is shared by all requests.
type Service struct {
	normalizer *transcode.Normalizer
	extractor  *features.Extractor
	scaler     *model.Scaler
	forest     *model.Forest
	spool      *Spool
	logger     logging.Logger
}

// NewService checks that the collaborators agree with each other. spool may be nil
// when ClassifyReader is not used.
func NewService(normalizer *transcode.Normalizer, extractor *features.Extractor, scaler *model.Scaler, forest *model.Forest, spool *Spool) (*Service, error) {
	const op = "classify.NewService"

	switch {
	case normalizer == nil:
		return nil, New(KindConfiguration, op, "normalizer is required")
	case extractor == nil:
		return nil, New(KindConfiguration, op, "feature extractor is required")
	case scaler == nil:
		return nil, New(KindConfiguration, op, "scaler is required")
	case forest == nil:
		return nil, New(KindConfiguration, op, "forest is required")
	}

	if rate := extractor.Config().SampleRate; rate != normalizer.SampleRate() {
		return nil, New(KindConfiguration, op,
			fmt.Sprintf("normalizer produces %d Hz but extractor expects %d Hz", normalizer.SampleRate(), rate))
	}
	if err := scaler.Validate(); err != nil {
		return nil, Wrap(KindConfiguration, op, "invalid scaler", err)
	}
	if err := forest.Validate(); err != nil {
		return nil, Wrap(KindConfiguration, op, "invalid forest", err)
	}

	return &Service{
		normalizer: normalizer,
		extractor:  extractor,
		scaler:     scaler,
		forest:     forest,
		spool:      spool,
		logger: logging.WithFields(logging.Fields{
			"component": "classification_service",
		}),
	}, nil
}

// ModelInfo describes the loaded model for health reporting
func (s *Service) ModelInfo() map[string]any {
	info := s.forest.Info()
	info["labels"] = model.Labels
	info["sample_rate"] = s.normalizer.SampleRate()
	info["duration_seconds"] = s.normalizer.Duration().Seconds()
	return info
}

// request tracks one pass through the pipeline
type request struct {
	logger logging.Logger
	state  State
	start  time.Time
}

func (s *Service) newRequest(ctx context.Context, function string) (*request, context.Context) {
	if _, ok := logging.FieldsFromContext(ctx)[RequestIDField]; !ok {
		ctx = logging.ContextWithFields(ctx, logging.Fields{RequestIDField: uuid.NewString()})
	}
	return &request{
		logger: s.logger.WithContext(ctx).WithFields(logging.Fields{"function": function}),
		state:  StateReceived,
		start:  time.Now(),
	}, ctx
}

func (r *request) enter(state State) {
	r.logger.Debug("State transition", logging.Fields{
		"from": r.state.String(),
		"to":   state.String(),
	})
	r.state = state
}

func (r *request) fail(err error) error {
	r.logger.Debug("State transition", logging.Fields{
		"from":  r.state.String(),
		"to":    StateFailed.String(),
		"kind":  string(KindOf(err)),
		"error": err.Error(),
	})
	r.state = StateFailed
	return err
}

// Classify runs the pipeline on encoded audio bytes
func (s *Service) Classify(ctx context.Context, audio []byte) (*Result, error) {
	req, ctx := s.newRequest(ctx, "Classify")

	if len(audio) == 0 {
		return nil, req.fail(New(KindMissingInput, "classify.validate", "no audio provided"))
	}

	req.enter(StateDecoding)
	waveform, err := s.normalizer.Normalize(ctx, audio)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, req.fail(cancelled("classify.decode", ctxErr))
		}
		if errors.Is(err, transcode.ErrEmptyInput) {
			return nil, req.fail(Wrap(KindMissingInput, "classify.decode", "no audio provided", err))
		}
		return nil, req.fail(Wrap(KindDecode, "classify.decode", "failed to decode audio", err))
	}

	return s.classifyWaveform(ctx, req, waveform)
}

// ClassifyWaveform runs the pipeline on an in-memory mono signal; it is resampled
// when sampleRate differs from the configured rate
func (s *Service) ClassifyWaveform(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	req, ctx := s.newRequest(ctx, "ClassifyWaveform")

	if len(samples) == 0 {
		return nil, req.fail(New(KindMissingInput, "classify.validate", "no samples provided"))
	}

	req.enter(StateDecoding)
	waveform, err := s.normalizer.FromSamples(samples, sampleRate)
	if err != nil {
		return nil, req.fail(Wrap(KindDecode, "classify.decode", "failed to prepare waveform", err))
	}

	return s.classifyWaveform(ctx, req, waveform)
}

// ClassifyReader spools r to disk under a unique name, classifies it and removes
// the file before returning, whatever the outcome
func (s *Service) ClassifyReader(ctx context.Context, r io.Reader, filename string) (*Result, error) {
	const op = "classify.spool"

	if r == nil {
		return nil, New(KindMissingInput, op, "no file provided")
	}
	if s.spool == nil {
		return nil, New(KindConfiguration, op, "upload spool is not configured")
	}

	path, size, err := s.spool.Write(r, filename)
	if err != nil {
		return nil, Wrap(KindDecode, op, "failed to store upload", err)
	}
	defer func() {
		if err := s.spool.Remove(path); err != nil {
			s.logger.Error(err, "Failed to remove spooled upload", logging.Fields{"path": path})
		}
	}()

	if size == 0 {
		return nil, New(KindMissingInput, op, "uploaded file is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(KindDecode, op, "failed to read upload", err)
	}

	return s.Classify(ctx, data)
}

func (s *Service) classifyWaveform(ctx context.Context, req *request, waveform *transcode.Waveform) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, req.fail(cancelled("classify.extract", err))
	}

	req.enter(StateExtractingFeatures)
	raw, err := s.extractor.Extract(ctx, waveform.Samples, waveform.SampleRate)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, req.fail(cancelled("classify.extract", ctxErr))
		}
		return nil, req.fail(Wrap(KindFeatureExtraction, "classify.extract", "failed to extract features", err))
	}

	req.enter(StateScaling)
	scaled := s.scaler.Transform(raw)

	req.enter(StateClassifying)
	prediction := s.forest.Predict(scaled)

	req.enter(StateResponding)
	result := newResult(prediction)

	req.logger.Debug("Classification complete", logging.Fields{
		"classification": result.Classification,
		"padded":         waveform.Padded,
		"truncated":      waveform.Truncated,
		"silent":         waveform.Level.Silent,
		"elapsed_ms":     time.Since(req.start).Milliseconds(),
	})

	return result, nil
}

// cancelled reports an abandoned request; it is not the caller's input that failed
func cancelled(op string, err error) error {
	return Wrap(KindUnknown, op, "request cancelled", err)
}
