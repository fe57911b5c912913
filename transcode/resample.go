package transcode

import (
	"fmt"
	"math"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another. Equal rates return the
// input unchanged. quality is one of "fast", "medium" or "high" ("" means high).
func Resample(samples []float64, fromRate, toRate int, quality string) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	// one-shot: processes and flushes, so the samples held in the filter delay
	// at the end of the clip are kept
	output, err := resampling.ResampleMono(samples, float64(fromRate), float64(toRate), qualityPreset(quality))
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d Hz: %w", fromRate, toRate, err)
	}
	return output, nil
}

func qualityPreset(quality string) resampling.QualityPreset {
	switch quality {
	case "fast":
		return resampling.QualityLow
	case "medium":
		return resampling.QualityMedium
	default:
		return resampling.QualityHigh
	}
}

// SourceLimit returns how many samples at sampleRate are needed to produce limit of
// output, plus a 20 ms margin so the resampling filter sees real signal at the cut.
// Zero means unlimited.
func SourceLimit(limit time.Duration, sampleRate int) int {
	if limit <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Ceil(limit.Seconds()*float64(sampleRate))) + sampleRate/50
}

// limitSource cuts samples to SourceLimit and reports whether anything was dropped
func limitSource(samples []float64, limit time.Duration, sampleRate int) ([]float64, bool) {
	n := SourceLimit(limit, sampleRate)
	if n == 0 || len(samples) <= n {
		return samples, false
	}
	return samples[:n], true
}
