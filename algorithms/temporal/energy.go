package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-cough/algorithms/common"
)

// Energy computes frame-level loudness of a waveform
type Energy struct {
	frameSize int
	hopSize   int
}

// LevelSummary describes the overall level of a clip
type LevelSummary struct {
	RMS          float64 `json:"rms" yaml:"rms"`
	RMSdB        float64 `json:"rms_db" yaml:"rms_db"`
	Peak         float64 `json:"peak" yaml:"peak"`
	SilentRatio  float64 `json:"silent_ratio" yaml:"silent_ratio"` // fraction of frames below the silence floor
	Silent       bool    `json:"silent" yaml:"silent"`             // every frame below the silence floor
	FramesTested int     `json:"frames" yaml:"frames"`
}

// SilenceFloorDB is the frame RMS level, in dBFS, below which a frame counts as silent
const SilenceFloorDB = -60.0

// NewEnergy creates a new energy calculator
func NewEnergy(frameSize, hopSize int) *Energy {
	return &Energy{
		frameSize: frameSize,
		hopSize:   hopSize,
	}
}

// ComputeShortTimeEnergy calculates RMS energy for overlapping frames. A signal shorter
// than one frame is treated as a single frame.
func (e *Energy) ComputeShortTimeEnergy(signal []float64) []float64 {
	if len(signal) == 0 || e.hopSize <= 0 || e.frameSize <= 0 {
		return []float64{}
	}
	if len(signal) < e.frameSize {
		return []float64{common.RMS(signal)}
	}

	numFrames := (len(signal)-e.frameSize)/e.hopSize + 1
	energies := make([]float64, numFrames)

	for i := range numFrames {
		start := i * e.hopSize
		energies[i] = common.RMS(signal[start : start+e.frameSize])
	}

	return energies
}

// Summarize reports RMS, peak and silence statistics for a whole clip
func (e *Energy) Summarize(signal []float64) LevelSummary {
	rms := common.RMS(signal)
	summary := LevelSummary{
		RMS:   rms,
		RMSdB: AmplitudeToDB(rms),
		Peak:  common.Peak(signal),
	}

	energies := e.ComputeShortTimeEnergy(signal)
	summary.FramesTested = len(energies)
	if len(energies) == 0 {
		summary.Silent = true
		return summary
	}

	silent := 0
	for _, energy := range energies {
		if AmplitudeToDB(energy) < SilenceFloorDB {
			silent++
		}
	}
	summary.SilentRatio = float64(silent) / float64(len(energies))
	summary.Silent = silent == len(energies)

	return summary
}

// AmplitudeToDB converts a linear amplitude to dBFS, floored at -200 dB
func AmplitudeToDB(amplitude float64) float64 {
	return 20.0 * math.Log10(math.Max(amplitude, 1e-10))
}
