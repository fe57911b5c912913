package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"
)

// PadMode selects how a centered STFT extends the signal at both ends
type PadMode int

const (
	// PadConstant pads with zeros
	PadConstant PadMode = iota
	// PadEdge repeats the first and last sample
	PadEdge
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTParams controls framing
type STFTParams struct {
	WindowSize int     `json:"window_size"`
	HopSize    int     `json:"hop_size"`
	Center     bool    `json:"center"`   // pad WindowSize/2 on both sides so frame t is centered at t*HopSize
	PadMode    PadMode `json:"pad_mode"` // only used when Center is set
}

// STFTResult holds the magnitude spectrogram
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // WindowSize/2 + 1
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// PadSignal extends signal by pad samples on both sides
func PadSignal(signal []float64, pad int, mode PadMode) []float64 {
	if pad <= 0 || len(signal) == 0 {
		return signal
	}
	out := make([]float64, len(signal)+2*pad)
	copy(out[pad:], signal)
	if mode == PadEdge {
		first, last := signal[0], signal[len(signal)-1]
		for i := range pad {
			out[i] = first
			out[len(out)-1-i] = last
		}
	}
	return out
}

// FrameCount returns the number of frames produced for a signal of n samples
func FrameCount(n int, params STFTParams) int {
	if params.Center {
		n += 2 * (params.WindowSize / 2)
	}
	if n < params.WindowSize || params.HopSize <= 0 {
		return 0
	}
	return (n-params.WindowSize)/params.HopSize + 1
}

// ComputeWithWindow computes the magnitude STFT using a pool of workers. Each worker
// writes only its own rows, so the output does not depend on scheduling.
func (s *STFT) ComputeWithWindow(signal []float64, params STFTParams, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if params.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if params.HopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	if params.Center {
		signal = PadSignal(signal, params.WindowSize/2, params.PadMode)
	}

	windowSize := params.WindowSize
	hopSize := params.HopSize

	numFrames := (len(signal)-windowSize)/hopSize + 1
	if len(signal) < windowSize || numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	// Positive frequencies only
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)

	jobs := make(chan int, numFrames)
	errs := make(chan error, numWorkers)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				start := frameIdx * hopSize
				copy(frameBuffer, signal[start:start+windowSize])

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errs <- fmt.Errorf("frame %d: %w", frameIdx, err)
						return
					}
				}

				spectrum := s.fft.ComputePositive(frameBuffer)
				row := magnitude[frameIdx]
				for i := range freqBins {
					row[i] = cmplx.Abs(spectrum[i])
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)

	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, err
	}

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// Power returns |X|^2 for every frame and bin
func (r *STFTResult) Power() [][]float64 {
	return NewPowerSpectrum().ComputeFrames(r.Magnitude)
}

// Frequencies returns the center frequency of every bin (0 .. sr/2)
func (r *STFTResult) Frequencies() []float64 {
	return FFTFrequencies(r.SampleRate, r.WindowSize)
}

// FFTFrequencies returns bin frequencies for an n-point real FFT
func FFTFrequencies(sampleRate, n int) []float64 {
	bins := n/2 + 1
	freqs := make([]float64, bins)
	for i := range bins {
		freqs[i] = float64(i) * float64(sampleRate) / float64(n)
	}
	return freqs
}

// getOptimalWorkerCount determines the optimal number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
