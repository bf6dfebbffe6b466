package media

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

const (
	defaultFFTSize = 64

	// Decibel range mapped onto the 0..255 output scale.
	minDecibels = -100.0
	maxDecibels = -30.0

	// Exponential smoothing factor applied to bin magnitudes between reads.
	smoothingFactor = 0.8
)

// Analyser computes byte-scaled frequency magnitudes over the most recent
// window of captured samples. It is fed from the capture callback and read
// from the monitor goroutine, so all state is guarded.
type Analyser struct {
	mu       sync.Mutex
	fftSize  int
	ring     []float32 // last fftSize samples, pos is the write cursor
	pos      int
	smoothed []float64
}

// NewAnalyser creates an analyser over a window of fftSize samples. fftSize
// must be a power of two; zero selects the default.
func NewAnalyser(fftSize int) *Analyser {
	if fftSize <= 0 {
		fftSize = defaultFFTSize
	}
	return &Analyser{
		fftSize:  fftSize,
		ring:     make([]float32, fftSize),
		smoothed: make([]float64, fftSize/2),
	}
}

// Feed appends captured samples to the analysis window. Older samples fall
// out of the window as new ones arrive.
func (a *Analyser) Feed(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % a.fftSize
	}
}

// FrequencyBinCount is the number of bins ByteFrequencyData fills.
func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

// ByteFrequencyData writes the current frequency magnitudes, scaled to
// 0..255, into dst. Extra capacity is left untouched.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Unroll the ring into time order and apply a Hann window.
	windowed := make([]complex128, a.fftSize)
	for i := 0; i < a.fftSize; i++ {
		sample := float64(a.ring[(a.pos+i)%a.fftSize])
		coeff := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(a.fftSize-1)))
		windowed[i] = complex(sample*coeff, 0)
	}

	spectrum := fft.FFT(windowed)

	bins := a.fftSize / 2
	for i := 0; i < bins; i++ {
		magnitude := cmplx.Abs(spectrum[i]) / float64(a.fftSize)
		a.smoothed[i] = smoothingFactor*a.smoothed[i] + (1-smoothingFactor)*magnitude

		db := -math.MaxFloat64
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}

		scaled := math.Round(255 * (db - minDecibels) / (maxDecibels - minDecibels))
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 255 {
			scaled = 255
		}
		if i < len(dst) {
			dst[i] = byte(scaled)
		}
	}
}
