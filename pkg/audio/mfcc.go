package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	mfccWindow  = FrameLength
	mfccFilters = 26
	mfccCoeffs  = 20
)

var (
	melOnce  sync.Once
	melBank  [][]float64
	hannWind []float64

	// fourier.FFT keeps work space and is not safe for concurrent use.
	ffts = sync.Pool{New: func() any { return fourier.NewFFT(mfccWindow) }}
)

// MeanMFCC returns the mel-frequency cepstral coefficients of the signal,
// averaged over non-overlapping 512-sample windows. Input is 16 kHz PCM.
// A signal shorter than one window is zero-padded.
func MeanMFCC(samples []int16) []float64 {
	melOnce.Do(initMel)

	fft := ffts.Get().(*fourier.FFT)
	defer ffts.Put(fft)

	mean := make([]float64, mfccCoeffs)
	windows := 0
	window := make([]float64, mfccWindow)
	var spectrum []complex128
	energies := make([]float64, mfccFilters)

	for start := 0; start < len(samples) || windows == 0; start += mfccWindow {
		for i := range window {
			var v float64
			if start+i < len(samples) {
				v = float64(samples[start+i]) / math.MaxInt16
			}
			window[i] = v * hannWind[i]
		}
		spectrum = fft.Coefficients(spectrum, window)

		for m, filter := range melBank {
			var e float64
			for k, w := range filter {
				if w == 0 {
					continue
				}
				p := cmplx.Abs(spectrum[k])
				e += w * p * p
			}
			energies[m] = math.Log(e + 1e-10)
		}

		for c := 0; c < mfccCoeffs; c++ {
			var sum float64
			for m, e := range energies {
				sum += e * math.Cos(math.Pi*float64(c)*(float64(m)+0.5)/mfccFilters)
			}
			mean[c] += sum
		}
		windows++

		if start+mfccWindow >= len(samples) {
			break
		}
	}

	for c := range mean {
		mean[c] /= float64(windows)
	}
	return mean
}

// Similarity compares two signals by the cosine of their mean MFCC vectors.
// Identical signals score 1. Digital silence scores high against itself too,
// so thresholds need to sit close to 1 to mean anything.
func Similarity(a, b []int16) float64 {
	return CosineSimilarity(MeanMFCC(a), MeanMFCC(b))
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func initMel() {
	hannWind = make([]float64, mfccWindow)
	for i := range hannWind {
		hannWind[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(mfccWindow-1))
	}

	hzToMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	melToHz := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	bins := mfccWindow/2 + 1
	lo, hi := hzToMel(0), hzToMel(SampleRate/2)
	points := make([]int, mfccFilters+2)
	for i := range points {
		hz := melToHz(lo + (hi-lo)*float64(i)/float64(mfccFilters+1))
		points[i] = int(math.Floor((mfccWindow + 1) * hz / SampleRate))
		if points[i] >= bins {
			points[i] = bins - 1
		}
	}

	melBank = make([][]float64, mfccFilters)
	for m := 1; m <= mfccFilters; m++ {
		filter := make([]float64, bins)
		left, center, right := points[m-1], points[m], points[m+1]
		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k < right; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		melBank[m-1] = filter
	}
}
