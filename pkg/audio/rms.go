package audio

import "math"

// RMS returns the root-mean-square amplitude of the samples. An empty slice
// has zero volume.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Scale multiplies every sample by volume, clamping to the int16 range.
func Scale(samples []int16, volume float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * volume
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// Resample converts mono PCM between sample rates with linear interpolation.
// It is only used to line up synthesized reply audio with microphone frames,
// where quality is secondary to alignment.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	n := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	out := make([]int16, n)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(math.Round(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac))
	}
	return out
}
