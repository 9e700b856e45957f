package audio

import "math"

const (
	ToneFrequency  = 440.0
	ToneSampleRate = 44100
	ToneAmplitude  = 16000
)

// GenerateSineWave produces numSamples of a sine wave at frequency, sampled
// at ToneSampleRate, as mono int16 PCM.
func GenerateSineWave(numSamples int, frequency float64) []int16 {
	samples := make([]int16, numSamples)
	for i := range samples {
		t := float64(i) / ToneSampleRate
		samples[i] = int16(ToneAmplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return samples
}
