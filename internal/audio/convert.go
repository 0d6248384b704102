package audio

import (
	"encoding/binary"
	"math"
)

// SampleRate whisper expects
const SampleRate = 16000

// PCMToFloat32 converts 16 bit signed little endian mono PCM to [-1, 1] floats.
// A trailing odd byte is ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	res := make([]float32, n)
	for i := range n {
		res[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return res
}

// IntToMono down-mixes interleaved integer samples to mono floats.
// 8 bit samples are unsigned with silence at 128, wider ones are signed.
func IntToMono(data []int, channels, bitDepth int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))
	zero := 0
	if bitDepth == 8 {
		zero = 128
	}
	n := len(data) / channels
	res := make([]float32, n)
	for i := range n {
		var sum float32
		for ch := range channels {
			sum += float32(data[i*channels+ch]-zero) / scale
		}
		res[i] = sum / float32(channels)
	}
	return res
}

// Resample converts samples between rates with linear interpolation
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	res := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range n {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			res[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		res[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return res
}
