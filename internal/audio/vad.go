package audio

import (
	"math"
	"time"
)

// VADConfig tunes energy based voice activity detection
type VADConfig struct {
	Frame      time.Duration
	Threshold  float64 // RMS in [0, 1]
	MinSilence time.Duration
	MinSpeech  time.Duration
	Pad        time.Duration
}

// DefaultVADConfig returns the settings used for transcription
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Frame:      30 * time.Millisecond,
		Threshold:  300.0 / 32768.0,
		MinSilence: 500 * time.Millisecond,
		MinSpeech:  250 * time.Millisecond,
		Pad:        200 * time.Millisecond,
	}
}

// Region is a speech span in samples, End is exclusive
type Region struct {
	Start, End int
}

// Activity holds per frame speech flags of one clip
type Activity struct {
	cfg        VADConfig
	sampleRate int
	frameLen   int
	total      int
	speech     []bool
}

// Analyze marks every frame as speech or silence
func Analyze(samples []float32, sampleRate int, cfg VADConfig) *Activity {
	frameLen := int(int64(sampleRate) * cfg.Frame.Milliseconds() / 1000)
	if frameLen <= 0 {
		frameLen = 1
	}
	res := &Activity{cfg: cfg, sampleRate: sampleRate, frameLen: frameLen, total: len(samples)}
	for from := 0; from < len(samples); from += frameLen {
		to := min(from+frameLen, len(samples))
		res.speech = append(res.speech, rms(samples[from:to]) >= cfg.Threshold)
	}
	return res
}

// Regions returns padded speech regions. Gaps shorter than MinSilence are bridged,
// spans shorter than MinSpeech are dropped.
func (a *Activity) Regions() []Region {
	minGap := a.frames(a.cfg.MinSilence)
	minSpeech := a.frames(a.cfg.MinSpeech)

	var runs [][2]int
	start := -1
	for i, s := range a.speech {
		if s && start < 0 {
			start = i
		}
		if !s && start >= 0 {
			runs = append(runs, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(a.speech)})
	}

	var merged [][2]int
	for _, r := range runs {
		if n := len(merged); n > 0 && r[0]-merged[n-1][1] < minGap {
			merged[n-1][1] = r[1]
			continue
		}
		merged = append(merged, r)
	}

	pad := a.samples(a.cfg.Pad)
	var res []Region
	for _, r := range merged {
		if r[1]-r[0] < minSpeech {
			continue
		}
		reg := Region{Start: max(r[0]*a.frameLen-pad, 0), End: min(r[1]*a.frameLen+pad, a.total)}
		if n := len(res); n > 0 && reg.Start <= res[n-1].End {
			res[n-1].End = reg.End
			continue
		}
		res = append(res, reg)
	}
	return res
}

// SilentFraction is the share of silent frames between start and end seconds
func (a *Activity) SilentFraction(start, end float64) float64 {
	if len(a.speech) == 0 {
		return 1
	}
	from := int(start * float64(a.sampleRate) / float64(a.frameLen))
	to := int(math.Ceil(end * float64(a.sampleRate) / float64(a.frameLen)))
	from = min(max(from, 0), len(a.speech)-1)
	to = min(max(to, from+1), len(a.speech))
	silent := 0
	for _, s := range a.speech[from:to] {
		if !s {
			silent++
		}
	}
	return float64(silent) / float64(to-from)
}

func (a *Activity) frames(d time.Duration) int {
	return int(math.Ceil(float64(a.samples(d)) / float64(a.frameLen)))
}

func (a *Activity) samples(d time.Duration) int {
	return int(int64(a.sampleRate) * d.Milliseconds() / 1000)
}

func rms(samples []float32) float64 {
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
