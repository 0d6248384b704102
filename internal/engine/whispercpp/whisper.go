// Package whispercpp runs ggml whisper models through the whisper.cpp Go bindings.
// The static library and headers must be reachable through LIBRARY_PATH and
// C_INCLUDE_PATH at build time.
package whispercpp

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/audio"
	"github.com/airenas/whisper-stt/internal/engine"
	whisper "github.com/ggerganov/whisper.cpp/bindings/go"
)

// Loader loads whisper.cpp models from disk
type Loader struct {
	ModelDir  string
	ModelPath string // overrides ModelDir based resolution
	Threads   uint
	Decoder   *audio.Decoder
	VAD       audio.VADConfig
}

var _ engine.Loader = (*Loader)(nil)

// Load implements engine.Loader
func (l *Loader) Load(cfg engine.ModelConfig) (engine.Model, error) {
	path := l.ModelPath
	if path == "" {
		path = engine.ModelFile(l.ModelDir, cfg)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if cfg.Device != "" && cfg.Device != "cpu" {
		goapp.Log.Info().Str("device", cfg.Device).Msg("GPU use depends on how libwhisper was built")
	}
	ctx := whisper.Whisper_init(path)
	if ctx == nil {
		return nil, fmt.Errorf("load model %q: whisper_init failed", path)
	}
	b := &cgoBackend{ctx: ctx, multilingual: ctx.Whisper_is_multilingual() != 0}
	goapp.Log.Info().Str("path", path).Bool("multilingual", b.multilingual).Msg("ggml model loaded")
	return newModel(b, l.Decoder, l.Threads, l.VAD), nil
}

// decodeParams are the settings of one whisper_full call
type decodeParams struct {
	strategy        whisper.SamplingStrategy
	beamSize        int
	language        string // engine.AutoLanguage to detect
	threads         int
	tokenTimestamps bool
}

type token struct {
	p    float32
	text bool
}

// segment times are relative to the samples passed to full
type segment struct {
	start, end time.Duration
	text       string
	tokens     []token
}

// backend runs inference on a loaded model. It is not safe for concurrent use.
type backend interface {
	full(p decodeParams, samples []float32) (lang string, segments []segment, err error)
	close() error
}

// Model is a loaded whisper.cpp model. The whisper context keeps decoder state
// between calls, so inference runs under the model lock. Audio decoding and VAD do not.
type Model struct {
	decoder *audio.Decoder
	threads uint
	vad     audio.VADConfig

	lock    sync.Mutex
	backend backend // nil after Close
}

func newModel(b backend, dec *audio.Decoder, threads uint, vad audio.VADConfig) *Model {
	if dec == nil {
		dec = audio.NewDecoder("")
	}
	if vad.Frame == 0 {
		vad = audio.DefaultVADConfig()
	}
	return &Model{backend: b, decoder: dec, threads: threads, vad: vad}
}

// Transcribe implements engine.Model. Audio is decoded up front, speech regions
// are run through whisper one by one while the iterator is consumed.
func (m *Model) Transcribe(path string, opts engine.Options) (engine.SegmentIterator, error) {
	samples, err := m.decoder.Decode(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	lang := opts.Language
	if lang == "" {
		lang = engine.AutoLanguage
	}
	vad := m.vad
	if opts.MinSilenceDuration > 0 {
		vad.MinSilence = opts.MinSilenceDuration
	}
	activity := audio.Analyze(samples, audio.SampleRate, vad)
	regions := []audio.Region{{Start: 0, End: len(samples)}}
	if opts.VADFilter {
		regions = activity.Regions()
	}
	res := &iterator{model: m, opts: opts, samples: samples, activity: activity, regions: regions,
		duration: float64(len(samples)) / audio.SampleRate, requested: lang}
	if lang != engine.AutoLanguage {
		res.language = lang
	}
	return res, nil
}

// Close implements engine.Model. It waits for a running region to finish.
func (m *Model) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.backend == nil {
		return nil
	}
	err := m.backend.close()
	m.backend = nil
	return err
}

func (m *Model) params(lang string, opts engine.Options) decodeParams {
	res := decodeParams{strategy: whisper.SAMPLING_GREEDY, language: lang, threads: int(m.threads),
		tokenTimestamps: opts.WordTimestamps}
	if opts.BeamSize > 1 {
		res.strategy = whisper.SAMPLING_BEAM_SEARCH
		res.beamSize = opts.BeamSize
	}
	return res
}

func (m *Model) run(lang string, opts engine.Options, samples []float32) (string, []segment, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.backend == nil {
		return "", nil, fmt.Errorf("model closed")
	}
	return m.backend.full(m.params(lang, opts), samples)
}

// iterator runs one speech region through whisper when the previous one is drained
type iterator struct {
	model     *Model
	opts      engine.Options
	samples   []float32
	activity  *audio.Activity
	regions   []audio.Region
	next      int
	pending   []*engine.RawSegment
	requested string
	language  string
	duration  float64
}

func (it *iterator) Next() (*engine.RawSegment, error) {
	for len(it.pending) == 0 {
		if it.next >= len(it.regions) {
			return nil, io.EOF
		}
		if err := it.process(it.regions[it.next]); err != nil {
			return nil, err
		}
		it.next++
	}
	res := it.pending[0]
	it.pending = it.pending[1:]
	return res, nil
}

func (it *iterator) process(r audio.Region) error {
	if r.End <= r.Start {
		return nil
	}
	lang := it.requested
	if it.language != "" {
		// later regions stay in the language of the first one
		lang = it.language
	}
	detected, segments, err := it.model.run(lang, it.opts, it.samples[r.Start:r.End])
	if err != nil {
		return fmt.Errorf("process audio: %w", err)
	}
	if it.language == "" {
		it.language = detected
	}
	offset := float64(r.Start) / audio.SampleRate
	for _, seg := range segments {
		it.pending = append(it.pending, it.convert(seg, offset))
	}
	return nil
}

func (it *iterator) convert(seg segment, offset float64) *engine.RawSegment {
	start := offset + seg.start.Seconds()
	end := offset + seg.end.Seconds()
	var sum float64
	n := 0
	for _, t := range seg.tokens {
		if !t.text || t.p <= 0 {
			continue
		}
		sum += math.Log(float64(t.p))
		n++
	}
	res := &engine.RawSegment{Start: start, End: end, Text: seg.text,
		NoSpeechProb: it.activity.SilentFraction(start, end)}
	if n > 0 {
		res.AvgLogProb = sum / float64(n)
	}
	return res
}

func (it *iterator) Info() engine.Info {
	return engine.Info{Language: it.language, Duration: it.duration}
}
