package engine

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/airenas/whisper-stt/internal/utils"
)

// ModelHandle is the loaded model with the settings it was loaded with
type ModelHandle struct {
	Name        string
	Device      string
	ComputeType string
	LoadTime    time.Duration
	model       Model
}

// Engine owns a single model instance shared by all requests
type Engine struct {
	loader          Loader
	cfg             ModelConfig
	defaultLanguage string
	tempDir         string

	lock   sync.RWMutex
	handle *ModelHandle
}

// New creates an engine. The model is not loaded until Load is called.
func New(loader Loader, cfg ModelConfig, defaultLanguage string) (*Engine, error) {
	if loader == nil {
		return nil, fmt.Errorf("no model loader")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("no model name")
	}
	return &Engine{loader: loader, cfg: cfg, defaultLanguage: defaultLanguage}, nil
}

// SetTempDir changes the directory for temporary audio files, "" means os.TempDir
func (e *Engine) SetTempDir(dir string) {
	e.tempDir = dir
}

// Load loads the model. Calling it again after a successful load is a no-op.
func (e *Engine) Load() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.handle != nil {
		return nil
	}
	goapp.Log.Info().Str("model", e.cfg.Name).Str("device", e.cfg.Device).
		Str("computeType", e.cfg.ComputeType).Msg("Loading whisper model")
	start := time.Now()
	m, err := e.loader.Load(e.cfg)
	if err != nil {
		return fmt.Errorf("load model '%s': %w", e.cfg.Name, err)
	}
	e.handle = &ModelHandle{Name: e.cfg.Name, Device: e.cfg.Device, ComputeType: e.cfg.ComputeType,
		LoadTime: time.Since(start), model: m}
	goapp.Log.Info().Str("model", e.cfg.Name).Dur("took", e.handle.LoadTime).Msg("Whisper model loaded")
	return nil
}

// IsLoaded reports readiness
func (e *Engine) IsLoaded() bool {
	return e.current() != nil
}

// ModelName returns the active model name or the configured one before load
func (e *Engine) ModelName() string {
	if h := e.current(); h != nil {
		return h.Name
	}
	return e.cfg.Name
}

// Handle returns a copy of the loaded handle info, nil before load
func (e *Engine) Handle() *ModelHandle {
	h := e.current()
	if h == nil {
		return nil
	}
	res := *h
	res.model = nil
	return &res
}

// Close releases the model
func (e *Engine) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.handle == nil {
		return nil
	}
	err := e.handle.model.Close()
	e.handle = nil
	return err
}

func (e *Engine) current() *ModelHandle {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.handle
}

// Transcribe runs the model on audio. It blocks until the whole clip is processed.
func (e *Engine) Transcribe(audio []byte, filenameHint, language string) (*domain.TranscriptionResult, error) {
	h := e.current()
	if h == nil {
		return nil, domain.NewError(domain.ErrEngineNotLoaded, "Transcription model is not loaded.")
	}
	defer utils.MeasureTime("transcribe", time.Now())

	path, cleanup, err := e.writeTemp(audio, filenameHint)
	if err != nil {
		return nil, fmt.Errorf("prepare audio: %w", err)
	}
	defer cleanup()

	lang := language
	if lang == "" {
		lang = e.defaultLanguage
	}
	opts := Options{Language: lang, BeamSize: BeamSize, VADFilter: true,
		MinSilenceDuration: MinSilenceDuration, WordTimestamps: false}
	if opts.Language == "" {
		opts.Language = AutoLanguage
	}

	it, err := h.model.Transcribe(path, opts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEngineFailure, err, "Transcription failed.")
	}
	segments, err := drain(it)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEngineFailure, err, "Transcription failed.")
	}
	info := it.Info()
	res := &domain.TranscriptionResult{
		Text:     domain.JoinText(segments),
		Language: resultLanguage(info.Language, lang),
		Duration: round(info.Duration, 3),
		Model:    h.Name,
		Segments: segments,
	}
	if me := maxEnd(segments); res.Duration < me {
		res.Duration = me
	}
	goapp.Log.Info().Str("lang", res.Language).Float64("duration", res.Duration).
		Int("segments", len(segments)).Msg("Transcription done")
	return res, nil
}

// writeTemp stores audio in a uniquely named file. The returned func removes it.
func (e *Engine) writeTemp(audio []byte, filenameHint string) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(filenameHint))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = ".wav"
	}
	f, err := os.CreateTemp(e.tempDir, "stt-*"+ext)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			goapp.Log.Warn().Err(err).Str("file", f.Name()).Msg("can't remove temp file")
		}
	}
	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

// drain consumes the iterator fully
func drain(it SegmentIterator) ([]domain.Segment, error) {
	res := []domain.Segment{}
	lastStart := 0.0
	for {
		seg, err := it.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read segment %d: %w", len(res), err)
		}
		s := domain.Segment{
			ID:           len(res),
			Start:        round(math.Max(seg.Start, lastStart), 3),
			End:          round(seg.End, 3),
			Text:         strings.TrimSpace(seg.Text),
			AvgLogProb:   round(seg.AvgLogProb, 4),
			NoSpeechProb: round(math.Min(math.Max(seg.NoSpeechProb, 0), 1), 4),
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		lastStart = s.Start
		res = append(res, s)
	}
}

func resultLanguage(detected, requested string) string {
	if requested != "" && requested != AutoLanguage {
		return requested
	}
	if detected != "" {
		return detected
	}
	return UnknownLanguage
}

func maxEnd(segments []domain.Segment) float64 {
	res := 0.0
	for _, s := range segments {
		res = math.Max(res, s.End)
	}
	return res
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
