// Package engine owns the loaded transcription model and turns its raw output
// into domain results. The model itself is reached through the Model interface so
// the backend (whisper.cpp) can be swapped or faked.
package engine

import (
	"path/filepath"
	"time"
)

// Transcription parameters fixed for every call
const (
	BeamSize           = 5
	MinSilenceDuration = 500 * time.Millisecond
	// AutoLanguage is passed to the model when no language is forced
	AutoLanguage = "auto"
	// UnknownLanguage is reported when nothing could be detected
	UnknownLanguage = "und"
)

// ModelConfig selects the model variant to load
type ModelConfig struct {
	Name        string
	Device      string
	ComputeType string
}

// Options are passed to the model for one call
type Options struct {
	Language           string
	BeamSize           int
	VADFilter          bool
	MinSilenceDuration time.Duration
	WordTimestamps     bool
}

// RawSegment is a segment as produced by the model, before rounding
type RawSegment struct {
	Start        float64
	End          float64
	Text         string
	AvgLogProb   float64
	NoSpeechProb float64
}

// Info describes the whole clip. It is complete only after the iterator is drained.
type Info struct {
	Language string
	Duration float64
}

// SegmentIterator is a finite single-pass sequence of segments.
// Next returns io.EOF when the sequence is exhausted.
type SegmentIterator interface {
	Next() (*RawSegment, error)
	Info() Info
}

// Model is a loaded model. Transcribe must be safe for concurrent use.
type Model interface {
	Transcribe(audioPath string, opts Options) (SegmentIterator, error)
	Close() error
}

// Loader instantiates a model
type Loader interface {
	Load(cfg ModelConfig) (Model, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(cfg ModelConfig) (Model, error)

// Load calls f(cfg)
func (f LoaderFunc) Load(cfg ModelConfig) (Model, error) {
	return f(cfg)
}

// ggml files are named after whisper.cpp releases, the first large model is large-v1
var ggmlNames = map[string]string{"large": "large-v1"}

// ModelFile resolves the ggml model file for a variant inside dir.
// int8 precision selects the q8_0 quantized file. float16 and float32 both load
// the unquantized file, its tensors are f16.
func ModelFile(dir string, cfg ModelConfig) string {
	name := cfg.Name
	if n, ok := ggmlNames[name]; ok {
		name = n
	}
	name = "ggml-" + name
	if cfg.ComputeType == "int8" {
		name += "-q8_0"
	}
	return filepath.Join(dir, name+".bin")
}
