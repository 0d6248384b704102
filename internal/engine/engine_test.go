package engine

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIterator struct {
	segments []RawSegment
	info     Info
	failAt   int
	i        int
}

func (f *fakeIterator) Next() (*RawSegment, error) {
	if f.failAt > 0 && f.i == f.failAt {
		return nil, errors.New("decoder crashed")
	}
	if f.i >= len(f.segments) {
		return nil, io.EOF
	}
	res := f.segments[f.i]
	f.i++
	return &res, nil
}

func (f *fakeIterator) Info() Info { return f.info }

type fakeModel struct {
	lock     sync.Mutex
	paths    []string
	existed  []bool
	opts     []Options
	segments []RawSegment
	info     Info
	err      error
	failAt   int
	closed   bool
}

func (f *fakeModel) Transcribe(path string, opts Options) (SegmentIterator, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, err := os.Stat(path)
	f.paths = append(f.paths, path)
	f.existed = append(f.existed, err == nil)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeIterator{segments: f.segments, info: f.info, failAt: f.failAt}, nil
}

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(t *testing.T, m *fakeModel, defLang string) *Engine {
	t.Helper()
	e, err := New(LoaderFunc(func(ModelConfig) (Model, error) { return m, nil }),
		ModelConfig{Name: "base", Device: "cpu", ComputeType: "int8"}, defLang)
	require.Nil(t, err)
	e.SetTempDir(t.TempDir())
	return e
}

func TestNew(t *testing.T) {
	_, err := New(nil, ModelConfig{Name: "base"}, "")
	assert.NotNil(t, err)
	_, err = New(LoaderFunc(func(ModelConfig) (Model, error) { return nil, nil }), ModelConfig{}, "")
	assert.NotNil(t, err)
}

func TestReadiness(t *testing.T) {
	m := &fakeModel{}
	e := newTestEngine(t, m, "")
	assert.False(t, e.IsLoaded())
	assert.Nil(t, e.Handle())
	assert.Equal(t, "base", e.ModelName())

	_, err := e.Transcribe([]byte("RIFF"), "a.wav", "")
	assert.True(t, errors.Is(err, domain.ErrEngineNotLoaded))
	assert.Empty(t, m.paths)

	require.Nil(t, e.Load())
	require.Nil(t, e.Load())
	assert.True(t, e.IsLoaded())
	h := e.Handle()
	require.NotNil(t, h)
	assert.Equal(t, "base", h.Name)
	assert.Equal(t, "int8", h.ComputeType)

	require.Nil(t, e.Close())
	assert.True(t, m.closed)
	assert.False(t, e.IsLoaded())
}

func TestLoad_Fail(t *testing.T) {
	e, err := New(LoaderFunc(func(ModelConfig) (Model, error) { return nil, errors.New("no file") }),
		ModelConfig{Name: "base"}, "")
	require.Nil(t, err)
	assert.NotNil(t, e.Load())
	assert.False(t, e.IsLoaded())
}

func TestTranscribe(t *testing.T) {
	m := &fakeModel{
		segments: []RawSegment{
			{Start: 0, End: 1.23456, Text: "  hello ", AvgLogProb: -0.123456, NoSpeechProb: 0.012345},
			{Start: 1.5, End: 1.4, Text: "world", AvgLogProb: -0.2, NoSpeechProb: 1.5},
		},
		info: Info{Language: "en", Duration: 1.2},
	}
	e := newTestEngine(t, m, "")
	require.Nil(t, e.Load())

	res, err := e.Transcribe([]byte("data"), "clip.MP3", "")
	require.Nil(t, err)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, "base", res.Model)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, domain.Segment{ID: 0, Start: 0, End: 1.235, Text: "hello", AvgLogProb: -0.1235,
		NoSpeechProb: 0.0123}, res.Segments[0])
	assert.Equal(t, 1, res.Segments[1].ID)
	assert.Equal(t, 1.5, res.Segments[1].End)
	assert.Equal(t, 1.0, res.Segments[1].NoSpeechProb)
	assert.Equal(t, 1.5, res.Duration)

	require.Len(t, m.opts, 1)
	assert.Equal(t, AutoLanguage, m.opts[0].Language)
	assert.Equal(t, 5, m.opts[0].BeamSize)
	assert.True(t, m.opts[0].VADFilter)
	assert.Equal(t, MinSilenceDuration, m.opts[0].MinSilenceDuration)
	assert.False(t, m.opts[0].WordTimestamps)
	assert.Equal(t, ".mp3", filepath.Ext(m.paths[0]))
	assert.True(t, m.existed[0])
	_, err = os.Stat(m.paths[0])
	assert.True(t, os.IsNotExist(err))
}

func TestTranscribe_Language(t *testing.T) {
	tests := []struct {
		name, def, forced, detected, wantOpt, want string
	}{
		{name: "forced", def: "lt", forced: "en", detected: "de", wantOpt: "en", want: "en"},
		{name: "default", def: "lt", forced: "", detected: "de", wantOpt: "lt", want: "lt"},
		{name: "auto", def: "", forced: "", detected: "de", wantOpt: AutoLanguage, want: "de"},
		{name: "no speech", def: "", forced: "", detected: "", wantOpt: AutoLanguage, want: UnknownLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModel{info: Info{Language: tt.detected, Duration: 1}}
			e := newTestEngine(t, m, tt.def)
			require.Nil(t, e.Load())
			res, err := e.Transcribe([]byte("x"), "a.wav", tt.forced)
			require.Nil(t, err)
			assert.Equal(t, tt.wantOpt, m.opts[0].Language)
			assert.Equal(t, tt.want, res.Language)
		})
	}
}

func TestTranscribe_Silent(t *testing.T) {
	m := &fakeModel{info: Info{Duration: 1.0}}
	e := newTestEngine(t, m, "")
	require.Nil(t, e.Load())
	res, err := e.Transcribe([]byte("x"), "", "")
	require.Nil(t, err)
	assert.Equal(t, "", res.Text)
	assert.NotNil(t, res.Segments)
	assert.Empty(t, res.Segments)
	assert.Equal(t, 1.0, res.Duration)
	assert.Equal(t, ".wav", filepath.Ext(m.paths[0]))
}

func TestTranscribe_Fail(t *testing.T) {
	tests := []struct {
		name string
		m    *fakeModel
	}{
		{name: "start", m: &fakeModel{err: errors.New("bad audio")}},
		{name: "iterate", m: &fakeModel{segments: []RawSegment{{Text: "a"}, {Text: "b"}}, failAt: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.m, "")
			require.Nil(t, e.Load())
			_, err := e.Transcribe([]byte("x"), "a.ogg", "")
			assert.True(t, errors.Is(err, domain.ErrEngineFailure))
			require.Len(t, tt.m.paths, 1)
			_, err = os.Stat(tt.m.paths[0])
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestTranscribe_Concurrent(t *testing.T) {
	m := &fakeModel{segments: []RawSegment{{Start: 0, End: 1, Text: "a"}}, info: Info{Language: "en", Duration: 1}}
	e := newTestEngine(t, m, "")
	require.Nil(t, e.Load())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Transcribe([]byte("x"), "a.wav", "")
			assert.Nil(t, err)
			assert.Equal(t, "a", res.Text)
		}()
	}
	wg.Wait()
	assert.Len(t, m.paths, 8)
	uniq := map[string]bool{}
	for _, p := range m.paths {
		uniq[p] = true
	}
	assert.Len(t, uniq, 8)
}

func TestModelFile(t *testing.T) {
	tests := []struct {
		name string
		cfg  ModelConfig
		want string
	}{
		{name: "float", cfg: ModelConfig{Name: "base", ComputeType: "float16"}, want: "/m/ggml-base.bin"},
		{name: "float32", cfg: ModelConfig{Name: "base", ComputeType: "float32"}, want: "/m/ggml-base.bin"},
		{name: "int8", cfg: ModelConfig{Name: "large-v3", ComputeType: "int8"}, want: "/m/ggml-large-v3-q8_0.bin"},
		{name: "large", cfg: ModelConfig{Name: "large", ComputeType: "float16"}, want: "/m/ggml-large-v1.bin"},
		{name: "large int8", cfg: ModelConfig{Name: "large", ComputeType: "int8"}, want: "/m/ggml-large-v1-q8_0.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelFile("/m", tt.cfg))
		})
	}
}
