// Package audiotest builds audio fixtures for tests
package audiotest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// WriteWAV encodes interleaved samples as a PCM WAV file in a temp dir and returns its path.
// 8 bit samples are unsigned, so silence is 128.
func WriteWAV(t testing.TB, samples []int, sampleRate, bitDepth, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.Nil(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	require.Nil(t, enc.Write(buf))
	require.Nil(t, enc.Close())
	return path
}

// WAV returns the bytes of a PCM WAV file, see WriteWAV
func WAV(t testing.TB, samples []int, sampleRate, bitDepth, channels int) []byte {
	t.Helper()
	res, err := os.ReadFile(WriteWAV(t, samples, sampleRate, bitDepth, channels))
	require.Nil(t, err)
	return res
}
