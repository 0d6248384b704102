package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/go-audio/wav"
)

// Decoder turns an audio file into 16 kHz mono samples
type Decoder struct {
	FFmpegPath string
}

// NewDecoder creates a decoder, ffmpegPath defaults to "ffmpeg" from PATH
func NewDecoder(ffmpegPath string) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Decoder{FFmpegPath: ffmpegPath}
}

// Decode reads the file. PCM WAV is decoded in process, other containers go through ffmpeg.
func (d *Decoder) Decode(ctx context.Context, path string) ([]float32, error) {
	res, ok, err := decodeWAV(path)
	if err != nil {
		return nil, err
	}
	if ok {
		return res, nil
	}
	return d.decodeFFmpeg(ctx, path)
}

func decodeWAV(path string) ([]float32, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() || dec.WavAudioFormat != 1 {
		return nil, false, nil
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, false, fmt.Errorf("read wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, false, fmt.Errorf("read wav: no format")
	}
	samples := IntToMono(buf.Data, buf.Format.NumChannels, int(dec.BitDepth))
	goapp.Log.Debug().Int("rate", buf.Format.SampleRate).Int("channels", buf.Format.NumChannels).
		Int("samples", len(samples)).Msg("wav decoded")
	return Resample(samples, buf.Format.SampleRate, SampleRate), true, nil
}

func (d *Decoder) decodeFFmpeg(ctx context.Context, path string) ([]float32, error) {
	cmd := exec.CommandContext(ctx, d.FFmpegPath,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return PCMToFloat32(stdout.Bytes()), nil
}
