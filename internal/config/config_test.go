package config

import (
	"testing"
	"time"

	"github.com/airenas/whisper-stt/internal/catalog"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), catalog.Default())
	require.Nil(t, err)
	assert.Equal(t, "base", cfg.Model)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "int8", cfg.ComputeType)
	assert.Equal(t, "", cfg.Language)
	assert.Equal(t, 25, cfg.MaxUploadMB)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, "1.0.0", cfg.AppVersion)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 0, cfg.MaxQueued)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, "", cfg.CacheURL)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("WHISPER_MODEL", "large-v3")
	t.Setenv("WHISPER_DEVICE", " CUDA ")
	t.Setenv("WHISPER_COMPUTE_TYPE", "float16")
	t.Setenv("WHISPER_LANGUAGE", "lt")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "5")
	t.Setenv("ALLOWED_ORIGINS", `["http://a.lt", "http://b.lt"]`)
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_CONCURRENT_TRANSCRIPTIONS", "4")
	t.Setenv("MAX_QUEUED_TRANSCRIPTIONS", "10")
	t.Setenv("TRANSCRIBE_TIMEOUT", "90")
	t.Setenv("WHISPER_THREADS", "8")
	t.Setenv("CACHE_URL", "redis://localhost:6379")
	t.Setenv("CACHE_ENCRYPTION_KEY", "secret")

	cfg, err := Load(viper.New(), catalog.Default())
	require.Nil(t, err)
	assert.Equal(t, "large-v3", cfg.Model)
	assert.Equal(t, "cuda", cfg.Device)
	assert.Equal(t, "float16", cfg.ComputeType)
	assert.Equal(t, "lt", cfg.Language)
	assert.Equal(t, 5, cfg.MaxUploadMB)
	assert.Equal(t, []string{"http://a.lt", "http://b.lt"}, cfg.AllowedOrigins)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10, cfg.MaxQueued)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, uint(8), cfg.Threads)
}

func TestLoad_UnsupportedDevice(t *testing.T) {
	t.Setenv("WHISPER_DEVICE", "mps")
	cfg, err := Load(viper.New(), catalog.Default())
	require.Nil(t, err)
	assert.Equal(t, "cpu", cfg.Device)
}

func TestLoad_Fail(t *testing.T) {
	tests := []struct {
		name, env, value string
	}{
		{name: "model", env: "WHISPER_MODEL", value: "huge"},
		{name: "compute", env: "WHISPER_COMPUTE_TYPE", value: "int4"},
		{name: "size", env: "MAX_UPLOAD_SIZE_MB", value: "0"},
		{name: "size nan", env: "MAX_UPLOAD_SIZE_MB", value: "a lot"},
		{name: "port", env: "PORT", value: "70000"},
		{name: "workers", env: "MAX_CONCURRENT_TRANSCRIPTIONS", value: "0"},
		{name: "queue", env: "MAX_QUEUED_TRANSCRIPTIONS", value: "-1"},
		{name: "timeout", env: "TRANSCRIBE_TIMEOUT", value: "soon"},
		{name: "log", env: "LOG_LEVEL", value: "loud"},
		{name: "origins", env: "ALLOWED_ORIGINS", value: "[a"},
		{name: "cache key", env: "CACHE_URL", value: "redis://localhost"},
		{name: "threads", env: "WHISPER_THREADS", value: "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load(viper.New(), catalog.Default())
			assert.NotNil(t, err)
		})
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: []string{"*"}},
		{in: "*", want: []string{"*"}},
		{in: "http://a, http://b ,", want: []string{"http://a", "http://b"}},
		{in: `["http://a"]`, want: []string{"http://a"}},
		{in: `[]`, want: []string{"*"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrigins(tt.in)
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "", want: zerolog.InfoLevel},
		{in: "DEBUG", want: zerolog.DebugLevel},
		{in: "info", want: zerolog.InfoLevel},
		{in: "WARNING", want: zerolog.WarnLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "CRITICAL", want: zerolog.FatalLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
