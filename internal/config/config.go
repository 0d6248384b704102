// Package config reads service settings from viper. Every key can be set with
// the environment variable named next to it.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/catalog"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings
type Config struct {
	AppName    string
	AppVersion string
	Host       string
	Port       int

	Model       string
	Device      string
	ComputeType string
	Language    string
	ModelDir    string
	ModelPath   string
	Threads     uint
	FFmpegPath  string

	MaxUploadMB    int
	AllowedOrigins []string
	LogLevel       zerolog.Level
	WriteTimeout   time.Duration

	Workers   int
	MaxQueued int
	Timeout   time.Duration

	CacheURL        string
	CacheMemorySize int
	CacheTTL        time.Duration
	CacheKey        string

	PunctuatorURL string
}

var envs = map[string]string{
	"app.name":             "APP_NAME",
	"app.version":          "APP_VERSION",
	"host":                 "HOST",
	"port":                 "PORT",
	"whisper.model":        "WHISPER_MODEL",
	"whisper.device":       "WHISPER_DEVICE",
	"whisper.computeType":  "WHISPER_COMPUTE_TYPE",
	"whisper.language":     "WHISPER_LANGUAGE",
	"whisper.modelDir":     "WHISPER_MODEL_DIR",
	"whisper.modelPath":    "WHISPER_MODEL_PATH",
	"whisper.threads":      "WHISPER_THREADS",
	"ffmpeg.path":          "FFMPEG_PATH",
	"upload.maxMB":         "MAX_UPLOAD_SIZE_MB",
	"cors.allowedOrigins":  "ALLOWED_ORIGINS",
	"log.level":            "LOG_LEVEL",
	"http.writeTimeout":    "HTTP_WRITE_TIMEOUT",
	"transcribe.workers":   "MAX_CONCURRENT_TRANSCRIPTIONS",
	"transcribe.maxQueued": "MAX_QUEUED_TRANSCRIPTIONS",
	"transcribe.timeout":   "TRANSCRIBE_TIMEOUT",
	"cache.url":            "CACHE_URL",
	"cache.memorySize":     "CACHE_MEMORY_SIZE",
	"cache.ttl":            "CACHE_TTL",
	"cache.key":            "CACHE_ENCRYPTION_KEY",
	"punctuator.url":       "PUNCTUATOR_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Voice Assistant - Speech-to-Text Service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("whisper.model", "base")
	v.SetDefault("whisper.device", "cpu")
	v.SetDefault("whisper.computeType", "int8")
	v.SetDefault("whisper.modelDir", "models")
	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("upload.maxMB", 25)
	v.SetDefault("cors.allowedOrigins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.writeTimeout", "10m")
	v.SetDefault("transcribe.workers", 2)
	v.SetDefault("cache.ttl", "6h")
}

// Load binds environment variables, applies defaults and validates values against the catalog
func Load(v *viper.Viper, cat *catalog.Catalog) (*Config, error) {
	for k, e := range envs {
		if err := v.BindEnv(k, e); err != nil {
			return nil, fmt.Errorf("bind %s: %w", e, err)
		}
	}
	setDefaults(v)

	res := &Config{
		AppName:         v.GetString("app.name"),
		AppVersion:      v.GetString("app.version"),
		Host:            v.GetString("host"),
		Model:           strings.TrimSpace(v.GetString("whisper.model")),
		ComputeType:     strings.ToLower(strings.TrimSpace(v.GetString("whisper.computeType"))),
		Language:        strings.TrimSpace(v.GetString("whisper.language")),
		ModelDir:        v.GetString("whisper.modelDir"),
		ModelPath:       v.GetString("whisper.modelPath"),
		FFmpegPath:      v.GetString("ffmpeg.path"),
		CacheURL:        v.GetString("cache.url"),
		CacheKey:        v.GetString("cache.key"),
		PunctuatorURL:   v.GetString("punctuator.url"),
		CacheMemorySize: v.GetInt("cache.memorySize"),
	}
	var err error
	if res.Port, err = getInt(v, "port"); err != nil {
		return nil, err
	}
	if res.MaxUploadMB, err = getInt(v, "upload.maxMB"); err != nil {
		return nil, err
	}
	if res.Workers, err = getInt(v, "transcribe.workers"); err != nil {
		return nil, err
	}
	if res.MaxQueued, err = getInt(v, "transcribe.maxQueued"); err != nil {
		return nil, err
	}
	threads, err := getInt(v, "whisper.threads")
	if err != nil {
		return nil, err
	}
	if threads < 0 {
		return nil, fmt.Errorf("wrong WHISPER_THREADS %d", threads)
	}
	res.Threads = uint(threads)
	if res.Timeout, err = getDuration(v, "transcribe.timeout"); err != nil {
		return nil, err
	}
	if res.CacheTTL, err = getDuration(v, "cache.ttl"); err != nil {
		return nil, err
	}
	if res.WriteTimeout, err = getDuration(v, "http.writeTimeout"); err != nil {
		return nil, err
	}
	if res.LogLevel, err = ParseLogLevel(v.GetString("log.level")); err != nil {
		return nil, err
	}
	if res.AllowedOrigins, err = ParseOrigins(v.GetString("cors.allowedOrigins")); err != nil {
		return nil, err
	}
	res.Device = normalizeDevice(v.GetString("whisper.device"), cat)
	if strings.EqualFold(res.Language, "auto") {
		res.Language = ""
	}
	if err := res.validate(cat); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Config) validate(cat *catalog.Catalog) error {
	if !cat.HasModel(c.Model) {
		return fmt.Errorf("unknown WHISPER_MODEL '%s', supported: %s", c.Model, strings.Join(cat.Names(), ", "))
	}
	if !cat.HasComputeType(c.ComputeType) {
		return fmt.Errorf("unknown WHISPER_COMPUTE_TYPE '%s', supported: %s", c.ComputeType,
			strings.Join(cat.ComputeTypes, ", "))
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("wrong MAX_UPLOAD_SIZE_MB %d", c.MaxUploadMB)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("wrong PORT %d", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("wrong MAX_CONCURRENT_TRANSCRIPTIONS %d", c.Workers)
	}
	if c.MaxQueued < 0 {
		return fmt.Errorf("wrong MAX_QUEUED_TRANSCRIPTIONS %d", c.MaxQueued)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("wrong TRANSCRIBE_TIMEOUT %v", c.Timeout)
	}
	if c.CacheMemorySize < 0 {
		return fmt.Errorf("wrong CACHE_MEMORY_SIZE %d", c.CacheMemorySize)
	}
	if c.CacheURL != "" && c.CacheKey == "" {
		return fmt.Errorf("CACHE_ENCRYPTION_KEY is required with CACHE_URL")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func normalizeDevice(value string, cat *catalog.Catalog) string {
	res := strings.ToLower(strings.TrimSpace(value))
	if !cat.HasDevice(res) {
		goapp.Log.Warn().Str("device", value).Strs("supported", cat.Devices).
			Msg("WHISPER_DEVICE is not supported. Falling back to 'cpu'")
		return "cpu"
	}
	return res
}

// ParseLogLevel accepts zerolog level names and upper case names such as WARNING and CRITICAL
func ParseLogLevel(value string) (zerolog.Level, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	}
	res, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("wrong LOG_LEVEL '%s': %w", value, err)
	}
	return res, nil
}

// ParseOrigins reads a comma separated list or a JSON array
func ParseOrigins(value string) ([]string, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return []string{"*"}, nil
	}
	var res []string
	if strings.HasPrefix(s, "[") {
		if err := yaml.Unmarshal([]byte(s), &res); err != nil {
			return nil, fmt.Errorf("wrong ALLOWED_ORIGINS '%s': %w", value, err)
		}
	} else {
		res = strings.Split(s, ",")
	}
	clean := make([]string, 0, len(res))
	for _, o := range res {
		if o = strings.TrimSpace(o); o != "" {
			clean = append(clean, o)
		}
	}
	if len(clean) == 0 {
		return []string{"*"}, nil
	}
	return clean, nil
}

func getInt(v *viper.Viper, key string) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, nil
	}
	res, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("wrong %s '%s': %w", envs[key], s, err)
	}
	return res, nil
}

// getDuration accepts go durations ("90s", "5m") and plain seconds ("90", "1.5")
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	res, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("wrong %s '%s': %w", envs[key], s, err)
	}
	return res, nil
}
