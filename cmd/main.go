package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/audio"
	"github.com/airenas/whisper-stt/internal/catalog"
	"github.com/airenas/whisper-stt/internal/config"
	"github.com/airenas/whisper-stt/internal/db"
	"github.com/airenas/whisper-stt/internal/dispatch"
	"github.com/airenas/whisper-stt/internal/engine"
	"github.com/airenas/whisper-stt/internal/engine/whispercpp"
	"github.com/airenas/whisper-stt/internal/handlers"
	"github.com/airenas/whisper-stt/internal/intake"
	"github.com/airenas/whisper-stt/internal/service"
	"github.com/labstack/gommon/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type closer interface {
	Close() error
}

func main() {
	goapp.StartWithDefault()

	printBanner()

	cat := catalog.Default()
	cfg, err := config.Load(goapp.Config, cat)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't load config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	goapp.Log.Info().Str("app", cfg.AppName).Str("version", cfg.AppVersion).Msg("Starting")

	loader := &whispercpp.Loader{ModelDir: cfg.ModelDir, ModelPath: cfg.ModelPath, Threads: cfg.Threads,
		Decoder: audio.NewDecoder(cfg.FFmpegPath), VAD: audio.DefaultVADConfig()}
	eng, err := engine.New(loader, engine.ModelConfig{Name: cfg.Model, Device: cfg.Device, ComputeType: cfg.ComputeType},
		cfg.Language)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init engine")
	}
	// first request must not pay for the model load
	if err := eng.Load(); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't load model")
	}
	defer closeLog("engine", eng)
	h := eng.Handle()
	goapp.Log.Info().Str("model", h.Name).Str("device", h.Device).Str("computeType", h.ComputeType).
		Dur("loadTime", h.LoadTime).Msg("Model ready")

	data := &service.Data{}
	data.Addr = cfg.Addr()
	data.AppName = cfg.AppName
	data.Version = cfg.AppVersion
	data.AllowedOrigins = cfg.AllowedOrigins
	data.WriteTimeout = cfg.WriteTimeout
	data.Engine = eng
	data.Catalog = cat
	data.Validator, err = intake.NewValidator(cfg.MaxUploadMB)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init validator")
	}
	data.Gate, err = dispatch.New(dispatch.Config{Workers: cfg.Workers, MaxQueued: cfg.MaxQueued, Timeout: cfg.Timeout},
		prometheus.DefaultRegisterer)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init dispatch gate")
	}

	hList, err := handlers.NewListHandler()
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init list handler")
	}
	hList.Add(handlers.NewCleaner())
	if cfg.PunctuatorURL != "" {
		punctuator, err := handlers.NewPunctuator(cfg.PunctuatorURL)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init punctuator")
		}
		hList.Add(punctuator)
	}
	data.Processor = hList

	switch {
	case cfg.CacheURL != "":
		c, err := db.NewRedisCache(cfg.CacheURL, cfg.CacheKey, cfg.CacheTTL)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init redis cache")
		}
		if err := pingCache(c); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't reach redis cache")
		}
		defer closeLog("cache", c)
		data.Cache = c
	case cfg.CacheMemorySize > 0:
		c, err := db.NewMemoryCache(cfg.CacheMemorySize, cfg.CacheTTL)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init memory cache")
		}
		data.Cache = c
	}

	doneCh, err := service.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	goapp.Log.Info().Msg("Service ready")

	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func pingCache(c *db.RedisCache) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Ping(ctx)
}

func closeLog(name string, c closer) {
	if err := c.Close(); err != nil {
		goapp.Log.Error().Err(err).Str("name", name).Msg("can't close")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner :=
		`
    WHISPER STT v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/whisper-stt"))
}
