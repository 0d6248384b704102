package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/api"
	"github.com/airenas/whisper-stt/internal/db"
	"github.com/airenas/whisper-stt/internal/dispatch"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/airenas/whisper-stt/internal/intake"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const defaultFilename = "audio.wav"

func transcribeFile(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		id := requestID(c)
		lang := strings.TrimSpace(c.FormValue("language"))
		fh, err := c.FormFile("audio")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
				return reject(id, "", 0, lang,
					domain.WrapError(domain.ErrBadRequest, err, "'audio' file is required."))
			}
			return fmt.Errorf("read form: %w", err)
		}
		ct := fh.Header.Get(echo.HeaderContentType)
		if err := data.Validator.CheckType(ct); err != nil {
			return reject(id, fh.Filename, int(fh.Size), lang, err)
		}
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		audio, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("read upload: %w", err)
		}
		if err := data.Validator.Check(ct, len(audio)); err != nil {
			return reject(id, fh.Filename, len(audio), lang, err)
		}
		p := &domain.AudioPayload{Data: audio, ContentType: ct, Filename: fh.Filename, Language: lang}
		res, err := data.transcribe(c.Request().Context(), p, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}
}

func transcribeBase64(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		id := requestID(c)
		var req api.Base64Request
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return reject(id, "", 0, "", domain.WrapError(domain.ErrBadRequest, err, "Invalid JSON body."))
		}
		filename := req.Filename
		if filename == "" {
			filename = defaultFilename
		}
		lang := strings.TrimSpace(req.Language)
		audio, ct, err := intake.DecodeBase64(req.AudioBase64)
		if err != nil {
			return reject(id, filename, len(req.AudioBase64), lang, err)
		}
		if err := data.Validator.Check(ct, len(audio)); err != nil {
			return reject(id, filename, len(audio), lang, err)
		}
		p := &domain.AudioPayload{Data: audio, ContentType: ct, Filename: filename, Language: lang}
		res, err := data.transcribe(c.Request().Context(), p, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}
}

// transcribe runs a validated payload through cache, engine and post-processing
func (d *Data) transcribe(ctx context.Context, p *domain.AudioPayload, id string) (*api.TranscriptionResponse, error) {
	filename := intake.FilenameHint(p.Filename, p.ContentType)
	requestFields(goapp.Log.Info(), id, filename, len(p.Data), p.Language).Msg("Received audio")
	if !d.Engine.IsLoaded() {
		return nil, domain.NewError(domain.ErrEngineNotLoaded, "Transcription model is not loaded.")
	}

	key := ""
	if d.Cache != nil {
		key = db.Key(p.Data, filepath.Ext(filename), p.Language, d.Engine.ModelName())
		res, ok, err := d.Cache.Get(ctx, key)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("id", id).Msg("cache get")
		} else if ok {
			goapp.Log.Info().Str("id", id).Msg("Result from cache")
			return api.Shape(res), nil
		}
	}

	start := time.Now()
	res, err := dispatch.Run(ctx, d.Gate, func() (*domain.TranscriptionResult, error) {
		return d.Engine.Transcribe(p.Data, filename, p.Language)
	})
	if err != nil {
		requestFields(goapp.Log.Error().Err(err), id, filename, len(p.Data), p.Language).Msg("Transcription failed")
		return nil, err
	}
	if d.Processor != nil {
		if pr, err := d.Processor.Process(ctx, res); err != nil {
			goapp.Log.Warn().Err(err).Str("id", id).Msg("post process")
		} else {
			res = pr
		}
	}
	if d.Cache != nil {
		if err := d.Cache.Save(ctx, key, res); err != nil {
			goapp.Log.Warn().Err(err).Str("id", id).Msg("cache save")
		}
	}
	goapp.Log.Info().Str("id", id).Str("filename", filename).Str("language", res.Language).
		Float64("duration", res.Duration).Int("segments", len(res.Segments)).
		Dur("took", time.Since(start)).Msg("Transcription done")
	return api.Shape(res), nil
}

// reject logs a request refused before transcription and returns err
func reject(id, filename string, size int, lang string, err error) error {
	requestFields(goapp.Log.Warn().Err(err), id, filename, size, lang).Msg("Request rejected")
	return err
}

func requestFields(ev *zerolog.Event, id, filename string, size int, lang string) *zerolog.Event {
	return ev.Str("id", id).Str("filename", filename).Int("size", size).Str("language", langOrAuto(lang))
}

func langOrAuto(l string) string {
	if l == "" {
		return "auto"
	}
	return l
}
