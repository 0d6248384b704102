package service

import (
	"net/http"

	"github.com/airenas/whisper-stt/internal/api"
	"github.com/labstack/echo/v4"
)

func health(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, &api.HealthResponse{
			Status:       "ok",
			ModelLoaded:  data.Engine.IsLoaded(),
			WhisperModel: data.Engine.ModelName(),
			Version:      data.Version,
		})
	}
}

func models(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, &api.ModelsResponse{
			Models:       data.Catalog.Names(),
			CurrentModel: data.Engine.ModelName(),
			Description:  data.Catalog.Descriptions(),
		})
	}
}

func root(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, &api.ServiceInfo{
			Service: data.AppName,
			Version: data.Version,
			Health:  "/health",
			Endpoints: map[string]string{
				"transcribe_file":   "POST /transcribe/",
				"transcribe_base64": "POST /transcribe/base64",
				"transcribe_ws":     "GET /transcribe/ws",
				"versioned":         "POST /api/v1/transcribe/",
				"models":            "GET /models",
				"metrics":           "GET /metrics",
			},
		})
	}
}
