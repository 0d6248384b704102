package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/catalog"
	"github.com/airenas/whisper-stt/internal/dispatch"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/airenas/whisper-stt/internal/handlers"
	"github.com/airenas/whisper-stt/internal/intake"
	"github.com/airenas/whisper-stt/internal/utils"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Transcriber runs the loaded model
type Transcriber interface {
	Transcribe(audio []byte, filenameHint, language string) (*domain.TranscriptionResult, error)
	IsLoaded() bool
	ModelName() string
}

// ResultCache keeps finished results
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.TranscriptionResult, bool, error)
	Save(ctx context.Context, key string, res *domain.TranscriptionResult) error
}

// Data keeps data required for service work
type Data struct {
	Addr           string
	AppName        string
	Version        string
	AllowedOrigins []string
	WriteTimeout   time.Duration

	Engine    Transcriber
	Gate      *dispatch.Gate
	Validator *intake.Validator
	Catalog   *catalog.Catalog
	Processor handlers.Handler // optional
	Cache     ResultCache      // optional
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) (<-chan struct{}, error) {
	goapp.Log.Info().Msgf("Starting STT service at %s", data.Addr)
	if err := validate(data); err != nil {
		return nil, err
	}

	e := initRoutes(data)

	e.Server.Addr = data.Addr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 2 * time.Minute
	e.Server.WriteTimeout = data.WriteTimeout

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		if err := gracehttp.Serve(e.Server); err != nil {
			goapp.Log.Error().Err(err).Msg("can't start web server")
		}
		goapp.Log.Info().Msg("exit http routine")
	}()
	return res, nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("stt", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpErrorHandler(data)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: utils.NewID}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     data.AllowedOrigins,
		AllowCredentials: true,
	}))
	promMdlw.Use(e)

	e.GET("/", root(data))
	e.GET("/live", live(data))
	e.GET("/health", health(data))
	e.GET("/models", models(data))

	limit := middleware.BodyLimit(fmt.Sprintf("%dM", 2*data.Validator.MaxBytes()/(1024*1024)+1))
	for _, prefix := range []string{"", "/api/v1"} {
		g := e.Group(prefix)
		g.POST("/transcribe", transcribeFile(data), limit)
		g.POST("/transcribe/", transcribeFile(data), limit)
		g.POST("/transcribe/base64", transcribeBase64(data), limit)
		g.GET("/transcribe/ws", transcribeWS(data))
	}

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func validate(data *Data) error {
	if data.Engine == nil {
		return fmt.Errorf("no Engine")
	}
	if data.Gate == nil {
		return fmt.Errorf("no Gate")
	}
	if data.Validator == nil {
		return fmt.Errorf("no Validator")
	}
	if data.Catalog == nil {
		return fmt.Errorf("no Catalog")
	}
	if len(data.AllowedOrigins) == 0 {
		return fmt.Errorf("no AllowedOrigins")
	}
	return nil
}

func newUpgrader(data *Data) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(data.AllowedOrigins, "*") ||
				slices.Contains(data.AllowedOrigins, origin)
		}}
}
