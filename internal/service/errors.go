package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/api"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/labstack/echo/v4"
)

const internalDetail = "An internal server error occurred."

var kinds = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrBadRequest, http.StatusBadRequest, api.CodeBadRequest},
	{domain.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, api.CodeUnsupportedMediaType},
	{domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, api.CodePayloadTooLarge},
	{domain.ErrEngineNotLoaded, http.StatusInternalServerError, api.CodeEngineNotLoaded},
	{domain.ErrEngineFailure, http.StatusInternalServerError, api.CodeEngineFailure},
	{domain.ErrEngineTimeout, http.StatusGatewayTimeout, api.CodeEngineTimeout},
	{domain.ErrEngineBusy, http.StatusServiceUnavailable, api.CodeEngineBusy},
}

var statusCodes = map[int]string{
	http.StatusBadRequest:            api.CodeBadRequest,
	http.StatusNotFound:              api.CodeNotFound,
	http.StatusMethodNotAllowed:      api.CodeMethodNotAllowed,
	http.StatusRequestEntityTooLarge: api.CodePayloadTooLarge,
	http.StatusUnsupportedMediaType:  api.CodeUnsupportedMediaType,
	http.StatusServiceUnavailable:    api.CodeEngineBusy,
	http.StatusGatewayTimeout:        api.CodeEngineTimeout,
}

// toResponse maps an error to the status and body sent to the client
func toResponse(data *Data, err error) (int, *api.ErrorResponse) {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.status, &api.ErrorResponse{Detail: domain.Message(err, http.StatusText(k.status)), ErrorCode: k.code}
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		code, ok := statusCodes[he.Code]
		if !ok {
			code = api.CodeBadRequest
		}
		detail := fmt.Sprintf("%v", he.Message)
		if he.Code == http.StatusRequestEntityTooLarge {
			detail = fmt.Sprintf("File too large. Maximum allowed size is %d MB.", data.Validator.MaxBytes()/(1024*1024))
		}
		return he.Code, &api.ErrorResponse{Detail: detail, ErrorCode: code}
	}
	return http.StatusInternalServerError, &api.ErrorResponse{Detail: internalDetail, ErrorCode: api.CodeInternal}
}

func httpErrorHandler(data *Data) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := toResponse(data, err)
		l := goapp.Log.Warn()
		if status >= http.StatusInternalServerError {
			l = goapp.Log.Error()
		}
		l.Err(err).Int("status", status).Str("method", c.Request().Method).Str("path", c.Request().URL.Path).
			Str("id", requestID(c)).Msg("request failed")
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't write error response")
		}
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
