package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/api"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsReadTimeout = time.Minute

// transcribeWS serves one clip per connection: an optional text frame with
// settings, one binary frame with audio, then one JSON answer and close.
func transcribeWS(data *Data) func(echo.Context) error {
	upgrader := newUpgrader(data)
	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return nil
		}
		defer ws.Close()
		id := requestID(c)
		ws.SetReadLimit(int64(2*data.Validator.MaxBytes() + 1024*1024))

		var res any
		p, err := readWSPayload(ws, data.Validator.MaxBytes())
		if err == nil {
			if err = data.Validator.Check(p.ContentType, len(p.Data)); err == nil {
				res, err = data.transcribe(c.Request().Context(), p, id)
			}
		}
		if err != nil {
			status, body := toResponse(data, err)
			if p == nil {
				p = &domain.AudioPayload{}
			}
			requestFields(goapp.Log.Warn().Err(err).Int("status", status), id, p.Filename, len(p.Data), p.Language).
				Msg("ws request failed")
			body.Status = status
			res = body
		}
		if err := ws.WriteJSON(res); err != nil {
			goapp.Log.Error().Err(err).Str("id", id).Msg("can't write ws result")
			return nil
		}
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return nil
	}
}

func readWSPayload(ws *websocket.Conn, maxBytes int) (*domain.AudioPayload, error) {
	res := &domain.AudioPayload{}
	for {
		_ = ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		mt, msg, err := ws.ReadMessage()
		if err != nil {
			return nil, wsReadError(err, maxBytes)
		}
		switch mt {
		case websocket.TextMessage:
			var start api.WSStart
			if err := json.Unmarshal(msg, &start); err != nil {
				return nil, domain.WrapError(domain.ErrBadRequest, err, "Invalid settings frame.")
			}
			res.Filename, res.Language = start.Filename, start.Language
		case websocket.BinaryMessage:
			res.Data = msg
			if res.Filename == "" {
				res.Filename = defaultFilename
			}
			return res, nil
		}
	}
}

func wsReadError(err error, maxBytes int) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return domain.WrapError(domain.ErrPayloadTooLarge, err, "File too large. Maximum allowed size is %d MB.",
			maxBytes/(1024*1024))
	}
	return domain.WrapError(domain.ErrBadRequest, err, "Can't read audio frame.")
}
