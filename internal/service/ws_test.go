package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/airenas/whisper-stt/internal/api"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/transcribe/ws"
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return c
}

func TestWS(t *testing.T) {
	eng := newFakeEngine()
	srv := httptest.NewServer(initRoutes(newTestData(t, eng)))
	defer srv.Close()

	c := dialWS(t, srv)
	defer c.Close()
	require.Nil(t, c.WriteJSON(api.WSStart{Filename: "rec.ogg", Language: "lt"}))
	require.Nil(t, c.WriteMessage(websocket.BinaryMessage, []byte("ogg data")))
	var res api.TranscriptionResponse
	require.Nil(t, c.ReadJSON(&res))
	assert.Equal(t, "labas rytas", res.Text)
	assert.Len(t, res.Segments, 2)
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Equal(t, []string{"rec.ogg"}, eng.names)
	assert.Equal(t, []string{"lt"}, eng.langs)
}

func TestWS_AudioOnly(t *testing.T) {
	eng := newFakeEngine()
	srv := httptest.NewServer(initRoutes(newTestData(t, eng)))
	defer srv.Close()

	c := dialWS(t, srv)
	defer c.Close()
	require.Nil(t, c.WriteMessage(websocket.BinaryMessage, testWAV(t)))
	var res api.TranscriptionResponse
	require.Nil(t, c.ReadJSON(&res))
	assert.Equal(t, "labas rytas", res.Text)
	assert.Equal(t, []string{"audio.wav"}, eng.names)
}

func TestWS_Errors(t *testing.T) {
	tests := []struct {
		name     string
		frames   [][]byte
		types    []int
		wantCode string
		wantSt   int
	}{
		{name: "empty", frames: [][]byte{{}}, types: []int{websocket.BinaryMessage},
			wantCode: api.CodeBadRequest, wantSt: http.StatusBadRequest},
		{name: "too large", frames: [][]byte{make([]byte, 1024*1024+1)}, types: []int{websocket.BinaryMessage},
			wantCode: api.CodePayloadTooLarge, wantSt: http.StatusRequestEntityTooLarge},
		{name: "bad settings", frames: [][]byte{[]byte("{")}, types: []int{websocket.TextMessage},
			wantCode: api.CodeBadRequest, wantSt: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			srv := httptest.NewServer(initRoutes(newTestData(t, eng)))
			defer srv.Close()
			c := dialWS(t, srv)
			defer c.Close()
			for i, f := range tt.frames {
				require.Nil(t, c.WriteMessage(tt.types[i], f))
			}
			var res api.ErrorResponse
			require.Nil(t, c.ReadJSON(&res))
			assert.Equal(t, tt.wantCode, res.ErrorCode)
			assert.Equal(t, tt.wantSt, res.Status)
			assert.Equal(t, 0, eng.callCount())
		})
	}
}

func TestWS_Origin(t *testing.T) {
	d := newTestData(t, newFakeEngine())
	d.AllowedOrigins = []string{"http://good.lt"}
	srv := httptest.NewServer(initRoutes(d))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/transcribe/ws"
	h := http.Header{}
	h.Set("Origin", "http://evil.lt")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	require.NotNil(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWSReadError(t *testing.T) {
	d := newTestData(t, newFakeEngine())
	tests := []struct {
		name     string
		err      error
		wantKind error
		wantSt   int
		wantCode string
	}{
		{name: "read limit", err: websocket.ErrReadLimit, wantKind: domain.ErrPayloadTooLarge,
			wantSt: http.StatusRequestEntityTooLarge, wantCode: api.CodePayloadTooLarge},
		{name: "closed", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, wantKind: domain.ErrBadRequest,
			wantSt: http.StatusBadRequest, wantCode: api.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wsReadError(tt.err, d.Validator.MaxBytes())
			assert.True(t, errors.Is(err, tt.wantKind))
			st, body := toResponse(d, err)
			assert.Equal(t, tt.wantSt, st)
			assert.Equal(t, tt.wantCode, body.ErrorCode)
		})
	}
	_, body := toResponse(d, wsReadError(websocket.ErrReadLimit, d.Validator.MaxBytes()))
	assert.Equal(t, "File too large. Maximum allowed size is 1 MB.", body.Detail)
}

func TestWS_OverReadLimit(t *testing.T) {
	eng := newFakeEngine()
	d := newTestData(t, eng)
	srv := httptest.NewServer(initRoutes(d))
	defer srv.Close()

	c := dialWS(t, srv)
	defer c.Close()
	_ = c.WriteMessage(websocket.BinaryMessage, make([]byte, 3*d.Validator.MaxBytes()+1))
	_, _, err := c.ReadMessage()
	require.NotNil(t, err)
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		assert.Equal(t, websocket.CloseMessageTooBig, ce.Code)
	}
	assert.Equal(t, 0, eng.callCount())
}
