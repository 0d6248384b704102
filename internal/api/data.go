// Package api holds the JSON contract of the service.
package api

// Segment is one transcribed span
type Segment struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// TranscriptionResponse is returned by every transcribe endpoint
type TranscriptionResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Model    string    `json:"model"`
	Segments []Segment `json:"segments"`
}

// Base64Request is the body of POST /transcribe/base64
type Base64Request struct {
	AudioBase64 string `json:"audio_base64"`
	Filename    string `json:"filename,omitempty"`
	Language    string `json:"language,omitempty"`
}

// WSStart is the optional first text frame of the websocket endpoint
type WSStart struct {
	Filename string `json:"filename,omitempty"`
	Language string `json:"language,omitempty"`
}

// HealthResponse of GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	WhisperModel string `json:"whisper_model"`
	Version      string `json:"version"`
}

// ModelsResponse of GET /models
type ModelsResponse struct {
	Models       []string          `json:"models"`
	CurrentModel string            `json:"current_model"`
	Description  map[string]string `json:"description"`
}

// ServiceInfo of GET /
type ServiceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Health    string            `json:"health"`
	Endpoints map[string]string `json:"endpoints"`
}

// ErrorResponse is returned for every failure
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	// Status is set only in websocket error frames
	Status int `json:"status,omitempty"`
}

// Error codes
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeEngineNotLoaded      = "ENGINE_NOT_LOADED"
	CodeEngineFailure        = "ENGINE_FAILURE"
	CodeEngineTimeout        = "ENGINE_TIMEOUT"
	CodeEngineBusy           = "ENGINE_BUSY"
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeInternal             = "INTERNAL_ERROR"
)
