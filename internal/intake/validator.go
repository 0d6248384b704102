// Package intake checks uploaded audio before any expensive work is done.
package intake

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airenas/whisper-stt/internal/domain"
)

// supported MIME types mapped to the file extension the engine gets
var supportedTypes = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".mp4",
	"audio/x-m4a": ".m4a",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"video/mp4":   ".mp4",
}

// Validator enforces content type and size rules
type Validator struct {
	maxMB    int
	maxBytes int
}

// NewValidator creates a validator with the limit in MiB
func NewValidator(maxMB int) (*Validator, error) {
	if maxMB <= 0 {
		return nil, fmt.Errorf("wrong max upload size %d MB", maxMB)
	}
	return &Validator{maxMB: maxMB, maxBytes: maxMB * 1024 * 1024}, nil
}

// MaxBytes returns the configured limit in bytes
func (v *Validator) MaxBytes() int {
	return v.maxBytes
}

// Check runs the content type, size and emptiness checks in this order
func (v *Validator) Check(contentType string, size int) error {
	if err := v.CheckType(contentType); err != nil {
		return err
	}
	if err := v.CheckSize(size); err != nil {
		return err
	}
	if size == 0 {
		return domain.NewError(domain.ErrBadRequest, "Uploaded file is empty.")
	}
	return nil
}

// CheckType accepts an empty type, otherwise the type must be supported
func (v *Validator) CheckType(contentType string) error {
	ct := NormalizeContentType(contentType)
	if ct == "" {
		return nil
	}
	if _, ok := supportedTypes[ct]; !ok {
		return domain.NewError(domain.ErrUnsupportedMediaType, "Unsupported audio type '%s'. Supported: %s",
			ct, strings.Join(SupportedTypes(), ", "))
	}
	return nil
}

// CheckSize fails when size exceeds the limit
func (v *Validator) CheckSize(size int) error {
	if size > v.maxBytes {
		return domain.NewError(domain.ErrPayloadTooLarge, "File too large. Maximum allowed size is %d MB.", v.maxMB)
	}
	return nil
}

// NormalizeContentType lowercases the type and drops parameters
func NormalizeContentType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(ct))
}

// SupportedTypes returns the sorted list of accepted MIME types
func SupportedTypes() []string {
	res := make([]string, 0, len(supportedTypes))
	for k := range supportedTypes {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// FilenameHint returns filename if it has an extension. Otherwise the extension is
// taken from the content type, falling back to default name audio.wav.
func FilenameHint(filename, contentType string) string {
	if filename != "" && filepath.Ext(filename) != "" {
		return filename
	}
	ext, ok := supportedTypes[NormalizeContentType(contentType)]
	if !ok {
		ext = ".wav"
	}
	if filename == "" {
		filename = "audio"
	}
	return filename + ext
}

// DecodeBase64 decodes the audio_base64 field. A data URI prefix
// (data:audio/wav;base64,...) is accepted and its MIME type returned.
func DecodeBase64(value string) ([]byte, string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, "", domain.NewError(domain.ErrBadRequest, "'audio_base64' field is required.")
	}
	contentType := ""
	if rest, ok := strings.CutPrefix(value, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", domain.NewError(domain.ErrBadRequest, "Invalid base64 encoding in 'audio_base64'.")
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		value = data
	}
	value = strings.Join(strings.Fields(value), "")
	res, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		var errRaw error
		res, errRaw = base64.RawStdEncoding.DecodeString(value)
		if errRaw != nil {
			return nil, "", domain.WrapError(domain.ErrBadRequest, err, "Invalid base64 encoding in 'audio_base64'.")
		}
	}
	return res, contentType, nil
}
