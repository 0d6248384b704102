// Package db keeps finished transcripts so identical uploads are not decoded twice.
package db

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key identifies a transcript by audio digest and the settings that change the result
func Key(audio []byte, ext, language, model string) string {
	h := sha256.New()
	h.Write(audio)
	for _, s := range []string{strings.ToLower(ext), language, model} {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
