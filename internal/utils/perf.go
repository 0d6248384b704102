// Package utils has small helpers shared by the service packages.
package utils

import (
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// MeasureTime logs the time passed since start. Use with defer.
func MeasureTime(name string, start time.Time) {
	elapsed := time.Since(start)
	goapp.Log.Debug().Dur("elapsed", elapsed).Str("func", name).Msg("time")
}
