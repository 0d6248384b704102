package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/airenas/whisper-stt/internal/utils"
)

// Cleaner trims segment texts and collapses inner whitespace
type Cleaner struct {
}

// NewCleaner creates a text cleaner
func NewCleaner() *Cleaner {
	res := Cleaner{}
	goapp.Log.Info().Msg("Cleaner")
	return &res
}

func (sp *Cleaner) Process(ctx context.Context, data *domain.TranscriptionResult) (*domain.TranscriptionResult, error) {
	defer utils.MeasureTime("cleaner", time.Now())
	for i := range data.Segments {
		data.Segments[i].Text = sp.transform(data.Segments[i].Text)
	}
	data.Text = domain.JoinText(data.Segments)
	return data, nil
}

func (sp *Cleaner) transform(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
