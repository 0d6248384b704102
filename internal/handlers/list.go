// Package handlers post-processes finished transcripts segment by segment.
package handlers

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/domain"
)

type Handler interface {
	Process(context.Context, *domain.TranscriptionResult) (*domain.TranscriptionResult, error)
}

// ListHandler passes the result through the list of handlers.
// A failing handler is skipped, the result of the previous one is kept.
type ListHandler struct {
	handlers []Handler
}

func NewListHandler() (*ListHandler, error) {
	res := &ListHandler{}
	return res, nil
}

func (sp *ListHandler) Process(ctx context.Context, data *domain.TranscriptionResult) (*domain.TranscriptionResult, error) {
	res := data
	for i, h := range sp.handlers {
		goapp.Log.Debug().Int("handler", i).Msg("Processing")
		if dataNew, err := h.Process(ctx, res.Clone()); err != nil {
			goapp.Log.Error().Err(err).Int("handler", i).Msg("Can't process")
		} else {
			res = dataNew
		}
		goapp.Log.Debug().Int("handler", i).Msg("Finished")
	}
	return res, nil
}

func (sp *ListHandler) Add(h Handler) {
	sp.handlers = append(sp.handlers, h)
}

// Len returns the number of handlers
func (sp *ListHandler) Len() int {
	return len(sp.handlers)
}
