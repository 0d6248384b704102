package api

import "github.com/airenas/whisper-stt/internal/domain"

// Shape converts an engine result to the response contract. Segments are never null.
func Shape(r *domain.TranscriptionResult) *TranscriptionResponse {
	res := &TranscriptionResponse{
		Text:     r.Text,
		Language: r.Language,
		Duration: r.Duration,
		Model:    r.Model,
		Segments: make([]Segment, 0, len(r.Segments)),
	}
	for _, s := range r.Segments {
		res.Segments = append(res.Segments, Segment{
			ID:           s.ID,
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			AvgLogProb:   s.AvgLogProb,
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	return res
}
