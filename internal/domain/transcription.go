package domain

import "strings"

// AudioPayload is a single uploaded clip. It lives only for one request.
type AudioPayload struct {
	Data        []byte
	ContentType string
	Filename    string
	Language    string
}

// Segment is one time-bounded span of transcribed speech
type Segment struct {
	ID           int
	Start        float64
	End          float64
	Text         string
	AvgLogProb   float64
	NoSpeechProb float64
}

// TranscriptionResult is the adapter output for one clip
type TranscriptionResult struct {
	Text     string
	Language string
	Duration float64
	Model    string
	Segments []Segment
}

// JoinText joins segment texts in order with a single space
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy, segments included
func (r *TranscriptionResult) Clone() *TranscriptionResult {
	if r == nil {
		return nil
	}
	res := *r
	res.Segments = append([]Segment(nil), r.Segments...)
	return &res
}
