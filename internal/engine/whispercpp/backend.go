package whispercpp

import (
	"fmt"
	"runtime"
	"time"

	"github.com/airenas/whisper-stt/internal/engine"
	whisper "github.com/ggerganov/whisper.cpp/bindings/go"
)

// cgoBackend drives whisper_full on a single whisper context
type cgoBackend struct {
	ctx          *whisper.Context
	multilingual bool
}

func (b *cgoBackend) full(p decodeParams, samples []float32) (string, []segment, error) {
	if len(samples) == 0 {
		return "", nil, nil
	}
	wp, err := b.newParams(p)
	if err != nil {
		return "", nil, err
	}
	if err := b.ctx.Whisper_full(wp, samples, nil, nil, nil); err != nil {
		return "", nil, fmt.Errorf("whisper_full: %w", err)
	}
	lang := whisper.Whisper_lang_str(b.ctx.Whisper_full_lang_id())
	return lang, b.segments(), nil
}

func (b *cgoBackend) newParams(p decodeParams) (whisper.Params, error) {
	wp := b.ctx.Whisper_full_default_params(p.strategy)
	if p.strategy == whisper.SAMPLING_BEAM_SEARCH {
		wp.SetBeamSize(p.beamSize)
	}
	wp.SetTranslate(false)
	wp.SetPrintSpecial(false)
	wp.SetPrintProgress(false)
	wp.SetPrintRealtime(false)
	wp.SetPrintTimestamps(false)
	wp.SetNoContext(true)
	wp.SetTokenTimestamps(p.tokenTimestamps)
	threads := p.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wp.SetThreads(threads)

	id := -1
	if p.language != engine.AutoLanguage && b.multilingual {
		if id = b.ctx.Whisper_lang_id(p.language); id < 0 {
			return wp, fmt.Errorf("unsupported language '%s'", p.language)
		}
	}
	if err := wp.SetLanguage(id); err != nil {
		return wp, fmt.Errorf("set language '%s': %w", p.language, err)
	}
	return wp, nil
}

func (b *cgoBackend) segments() []segment {
	eot := b.ctx.Whisper_token_eot()
	n := b.ctx.Whisper_full_n_segments()
	res := make([]segment, 0, n)
	for i := range n {
		seg := segment{
			// t0 and t1 are in 10 ms units
			start: time.Duration(b.ctx.Whisper_full_get_segment_t0(i)) * 10 * time.Millisecond,
			end:   time.Duration(b.ctx.Whisper_full_get_segment_t1(i)) * 10 * time.Millisecond,
			text:  b.ctx.Whisper_full_get_segment_text(i),
		}
		nt := b.ctx.Whisper_full_n_tokens(i)
		seg.tokens = make([]token, nt)
		for j := range nt {
			// special tokens are numbered from eot up
			seg.tokens[j] = token{p: b.ctx.Whisper_full_get_token_p(i, j),
				text: b.ctx.Whisper_full_get_token_id(i, j) < eot}
		}
		res = append(res, seg)
	}
	return res
}

func (b *cgoBackend) close() error {
	b.ctx.Whisper_free()
	return nil
}
