// Package reply turns a streamed language-model reply into speech: it cuts the
// text into speakable utterances, synthesizes them concurrently and plays the
// audio back strictly in order.
package reply

import (
	"strings"
)

// breakMark is inserted after punctuation where speech may pause.
const breakMark = "·"

// DefaultGoodbyeMarker ends a reply that should send the agent back to sleep.
const DefaultGoodbyeMarker = "[bye]"

var breakReplacer = strings.NewReplacer(
	"!", "!"+breakMark,
	"?", "?"+breakMark,
	".", "."+breakMark,
	",", ","+breakMark,
	"- ", "-"+breakMark+" ",
)

// SegmenterConfig bounds utterance sizes. All counts are words.
type SegmenterConfig struct {
	// MinWords is the smallest utterance cut at a break.
	MinWords int
	// MaxPendingWords forces a cut when no break has appeared for this long.
	MaxPendingWords int
	// MaxWords caps the whole reply; generation stops after it.
	MaxWords int
	// GoodbyeMarker is stripped from speech and flags the reply as a goodbye.
	GoodbyeMarker string
}

// DefaultSegmenterConfig returns the standard bounds.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		MinWords:        2,
		MaxPendingWords: 30,
		MaxWords:        100,
		GoodbyeMarker:   DefaultGoodbyeMarker,
	}
}

// Segmenter accumulates reply deltas and cuts them into utterances. It is
// not safe for concurrent use.
type Segmenter struct {
	cfg     SegmenterConfig
	full    strings.Builder
	pending string
}

// NewSegmenter creates a segmenter. Zero fields take defaults.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	def := DefaultSegmenterConfig()
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.MaxPendingWords <= 0 {
		cfg.MaxPendingWords = def.MaxPendingWords
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = def.MaxWords
	}
	if cfg.GoodbyeMarker == "" {
		cfg.GoodbyeMarker = def.GoodbyeMarker
	}
	return &Segmenter{cfg: cfg}
}

// Push adds a delta and returns any utterances ready to speak. done reports
// that the word cap was exceeded and no more deltas should be consumed.
func (s *Segmenter) Push(delta string) (utterances []string, done bool) {
	marked := breakReplacer.Replace(delta)
	s.full.WriteString(marked)
	s.pending += marked

	if i := strings.LastIndex(s.pending, breakMark); i >= 0 {
		head := strings.TrimSpace(strings.ReplaceAll(s.pending[:i], breakMark, ""))
		if wordCount(head) >= s.cfg.MinWords {
			if u := s.speakable(head); u != "" {
				utterances = append(utterances, u)
			}
			s.pending = s.pending[i+len(breakMark):]
		}
	}

	// Only text after the last break counts; a short fragment held before it
	// goes out with the forced cut.
	tail := s.pending
	if i := strings.LastIndex(tail, breakMark); i >= 0 {
		tail = tail[i+len(breakMark):]
	}
	if wordCount(tail) > s.cfg.MaxPendingWords {
		// Keep the last, possibly partial, word pending.
		if cut := strings.LastIndexAny(s.pending, " \n\t"); cut > 0 {
			if u := s.speakable(s.pending[:cut]); u != "" {
				utterances = append(utterances, u)
			}
			s.pending = s.pending[cut:]
		}
	}

	return utterances, wordCount(s.full.String()) > s.cfg.MaxWords
}

// Flush returns whatever is still pending as a final utterance.
func (s *Segmenter) Flush() string {
	rest := s.speakable(s.pending)
	s.pending = ""
	return rest
}

// Text returns the reply as it belongs in the transcript: no break marks and
// no goodbye marker.
func (s *Segmenter) Text() string {
	text := strings.ReplaceAll(s.full.String(), breakMark, "")
	return strings.TrimSpace(strings.ReplaceAll(text, s.cfg.GoodbyeMarker, ""))
}

// Goodbye reports whether the reply carried the goodbye marker.
func (s *Segmenter) Goodbye() bool {
	return strings.Contains(strings.ReplaceAll(s.full.String(), breakMark, ""), s.cfg.GoodbyeMarker)
}

func (s *Segmenter) speakable(text string) string {
	text = strings.ReplaceAll(text, breakMark, "")
	text = strings.ReplaceAll(text, s.cfg.GoodbyeMarker, "")
	return Speechify(strings.TrimSpace(text))
}

// Speechify rewrites text that TTS engines read badly.
func Speechify(text string) string {
	return strings.ReplaceAll(text, "#", "hashtag ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
