package processor

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xhad/doccheck/internal/models"
)

const (
	StrategyNone     = "none"
	StrategyPages    = "pages"
	StrategySize     = "size"
	StrategySlides   = "slides"
	StrategySections = "sections"
)

var ErrInvalidChunkStrategy = errors.New("invalid chunk strategy")

type ProcessorConfig struct {
	MaxCharsPerChunk int
	MaxCharsCap      int
	MinCharsRequired int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxCharsCap <= 0 {
		config.MaxCharsCap = 500000
	}
	if config.MaxCharsPerChunk <= 0 {
		config.MaxCharsPerChunk = 200000
	}
	if config.MaxCharsPerChunk > config.MaxCharsCap {
		config.MaxCharsPerChunk = config.MaxCharsCap
	}
	if config.MinCharsRequired < 0 {
		config.MinCharsRequired = 0
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) MaxCharsPerChunk() int { return p.config.MaxCharsPerChunk }

// Process plans the units into chunks and coalesces undersized ones.
func (p *Processor) Process(units []models.ExtractionUnit, strategy string) ([]models.Chunk, error) {
	chunks, err := p.Plan(units, strategy)
	if err != nil {
		return nil, err
	}
	return p.Coalesce(chunks), nil
}

// Plan turns ordered extraction units into chunks no longer than MaxCharsPerChunk.
func (p *Processor) Plan(units []models.ExtractionUnit, strategy string) ([]models.Chunk, error) {
	maxChars := p.config.MaxCharsPerChunk

	switch strategy {
	case StrategyNone:
		return []models.Chunk{{Source: "document", Text: Normalize(joinUnits(units))}}, nil

	case StrategySize:
		var chunks []models.Chunk
		for i, part := range SplitBySize(Normalize(joinUnits(units)), maxChars) {
			chunks = append(chunks, models.Chunk{Source: fmt.Sprintf("size:%d", i+1), Text: part})
		}
		return chunks, nil

	case StrategyPages, StrategySlides, StrategySections:
		var chunks []models.Chunk
		for _, u := range units {
			for _, part := range SplitBySize(Normalize(u.Text), maxChars) {
				chunks = append(chunks, models.Chunk{Source: u.Source, Text: part})
			}
		}
		return chunks, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidChunkStrategy, strategy)
}

// Coalesce merges adjacent chunks shorter than MinCharsRequired. Input order is kept and no text
// is dropped. A merged chunk is flushed early rather than grow past MaxCharsPerChunk, and the
// final chunk may stay under the minimum.
func (p *Processor) Coalesce(chunks []models.Chunk) []models.Chunk {
	minChars := p.config.MinCharsRequired
	if !anyBelow(chunks, minChars) {
		return chunks
	}

	var (
		out    []models.Chunk
		texts  []string
		labels []string
		bufLen int
	)

	flush := func() {
		if len(texts) == 0 {
			return
		}
		out = append(out, models.Chunk{
			Source: strings.Join(labels, "+"),
			Text:   strings.Join(texts, "\n"),
		})
		texts, labels, bufLen = nil, nil, 0
	}

	for _, ch := range chunks {
		n := CharCount(ch.Text)
		if n >= minChars {
			flush()
			out = append(out, ch)
			continue
		}

		if len(texts) > 0 && bufLen+len(texts)+n > p.config.MaxCharsPerChunk {
			flush()
		}
		texts = append(texts, ch.Text)
		labels = append(labels, ch.Source)
		bufLen += n
		if bufLen >= minChars {
			flush()
		}
	}
	flush()

	return out
}

// ResolveStrategy returns requested when set, else the fallback. Unknown names are rejected.
func ResolveStrategy(requested, fallback string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(requested))
	if s == "" {
		s = fallback
	}
	switch s {
	case StrategyNone, StrategyPages, StrategySize, StrategySlides, StrategySections:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChunkStrategy, requested)
}

// Normalize turns carriage returns into newlines, drops non-printable characters and collapses
// every whitespace run into one space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// SplitBySize cuts text into consecutive windows of at most size characters.
func SplitBySize(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}

	parts := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}

// CharCount counts characters, not bytes.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			if !inWord {
				count++
			}
			inWord = true
			continue
		}
		inWord = false
	}
	return count
}

func TotalChars(chunks []models.Chunk) int {
	total := 0
	for _, ch := range chunks {
		total += CharCount(ch.Text)
	}
	return total
}

func joinUnits(units []models.ExtractionUnit) string {
	texts := make([]string, 0, len(units))
	for _, u := range units {
		texts = append(texts, u.Text)
	}
	return strings.Join(texts, "\n")
}

func anyBelow(chunks []models.Chunk, minChars int) bool {
	for _, ch := range chunks {
		if CharCount(ch.Text) < minChars {
			return true
		}
	}
	return false
}
