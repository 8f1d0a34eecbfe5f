package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// StrategyFixed cuts text into contiguous runs with no gaps and no overlap.
	StrategyFixed = "fixed"
	// StrategyRecursive splits on paragraph, line and word boundaries with optional overlap.
	StrategyRecursive = "recursive"
)

// Split cuts text into contiguous runs of at most size characters. Runs are
// measured in Unicode code points and concatenating them yields text again.
func Split(text string, size int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	out := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start, count := 0, 0
	for i := range text {
		if count == size {
			out = append(out, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(out, text[start:])
}

// Processor handles chunking according to supplied configuration.
type Processor struct {
	settings Settings
}

// NewProcessor builds a processor with sanitized defaults.
func NewProcessor(settings Settings) (*Processor, error) {
	if settings.Strategy == "" {
		settings.Strategy = StrategyFixed
	}
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	switch settings.Strategy {
	case StrategyFixed:
		if settings.Overlap != 0 {
			return nil, errors.New("chunk: fixed strategy does not support overlap")
		}
	case StrategyRecursive:
		if settings.Overlap >= settings.Size {
			return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", settings.Overlap, settings.Size)
		}
	default:
		return nil, fmt.Errorf("chunk: unsupported strategy %q", settings.Strategy)
	}
	return &Processor{settings: settings}, nil
}

// Settings returns the effective configuration.
func (p *Processor) Settings() Settings {
	return p.settings
}

// Process splits a document into ordered chunks. Output is deterministic for
// identical input and settings.
func (p *Processor) Process(doc Document) ([]Chunk, error) {
	var segments []string
	switch p.settings.Strategy {
	case StrategyRecursive:
		parts, err := p.splitRecursive(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("chunk: split document %s: %w", doc.Source, err)
		}
		segments = parts
	default:
		segments = Split(doc.Text, p.settings.Size)
	}
	if len(segments) == 0 {
		return nil, nil
	}
	chunks := make([]Chunk, 0, len(segments))
	for _, segment := range segments {
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   segment,
			Source: doc.Source,
		})
	}
	return chunks, nil
}

func (p *Processor) splitRecursive(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.settings.Size),
		textsplitter.WithChunkOverlap(p.settings.Overlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := segments[:0]
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		out = append(out, segment)
	}
	return out, nil
}
