package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"askhc/src/core/rag"
)

// Separators are tried in order, from paragraph breaks down to single
// characters.
var Separators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " ", ""}

// Splitter cuts document pages into overlapping chunks measured in runes.
type Splitter struct {
	splitter textsplitter.RecursiveCharacter
	size     int
	overlap  int
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(Separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		size:    chunkSize,
		overlap: chunkOverlap,
	}
}

// SplitText returns the non-empty chunks of text, none longer than the chunk
// size in runes.
func (s *Splitter) SplitText(text string) ([]string, error) {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// merged splits do not count the joining separator and may overshoot
		if utf8.RuneCountInString(p) > s.size {
			out = append(out, s.window(p)...)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// window cuts text into rune windows of the chunk size that share overlap
// runes.
func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.size - s.overlap
	if step <= 0 {
		step = s.size
	}

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+s.size, len(runes))
		if w := strings.TrimSpace(string(runes[start:end])); w != "" {
			out = append(out, w)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// SplitDocument chunks every page of doc. Chunk indexes run over the whole
// document starting at 0.
func (s *Splitter) SplitDocument(doc *rag.Document) ([]rag.Chunk, error) {
	var chunks []rag.Chunk
	for _, page := range doc.Pages {
		parts, err := s.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s page %d: %w", doc.Source, page.Number, err)
		}
		for _, p := range parts {
			chunks = append(chunks, rag.NewChunk(doc.Source, page.Number, len(chunks), p))
		}
	}
	return chunks, nil
}
