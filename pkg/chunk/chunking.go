package chunk

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker splits document text into retrieval-sized pieces. Size is
// measured in tokens when a tokenizer is available, otherwise in an
// approximation of four characters per token. Consecutive chunks share
// Overlap trailing words so that sentences cut at a boundary stay
// findable.
type Chunker struct {
	Size    int // maximum chunk size in tokens
	Overlap int // words carried over into the next chunk
	encoder *tiktoken.Tiktoken
}

// NewChunker creates a chunker with the given token budget and word
// overlap. The cl100k_base tokenizer is used for counting; if it cannot
// be loaded the chunker falls back to the character heuristic.
func NewChunker(size, overlap int) *Chunker {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}
	return &Chunker{Size: size, Overlap: overlap, encoder: encoder}
}

// tokenLen counts tokens in s.
func (c *Chunker) tokenLen(s string) int {
	if c.encoder != nil {
		return len(c.encoder.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}

// Split breaks text into chunks of at most Size tokens, preferring
// paragraph boundaries and keeping Overlap words of context between
// adjacent chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.tokenLen(text) <= c.Size {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	fresh := true // current holds only carried-over overlap

	// flush emits the current chunk and seeds the builder with the
	// trailing overlap words.
	flush := func() {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		fresh = true
		if chunk == "" {
			return
		}
		chunks = append(chunks, chunk)

		if c.Overlap <= 0 {
			return
		}
		words := strings.Fields(chunk)
		if len(words) > c.Overlap {
			words = words[len(words)-c.Overlap:]
		}
		current.WriteString(strings.Join(words, " "))
	}

	add := func(piece, sep string) {
		if current.Len() > 0 && c.tokenLen(current.String())+c.tokenLen(piece) > c.Size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
		fresh = false
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if c.tokenLen(para) > c.Size {
			// Oversized paragraph, fall back to word runs.
			for _, piece := range c.splitWords(para) {
				add(piece, " ")
			}
			continue
		}

		add(para, "\n\n")
	}

	if !fresh && strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// splitWords cuts an oversized paragraph into word runs that each fit
// the token budget.
func (c *Chunker) splitWords(paragraph string) []string {
	var pieces []string
	var current strings.Builder

	for _, word := range strings.Fields(paragraph) {
		if current.Len() > 0 && c.tokenLen(current.String())+c.tokenLen(word)+1 > c.Size {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}
