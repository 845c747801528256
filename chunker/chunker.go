package chunker

import (
	"strings"
	"unicode"

	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/loader"
)

// Chunk is a window of one page's text. Offset counts runes from the start
// of that page.
type Chunk struct {
	Content string `json:"content"`
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
	Index   int    `json:"index"`
}

type Chunker struct {
	options Options
}

func (c *Chunker) Size() int { return c.options.Size }

func (c *Chunker) Overlap() int { return c.options.Overlap }

// Split windows every page independently so no chunk spans two pages.
func (c *Chunker) Split(pages []loader.Page) []Chunk {
	var chunks []Chunk

	for _, page := range pages {
		if len(strings.TrimSpace(page.Text)) == 0 {
			continue
		}

		for _, w := range c.windows([]rune(page.Text)) {
			chunks = append(chunks, Chunk{
				Content: w.text,
				Page:    page.Number,
				Offset:  w.start,
				Index:   len(chunks),
			})
		}
	}

	return chunks
}

type window struct {
	start int
	text  string
}

func (c *Chunker) windows(runes []rune) []window {
	size, overlap := c.options.Size, c.options.Overlap
	n := len(runes)

	var out []window

	start := 0
	for {
		end := start + size
		if end >= n {
			out = append(out, window{start: start, text: string(runes[start:n])})
			return out
		}

		end = breakPoint(runes, start, end, overlap)
		out = append(out, window{start: start, text: string(runes[start:end])})

		start = end - overlap
	}
}

// breakPoint moves a hard cut at end back to the nearest paragraph, line or
// sentence end, then to the nearest space. The result always leaves
// end-overlap > start so the window advances.
func breakPoint(runes []rune, start, end, overlap int) int {
	floor := max(start+overlap+1, start+(end-start)/2)
	if floor >= end {
		return end
	}

	for _, fits := range []func([]rune, int) bool{paragraphEnd, sentenceEnd, spaceEnd} {
		for i := end; i > floor; i-- {
			if fits(runes, i) {
				return i
			}
		}
	}

	return end
}

func paragraphEnd(runes []rune, i int) bool {
	return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n'
}

func sentenceEnd(runes []rune, i int) bool {
	if runes[i-1] == '\n' {
		return true
	}
	switch runes[i-1] {
	case '.', '!', '?':
		return i < len(runes) && unicode.IsSpace(runes[i])
	}
	return false
}

func spaceEnd(runes []rune, i int) bool {
	return unicode.IsSpace(runes[i-1])
}

// Reconstruct strips the shared prefix from every chunk after the first on
// each page and joins the rest, returning the page texts keyed by page.
func Reconstruct(chunks []Chunk) map[int]string {
	pages := map[int]*strings.Builder{}
	ends := map[int]int{}

	for _, chunk := range chunks {
		b, ok := pages[chunk.Page]
		if !ok {
			b = &strings.Builder{}
			pages[chunk.Page] = b
		}

		runes := []rune(chunk.Content)
		skip := 0
		if ok {
			skip = ends[chunk.Page] - chunk.Offset
		}
		if skip < len(runes) {
			b.WriteString(string(runes[max(skip, 0):]))
		}
		ends[chunk.Page] = chunk.Offset + len(runes)
	}

	out := make(map[int]string, len(pages))
	for page, b := range pages {
		out[page] = b.String()
	}

	return out
}

func New(opts ...Option) (*Chunker, error) {
	options := NewOptions(opts...)

	if options.Size <= 0 {
		return nil, errs.InvalidConfig("chunk size must be positive, got %d", options.Size)
	}

	if options.Overlap < 0 {
		return nil, errs.InvalidConfig("chunk overlap must not be negative, got %d", options.Overlap)
	}

	if options.Overlap >= options.Size {
		return nil, errs.InvalidConfig("chunk overlap %d must be smaller than chunk size %d", options.Overlap, options.Size)
	}

	return &Chunker{
		options: options,
	}, nil
}
