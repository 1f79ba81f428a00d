package kb

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const headingPrefix = "## "

// Chunk is one retrievable span of a document
type Chunk struct {
	Text    string
	Section string
}

// Chunker splits raw document text into chunks. Documents with markdown
// section headings split on the headings; everything else splits on a fixed
// character budget with overlap so downstream prompts stay bounded.
type Chunker struct {
	chunkSize int
	overlap   int
	maxChunks int
}

func NewChunker(chunkSize, overlap, maxChunks int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 20000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 300
	}
	if maxChunks <= 0 {
		maxChunks = 10
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		maxChunks: maxChunks,
	}
}

// Split chunks the text and reports whether the chunk cap truncated it
func (c *Chunker) Split(text string) ([]Chunk, bool, error) {
	var (
		chunks []Chunk
		err    error
	)
	if hasHeadings(text) {
		chunks = c.splitOnHeadings(text)
	} else {
		chunks, err = c.splitOnBudget(text)
		if err != nil {
			return nil, false, err
		}
	}

	if len(chunks) > c.maxChunks {
		return chunks[:c.maxChunks], true, nil
	}
	return chunks, false, nil
}

func hasHeadings(text string) bool {
	return strings.HasPrefix(text, headingPrefix) || strings.Contains(text, "\n"+headingPrefix)
}

func (c *Chunker) splitOnHeadings(text string) []Chunk {
	var (
		chunks  []Chunk
		current strings.Builder
		heading string
	)

	flush := func() {
		body := strings.TrimSpace(current.String())
		if body != "" {
			chunks = append(chunks, Chunk{Text: body, Section: heading})
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, headingPrefix) {
			flush()
			heading = strings.TrimSpace(strings.TrimPrefix(line, headingPrefix))
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return chunks
}

func (c *Chunker) splitOnBudget(text string) ([]Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.overlap),
	)

	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, Chunk{Text: p})
	}
	return chunks, nil
}
