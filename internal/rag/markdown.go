package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// ErrNoDocuments is returned when a directory holds no Markdown files
var ErrNoDocuments = errors.New("no markdown documents found")

const defaultChunkSize = 800

type chunk struct {
	doc   Document
	terms map[string]struct{}
}

// MarkdownRetriever scores paragraph chunks by the share of query terms
// they contain
type MarkdownRetriever struct {
	chunks []chunk
}

// LoadMarkdownDir reads every .md file in dir and splits it into chunks
// of at most chunkSize bytes along paragraph boundaries
func LoadMarkdownDir(dir string, chunkSize int) (*MarkdownRetriever, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}

	r := &MarkdownRetriever{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		r.Add(e.Name(), string(data), chunkSize)
	}

	if len(r.chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}
	return r, nil
}

// Add indexes text under source
func (r *MarkdownRetriever) Add(source, text string, chunkSize int) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	for i, body := range splitParagraphs(text, chunkSize) {
		r.chunks = append(r.chunks, chunk{
			doc: Document{
				ID:      fmt.Sprintf("%s#%d", source, i),
				Source:  source,
				Content: body,
			},
			terms: termSet(body),
		})
	}
}

// Len returns the number of indexed chunks
func (r *MarkdownRetriever) Len() int {
	return len(r.chunks)
}

// Retrieve returns the best scoring chunks, highest first
func (r *MarkdownRetriever) Retrieve(ctx context.Context, query string, opts RetrievalOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := termSet(query)
	if len(q) == 0 {
		return nil, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 4
	}

	var out []Document
	for _, c := range r.chunks {
		hits := 0
		for t := range q {
			if _, ok := c.terms[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(q))
		if score < opts.Threshold {
			continue
		}
		d := c.doc
		d.Score = score
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func splitParagraphs(text string, size int) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p)+2 > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()
	return out
}

// termSet lowercases text and keeps words of three or more runes
func termSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) >= 3 {
			set[w] = struct{}{}
		}
	}
	return set
}
