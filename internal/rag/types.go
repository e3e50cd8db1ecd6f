package rag

import (
	"context"
	"fmt"
	"strings"
)

// Retriever fetches relevant context from a knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrievalOptions) ([]Document, error)
}

// RetrievalOptions configures retrieval behavior.
type RetrievalOptions struct {
	// TopK caps the number of documents returned
	TopK int

	// Threshold drops documents scoring below it
	Threshold float64
}

// Document represents a retrieved knowledge base entry.
type Document struct {
	ID      string
	Source  string
	Content string
	Score   float64
}

// FormatContext renders docs as one system message body. It returns ""
// when there is nothing to add.
func FormatContext(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Answer using only the reference material below. If it does not contain the answer, say you don't know.\n")
	for i, d := range docs {
		fmt.Fprintf(&sb, "\n[%d] %s\n%s\n", i+1, d.Source, strings.TrimSpace(d.Content))
	}
	return strings.TrimSpace(sb.String())
}
