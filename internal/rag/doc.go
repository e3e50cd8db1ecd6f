// Package rag supplies retrieved reference text to chat turns.
//
// A Retriever returns the documents most relevant to the user's input;
// FormatContext renders them as a system message. MarkdownRetriever is a
// keyword-overlap retriever over a directory of Markdown files.
package rag
