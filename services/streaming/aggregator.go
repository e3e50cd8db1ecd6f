// Package streaming drains fragment streams for callers.
package streaming

import (
	"errors"
	"strings"

	"github.com/upb/chat-gateway/services/providers"
)

// ForwardFunc receives each fragment as soon as it arrives. Returning an
// error stops the drain and closes the stream.
type ForwardFunc func(fragment string) error

// Result is what a drain produced
type Result struct {
	// Text is every forwarded fragment concatenated in arrival order
	Text string

	// Fragments is the number of fragments forwarded
	Fragments int
}

// Drain pulls stream to completion, forwarding each fragment before
// pulling the next one. The stream is always closed. On error, Result
// still holds the text received before the failure.
func Drain(stream providers.FragmentStream, forward ForwardFunc) (Result, error) {
	var (
		sb  strings.Builder
		res Result
	)

	defer stream.Close()

	for stream.Next() {
		fragment := stream.Current()
		sb.WriteString(fragment)
		res.Fragments++

		if forward != nil {
			if err := forward(fragment); err != nil {
				res.Text = sb.String()
				return res, &ForwardError{Err: err}
			}
		}
	}

	res.Text = sb.String()
	if err := stream.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// Collect drains stream without forwarding
func Collect(stream providers.FragmentStream) (string, error) {
	res, err := Drain(stream, nil)
	return res.Text, err
}

// IsForwardError reports whether err came from a ForwardFunc rather than
// the stream
func IsForwardError(err error) bool {
	var fe *ForwardError
	return errors.As(err, &fe)
}

// ForwardError marks failures of the consumer side
type ForwardError struct {
	Err error
}

func (e *ForwardError) Error() string {
	return "forward fragment: " + e.Err.Error()
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}
