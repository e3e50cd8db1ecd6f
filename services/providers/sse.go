package providers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/openai/openai-go/packages/ssestream"
)

// Event is a decoded server-sent event
type Event = ssestream.Event

// OpenFunc performs the HTTP round trip for a stream. It must return a
// response with a 2xx status or an error describing why it could not.
type OpenFunc func(ctx context.Context) (*http.Response, error)

// ExtractFunc pulls the text payload out of one event. Returning "" with a
// nil error skips the event. A non-nil error stops the stream.
type ExtractFunc func(ev Event) (string, error)

// sseStream is a FragmentStream over a server-sent-event HTTP response.
// The request is issued by the first call to Next.
type sseStream struct {
	provider string
	ctx      context.Context
	cancel   context.CancelFunc
	open     OpenFunc
	extract  ExtractFunc

	resp    *http.Response
	decoder ssestream.Decoder
	cur     string
	err     error
	done    bool

	closeOnce sync.Once
}

// NewSSEStream returns a lazy FragmentStream. ctx bounds the whole stream;
// Close cancels it.
func NewSSEStream(ctx context.Context, provider string, open OpenFunc, extract ExtractFunc) FragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	return &sseStream{
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,
		open:     open,
		extract:  extract,
	}
}

func (s *sseStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	if s.decoder == nil {
		resp, err := s.open(s.ctx)
		if err != nil {
			s.err = err
			return false
		}
		s.resp = resp
		s.decoder = ssestream.NewDecoder(resp)
		if s.decoder == nil {
			s.err = errors.New("empty stream response")
			return false
		}
	}

	for s.decoder.Next() {
		text, err := s.extract(s.decoder.Event())
		if err != nil {
			s.err = err
			return false
		}
		if text == "" {
			continue
		}
		s.cur = text
		return true
	}

	if err := s.decoder.Err(); err != nil {
		s.err = NewProviderError(s.provider, KindForTransport(err), "", "stream interrupted", 0, err)
		return false
	}
	s.done = true
	return false
}

func (s *sseStream) Current() string {
	return s.cur
}

func (s *sseStream) Err() error {
	return s.err
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.done = true
		if s.decoder != nil {
			err = s.decoder.Close()
		} else if s.resp != nil {
			err = s.resp.Body.Close()
		}
	})
	return err
}
