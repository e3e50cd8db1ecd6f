package providers

import (
	"context"
	"iter"
	"sync"
)

// seqStream adapts an iter.Seq2 of fragments to FragmentStream.
// The sequence is not started until the first call to Next.
type seqStream struct {
	cancel context.CancelFunc
	seq    iter.Seq2[string, error]

	next func() (string, error, bool)
	stop func()
	cur  string
	err  error
	done bool

	closeOnce sync.Once
}

// NewSeqStream wraps seq, which must honor ctx. Empty fragments are skipped.
// Close stops the sequence and cancels ctx.
func NewSeqStream(ctx context.Context, build func(ctx context.Context) iter.Seq2[string, error]) FragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	return &seqStream{
		cancel: cancel,
		seq:    build(ctx),
	}
}

func (s *seqStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if s.next == nil {
		s.next, s.stop = iter.Pull2(s.seq)
	}
	for {
		text, err, ok := s.next()
		if !ok {
			s.done = true
			return false
		}
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
}

func (s *seqStream) Current() string {
	return s.cur
}

func (s *seqStream) Err() error {
	return s.err
}

func (s *seqStream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		if s.stop != nil {
			s.stop()
		}
		s.cancel()
	})
	return nil
}
