package evidence

import (
	"context"
	"log"
	"sync"
)

type SpeechKind int

const (
	SpeechInterim SpeechKind = iota
	SpeechFinal
	SpeechEnded
)

// SpeechEvent is one message from a speech-recognition stream. Interim text
// replaces the previous interim fragment; Final text is committed.
type SpeechEvent struct {
	Kind SpeechKind
	Text string
}

type SpeechSession struct {
	c        *Composer
	events   <-chan SpeechEvent
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// StartSpeech consumes events until the stream ends, ctx is cancelled or
// Stop is called. Pending interim text is always flushed into the
// description before the session halts.
func (c *Composer) StartSpeech(ctx context.Context, events <-chan SpeechEvent) (*SpeechSession, error) {
	c.mu.Lock()
	if c.speaking {
		c.mu.Unlock()
		return nil, ErrSpeechActive
	}
	c.speaking = true
	c.mu.Unlock()

	s := &SpeechSession{
		c:      c,
		events: events,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

func (s *SpeechSession) run(ctx context.Context) {
	defer close(s.done)
	defer s.c.flushInterim()

	for {
		select {
		case <-ctx.Done():
			log.Printf("evidence speech stopped: %v", ctx.Err())
			s.drain()
			return
		case <-s.stop:
			s.drain()
			return
		case ev, ok := <-s.events:
			if !ok || !s.apply(ev) {
				return
			}
		}
	}
}

// drain applies events already buffered on the stream without blocking.
func (s *SpeechSession) drain() {
	for {
		select {
		case ev, ok := <-s.events:
			if !ok || !s.apply(ev) {
				return
			}
		default:
			return
		}
	}
}

// apply reports whether the session should keep reading.
func (s *SpeechSession) apply(ev SpeechEvent) bool {
	switch ev.Kind {
	case SpeechInterim:
		s.c.setInterim(ev.Text)
	case SpeechFinal:
		s.c.commitFinal(ev.Text)
	case SpeechEnded:
		return false
	}
	return true
}

// Stop halts the session and waits until pending text is flushed.
func (s *SpeechSession) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *SpeechSession) Wait() {
	<-s.done
}
