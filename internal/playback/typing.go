package playback

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

const (
	tokenBaseMs   = 40
	tokenJitterMs = 40
	settleMs      = 400
)

// Sequencer types messages into one thread word by word.
type Sequencer struct {
	thread *Thread
	clock  Clock
	rng    *rand.Rand
	speed  float64
	emit   Listener
}

// NewSequencer creates a Sequencer for thread. rng must not be shared with
// other goroutines.
func NewSequencer(thread *Thread, clock Clock, rng *rand.Rand, speed float64, emit Listener) *Sequencer {
	return &Sequencer{
		thread: thread,
		clock:  clock,
		rng:    rng,
		speed:  speed,
		emit:   emit,
	}
}

func (s *Sequencer) notify(u Update) {
	if s.emit == nil {
		return
	}
	u.ThreadID = s.thread.ID()
	u.At = time.Now()
	s.emit(u)
}

// Type simulates sender typing content and commits it to the transcript.
// It returns false without committing anything when ctx is cancelled before
// the last token has been typed.
func (s *Sequencer) Type(ctx context.Context, content string, sender Sender) bool {
	tokens := strings.Fields(content)
	typed := make([]string, 0, len(tokens))

	for _, tok := range tokens {
		if ctx.Err() != nil {
			s.thread.clearTyping()
			return false
		}
		typed = append(typed, tok)
		text := strings.Join(typed, " ")
		s.thread.setTyping(sender, text)
		s.notify(Update{Kind: UpdateTyping, Sender: sender, Text: text})

		pause := tokenBaseMs + s.rng.Float64()*tokenJitterMs
		if err := s.clock.Sleep(ctx, Scale(pause, s.speed)); err != nil {
			s.thread.clearTyping()
			return false
		}
	}
	if ctx.Err() != nil {
		s.thread.clearTyping()
		return false
	}

	s.thread.commit(Message{Sender: sender, Content: content})
	s.notify(Update{Kind: UpdateMessage, Sender: sender, Text: content})

	// The message is committed; a cancellation during the settle pause is
	// picked up by the caller's next wait.
	_ = s.clock.Sleep(ctx, Scale(settleMs, s.speed))
	return true
}
