package session

import (
	"context"

	"github.com/comigor/lumina/internal/remote"
	"github.com/comigor/lumina/internal/transcript"
)

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	State State
	// ActiveID is "" while no conversation is active.
	ActiveID string
	// Messages is the active conversation's transcript, or the pending one.
	Messages      []transcript.Message
	Conversations []transcript.Conversation
	// MessagesByConversation includes the pending slot under "" when it has messages.
	MessagesByConversation map[string][]transcript.Message
	Processing             bool
	Draft                  string
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	state := c.fsm.MustState().(State)
	msgs, index := c.store.Export()
	if len(msgs[transcript.PendingID]) == 0 {
		delete(msgs, transcript.PendingID)
	}
	active := msgs[c.active]
	if active == nil {
		active = []transcript.Message{}
	}
	return Snapshot{
		State:                  state,
		ActiveID:               c.active,
		Messages:               active,
		Conversations:          index,
		MessagesByConversation: msgs,
		Processing:             state == StateSending,
		Draft:                  c.draft,
	}
}

// Result describes how an exchange settled.
type Result struct {
	Kind remote.Kind
	// Reply is the assistant message: the real reply, the rate-limit notice
	// or the fallback reply.
	Reply transcript.Message
	// ConversationID is where the reply was appended.
	ConversationID string
	// Promoted is set when the exchange created a new conversation.
	Promoted bool
	// FellBack is set when Reply came from the offline responder.
	FellBack bool
	// Dropped is set when the target conversation was deleted in flight.
	Dropped bool
	Err     error
}

// Exchange tracks one submitted message until its reply settles.
type Exchange struct {
	target string
	text   string
	user   transcript.Message
	done   chan struct{}
	result Result
}

func newExchange(target string, user transcript.Message) *Exchange {
	return &Exchange{target: target, text: user.Content, user: user, done: make(chan struct{})}
}

// UserMessage returns the optimistically appended message.
func (e *Exchange) UserMessage() transcript.Message {
	return e.user
}

// Done is closed once the exchange has settled.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Result returns the settlement. It is only meaningful after Done is closed.
func (e *Exchange) Result() Result {
	<-e.done
	return e.result
}

// Wait blocks until the exchange settles or ctx ends.
func (e *Exchange) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.done:
		return e.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Exchange) finish(r Result) {
	e.result = r
	close(e.done)
}
