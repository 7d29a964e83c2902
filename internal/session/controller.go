package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qmuntal/stateless" // FSM library

	"github.com/comigor/lumina/internal/fallback"
	"github.com/comigor/lumina/internal/logger"
	"github.com/comigor/lumina/internal/remote"
	"github.com/comigor/lumina/internal/transcript"
)

// FSM states
type State string

const (
	StateIdle    State = "Idle"
	StateSending State = "Sending"
)

// FSM triggers
type Trigger string

const (
	TriggerSubmit      Trigger = "Submit"
	TriggerReplied     Trigger = "Replied"
	TriggerRateLimited Trigger = "RateLimited"
	TriggerFellBack    Trigger = "FellBack"
	TriggerNewChat     Trigger = "NewChat"
	TriggerSelect      Trigger = "Select"
	TriggerClear       Trigger = "Clear"
)

var (
	ErrBlankInput          = errors.New("message is blank")
	ErrBusy                = errors.New("a message is still being sent")
	ErrUnknownConversation = errors.New("unknown conversation")
)

const (
	defaultTimeout       = 30 * time.Second
	defaultDeleteTimeout = 10 * time.Second
)

// Remote is what the controller needs from an assistant backend.
type Remote interface {
	Ask(ctx context.Context, req remote.AskRequest) remote.Outcome
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Controller owns the chat session: the active conversation, the draft,
// and the Idle/Sending machine that allows one outstanding ask at a time.
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	// Snapshots are queued under mu and delivered in order by whichever
	// goroutine is publishing, with no controller lock held.
	pubMu      sync.Mutex
	queue      []Snapshot
	publishing bool

	fsm      *stateless.StateMachine
	store    *transcript.Store
	remote   Remote
	fallback func(string) string
	observer func(Snapshot)

	timeout       time.Duration
	deleteTimeout time.Duration

	active string
	draft  string

	wg  sync.WaitGroup
	log *slog.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithTimeout bounds how long an exchange may stay in Sending before it
// settles with a fallback reply.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithDeleteTimeout bounds the best-effort remote delete.
func WithDeleteTimeout(d time.Duration) Option {
	return func(c *Controller) { c.deleteTimeout = d }
}

// WithObserver registers fn to receive a snapshot after every transition,
// in transition order. fn runs on the goroutine that is publishing, outside
// the controller's locks, so it may call any Controller method; snapshots it
// causes are delivered after it returns.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithFallback replaces the offline reply generator.
func WithFallback(fn func(string) string) Option {
	return func(c *Controller) { c.fallback = fn }
}

// New creates a controller in Idle with no active conversation.
func New(store *transcript.Store, rem Remote, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		remote:        rem,
		fallback:      fallback.Reply,
		timeout:       defaultTimeout,
		deleteTimeout: defaultDeleteTimeout,
		log:           logger.L.With("component", "session"),
	}
	for _, opt := range opts {
		opt(c)
	}

	fsm := stateless.NewStateMachine(StateIdle)

	// State: Idle
	// Transitions:
	//   - On Submit -> StateSending
	//   - NewChat, Select and Clear re-enter Idle; they are refused while Sending.
	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateSending).
		PermitReentry(TriggerNewChat).
		PermitReentry(TriggerSelect).
		PermitReentry(TriggerClear)

	// State: Sending
	// Every settlement returns to Idle.
	fsm.Configure(StateSending).
		Permit(TriggerReplied, StateIdle).
		Permit(TriggerRateLimited, StateIdle).
		Permit(TriggerFellBack, StateIdle)

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		c.log.Debug("FSM transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})
	c.fsm = fsm
	return c
}

// State returns the machine's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState().(State)
}

// SetDraft records the text being typed.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.commitLocked()
}

// Submit accepts text for the active conversation. The user message is
// appended before Submit returns; the reply lands asynchronously and the
// returned Exchange reports it. ctx bounds the whole exchange.
func (c *Controller) Submit(ctx context.Context, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrBlankInput
	}

	c.mu.Lock()
	if err := c.fsm.FireCtx(ctx, TriggerSubmit); err != nil {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	target := c.active
	prior := c.store.Messages(target)
	user := transcript.NewMessage(transcript.RoleUser, text)
	c.store.Append(target, user)
	c.draft = ""
	ex := newExchange(target, user)
	c.wg.Add(1)
	c.commitLocked()

	go c.exchange(ctx, ex, remote.AskRequest{Text: text, ConversationID: target, Transcript: prior})
	return ex, nil
}

// Send submits text and waits for the exchange to settle.
func (c *Controller) Send(ctx context.Context, text string) (Result, error) {
	ex, err := c.Submit(ctx, text)
	if err != nil {
		return Result{}, err
	}
	<-ex.Done()
	return ex.Result(), nil
}

func (c *Controller) exchange(ctx context.Context, ex *Exchange, req remote.AskRequest) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.settle(ex, c.ask(ctx, req))
}

// ask returns whichever comes first: the backend's outcome or the deadline.
// The loser is discarded.
func (c *Controller) ask(ctx context.Context, req remote.AskRequest) remote.Outcome {
	result := make(chan remote.Outcome, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				result <- remote.Failed(fmt.Errorf("ask: %w: panic: %v", remote.ErrUnreachable, r))
			}
		}()
		result <- c.remote.Ask(ctx, req)
	}()

	select {
	case out := <-result:
		return out
	case <-ctx.Done():
		return remote.Failed(fmt.Errorf("ask: %w: %w", remote.ErrUnreachable, ctx.Err()))
	}
}

func (c *Controller) settle(ex *Exchange, out remote.Outcome) {
	c.mu.Lock()

	res := Result{Kind: out.Kind, Err: out.Err}
	var (
		content string
		trigger Trigger
		promote bool
	)
	switch out.Kind {
	case remote.KindRateLimited:
		content, trigger = remote.RateLimitNotice, TriggerRateLimited
		c.log.Info("ask rate limited", "conversation_id", ex.target)
	case remote.KindSuccess:
		content, trigger, promote = out.Reply, TriggerReplied, true
	default:
		content, trigger, promote = c.fallback(ex.text), TriggerFellBack, true
		res.FellBack = true
		c.log.Warn("assistant unavailable; using fallback reply", "conversation_id", ex.target, "error", out.Err)
	}
	res.Reply = transcript.NewMessage(transcript.RoleAssistant, content)

	target := ex.target
	if target != transcript.PendingID && !c.store.Has(target) {
		res.Dropped = true
		c.log.Info("conversation deleted before reply arrived; dropping reply", "conversation_id", target)
	} else {
		c.store.Append(target, res.Reply)
		if target == transcript.PendingID && promote {
			id := out.ConversationID
			if id == "" {
				id = transcript.NewConversationID()
			}
			c.store.Promote(transcript.PendingID, transcript.Conversation{
				ID:                id,
				Title:             transcript.DeriveTitle(ex.text, id),
				LastActivityLabel: transcript.TodayLabel,
			})
			c.active = id
			target = id
			res.Promoted = true
		}
	}
	res.ConversationID = target

	if err := c.fsm.Fire(trigger); err != nil {
		c.log.Error("FSM fire error", "trigger", trigger, "error", err)
	}
	c.commitLocked()
	ex.finish(res)
}

// NewChat clears the active conversation so the next submission starts a
// new one. Existing conversations are untouched.
func (c *Controller) NewChat() error {
	c.mu.Lock()
	if err := c.fsm.Fire(TriggerNewChat); err != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.active = transcript.PendingID
	c.draft = ""
	c.store.Discard(transcript.PendingID)
	c.commitLocked()
	return nil
}

// Select makes id the active conversation.
func (c *Controller) Select(id string) error {
	c.mu.Lock()
	if !c.store.Has(id) {
		c.mu.Unlock()
		return fmt.Errorf("select %q: %w", id, ErrUnknownConversation)
	}
	if err := c.fsm.Fire(TriggerSelect); err != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.active = id
	c.commitLocked()
	return nil
}

// Clear deletes every conversation and the pending chat locally and leaves
// no conversation active. Nothing is deleted on the server.
func (c *Controller) Clear() error {
	c.mu.Lock()
	if err := c.fsm.Fire(TriggerClear); err != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.store.Reset()
	c.active = transcript.PendingID
	c.commitLocked()
	c.log.Info("all conversations cleared")
	return nil
}

// Rename retitles a conversation and returns the title actually stored.
func (c *Controller) Rename(id, title string) (string, error) {
	c.mu.Lock()
	got, ok := c.store.Rename(id, title)
	if !ok {
		c.mu.Unlock()
		return "", fmt.Errorf("rename %q: %w", id, ErrUnknownConversation)
	}
	c.commitLocked()
	return got, nil
}

// Delete removes a conversation locally and asks the backend to forget it
// in the background. Backend failures are logged and never undo the local
// removal.
func (c *Controller) Delete(id string) error {
	c.mu.Lock()
	if !c.store.Remove(id) {
		c.mu.Unlock()
		return fmt.Errorf("delete %q: %w", id, ErrUnknownConversation)
	}
	if c.active == id {
		c.active = transcript.PendingID
		if convs := c.store.Conversations(); len(convs) > 0 {
			c.active = convs[0].ID
		}
	}
	if !transcript.IsLocalID(id) {
		c.wg.Add(1)
		go c.deleteRemote(id)
	}
	c.commitLocked()
	return nil
}

func (c *Controller) deleteRemote(id string) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.deleteTimeout)
	defer cancel()
	err := c.remote.DeleteConversation(ctx, id)
	switch {
	case err == nil:
		c.log.Debug("remote conversation deleted", "conversation_id", id)
	case errors.Is(err, remote.ErrNoSession):
		c.log.Debug("remote delete skipped; signed out", "conversation_id", id)
	default:
		c.log.Warn("remote delete failed", "conversation_id", id, "error", err)
	}
}

// installHistory merges fetched conversations and, when nothing is active
// or pending, activates the most recent one.
func (c *Controller) installHistory(convs []transcript.Conversation, msgs map[string][]transcript.Message) {
	c.mu.Lock()
	c.store.Install(convs, msgs)
	idle := c.fsm.MustState() == StateIdle
	if idle && c.active == transcript.PendingID && len(c.store.Messages(transcript.PendingID)) == 0 {
		if index := c.store.Conversations(); len(index) > 0 {
			c.active = index[0].ID
		}
	}
	c.commitLocked()
}

// Wait blocks until every background exchange and remote delete is done.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// commitLocked queues a snapshot, releases c.mu and delivers the queue.
// Queueing under c.mu keeps snapshots in transition order.
func (c *Controller) commitLocked() {
	if c.observer == nil {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.pubMu.Lock()
	c.queue = append(c.queue, snap)
	c.pubMu.Unlock()
	c.mu.Unlock()
	c.publish()
}

// publish drains the snapshot queue unless another goroutine already is.
func (c *Controller) publish() {
	c.pubMu.Lock()
	if c.publishing {
		c.pubMu.Unlock()
		return
	}
	c.publishing = true
	for len(c.queue) > 0 {
		snap := c.queue[0]
		c.queue = c.queue[1:]
		c.pubMu.Unlock()
		c.observer(snap)
		c.pubMu.Lock()
	}
	c.publishing = false
	c.pubMu.Unlock()
}
