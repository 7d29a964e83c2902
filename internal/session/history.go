package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/comigor/lumina/internal/logger"
	"github.com/comigor/lumina/internal/remote"
	"github.com/comigor/lumina/internal/transcript"
)

// HistorySource fetches the stored exchanges of the signed-in user.
type HistorySource interface {
	FetchHistory(ctx context.Context) ([]remote.Record, error)
}

// AuthGate owns the session token. Reject clears a token the service
// refused and sends the user back to sign-in.
type AuthGate interface {
	Token() string
	Reject()
}

// HistorySync loads server history into a controller once per session.
type HistorySync struct {
	source HistorySource
	gate   AuthGate
	loc    *time.Location
	once   sync.Once
	log    *slog.Logger
}

// NewHistorySync creates a one-shot loader.
func NewHistorySync(source HistorySource, gate AuthGate) *HistorySync {
	return &HistorySync{
		source: source,
		gate:   gate,
		loc:    time.Local,
		log:    logger.L.With("component", "history"),
	}
}

// Run fetches and installs the history the first time it is called; later
// calls do nothing. Without a token it is a no-op. Fetch failures leave the
// session with whatever it already has and are only logged, except a
// rejected token, which is handed to the AuthGate and returned.
func (h *HistorySync) Run(ctx context.Context, c *Controller) error {
	var err error
	h.once.Do(func() { err = h.run(ctx, c) })
	return err
}

func (h *HistorySync) run(ctx context.Context, c *Controller) error {
	if h.gate.Token() == "" {
		h.log.Debug("no session token; skipping history")
		return nil
	}

	records, err := h.source.FetchHistory(ctx)
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrNoSession):
		return nil
	case errors.Is(err, remote.ErrAuthRejected):
		h.log.Warn("history fetch rejected credentials")
		h.gate.Reject()
		return fmt.Errorf("load history: %w", err)
	default:
		h.log.Warn("history unavailable; continuing without it", "error", err)
		return nil
	}

	convs, msgs := GroupHistory(records, h.loc)
	c.installHistory(convs, msgs)
	h.log.Info("history loaded", "records", len(records), "conversations", len(convs))
	return nil
}

// GroupHistory turns server records into conversations, newest id first,
// and their transcripts. Each record contributes its user text and then its
// assistant text, in record order. A conversation is labelled with the date
// of its first timestamped record, in loc.
func GroupHistory(records []remote.Record, loc *time.Location) ([]transcript.Conversation, map[string][]transcript.Message) {
	msgs := make(map[string][]transcript.Message)
	var convs []transcript.Conversation
	started := make(map[string]time.Time)

	for _, rec := range records {
		id := string(rec.ConversationID)
		if id == transcript.PendingID {
			continue
		}
		if _, seen := msgs[id]; !seen {
			convs = append(convs, transcript.Conversation{
				ID:    id,
				Title: transcript.DeriveTitle(rec.Message, id),
			})
		}
		msgs[id] = append(msgs[id],
			transcript.Message{ID: string(rec.ID) + "-q", Role: transcript.RoleUser, Content: rec.Message},
			transcript.Message{ID: string(rec.ID) + "-a", Role: transcript.RoleAssistant, Content: rec.Response},
		)
		if _, dated := started[id]; !dated {
			if ts, ok := parseTimestamp(rec.Timestamp); ok {
				started[id] = ts
			}
		}
	}

	for i := range convs {
		convs[i].LastActivityLabel = activityLabel(started[convs[i].ID], loc)
	}
	slices.SortStableFunc(convs, func(a, b transcript.Conversation) int {
		return compareIDs(b.ID, a.ID)
	})
	return convs, msgs
}

// compareIDs orders numeric ids numerically, other ids as text, and every
// numeric id above every other id.
func compareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	}
	return cmp.Compare(a, b)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

const dateLayout = "Jan 2, 2006"

func activityLabel(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return transcript.TodayLabel
	}
	return t.In(loc).Format(dateLayout)
}
