package transcript

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry. Messages are values; once appended
// to a conversation they are never edited in place.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with a time-ordered (UUIDv7) id.
func NewMessage(role Role, content string) Message {
	return Message{ID: newID(), Role: role, Content: content}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		return uuid.NewString()
	}
	return id.String()
}

// NewConversationID mints a conversation id for exchanges the server did not
// assign one to.
func NewConversationID() string {
	return "local-" + newID()
}

// Conversation is an index entry describing one thread.
type Conversation struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	LastActivityLabel string `json:"last_activity"`
}

const (
	titleLimit    = 35
	titleEllipsis = "…"

	// UntitledTitle replaces titles that are blank after trimming.
	UntitledTitle = "Untitled"
	// TodayLabel marks conversations created during this session.
	TodayLabel = "Today"
)

// DeriveTitle builds a conversation title from the message that started it:
// the first 35 characters, with an ellipsis when cut, or "Chat <id>" when
// the message is empty.
func DeriveTitle(text, conversationID string) string {
	if text == "" {
		return fmt.Sprintf("Chat %s", conversationID)
	}
	if utf8.RuneCountInString(text) <= titleLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:titleLimit]) + titleEllipsis
}

// NormalizeTitle applies the rename rule.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return UntitledTitle
	}
	return title
}

// IsLocalID reports whether id was minted by NewConversationID and so has
// never been seen by the service.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, "local-")
}
