package remote

import (
	"errors"
	"fmt"

	"github.com/comigor/lumina/internal/transcript"
)

var (
	// ErrRateLimited means the service answered 429 Too Many Requests.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnreachable covers transport failures: DNS, connection, timeout.
	ErrUnreachable = errors.New("assistant service unreachable")
	// ErrServerError wraps non-2xx responses other than 429 and 401.
	ErrServerError = errors.New("assistant service error")
	// ErrAuthRejected means the bearer token was refused (401).
	ErrAuthRejected = errors.New("credentials rejected")
	// ErrNoSession means the call needs a token and none is available.
	ErrNoSession = errors.New("no session token")
)

// RateLimitNotice is shown in the transcript in place of a reply when the
// service throttles a request.
const RateLimitNotice = "⚠️ **Rate limit reached.** The AI is getting too many requests right now. Please wait a moment and try again."

// StatusError records the status code of a rejected response. It matches
// ErrServerError, ErrRateLimited or ErrAuthRejected with errors.Is.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code: %d", e.Op, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == 429
	case ErrAuthRejected:
		return e.StatusCode == 401
	case ErrServerError:
		return e.StatusCode != 429 && e.StatusCode != 401
	}
	return false
}

// Kind classifies how an ask settled.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindFailed:
		return "failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the settled result of an ask. Reply and ConversationID are set
// for KindSuccess; Err explains KindRateLimited and KindFailed.
type Outcome struct {
	Kind           Kind
	Reply          string
	ConversationID string
	Err            error
}

// Succeeded builds a KindSuccess outcome.
func Succeeded(reply, conversationID string) Outcome {
	return Outcome{Kind: KindSuccess, Reply: reply, ConversationID: conversationID}
}

// Failed classifies err into a rate-limited or failed outcome.
func Failed(err error) Outcome {
	if errors.Is(err, ErrRateLimited) {
		return Outcome{Kind: KindRateLimited, Err: err}
	}
	return Outcome{Kind: KindFailed, Err: err}
}

// AskRequest carries one user submission. Transcript holds the messages of
// the target conversation before this submission, for backends that need
// the context resent.
type AskRequest struct {
	Text           string
	ConversationID string
	Transcript     []transcript.Message
}
