package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultName = "User"

// Identity holds the profile fields shown next to the user's messages.
type Identity struct {
	Name  string
	Email string
}

// Initials returns up to two upper-cased initials of the name, or "U".
func (i Identity) Initials() string {
	var initials []rune
	for _, word := range strings.Fields(i.Name) {
		r, _ := utf8.DecodeRuneInString(word)
		initials = append(initials, unicode.ToUpper(r))
		if len(initials) == 2 {
			break
		}
	}
	if len(initials) == 0 {
		return "U"
	}
	return string(initials)
}

// Gate hands out the session token and reacts when the service rejects it.
type Gate struct {
	store    *Store
	redirect func()
}

// NewGate returns a Gate over store. redirect is called after a rejected
// token has been cleared; it may be nil.
func NewGate(store *Store, redirect func()) *Gate {
	return &Gate{store: store, redirect: redirect}
}

// Token returns the current bearer token, or "".
func (g *Gate) Token() string {
	return g.store.Token()
}

// Reject clears the stored credentials and asks the user to sign in again.
func (g *Gate) Reject() {
	if err := g.store.ClearTokens(); err != nil {
		g.store.log.Error("failed to clear rejected credentials", "error", err)
	}
	g.store.log.Warn("session token rejected; sign-in required")
	if g.redirect != nil {
		g.redirect()
	}
}
