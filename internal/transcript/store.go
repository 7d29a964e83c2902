package transcript

import (
	"slices"
	"strings"
	"sync"
)

// PendingID keys the messages of a chat that has not been promoted to a
// conversation yet.
const PendingID = ""

// Store keeps every conversation's ordered messages together with the
// conversation index (newest first). The two are updated under one lock so a
// reader never sees an index entry without its messages or the reverse.
type Store struct {
	mu       sync.RWMutex
	messages map[string][]Message
	index    []Conversation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{messages: make(map[string][]Message)}
}

// Append adds msg to the tail of the conversation, creating the list if needed.
func (s *Store) Append(conversationID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
}

// ReplaceAll installs msgs as the complete transcript of a conversation.
func (s *Store) ReplaceAll(conversationID string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = slices.Clone(msgs)
}

// Messages returns a copy of the conversation's transcript.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[conversationID])
}

// Discard drops the messages stored under id without touching the index.
// It is meant for the pending slot.
func (s *Store) Discard(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationID)
}

// Has reports whether id is in the conversation index.
func (s *Store) Has(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position(conversationID) >= 0
}

func (s *Store) position(conversationID string) int {
	return slices.IndexFunc(s.index, func(c Conversation) bool { return c.ID == conversationID })
}

// Conversation returns the index entry for id.
func (s *Store) Conversation(conversationID string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.position(conversationID); i >= 0 {
		return s.index[i], true
	}
	return Conversation{}, false
}

// Conversations returns the index, newest first.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.index)
}

// Filter returns the index entries whose title contains query, ignoring case.
func (s *Store) Filter(query string) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	out := make([]Conversation, 0, len(s.index))
	for _, c := range s.index {
		if strings.Contains(strings.ToLower(c.Title), q) {
			out = append(out, c)
		}
	}
	return out
}

// Insert puts conv at the head of the index and makes sure it has a message
// list. It returns false, changing nothing, when the id is already indexed.
func (s *Store) Insert(conv Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(conv)
}

func (s *Store) insertLocked(conv Conversation) bool {
	if s.position(conv.ID) >= 0 {
		return false
	}
	s.index = slices.Insert(s.index, 0, conv)
	if _, ok := s.messages[conv.ID]; !ok {
		s.messages[conv.ID] = []Message{}
	}
	return true
}

// Promote moves the messages held under fromID onto conv.ID and indexes conv
// at the head. When conv.ID is already indexed the messages are appended to
// it and the existing entry is kept as is.
func (s *Store) Promote(fromID string, conv Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := s.messages[fromID]
	delete(s.messages, fromID)
	s.insertLocked(conv)
	s.messages[conv.ID] = append(s.messages[conv.ID], moved...)
}

// Rename sets the title of id to the normalized title and returns it.
func (s *Store) Rename(conversationID, title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.position(conversationID)
	if i < 0 {
		return "", false
	}
	s.index[i].Title = NormalizeTitle(title)
	return s.index[i].Title, true
}

// Remove deletes the index entry and the messages of id together.
func (s *Store) Remove(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.position(conversationID)
	if i < 0 {
		return false
	}
	s.index = slices.Delete(s.index, i, i+1)
	delete(s.messages, conversationID)
	return true
}

// Reset forgets every conversation and message, the pending slot included.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string][]Message)
	s.index = nil
}

// Install merges a batch of fetched conversations. Each transcript replaces
// the local one wholesale. Entries already indexed keep their position and
// title but take the new activity label; the others are appended in the
// given order, after everything created locally.
func (s *Store) Install(convs []Conversation, msgs map[string][]Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range convs {
		s.messages[conv.ID] = slices.Clone(msgs[conv.ID])
		if i := s.position(conv.ID); i >= 0 {
			s.index[i].LastActivityLabel = conv.LastActivityLabel
			continue
		}
		s.index = append(s.index, conv)
	}
}

// Export returns deep copies of the message map and the index.
func (s *Store) Export() (map[string][]Message, []Conversation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make(map[string][]Message, len(s.messages))
	for id, list := range s.messages {
		msgs[id] = slices.Clone(list)
	}
	return msgs, slices.Clone(s.index)
}
