package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ConversationEntry is one completed query/answer turn.
type ConversationEntry struct {
	Timestamp string `json:"timestamp"`
	Query     string `json:"query"`
	Response  string `json:"response"`
	Route     string `json:"route"`
	Reasoning string `json:"reasoning"`
}

// NewEntry builds an entry stamped with the current wall-clock time.
func NewEntry(query, response, route, reasoning string) ConversationEntry {
	return ConversationEntry{
		Timestamp: time.Now().Format("15:04:05"),
		Query:     query,
		Response:  response,
		Route:     route,
		Reasoning: reasoning,
	}
}

// Session is the windowed conversation history for one session key. When
// backed by a Store, appends are persisted and construction loads whatever
// history the store already holds.
type Session struct {
	key   string
	store *Store

	mu      sync.RWMutex
	entries []ConversationEntry
}

// New creates a session. A nil store keeps history in memory only.
func New(key string, store *Store) (*Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s := &Session{key: key, store: store}

	if store != nil {
		entries, err := store.Load(context.Background(), key)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", key, err)
		}
		s.entries = entries
	}

	return s, nil
}

// Key returns the session key.
func (s *Session) Key() string {
	return s.key
}

// Append records a completed turn, persisting it when a store is attached.
func (s *Session) Append(ctx context.Context, entry ConversationEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().Format("15:04:05")
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Append(ctx, s.key, entry); err != nil {
			return err
		}
	}

	return nil
}

// History returns a copy of all entries in insertion order.
func (s *Session) History() []ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConversationEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Window returns a copy of the last n entries. n <= 0 returns an empty slice.
func (s *Session) Window(n int) []ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return []ConversationEntry{}
	}
	start := len(s.entries) - n
	if start < 0 {
		start = 0
	}

	out := make([]ConversationEntry, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out
}

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops the in-memory history and truncates the persisted session.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	if s.store != nil {
		return s.store.Clear(ctx, s.key)
	}
	return nil
}

// Summary renders the history as a numbered transcript with truncated
// answers, suitable for terminal display.
func (s *Session) Summary() string {
	entries := s.History()

	if len(entries) == 0 {
		return "No conversation history yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation History (%d interactions)\n", len(entries))
	b.WriteString(strings.Repeat("=", 80) + "\n")

	for i, entry := range entries {
		response := entry.Response
		if len(response) > 200 {
			response = response[:200] + "..."
		}
		fmt.Fprintf(&b, "\n#%d [%s]\n", i+1, entry.Timestamp)
		fmt.Fprintf(&b, "Q: %s\n", entry.Query)
		fmt.Fprintf(&b, "Route: %s (Reason: %s)\n", entry.Route, entry.Reasoning)
		fmt.Fprintf(&b, "A: %s\n", response)
		b.WriteString(strings.Repeat("-", 80))
	}

	return b.String()
}
