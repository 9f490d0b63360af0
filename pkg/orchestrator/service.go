package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/aksel/sage/pkg/session"
)

// DefaultSessionKey is used when a caller does not name a session.
const DefaultSessionKey = "default"

// Service hands out one Orchestrator per session key, sharing the
// generator, tool registry, prompt library and observer across all of
// them. Safe for concurrent use.
type Service struct {
	base  Config
	store *session.Store

	mu        sync.Mutex
	instances map[string]*Orchestrator
}

// NewService validates the shared configuration. The Session field of base
// is ignored: sessions are created per key, persisted through store when
// store is non-nil.
func NewService(base Config, store *session.Store) (*Service, error) {
	if base.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if base.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	base.Session = nil

	return &Service{
		base:      base,
		store:     store,
		instances: make(map[string]*Orchestrator),
	}, nil
}

// ForSession returns the orchestrator bound to key, creating it on first
// use. An empty key means DefaultSessionKey.
func (s *Service) ForSession(key string) (*Orchestrator, error) {
	if key == "" {
		key = DefaultSessionKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.instances[key]; ok {
		return o, nil
	}

	sess, err := session.New(key, s.store)
	if err != nil {
		return nil, err
	}

	cfg := s.base
	cfg.Session = sess
	o, err := New(cfg)
	if err != nil {
		return nil, err
	}

	s.instances[key] = o
	return o, nil
}

// RunQuery answers one query within the named session.
func (s *Service) RunQuery(ctx context.Context, sessionKey, query string) (*Result, error) {
	o, err := s.ForSession(sessionKey)
	if err != nil {
		return nil, err
	}
	return o.RunQuery(ctx, query)
}

// History returns the named session's conversation entries.
func (s *Service) History(sessionKey string) ([]session.ConversationEntry, error) {
	o, err := s.ForSession(sessionKey)
	if err != nil {
		return nil, err
	}
	return o.History(), nil
}

// ClearHistory discards the named session's conversation.
func (s *Service) ClearHistory(ctx context.Context, sessionKey string) error {
	o, err := s.ForSession(sessionKey)
	if err != nil {
		return err
	}
	return o.ClearHistory(ctx)
}
