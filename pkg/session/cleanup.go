package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultCleanupSchedule = "0 3 * * *"
	DefaultMaxEntries      = 500
)

// Cleanup deletes stale session files and prunes oversized ones on a cron
// schedule while the server runs.
type Cleanup struct {
	store      *Store
	retention  time.Duration
	schedule   cron.Schedule
	maxEntries int
	stopCh     chan struct{}
	running    bool
}

// NewCleanup creates a cleanup handler. A zero retention falls back to
// DefaultRetention; an empty expression to DefaultCleanupSchedule.
func NewCleanup(store *Store, retention time.Duration, scheduleExpr string) (*Cleanup, error) {
	if retention == 0 {
		retention = DefaultRetention
	}
	if scheduleExpr == "" {
		scheduleExpr = DefaultCleanupSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
	}

	return &Cleanup{
		store:      store,
		retention:  retention,
		schedule:   schedule,
		maxEntries: DefaultMaxEntries,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins the scheduled cleanup loop.
func (c *Cleanup) Start() error {
	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	c.running = true
	go c.run()

	log.Info().
		Dur("retention", c.retention).
		Msg("Session cleanup started")

	return nil
}

// Stop halts the cleanup loop.
func (c *Cleanup) Stop() error {
	if !c.running {
		return fmt.Errorf("cleanup is not running")
	}

	close(c.stopCh)
	c.running = false

	log.Info().Msg("Session cleanup stopped")

	return nil
}

// IsRunning reports whether the loop is active.
func (c *Cleanup) IsRunning() bool {
	return c.running
}

func (c *Cleanup) run() {
	if err := c.RunOnce(); err != nil {
		log.Error().Err(err).Msg("Failed to clean up sessions")
	}

	for {
		next := c.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			if err := c.RunOnce(); err != nil {
				log.Error().Err(err).Msg("Failed to clean up sessions")
			}
		case <-c.stopCh:
			timer.Stop()
			return
		}
	}
}

// RunOnce prunes oversized sessions and deletes those idle past retention.
func (c *Cleanup) RunOnce() error {
	keys, err := c.store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, key := range keys {
		if err := c.pruneSession(key); err != nil {
			log.Warn().
				Str("session_key", key).
				Err(err).
				Msg("Failed to prune session")
		}

		info, err := c.store.Info(key)
		if err != nil {
			log.Warn().
				Str("session_key", key).
				Err(err).
				Msg("Failed to get session info")
			continue
		}

		lastModified, ok := info["lastModified"].(time.Time)
		if !ok {
			continue
		}

		age := now.Sub(lastModified)
		if age >= c.retention {
			if err := c.store.Delete(context.Background(), key); err != nil {
				log.Error().
					Str("session_key", key).
					Err(err).
					Msg("Failed to delete session")
				continue
			}
			deleted++

			log.Debug().
				Str("session_key", key).
				Dur("age", age).
				Msg("Stale session deleted")
		}
	}

	if deleted > 0 {
		log.Info().
			Int("deleted", deleted).
			Msg("Cleaned up stale sessions")
	}

	return nil
}

func (c *Cleanup) pruneSession(key string) error {
	if c.maxEntries <= 0 {
		return nil
	}

	entries, err := c.store.Load(context.Background(), key)
	if err != nil {
		return err
	}

	if len(entries) <= c.maxEntries {
		return nil
	}

	pruned := entries[len(entries)-c.maxEntries:]
	if err := c.store.Replace(key, pruned); err != nil {
		return err
	}

	log.Debug().
		Str("session_key", key).
		Int("from_entries", len(entries)).
		Int("to_entries", len(pruned)).
		Msg("Session pruned")

	return nil
}

// SetMaxEntries sets the per-session entry cap applied during cleanup.
func (c *Cleanup) SetMaxEntries(maxEntries int) {
	c.maxEntries = maxEntries
}
