package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrInvalidKey marks session keys that could escape the sessions
// directory or cannot name a file. Callers branch on it with errors.Is.
var ErrInvalidKey = errors.New("invalid session key")

// Store persists conversation entries as one JSONL file per session key.
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// NewStore creates a store rooted at dir, defaulting to ~/.sage/sessions.
func NewStore(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".sage", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	st := &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Session store initialized")
	st.updateActiveSessionsMetric()

	return st, nil
}

// validateKey rejects keys that could escape the sessions directory.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidKey)
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("%w: cannot contain '..'", ErrInvalidKey)
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("%w: cannot contain path separators", ErrInvalidKey)
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("%w: cannot contain null bytes", ErrInvalidKey)
	}
	return nil
}

func (st *Store) sessionPath(key string) string {
	return filepath.Join(st.dir, key+".jsonl")
}

func (st *Store) updateActiveSessionsMetric() {
	keys, err := st.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(keys))
}

func (st *Store) writeLock(key string) *sync.Mutex {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()

	if lock, exists := st.writeLocks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	st.writeLocks[key] = lock
	return lock
}

func (st *Store) releaseWriteLock(key string) {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()
	delete(st.writeLocks, key)
}

// Append writes one entry as a JSON line, creating the file on first use.
func (st *Store) Append(ctx context.Context, key string, entry ConversationEntry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, key)
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.session",
		"session.append",
		attribute.String("session_key", key),
		attribute.String("route", entry.Route),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", key).Logger()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := validateKey(key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if entry.Query == "" {
		return fmt.Errorf("entry query cannot be empty")
	}

	lock := st.writeLock(key)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(st.sessionPath(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write entry: %w", err)
	}

	if err := file.Sync(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to sync file: %w", err)
	}

	st.updateActiveSessionsMetric()

	logger.Debug().
		Str("route", entry.Route).
		Msg("Entry appended")

	return nil
}

// Load reads all entries for a key. A missing file is an empty history.
// Corrupted lines are skipped with a warning.
func (st *Store) Load(ctx context.Context, key string) ([]ConversationEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, key)
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.session",
		"session.load",
		attribute.String("session_key", key),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", key).Logger()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := validateKey(key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	path := st.sessionPath(key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []ConversationEntry{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var entries []ConversationEntry
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if line == "" {
			continue
		}

		var entry ConversationEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logger.Warn().
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse line, skipping")
			continue
		}

		if entry.Query == "" {
			logger.Warn().
				Int("line", lineNum).
				Msg("Invalid entry, skipping")
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	logger.Debug().
		Int("entries", len(entries)).
		Msg("Session loaded")

	return entries, nil
}

// Clear truncates the persisted session to empty. The file is kept so the
// session remains listed.
func (st *Store) Clear(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, key)
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.session",
		"session.clear",
		attribute.String("session_key", key),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", key).Logger()

	if err := validateKey(key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := st.writeLock(key)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(st.sessionPath(key), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to truncate session file: %w", err)
	}
	file.Close()

	logger.Info().Msg("Session cleared")

	return nil
}

// Delete removes the session file entirely.
func (st *Store) Delete(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, key)
	_, span := tracing.StartSpan(
		ctx,
		"sage.session",
		"session.delete",
		attribute.String("session_key", key),
	)
	defer span.End()

	if err := validateKey(key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := st.writeLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(st.sessionPath(key)); err != nil && !os.IsNotExist(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	st.releaseWriteLock(key)
	st.updateActiveSessionsMetric()

	log.Info().Str("session_key", key).Msg("Session deleted")

	return nil
}

// Replace atomically rewrites a session with the given entries.
func (st *Store) Replace(key string, entries []ConversationEntry) error {
	if err := validateKey(key); err != nil {
		return err
	}

	lock := st.writeLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := st.sessionPath(key)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	log.Debug().
		Str("session_key", key).
		Int("entries", len(entries)).
		Msg("Session replaced")

	return nil
}

// List returns the keys of all persisted sessions.
func (st *Store) List() ([]string, error) {
	dirEntries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
	}

	return keys, nil
}

// Info returns metadata about a persisted session.
func (st *Store) Info(key string) (map[string]interface{}, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	info, err := os.Stat(st.sessionPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session does not exist")
		}
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	entries, err := st.Load(context.Background(), key)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"sessionKey":   key,
		"size":         info.Size(),
		"lastModified": info.ModTime(),
		"entryCount":   len(entries),
	}, nil
}
