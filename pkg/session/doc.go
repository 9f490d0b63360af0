// Package session holds per-conversation history and its JSONL persistence.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - History windows are copies; callers never see internal slices.
// - Store operations are observable via tracing and metrics.
//
// Usage:
//
//	store, _ := session.NewStore("/tmp/sage/sessions")
//	sess, _ := session.New("default", store)
//	_ = sess.Append(context.Background(), session.NewEntry("hi", "hello", "general", "greeting"))
//	recent := sess.Window(3)
//	_ = recent
package session
