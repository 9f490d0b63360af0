// Package tools provides the capabilities the agents can invoke: web
// search, encyclopedia lookup, academic-paper search, code execution,
// and optional page fetching. Every tool answers a plain-text query
// with plain text and converts its own failures into an error string,
// so an invocation never fails past this boundary for service-level
// problems.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tool is a single capability invokable by name.
type Tool interface {
	// Name returns the tool id used in prompts and plans.
	Name() string

	// Description tells the model when to use this tool.
	Description() string

	// Invoke answers a plain-text query. Service failures come back as
	// an error string result, not an error; a returned error means the
	// capability itself misbehaved.
	Invoke(ctx context.Context, query string) (string, error)
}

// Registry maps tool names to capabilities. It is populated once at
// startup and read-only afterwards, so it is safe to share.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Names must be unique after normalization.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is required")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}

	key := Normalize(name)
	if _, exists := r.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[key] = tool
	r.order = append(r.order, name)
	return nil
}

// Resolve looks a tool up by name, tolerating case and whitespace
// differences in model output.
func (r *Registry) Resolve(name string) (Tool, bool) {
	tool, ok := r.tools[Normalize(name)]
	return tool, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// SortedNames returns tool names sorted alphabetically.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Describe renders one "name: description" line per tool for prompt
// interpolation.
func (r *Registry) Describe() string {
	lines := make([]string, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[Normalize(name)]
		lines = append(lines, fmt.Sprintf("%s: %s", tool.Name(), tool.Description()))
	}
	return strings.Join(lines, "\n")
}

// Normalize maps a model-supplied tool name onto a registry key.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

// Options configures the default tool set.
type Options struct {
	HTTPTimeout   time.Duration
	PythonBin     string
	PythonTimeout time.Duration
	WebFetch      WebFetchOptions
}

// WebFetchOptions gates the browser-backed page fetch tool.
type WebFetchOptions struct {
	Enabled bool
	Timeout time.Duration
}

// NewDefaultRegistry builds the standard registry: web_search,
// wikipedia, arxiv, python_repl, and web_fetch when enabled.
func NewDefaultRegistry(opts Options) (*Registry, error) {
	registry := NewRegistry()

	toolset := []Tool{
		NewWebSearch(opts.HTTPTimeout),
		NewWikipedia(opts.HTTPTimeout),
		NewArxiv(opts.HTTPTimeout),
		NewPythonREPL(opts.PythonBin, opts.PythonTimeout),
	}
	if opts.WebFetch.Enabled {
		toolset = append(toolset, NewWebFetch(opts.WebFetch.Timeout))
	}

	for _, tool := range toolset {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("failed to register tool %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}
