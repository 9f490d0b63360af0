package orchestrator

// EventType identifies a progress event emitted while a query runs.
type EventType string

const (
	// EventRouteDecided fires once the router has picked a strategy.
	EventRouteDecided EventType = "query.routed"
	// EventStepExecuted fires once per completed tool step, in execution order.
	EventStepExecuted EventType = "query.step"
	// EventAnswerReady fires when the final answer is available.
	EventAnswerReady EventType = "query.answered"
)

// Event is one progress notification for a running query. Fields beyond
// Type and QueryID are populated per event kind.
type Event struct {
	Type      EventType `json:"type"`
	QueryID   string    `json:"query_id,omitempty"`
	Query     string    `json:"query,omitempty"`
	Route     string    `json:"route,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Step      *Step     `json:"step,omitempty"`
	Answer    string    `json:"answer,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Observer receives progress events for streaming consumers. Notify is
// called synchronously on the query path; implementations that do real
// delivery should hand off quickly.
type Observer interface {
	Notify(event Event)
}
