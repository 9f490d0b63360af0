package research

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PlanStep is one unit of a research plan. Tool and Query are non-empty on
// every step a Planner returns.
type PlanStep struct {
	ID     string `json:"id"`
	Index  int    `json:"index"`
	Action string `json:"action"`
	Tool   string `json:"tool"`
	Query  string `json:"query"`
}

// NewPlanStep builds a step with a fresh id.
func NewPlanStep(index int, action, tool, query string) PlanStep {
	id, _ := gonanoid.New()
	return PlanStep{
		ID:     id,
		Index:  index,
		Action: action,
		Tool:   tool,
		Query:  query,
	}
}

// Finding is the immutable outcome of executing one step.
type Finding struct {
	Step    PlanStep `json:"step"`
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Error   string   `json:"error,omitempty"`
}
