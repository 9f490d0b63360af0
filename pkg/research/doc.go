// Package research implements the planned, multi-step research strategy:
// a Planner that turns a query into an ordered tool plan, a StepExecutor
// that runs one step at a time, a ContinuationPolicy that decides between
// more execution and synthesis, and a Synthesizer that folds the gathered
// findings into one answer. Pipeline wires them into a self-looping graph
// executing exactly one step per tick.
//
// Invariants:
// - A plan is never empty; planning failures yield a single fallback step.
// - Step failures become Findings with success=false, never hard errors.
// - Findings keep the order of their originating steps.
// - Executed steps never exceed the iteration bound.
package research
