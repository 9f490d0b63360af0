// Package prompts holds the prompt templates driving routing, the
// interpreter loop and the research pipeline, with optional on-disk
// overrides reloaded at runtime.
package prompts

import (
	"strings"
	"sync"
)

// Template names resolvable through a Library.
const (
	NameReact     = "react"
	NameRouting   = "routing"
	NamePlanning  = "planning"
	NameSynthesis = "synthesis"
	NameIteration = "iteration"
	NameJSON      = "json"
)

// Placeholders use {name} syntax so override files stay plain text.
const reactTemplate = `Answer the following question using the available tools when helpful.

Question: {input}

You have access to the following tools:
{tools}

IMPORTANT: You must follow this EXACT format. Do not deviate!

Use the following format:
Thought: Consider what information or calculation is needed
Action: the action to take, should be one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original question

Rules:
1. NEVER output both an Action and Final Answer in the same response
2. If you need to use a tool, output ONLY Thought, Action, and Action Input
3. Wait for the Observation before providing Final Answer
4. When you have the result, output ONLY Thought and Final Answer

Begin!

Question: {input}
Thought: {scratchpad}`

const routingTemplate = `You are a supervisor agent that routes user queries to the appropriate specialized agent.

Available agents:
1. **general** - For straightforward questions, calculations, simple web searches, and quick tasks
   - Has tools: Python REPL, Web Search
   - Best for: Math, simple facts, current events, quick lookups

2. **research** - For complex research requiring planning, multiple sources, and synthesis
   - Has tools: Wikipedia, ArXiv, Web Search, Python REPL
   - Best for: Academic research, in-depth analysis, multi-step investigations

User Query: {query}

Analyze the query and determine which agent would be best suited to handle it.
Consider:
- Query complexity
- Need for multiple sources
- Requirement for planning/iteration
- Type of information needed

Route to "general" for simple, direct questions.
Route to "research" for complex queries requiring comprehensive investigation.`

const planningTemplate = `You are a research planning agent. Create a comprehensive research plan for the given query.

Available tools:
- wikipedia: Search Wikipedia for encyclopedic knowledge
- arxiv: Search ArXiv for research papers and academic content
- web_search: Search the web for current information
- python_repl: Execute Python code for calculations and data analysis

User Query: {query}

Create a step-by-step research plan that:
1. Breaks down the query into specific research questions
2. Identifies which tools to use for each question
3. Determines the order of operations
4. Plans for synthesis of findings

IMPORTANT:
- For queries about research papers, ALWAYS use arxiv tool
- For queries about datasets, ALWAYS use web_search tool
- Use multiple tools to get comprehensive coverage
- Be specific in your search queries

Output a plan in JSON format like this:
{
    "plan": [
        {
            "step": 1,
            "action": "Search for recent papers on the topic",
            "tool": "arxiv",
            "query": "specific search query here"
        },
        {
            "step": 2,
            "action": "Find relevant datasets",
            "tool": "web_search",
            "query": "specific dataset search query"
        }
    ]
}`

const synthesisTemplate = `You are synthesizing research findings into a comprehensive response.

Original Query: {query}

Research Findings:
{findings}

Create a well-structured, comprehensive response that:
1. Directly answers the user's query
2. Integrates information from all sources
3. Highlights key insights and conclusions
4. Acknowledges any limitations or gaps in the research
5. Provides proper context and explanations

Be thorough but clear and well-organized.`

const iterationTemplate = `Based on the current research progress, determine if more investigation is needed.

Query: {query}
Steps completed: {completed_steps}
Findings so far: {findings}
Remaining plan: {remaining_plan}

Decide whether to:
1. Continue with the remaining plan
2. Modify the plan based on findings
3. Conclude the research and synthesize results

Consider if the findings adequately address the query.`

const jsonTemplate = `{prompt}

You MUST respond with valid JSON that exactly matches this schema:
{schema}

Important rules:
1. Output ONLY valid JSON, no other text before or after
2. Follow the schema structure exactly
3. Use proper JSON syntax (double quotes for strings, no trailing commas)
4. If uncertain about a value, use null rather than making something up
5. Do not wrap the JSON in markdown code blocks

JSON Response:`

var defaults = map[string]string{
	NameReact:     reactTemplate,
	NameRouting:   routingTemplate,
	NamePlanning:  planningTemplate,
	NameSynthesis: synthesisTemplate,
	NameIteration: iterationTemplate,
	NameJSON:      jsonTemplate,
}

// Library resolves named templates to their default text or an override
// loaded from disk. The zero value is not usable; call NewLibrary.
type Library struct {
	mu        sync.RWMutex
	overrides map[string]string
	watcher   *Watcher
}

// NewLibrary creates a library serving the built-in templates.
func NewLibrary() *Library {
	return &Library{
		overrides: make(map[string]string),
	}
}

// Get returns the template text for name, empty string when unknown.
func (l *Library) Get(name string) string {
	l.mu.RLock()
	if text, ok := l.overrides[name]; ok {
		l.mu.RUnlock()
		return text
	}
	l.mu.RUnlock()
	return defaults[name]
}

// Render resolves name and substitutes {key} placeholders from vars.
func (l *Library) Render(name string, vars map[string]string) string {
	text := l.Get(name)
	if len(vars) == 0 {
		return text
	}

	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// SetOverride replaces the template for name until cleared.
func (l *Library) SetOverride(name, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[name] = text
}

// ClearOverride removes the override for name.
func (l *Library) ClearOverride(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.overrides, name)
}

// Names returns the known template names.
func Names() []string {
	return []string{NameReact, NameRouting, NamePlanning, NameSynthesis, NameIteration, NameJSON}
}

func isKnownName(name string) bool {
	_, ok := defaults[name]
	return ok
}
