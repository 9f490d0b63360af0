// Package parser resolves free-form model output into exactly one of
// three variants: a tool action, a final answer, or a parse error.
//
// Raw output frequently carries several structural markers at once
// (a model may emit an action and a final answer in the same block),
// so resolution is by explicit priority rules, not first-match:
//
//  1. A "know the answer" thought together with a final-answer marker
//     always finishes, even when an action marker appears earlier.
//  2. Both markers plus a literal "Observation:" anywhere finishes;
//     the text is a completed trace being re-read, not an instruction.
//  3. Both markers without an observation: the earlier offset wins.
//  4. A single marker resolves to its variant.
//  5. No markers: a "know the answer" thought salvages the trailing
//     text as the answer; otherwise the output is unparseable.
//
// Parse is a pure function and never panics.
package parser

import (
	"regexp"
	"strings"
)

// Kind discriminates the parse variants.
type Kind string

const (
	KindAction      Kind = "action"
	KindFinalAnswer Kind = "final_answer"
	KindParseError  Kind = "parse_error"
)

// Output is the single resolved variant for one generation.
type Output struct {
	Kind    Kind
	Thought string

	// Action fields
	Tool  string
	Input string

	// FinalAnswer field
	Answer string

	// ParseError field
	Reason string

	// Raw preserves the trimmed model text for logging.
	Raw string
}

var (
	finalAnswerRe = regexp.MustCompile(`(?i)Final Answer\s*:\s*(.+?)(?:\n|$)`)
	finalHeadRe   = regexp.MustCompile(`(?i)Final Answer\s*:`)
	actionHeadRe  = regexp.MustCompile(`(?i)Action\s*:\s*`)
	actionInputRe = regexp.MustCompile(`(?i)Action\s*Input\s*:`)
	terminatorRe  = regexp.MustCompile(`(?i)\n(?:Observation|Thought)`)
	knowsAnswerRe = regexp.MustCompile(`(?i)Thought\s*:\s*I\s+(?:now\s+)?know\s+the\s+(?:final\s+)?answer`)
	thoughtHeadRe = regexp.MustCompile(`(?i)Thought\s*:`)
)

type finalMarker struct {
	offset int
	answer string
}

type actionMarker struct {
	offset int
	tool   string
	input  string
}

// Parse resolves text into exactly one variant.
func Parse(text string) Output {
	text = strings.TrimSpace(text)
	out := Output{
		Thought: extractThought(text),
		Raw:     text,
	}

	final := findFinalAnswer(text)
	action := findAction(text)
	knows := knowsAnswerRe.MatchString(text)

	// The model declaring it knows the answer overrides everything.
	if knows && final != nil {
		out.Kind = KindFinalAnswer
		out.Answer = final.answer
		return out
	}

	if action != nil && final != nil {
		// An observation marker means this is a full trace, and the
		// final answer is its conclusion.
		if strings.Contains(text, "Observation:") {
			out.Kind = KindFinalAnswer
			out.Answer = final.answer
			return out
		}

		// Otherwise the marker that appears first wins.
		if action.offset < final.offset {
			out.Kind = KindAction
			out.Tool = action.tool
			out.Input = action.input
			return out
		}
		out.Kind = KindFinalAnswer
		out.Answer = final.answer
		return out
	}

	if final != nil {
		out.Kind = KindFinalAnswer
		out.Answer = final.answer
		return out
	}

	if action != nil {
		out.Kind = KindAction
		out.Tool = action.tool
		out.Input = action.input
		return out
	}

	// No formal marker. If the model said it knows the answer, salvage
	// whatever follows that declaration.
	if knows {
		if answer := fallbackAnswer(text); answer != "" {
			out.Kind = KindFinalAnswer
			out.Answer = answer
			return out
		}
	}

	out.Kind = KindParseError
	out.Reason = "could not parse output"
	return out
}

// findFinalAnswer locates the first final-answer marker and captures
// the rest of its line.
func findFinalAnswer(text string) *finalMarker {
	loc := finalAnswerRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	return &finalMarker{
		offset: loc[0],
		answer: strings.TrimSpace(text[loc[2]:loc[3]]),
	}
}

// findAction locates the first action marker that can be paired with
// an action-input marker. The tool name is the rest of the action
// line; the input runs until the next observation or thought line, or
// the end of the text. An input marker on the action line itself is
// only used when none follows the line.
func findAction(text string) *actionMarker {
	inputLocs := actionInputRe.FindAllStringIndex(text, -1)
	if len(inputLocs) == 0 {
		return nil
	}

	for _, head := range actionHeadRe.FindAllStringIndex(text, -1) {
		contentStart := head[1]
		if contentStart >= len(text) || text[contentStart] == '\n' {
			continue
		}

		lineEnd := len(text)
		if i := strings.IndexByte(text[contentStart:], '\n'); i >= 0 {
			lineEnd = contentStart + i
		}

		// Candidate input markers in resolution order: markers after
		// the action line first (nearest first), then markers inside
		// the line (furthest first, leaving the longest tool name).
		afterLine := [][]int{}
		inLine := [][]int{}
		for _, loc := range inputLocs {
			switch {
			case loc[0] >= lineEnd:
				afterLine = append(afterLine, loc)
			case loc[0] > contentStart:
				inLine = append(inLine, loc)
			}
		}
		candidates := afterLine
		for i := len(inLine) - 1; i >= 0; i-- {
			candidates = append(candidates, inLine[i])
		}

		for _, loc := range candidates {
			if loc[1] >= len(text) {
				continue // nothing after the input marker
			}

			toolEnd := lineEnd
			if loc[0] < lineEnd {
				toolEnd = loc[0]
			}

			inputStart := loc[1]
			for inputStart < len(text) && isSpace(text[inputStart]) {
				inputStart++
			}

			input := text[inputStart:]
			if inputStart < len(text) {
				if t := terminatorRe.FindStringIndex(text[inputStart+1:]); t != nil {
					input = text[inputStart : inputStart+1+t[0]]
				}
			}

			return &actionMarker{
				offset: head[0],
				tool:   strings.TrimSpace(text[contentStart:toolEnd]),
				input:  strings.TrimSpace(input),
			}
		}
	}

	return nil
}

// extractThought captures the text between the first thought marker
// and the next structural marker.
func extractThought(text string) string {
	loc := thoughtHeadRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	start := loc[1]

	end := len(text)
	if a := actionHeadRe.FindStringIndex(text[start:]); a != nil {
		end = start + a[0]
	}
	if f := finalHeadRe.FindStringIndex(text[start:]); f != nil && start+f[0] < end {
		end = start + f[0]
	}

	return strings.TrimSpace(text[start:end])
}

// fallbackAnswer extracts the text trailing the model's declaration
// that it knows the answer.
func fallbackAnswer(text string) string {
	s := text
	if i := strings.LastIndex(s, "know the"); i >= 0 {
		s = s[i+len("know the"):]
	}
	if i := strings.LastIndex(s, "answer"); i >= 0 {
		s = s[i+len("answer"):]
	}
	return strings.TrimSpace(s)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
