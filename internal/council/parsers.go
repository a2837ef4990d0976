package council

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Response text parsers
//
// Council models answer in loosely structured markdown. These parsers are
// total: malformed input degrades to a documented fallback instead of an
// error, so a single sloppy model never aborts a deliberation.
// ═══════════════════════════════════════════════════════════════════════════

var (
	numberedRankRe = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	responseRefRe  = regexp.MustCompile(`Response [A-Z]`)

	revisedAnswerRe = regexp.MustCompile(`(?is)##\s*Revised Response\s*\n(.*)`)

	synthesisHeaderRe = regexp.MustCompile(`(?i)##\s*Synthesis\s*\n`)

	thoughtRe      = regexp.MustCompile(`(?is)Thought:\s*(.+)`)
	actionHeaderRe = regexp.MustCompile(`(?i)\n\s*Action:`)
	actionRe       = regexp.MustCompile(`(?i)Action:\s*(\w+)\s*\(([^)]*)\)`)
)

// ParseRanking extracts ordered response labels from a judge's ranking text.
//
// It prefers the numbered list under a "FINAL RANKING:" header. When the
// header is missing it falls back to collecting every "Response X" mention
// in order, which can over-match labels discussed in prose; callers tolerate
// this because aggregate averaging washes out stray mentions.
func ParseRanking(text string) []string {
	if idx := strings.Index(text, "FINAL RANKING:"); idx >= 0 {
		section := text[idx+len("FINAL RANKING:"):]
		if numbered := numberedRankRe.FindAllString(section, -1); len(numbered) > 0 {
			out := make([]string, len(numbered))
			for i, m := range numbered {
				out[i] = responseRefRe.FindString(m)
			}
			return out
		}
		return responseRefRe.FindAllString(section, -1)
	}
	return responseRefRe.FindAllString(text, -1)
}

// ParseRevisedAnswer extracts the "## Revised Response" section from a
// defense-round response. Returns the full text when the section is absent.
func ParseRevisedAnswer(text string) string {
	if m := revisedAnswerRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ExtractCritiquesFor collects every critique aimed at target from a
// critique round's responses, formatted as attributed markdown blocks.
// Matching keys on the bare model name, lowercased, without the provider
// prefix (everything after the last "/"). Returns a sentinel string when
// nothing matched so prompt templates never interpolate an empty section.
func ExtractCritiquesFor(target string, responses []ModelResponse) string {
	name := target
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	quoted := regexp.QuoteMeta(name)

	headerRe := regexp.MustCompile(`(?i)##\s*Critique of\s*[^\n]*` + quoted + `[^\n]*\n`)
	nextRe := regexp.MustCompile(`(?i)##\s*Critique of`)
	looseHeaderRe := regexp.MustCompile(`(?i)##[^\n]*` + quoted + `[^\n]*\n`)
	looseNextRe := regexp.MustCompile(`##`)

	var critiques []string
	for _, resp := range responses {
		if resp.Model == target {
			continue
		}
		section, ok := sectionAfter(resp.Response, headerRe, nextRe)
		if !ok {
			section, ok = sectionAfter(resp.Response, looseHeaderRe, looseNextRe)
		}
		if ok {
			critiques = append(critiques, fmt.Sprintf("**From %s:**\n%s", resp.Model, section))
		}
	}

	if len(critiques) == 0 {
		return "(No specific critiques were extracted for this model)"
	}
	return strings.Join(critiques, "\n\n")
}

// sectionAfter returns the trimmed text between the first match of header
// and the next match of next (or end of text).
func sectionAfter(text string, header, next *regexp.Regexp) (string, bool) {
	loc := header.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	if end := next.FindStringIndex(body); end != nil {
		body = body[:end[0]]
	}
	return strings.TrimSpace(body), true
}

// SplitReflection splits chairman output at the "## Synthesis" header into
// the deliberation preamble and the final synthesis. Falls back to
// ("", full text) when the header is absent.
func SplitReflection(text string) (reflection, synthesis string) {
	if loc := synthesisHeaderRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[:loc[0]]), strings.TrimSpace(text[loc[1]:])
	}
	return "", text
}

// ReActStep is one parsed Thought/Action turn. Action is empty when the
// output contained no recognized action; Args is empty for the terminal
// actions respond() and synthesize().
type ReActStep struct {
	Thought string
	Action  string
	Args    string
}

// Terminal reasoning actions take no arguments and end the loop.
const (
	ActionSearchWeb  = "search_web"
	ActionRespond    = "respond"
	ActionSynthesize = "synthesize"
)

// ParseReActStep extracts the Thought and Action from a reasoning turn.
// Unrecognized action names yield an empty Action, which the loop treats
// as a malformed turn.
func ParseReActStep(text string) ReActStep {
	var step ReActStep

	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		thought := m[1]
		if loc := actionHeaderRe.FindStringIndex(thought); loc != nil {
			thought = thought[:loc[0]]
		}
		step.Thought = strings.TrimSpace(thought)
	}

	if m := actionRe.FindStringSubmatch(text); m != nil {
		name := strings.ToLower(m[1])
		args := strings.Trim(strings.TrimSpace(m[2]), `"'`)
		switch name {
		case ActionSearchWeb:
			step.Action = ActionSearchWeb
			step.Args = args
		case ActionRespond, ActionSynthesize:
			step.Action = name
		}
	}
	return step
}
