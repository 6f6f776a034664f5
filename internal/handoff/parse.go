// Package handoff turns free-form session notes into a structured handoff document.
package handoff

import (
	"regexp"
	"strings"
)

// Section names one bucket of a parsed note.
type Section string

const (
	SectionTask      Section = "task"
	SectionProgress  Section = "progress"
	SectionFiles     Section = "files"
	SectionDecisions Section = "decisions"
	SectionNextSteps Section = "nextSteps"
	SectionOther     Section = "other"
)

// Sections lists every section in render order.
var Sections = []Section{
	SectionTask,
	SectionProgress,
	SectionFiles,
	SectionDecisions,
	SectionNextSteps,
	SectionOther,
}

// Note is the bucketed form of a free-text note. Every field is always present,
// possibly empty.
type Note struct {
	Task      string `json:"task"`
	Progress  string `json:"progress"`
	Files     string `json:"files"`
	Decisions string `json:"decisions"`
	NextSteps string `json:"nextSteps"`
	Other     string `json:"other"`
}

// Get returns the text of one section.
func (n *Note) Get(s Section) string {
	if p := n.field(s); p != nil {
		return *p
	}
	return ""
}

// Set replaces the text of one section.
func (n *Note) Set(s Section, text string) {
	if p := n.field(s); p != nil {
		*p = text
	}
}

// IsEmpty reports whether every section is blank.
func (n *Note) IsEmpty() bool {
	for _, s := range Sections {
		if n.Get(s) != "" {
			return false
		}
	}
	return true
}

func (n *Note) field(s Section) *string {
	switch s {
	case SectionTask:
		return &n.Task
	case SectionProgress:
		return &n.Progress
	case SectionFiles:
		return &n.Files
	case SectionDecisions:
		return &n.Decisions
	case SectionNextSteps:
		return &n.NextSteps
	case SectionOther:
		return &n.Other
	}
	return nil
}

// rule maps keyword sniffing onto a section.
type rule struct {
	section  Section
	keywords []string
	strip    *regexp.Regexp
}

// matches reports whether lower (an already lower-cased line) holds any keyword.
func (r rule) matches(lower string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// rules is evaluated first-match-wins, top to bottom.
var rules = []rule{
	{SectionTask, []string{"task:", "objective:", "goal:"}, regexp.MustCompile(`(?i)task:|objective:|goal:`)},
	{SectionProgress, []string{"progress:", "done:", "completed:"}, regexp.MustCompile(`(?i)progress:|done:|completed:`)},
	{SectionFiles, []string{"file:", "files:", "modified:"}, regexp.MustCompile(`(?i)files?:|modified:`)},
	{SectionDecisions, []string{"decision:", "decided:", "choice:"}, regexp.MustCompile(`(?i)decisions?:|decided:|choice:`)},
	{SectionNextSteps, []string{"next:", "todo:", "next step"}, regexp.MustCompile(`(?i)next:|todo:|next steps?:`)},
}

var bulletPrefix = regexp.MustCompile(`^[•\-*]\s*`)

// Classify returns the section a line switches to, if it carries a keyword.
func Classify(line string) (Section, bool) {
	if r, ok := classify(strings.ToLower(line)); ok {
		return r.section, true
	}
	return "", false
}

func classify(lower string) (rule, bool) {
	for _, r := range rules {
		if r.matches(lower) {
			return r, true
		}
	}
	return rule{}, false
}

// Parse buckets text line by line.
//
// A keyword line switches the current section and contributes its own text
// with the bullet and keyword removed. Other non-blank lines are appended to
// the current section, which starts as "other".
func Parse(text string) Note {
	acc := make(map[Section]*strings.Builder, len(Sections))
	for _, s := range Sections {
		acc[s] = &strings.Builder{}
	}

	current := SectionOther
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if r, ok := classify(strings.ToLower(line)); ok {
			current = r.section
			content := bulletPrefix.ReplaceAllString(line, "")
			content = stripFirst(r.strip, content)
			acc[current].WriteString(strings.TrimSpace(content))
			acc[current].WriteByte('\n')
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		acc[current].WriteString(bulletPrefix.ReplaceAllString(line, ""))
		acc[current].WriteByte('\n')
	}

	var note Note
	for _, s := range Sections {
		note.Set(s, strings.TrimSpace(acc[s].String()))
	}
	return note
}

// stripFirst removes the leftmost match of re from s.
func stripFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}
