package handoff

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// TimestampLayout formats the Generated line.
const TimestampLayout = "2006-01-02 15:04:05"

// Meta is the session information printed above the note sections.
type Meta struct {
	ConversationID string
	GeneratedAt    time.Time
	TokensUsed     int
	ContextWindow  int
}

// PercentUsed is the unclamped rounded share of the window used.
func (m Meta) PercentUsed() int {
	if m.ContextWindow <= 0 {
		return 0
	}
	return int(math.Round(float64(m.TokensUsed) / float64(m.ContextWindow) * 100))
}

// heading pairs a section with its rendered title and empty-section text.
type heading struct {
	Section  Section
	Title    string
	Fallback string
}

var headings = []heading{
	{SectionTask, "Current Task", "Not specified"},
	{SectionProgress, "Progress", "No progress noted"},
	{SectionFiles, "Key Files", "No files mentioned"},
	{SectionDecisions, "Decisions Made", "No decisions recorded"},
	{SectionNextSteps, "Next Steps", "No next steps defined"},
	{SectionOther, "Additional Context", "None"},
}

type renderSection struct {
	Title string
	Body  string
}

type templateData struct {
	Generated      string
	ConversationID string
	TokensUsed     string
	ContextWindow  string
	PercentUsed    int
	Sections       []renderSection
}

const handoffTemplate = `## 🧭 Context Handoff
**Generated:** {{ .Generated }}
**Conversation ID:** {{ .ConversationID }}
**Session Usage:** {{ .TokensUsed }} / {{ .ContextWindow }} tokens ({{ .PercentUsed }}% used)

---
{{- range .Sections }}

### {{ .Title }}
{{ .Body }}
{{- end }}

---
*Handoff generated by Context Compass*`

var tmpl = template.Must(template.New("handoff").Parse(handoffTemplate))

// Render writes the handoff document for note.
func Render(w io.Writer, note Note, meta Meta) error {
	data := templateData{
		Generated:      meta.GeneratedAt.Format(TimestampLayout),
		ConversationID: strings.TrimSpace(meta.ConversationID),
		TokensUsed:     humanize.Comma(int64(meta.TokensUsed)),
		ContextWindow:  humanize.Comma(int64(meta.ContextWindow)),
		PercentUsed:    meta.PercentUsed(),
	}
	if data.ConversationID == "" {
		data.ConversationID = "Not specified"
	}
	for _, h := range headings {
		body := note.Get(h.Section)
		if body == "" {
			body = h.Fallback
		}
		data.Sections = append(data.Sections, renderSection{Title: h.Title, Body: body})
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render handoff: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(note Note, meta Meta) (string, error) {
	var b strings.Builder
	if err := Render(&b, note, meta); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Extract reads the section bodies back out of a rendered handoff.
// Fallback text is read as an empty section.
func Extract(doc string) Note {
	byTitle := make(map[string]heading, len(headings))
	for _, h := range headings {
		byTitle[h.Title] = h
	}

	var note Note
	var current *heading
	var body []string
	flush := func() {
		if current == nil {
			return
		}
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text == current.Fallback {
			text = ""
		}
		note.Set(current.Section, text)
		current = nil
		body = nil
	}

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if title, ok := strings.CutPrefix(line, "### "); ok {
			flush()
			if h, known := byTitle[strings.TrimSpace(title)]; known {
				current = &h
			}
			continue
		}
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return note
}

// ResumeInfo locates a previous session for the short resume prompt.
type ResumeInfo struct {
	SessionID  string
	ProjectDir string
	LogsDir    string
}

// DefaultResumeInfo derives the project and log folders from the agent's data
// directory (the parent of the conversations directory).
func DefaultResumeInfo(sessionID, agentDir string) ResumeInfo {
	return ResumeInfo{
		SessionID:  sessionID,
		ProjectDir: filepath.Join(agentDir, "scratch") + string(filepath.Separator),
		LogsDir:    filepath.Join(agentDir, "brain", sessionID, ".system_generated", "logs") + string(filepath.Separator),
	}
}

// ResumePrompt renders the short prompt that points a new session at the
// previous session's logs.
func ResumePrompt(info ResumeInfo) string {
	var b strings.Builder
	b.WriteString("I'm continuing from a previous session that ran low on context.\n\n")
	fmt.Fprintf(&b, "**Previous Session ID:** `%s`\n\n", info.SessionID)
	fmt.Fprintf(&b, "**Project folder:** `%s`\n\n", info.ProjectDir)
	fmt.Fprintf(&b, "**Conversation logs:** `%s`\n\n", info.LogsDir)
	b.WriteString("Read those logs to understand what we were working on, then continue helping me.")
	return b.String()
}
