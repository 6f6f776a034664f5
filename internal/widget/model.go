// Package widget is the terminal gauge: it polls the sessions API, shows usage
// against the selected context window, collects handoff notes and alerts when
// the window is nearly full.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/boshu2/contextcompass/internal/alert"
	"github.com/boshu2/contextcompass/internal/handoff"
	"github.com/boshu2/contextcompass/internal/history"
	"github.com/boshu2/contextcompass/internal/sessions"
	"github.com/boshu2/contextcompass/internal/state"
	"github.com/boshu2/contextcompass/internal/usage"
)

const (
	// DefaultPollInterval is the fixed session poll cadence.
	DefaultPollInterval = 30 * time.Second

	// ServerDown is shown when the sessions API cannot be reached.
	ServerDown = "Server not running"

	shakeDuration = 500 * time.Millisecond
	shakeFrame    = 50 * time.Millisecond
	noticeFade    = 2 * time.Second
)

// SessionSource fetches the current snapshot. *client.Client satisfies it.
type SessionSource interface {
	Sessions(ctx context.Context) (sessions.Snapshot, error)
}

// StateStore persists widget input. *state.Store satisfies it.
type StateStore interface {
	Load() state.WidgetState
	Save(state.WidgetState) error
}

// HistoryRecorder keeps token history. *history.Recorder satisfies it.
type HistoryRecorder interface {
	Record(history.Sample) (int, error)
}

// Options wires the widget to its collaborators. Only Store is required.
type Options struct {
	Store   StateStore
	Source  SessionSource   // nil disables polling
	History HistoryRecorder // nil skips recording
	Alerter *alert.Alerter
	Chime   alert.Notifier
	Copy    func(text string) bool
	Now     func() time.Time
	Logger  *slog.Logger

	// Context bounds session polls. Defaults to context.Background.
	Context context.Context

	// Project labels recorded history.
	Project string

	// Window is used when the saved state holds none.
	Window int

	// TranscriptDivisor converts a session's estimate into tokens used.
	TranscriptDivisor int

	// AgentDir is the parent of the transcripts directory, used for the
	// resume prompt.
	AgentDir string

	PollInterval time.Duration
}

type field int

const (
	fieldTokens field = iota
	fieldConversation
	fieldNotes
	fieldCount
)

type sessionsMsg struct {
	snap sessions.Snapshot
	err  error
}

type pollTickMsg struct{}

type shakeTickMsg struct{}

type noticeFadeMsg struct{ seq int }

type saveResultMsg struct{ err error }

type copyResultMsg struct {
	ok      bool
	success string
}

type historyMsg struct {
	delta int
	err   error
}

// Model is the widget state. It is mutated only from Update.
type Model struct {
	opts  Options
	saver *saver
	keys  KeyMap
	help  help.Model
	focus field

	tokens       textinput.Model
	conversation textinput.Model
	notes        textarea.Model

	window   int
	position state.Position
	usage    usage.Usage

	minimized    bool
	autoCopied   bool
	shakeFrames  int
	clearPending bool

	active       *sessions.Session
	growth       int
	serverStatus string
	handoff      string
	notice       string
	noticeSeq    int

	width int
}

// New builds a Model from saved state.
func New(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Alerter == nil {
		opts.Alerter = alert.New(alert.WithClock(opts.Now), alert.WithLogger(opts.Logger))
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TranscriptDivisor <= 0 {
		opts.TranscriptDivisor = usage.DefaultTranscriptDivisor
	}
	if opts.Window <= 0 {
		opts.Window = usage.DefaultContextWindow
	}

	tokens := textinput.New()
	tokens.Placeholder = "e.g. 150,000"
	tokens.CharLimit = 20
	tokens.Width = 20

	conversation := textinput.New()
	conversation.Placeholder = "optional"
	conversation.CharLimit = 200
	conversation.Width = 40

	notes := textarea.New()
	notes.Placeholder = "Task: ...\nDone: ...\nFiles: ...\nDecision: ...\nNext: ..."
	notes.ShowLineNumbers = false
	notes.SetWidth(60)
	notes.SetHeight(6)

	saved := opts.Store.Load()
	tokens.SetValue(saved.TokensLeft)
	conversation.SetValue(saved.ConversationID)
	notes.SetValue(saved.Notes)

	window := saved.Window()
	if window <= 0 {
		window = opts.Window
	}

	m := Model{
		opts:         opts,
		saver:        newSaver(opts.Store),
		keys:         DefaultKeyMap,
		help:         help.New(),
		tokens:       tokens,
		conversation: conversation,
		notes:        notes,
		window:       window,
		position:     saved.Position,
		minimized:    saved.Minimized,
	}
	if opts.Source == nil {
		m.serverStatus = "Polling disabled"
	}
	m.tokens.Focus()
	m.usage = usage.ComputeRaw(m.tokens.Value(), m.window)
	return m
}

// Init starts the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.pollCmd())
}

// Usage is the current derived gauge state.
func (m Model) Usage() usage.Usage { return m.usage }

// Handoff is the last generated handoff document.
func (m Model) Handoff() string { return m.handoff }

// State is the persisted form of the current input.
func (m Model) State() state.WidgetState {
	ws := state.WidgetState{
		TokensLeft:     m.tokens.Value(),
		Notes:          m.notes.Value(),
		ConversationID: m.conversation.Value(),
		Minimized:      m.minimized,
		Position:       m.position,
	}
	ws.SetWindow(m.window)
	return ws
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.notes.SetWidth(max(20, min(80, msg.Width-6)))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollTickMsg:
		return m, m.pollCmd()

	case sessionsMsg:
		cmd := m.applySessions(msg)
		return m, tea.Batch(cmd, m.scheduleTick())

	case shakeTickMsg:
		if m.shakeFrames > 0 {
			m.shakeFrames--
		}
		if m.shakeFrames == 0 {
			return m, nil
		}
		return m, shakeTick()

	case noticeFadeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.clearPending = false
		}
		return m, nil

	case saveResultMsg:
		if msg.err != nil {
			m.opts.Logger.Warn("save widget state", "error", msg.err)
		}
		return m, nil

	case copyResultMsg:
		text := msg.success
		if !msg.ok {
			text = "Copy failed"
		}
		cmd := m.setNotice(text)
		return m, cmd

	case historyMsg:
		if msg.err != nil {
			m.opts.Logger.Warn("record history", "error", msg.err)
			return m, nil
		}
		m.growth = msg.delta
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextField):
		cmd := m.setFocus((m.focus + 1) % fieldCount)
		return m, cmd

	case key.Matches(msg, m.keys.PrevField):
		cmd := m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, cmd

	case key.Matches(msg, m.keys.CycleModel):
		m.window = usage.NextModel(m.window).ContextWindow
		cmd := m.recompute()
		return m, tea.Batch(cmd, m.saveCmd())

	case key.Matches(msg, m.keys.Generate):
		m.handoff = m.generateHandoff()
		cmd := m.setNotice("Handoff generated")
		return m, cmd

	case key.Matches(msg, m.keys.Copy):
		if m.handoff == "" {
			m.handoff = m.generateHandoff()
		}
		return m, m.copyCmd(m.handoff, "Copied handoff")

	case key.Matches(msg, m.keys.Resume):
		id := strings.TrimSpace(m.conversation.Value())
		if id == "" && m.active != nil {
			id = m.active.ID
		}
		if id == "" {
			cmd := m.setNotice("No conversation to resume")
			return m, cmd
		}
		prompt := handoff.ResumePrompt(handoff.DefaultResumeInfo(id, m.opts.AgentDir))
		return m, m.copyCmd(prompt, "Copied resume prompt")

	case key.Matches(msg, m.keys.Clear):
		if !m.clearPending {
			cmd := m.setNotice("Press C-x again to clear notes and reset")
			m.clearPending = true
			return m, cmd
		}
		m.clearPending = false
		m.notes.SetValue("")
		m.tokens.SetValue("")
		m.handoff = ""
		cmd := m.recompute()
		notice := m.setNotice("Cleared")
		return m, tea.Batch(cmd, m.saveCmd(), notice)

	case key.Matches(msg, m.keys.Minimize):
		m.minimized = !m.minimized
		return m, m.saveCmd()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.pollCmd()
	}

	return m.updateFocused(msg)
}

// updateFocused forwards msg to the focused input and saves when its value
// changed.
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case fieldTokens:
		before := m.tokens.Value()
		m.tokens, cmd = m.tokens.Update(msg)
		if m.tokens.Value() != before {
			derived := m.recompute()
			return m, tea.Batch(cmd, derived, m.saveCmd())
		}
	case fieldConversation:
		before := m.conversation.Value()
		m.conversation, cmd = m.conversation.Update(msg)
		if m.conversation.Value() != before {
			return m, tea.Batch(cmd, m.saveCmd())
		}
	case fieldNotes:
		before := m.notes.Value()
		m.notes, cmd = m.notes.Update(msg)
		if m.notes.Value() != before {
			return m, tea.Batch(cmd, m.saveCmd())
		}
	}
	return m, cmd
}

func (m *Model) setFocus(f field) tea.Cmd {
	m.focus = f
	m.tokens.Blur()
	m.conversation.Blur()
	m.notes.Blur()
	switch f {
	case fieldConversation:
		return m.conversation.Focus()
	case fieldNotes:
		return m.notes.Focus()
	default:
		return m.tokens.Focus()
	}
}

// recompute refreshes the usage and runs the alert and auto-copy side effects.
func (m *Model) recompute() tea.Cmd {
	m.usage = usage.ComputeRaw(m.tokens.Value(), m.window)

	var cmds []tea.Cmd
	if m.opts.Alerter.Observe(m.usage) {
		m.shakeFrames = int(shakeDuration / shakeFrame)
		cmds = append(cmds, shakeTick(), m.chimeCmd())
	}

	if m.usage.Tier == usage.TierDanger {
		if !m.autoCopied {
			m.autoCopied = true
			m.handoff = m.generateHandoff()
			cmds = append(cmds, m.copyCmd(m.handoff, "Context nearly full: handoff copied"))
		}
	} else {
		m.autoCopied = false
	}
	return tea.Batch(cmds...)
}

// applySessions folds a poll result into the model. A live session overrides
// the typed token count.
func (m *Model) applySessions(msg sessionsMsg) tea.Cmd {
	if msg.err != nil {
		m.opts.Logger.Debug("poll sessions", "error", msg.err)
		m.serverStatus = ServerDown
		return nil
	}
	prev := m.active
	m.active = msg.snap.ActiveSession
	if m.active == nil {
		m.serverStatus = "No active session"
		return nil
	}
	if prev == nil || prev.ID != m.active.ID {
		m.growth = 0
	}

	m.serverStatus = fmt.Sprintf("%s · %s est. tokens · %s",
		m.active.ID, humanize.Comma(int64(m.active.EstimatedTokens)), humanize.RelTime(m.active.Modified, m.opts.Now(), "ago", "from now"))

	derived := usage.FromTranscript(m.active.EstimatedTokens, m.window, m.opts.TranscriptDivisor)
	m.tokens.SetValue(humanize.Comma(int64(derived.TokensLeft)))
	if strings.TrimSpace(m.conversation.Value()) == "" {
		m.conversation.SetValue(m.active.ID)
	}
	return tea.Batch(m.recompute(), m.saveCmd(), m.recordCmd(derived.TokensUsed))
}

func (m Model) generateHandoff() string {
	u := usage.ComputeRaw(m.tokens.Value(), m.window)
	doc, err := handoff.RenderString(handoff.Parse(strings.TrimSpace(m.notes.Value())), handoff.Meta{
		ConversationID: m.conversation.Value(),
		GeneratedAt:    m.opts.Now(),
		TokensUsed:     u.TokensUsed,
		ContextWindow:  m.window,
	})
	if err != nil {
		m.opts.Logger.Warn("render handoff", "error", err)
		return ""
	}
	return doc
}

// copyCmd copies text off the event loop; the clipboard may exec a helper.
func (m Model) copyCmd(text, success string) tea.Cmd {
	copyFn := m.opts.Copy
	if copyFn == nil || text == "" {
		return nil
	}
	return func() tea.Msg {
		return copyResultMsg{ok: copyFn(text), success: success}
	}
}

func (m Model) recordCmd(tokensUsed int) tea.Cmd {
	rec := m.opts.History
	if rec == nil || m.active == nil {
		return nil
	}
	sample := history.Sample{
		SessionID: m.active.ID,
		Tokens:    tokensUsed,
		Project:   m.opts.Project,
		Model:     usage.ModelName(m.window),
	}
	return func() tea.Msg {
		delta, err := rec.Record(sample)
		return historyMsg{delta: delta, err: err}
	}
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.clearPending = false
	seq := m.noticeSeq
	return tea.Tick(noticeFade, func(time.Time) tea.Msg {
		return noticeFadeMsg{seq: seq}
	})
}

func (m Model) pollCmd() tea.Cmd {
	src := m.opts.Source
	if src == nil {
		return nil
	}
	ctx := m.opts.Context
	return func() tea.Msg {
		snap, err := src.Sessions(ctx)
		return sessionsMsg{snap: snap, err: err}
	}
}

func (m Model) scheduleTick() tea.Cmd {
	if m.opts.Source == nil {
		return nil
	}
	return tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (m Model) saveCmd() tea.Cmd {
	return m.saver.cmd(m.State())
}

func (m Model) chimeCmd() tea.Cmd {
	chime := m.opts.Chime
	if chime == nil {
		return nil
	}
	logger := m.opts.Logger
	return func() tea.Msg {
		if err := chime.Notify(); err != nil {
			logger.Warn("alert chime failed", "error", err)
		}
		return nil
	}
}

func shakeTick() tea.Cmd {
	return tea.Tick(shakeFrame, func(time.Time) tea.Msg {
		return shakeTickMsg{}
	})
}

// View renders the widget.
func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("🧭 Context Compass")
	model := dimStyle.Render(fmt.Sprintf("%s · %s tokens", usage.ModelName(m.window), humanize.Comma(int64(m.window))))
	b.WriteString(title + "  " + model + "\n")
	b.WriteString(RenderGauge(m.usage, DefaultGaugeWidth) + "  " + TierStyle(m.usage.Tier).Render(m.usage.Tier.Status()) + "\n")

	if !m.minimized {
		if m.usage.Tier == usage.TierDanger {
			b.WriteString(bannerStyle.Render("⚠ Context nearly full. Generate a handoff now.") + "\n")
		}
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Tokens left   ") + m.tokens.View() + "\n")
		b.WriteString(labelStyle.Render("Conversation  ") + m.conversation.View() + "\n")
		status := m.serverStatus
		if m.growth > 0 {
			status += " · +" + humanize.Comma(int64(m.growth))
		}
		b.WriteString(labelStyle.Render("Session       ") + dimStyle.Render(status) + "\n\n")
		b.WriteString(labelStyle.Render("Notes") + "\n")
		b.WriteString(m.notes.View() + "\n")
		if m.handoff != "" {
			b.WriteString(handoffStyle.Render(m.handoff) + "\n")
		}
	}

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString(m.help.View(m.keys))

	frame := frameStyle
	if m.usage.Tier == usage.TierDanger {
		frame = frame.BorderForeground(tierColors[usage.TierDanger])
	}
	if m.shakeFrames%2 == 1 {
		frame = frame.MarginLeft(2)
	}
	return frame.Render(b.String())
}
