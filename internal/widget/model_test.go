package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/contextcompass/internal/alert"
	"github.com/boshu2/contextcompass/internal/history"
	"github.com/boshu2/contextcompass/internal/sessions"
	"github.com/boshu2/contextcompass/internal/state"
	"github.com/boshu2/contextcompass/internal/usage"
)

type fakeStore struct {
	loaded state.WidgetState

	mu    sync.Mutex
	saved []state.WidgetState
}

func (f *fakeStore) Load() state.WidgetState { return f.loaded }

func (f *fakeStore) Save(ws state.WidgetState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, ws)
	return nil
}

func (f *fakeStore) last() state.WidgetState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return state.WidgetState{}
	}
	return f.saved[len(f.saved)-1]
}

type fakeSource struct {
	snap sessions.Snapshot
	err  error
}

func (f fakeSource) Sessions(context.Context) (sessions.Snapshot, error) {
	return f.snap, f.err
}

type copier struct {
	texts []string
	fail  bool
}

func (c *copier) Copy(text string) bool {
	c.texts = append(c.texts, text)
	return !c.fail
}

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T, saved state.WidgetState) (Model, *fakeStore, *copier) {
	t.Helper()
	store := &fakeStore{loaded: saved}
	cp := &copier{}
	m := New(Options{
		Store:    store,
		Copy:     cp.Copy,
		Now:      func() time.Time { return fixedNow },
		Window:   1_000_000,
		AgentDir: "/home/dev/.gemini/antigravity",
	})
	return m, store, cp
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	return out, cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return settle(t, m, cmd)
}

// collect runs cmd, expanding batches, and keeps the messages that arrive
// promptly. Ticks are left running in the background.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		if batch, ok := msg.(tea.BatchMsg); ok {
			var out []tea.Msg
			for _, c := range batch {
				out = append(out, collect(c)...)
			}
			return out
		}
		return []tea.Msg{msg}
	case <-time.After(20 * time.Millisecond):
		return nil
	}
}

// settle runs the side effects in cmd and feeds their results back into m.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for _, msg := range collect(cmd) {
		switch msg.(type) {
		case copyResultMsg, historyMsg:
			m, _ = update(t, m, msg)
		}
	}
	return m
}

func ctrl(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func TestNew_RestoresSavedState(t *testing.T) {
	saved := state.WidgetState{
		TokensLeft:     "150,000",
		ContextWindow:  "200000",
		Notes:          "Task: ship it",
		ConversationID: "abc",
		Minimized:      true,
		Position:       state.Position{Left: "10px", Top: "20px"},
	}
	m, _, _ := newTestModel(t, saved)

	assert.Equal(t, 200_000, m.window)
	assert.Equal(t, 25, m.Usage().PercentUsed)
	assert.Equal(t, usage.TierNormal, m.Usage().Tier)
	assert.True(t, m.minimized)
	assert.Equal(t, saved, m.State())
}

func TestNew_FallsBackToOptionWindow(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{ContextWindow: "junk"})
	assert.Equal(t, 1_000_000, m.window)
	assert.Equal(t, 0, m.Usage().PercentUsed)
}

func TestUpdate_TypingRecomputesAndSaves(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("400000")})
	require.NotNil(t, cmd)

	assert.Equal(t, "400000", m.tokens.Value())
	assert.Equal(t, 60, m.Usage().PercentUsed)
	assert.Equal(t, usage.TierWarning, m.Usage().Tier)
	assert.Equal(t, "400000", m.State().TokensLeft)
}

func TestUpdate_DangerAlertsAndAutoCopiesOnce(t *testing.T) {
	m, _, cp := newTestModel(t, state.WidgetState{})

	m = typeText(t, m, "50000")
	assert.Equal(t, usage.TierDanger, m.Usage().Tier)
	assert.Equal(t, 10, m.shakeFrames)
	require.Len(t, cp.texts, 1)
	assert.Contains(t, cp.texts[0], "## 🧭 Context Handoff")
	assert.Contains(t, cp.texts[0], "(95% used)")
	assert.Equal(t, "Context nearly full: handoff copied", m.notice)

	// still in DANGER: no second copy, and the alert is inside its cooldown
	m.shakeFrames = 0
	m.tokens.SetValue("10000")
	cmd := m.recompute()
	m = settle(t, m, cmd)
	assert.Equal(t, usage.TierDanger, m.Usage().Tier)
	assert.Len(t, cp.texts, 1)
	assert.Zero(t, m.shakeFrames)

	// leaving DANGER re-arms the auto-copy
	m.tokens.SetValue("900000")
	cmd = m.recompute()
	m = settle(t, m, cmd)
	assert.False(t, m.autoCopied)

	m.tokens.SetValue("20000")
	cmd = m.recompute()
	m = settle(t, m, cmd)
	assert.Len(t, cp.texts, 2)
	assert.Zero(t, m.shakeFrames, "alert should still be cooling down")
}

func TestUpdate_NoAlertWithoutTokensLeft(t *testing.T) {
	m, _, cp := newTestModel(t, state.WidgetState{})
	m = typeText(t, m, "0")
	assert.Equal(t, 0, m.Usage().PercentUsed)
	assert.Zero(t, m.shakeFrames)
	assert.Empty(t, cp.texts)
}

func TestUpdate_AlertChime(t *testing.T) {
	rang := 0
	m := New(Options{
		Store: &fakeStore{},
		Chime: alert.NotifierFunc(func() error {
			rang++
			return nil
		}),
	})

	cmd := m.chimeCmd()
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	assert.Equal(t, 1, rang)
}

func TestUpdate_CycleModel(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{TokensLeft: "100000"})

	m, _ = update(t, m, ctrl(tea.KeyCtrlW))
	assert.Equal(t, 2_000_000, m.window)
	assert.Equal(t, "2000000", m.State().ContextWindow)
	assert.Equal(t, 95, m.Usage().PercentUsed)

	m, _ = update(t, m, ctrl(tea.KeyCtrlW))
	assert.Equal(t, 200_000, m.window)
}

func TestUpdate_FocusCycles(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})
	assert.Equal(t, fieldTokens, m.focus)

	m, _ = update(t, m, ctrl(tea.KeyTab))
	assert.Equal(t, fieldConversation, m.focus)
	m = typeText(t, m, "conv-1")
	assert.Equal(t, "conv-1", m.conversation.Value())
	assert.Empty(t, m.tokens.Value())

	m, _ = update(t, m, ctrl(tea.KeyTab))
	assert.Equal(t, fieldNotes, m.focus)
	m = typeText(t, m, "Next: docs")
	assert.Equal(t, "Next: docs", m.notes.Value())

	m, _ = update(t, m, ctrl(tea.KeyTab))
	assert.Equal(t, fieldTokens, m.focus)

	m, _ = update(t, m, ctrl(tea.KeyShiftTab))
	assert.Equal(t, fieldNotes, m.focus)
}

func TestUpdate_GenerateAndCopyHandoff(t *testing.T) {
	m, _, cp := newTestModel(t, state.WidgetState{
		TokensLeft:     "600,000",
		ConversationID: "conv-9",
		Notes:          "Task: ship widget\nNext: docs",
	})

	m, _ = update(t, m, ctrl(tea.KeyCtrlG))
	doc := m.Handoff()
	assert.Contains(t, doc, "**Conversation ID:** conv-9")
	assert.Contains(t, doc, "**Generated:** 2026-10-18 09:00:00")
	assert.Contains(t, doc, "400,000 / 1,000,000 tokens (40% used)")
	assert.Contains(t, doc, "### Current Task\nship widget")
	assert.Contains(t, doc, "### Next Steps\ndocs")
	assert.Empty(t, cp.texts)

	m, cmd := update(t, m, ctrl(tea.KeyCtrlY))
	assert.Empty(t, cp.texts, "copy runs as a command, not inside Update")
	m = settle(t, m, cmd)
	require.Len(t, cp.texts, 1)
	assert.Equal(t, doc, cp.texts[0])
	assert.Equal(t, "Copied handoff", m.notice)
}

func TestUpdate_CopyFailureNotice(t *testing.T) {
	m, _, cp := newTestModel(t, state.WidgetState{Notes: "Task: x"})
	cp.fail = true

	m, cmd := update(t, m, ctrl(tea.KeyCtrlY))
	assert.NotEmpty(t, m.Handoff(), "copy generates a handoff when none exists")
	m = settle(t, m, cmd)
	assert.Equal(t, "Copy failed", m.notice)
}

func TestUpdate_ResumePrompt(t *testing.T) {
	m, _, cp := newTestModel(t, state.WidgetState{})

	m, _ = update(t, m, ctrl(tea.KeyCtrlR))
	assert.Equal(t, "No conversation to resume", m.notice)
	assert.Empty(t, cp.texts)

	m.conversation.SetValue("abc-123")
	m, cmd := update(t, m, ctrl(tea.KeyCtrlR))
	m = settle(t, m, cmd)
	require.Len(t, cp.texts, 1)
	assert.Contains(t, cp.texts[0], "`abc-123`")
	assert.Contains(t, cp.texts[0], "brain")
	assert.Equal(t, "Copied resume prompt", m.notice)
}

func TestUpdate_ClearNeedsConfirmation(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{TokensLeft: "100", Notes: "Task: keep"})

	m, _ = update(t, m, ctrl(tea.KeyCtrlX))
	assert.True(t, m.clearPending)
	assert.Equal(t, "Task: keep", m.notes.Value())

	m, _ = update(t, m, ctrl(tea.KeyCtrlX))
	assert.False(t, m.clearPending)
	assert.Empty(t, m.notes.Value())
	assert.Empty(t, m.tokens.Value())
	assert.Equal(t, "Cleared", m.notice)
}

func TestUpdate_ClearExpiresWithNotice(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{Notes: "Task: keep"})

	m, _ = update(t, m, ctrl(tea.KeyCtrlX))
	m, _ = update(t, m, noticeFadeMsg{seq: m.noticeSeq})
	assert.False(t, m.clearPending)
	assert.Empty(t, m.notice)

	m, _ = update(t, m, ctrl(tea.KeyCtrlX))
	assert.Equal(t, "Task: keep", m.notes.Value())
}

func TestUpdate_StaleNoticeFadeIgnored(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})
	m, _ = update(t, m, ctrl(tea.KeyCtrlR))
	stale := m.noticeSeq
	m, _ = update(t, m, ctrl(tea.KeyCtrlG))

	m, _ = update(t, m, noticeFadeMsg{seq: stale})
	assert.Equal(t, "Handoff generated", m.notice)
}

func TestUpdate_MinimizeToggles(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})

	m, cmd := update(t, m, ctrl(tea.KeyCtrlN))
	assert.True(t, m.minimized)
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, saveResultMsg{}, msg)
	assert.NotContains(t, m.View(), "Notes")

	m, _ = update(t, m, ctrl(tea.KeyCtrlN))
	assert.False(t, m.minimized)
	assert.Contains(t, m.View(), "Notes")
}

func TestUpdate_SaveCmdPersistsState(t *testing.T) {
	m, store, _ := newTestModel(t, state.WidgetState{})
	m.tokens.SetValue("12,345")
	m.notes.SetValue("Done: x")

	msg := m.saveCmd()()
	assert.Equal(t, saveResultMsg{}, msg)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "12,345", store.saved[0].TokensLeft)
	assert.Equal(t, "Done: x", store.saved[0].Notes)
	assert.Equal(t, "1000000", store.saved[0].ContextWindow)
}

func TestUpdate_SessionsFillTokensAndConversation(t *testing.T) {
	m, _, cp := newTestModel(t, state.WidgetState{})
	snap := sessions.Snapshot{
		ActiveSession: &sessions.Session{
			ID:              "sess-1",
			Modified:        fixedNow.Add(-time.Minute),
			EstimatedTokens: 9_500_000,
		},
	}

	m, cmd := update(t, m, sessionsMsg{snap: snap})
	require.NotNil(t, cmd)
	m = settle(t, m, cmd)
	assert.Equal(t, "50,000", m.tokens.Value())
	assert.Equal(t, "sess-1", m.conversation.Value())
	assert.Equal(t, usage.TierDanger, m.Usage().Tier)
	assert.Contains(t, m.serverStatus, "sess-1")
	assert.Contains(t, m.serverStatus, "9,500,000")
	assert.Len(t, cp.texts, 1)
}

func TestUpdate_SessionsKeepTypedConversation(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{ConversationID: "mine"})
	snap := sessions.Snapshot{ActiveSession: &sessions.Session{ID: "sess-2", EstimatedTokens: 100}}

	m, _ = update(t, m, sessionsMsg{snap: snap})
	assert.Equal(t, "mine", m.conversation.Value())
}

func TestUpdate_SessionsErrorAndEmpty(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{TokensLeft: "700000"})
	m.opts.Source = fakeSource{}

	m, cmd := update(t, m, sessionsMsg{err: errors.New("connection refused")})
	assert.Equal(t, ServerDown, m.serverStatus)
	assert.Equal(t, "700000", m.tokens.Value())
	assert.NotNil(t, cmd, "poll is rescheduled after a failure")

	m, _ = update(t, m, sessionsMsg{snap: sessions.Snapshot{}})
	assert.Equal(t, "No active session", m.serverStatus)
}

func TestUpdate_NewestStateWinsOverSlowSave(t *testing.T) {
	m, store, _ := newTestModel(t, state.WidgetState{})

	m, first := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	m, second := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	require.Equal(t, "12", m.tokens.Value())

	// the later keystroke's save lands first
	collect(second)
	collect(first)
	assert.Equal(t, "12", store.last().TokensLeft)
}

// gatedStore blocks the first Save until release is closed.
type gatedStore struct {
	fakeStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Save(ws state.WidgetState) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeStore.Save(ws)
}

func TestSaver_SlowEarlierSaveDoesNotOverwrite(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	s := newSaver(store)
	older := s.cmd(state.WidgetState{TokensLeft: "1"})
	newer := s.cmd(state.WidgetState{TokensLeft: "12"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); older() }()
	<-store.entered
	go func() { defer wg.Done(); newer() }()
	close(store.release)
	wg.Wait()

	assert.Equal(t, "12", store.last().TokensLeft)
}

func TestSaver_StaleSaveDropped(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(store)
	older := s.cmd(state.WidgetState{TokensLeft: "1"})
	newer := s.cmd(state.WidgetState{TokensLeft: "12"})

	assert.Equal(t, saveResultMsg{}, newer())
	assert.Equal(t, saveResultMsg{}, older())
	require.Len(t, store.saved, 1)
	assert.Equal(t, "12", store.saved[0].TokensLeft)
}

type fakeRecorder struct {
	samples []history.Sample
	delta   int
	err     error
}

func (f *fakeRecorder) Record(s history.Sample) (int, error) {
	f.samples = append(f.samples, s)
	return f.delta, f.err
}

func TestUpdate_SessionsRecordHistory(t *testing.T) {
	rec := &fakeRecorder{delta: 1_200}
	m := New(Options{
		Store:   &fakeStore{},
		History: rec,
		Project: "compass",
		Now:     func() time.Time { return fixedNow },
		Window:  1_000_000,
	})
	snap := sessions.Snapshot{ActiveSession: &sessions.Session{ID: "sess-1", EstimatedTokens: 2_000_000}}

	m, cmd := update(t, m, sessionsMsg{snap: snap})
	m = settle(t, m, cmd)

	require.Len(t, rec.samples, 1)
	assert.Equal(t, history.Sample{
		SessionID: "sess-1",
		Tokens:    200_000,
		Project:   "compass",
		Model:     usage.ModelName(1_000_000),
	}, rec.samples[0])
	assert.Equal(t, 1_200, m.growth)
	assert.Contains(t, m.View(), "+1,200")

	// a different session starts from zero growth
	m, _ = update(t, m, sessionsMsg{snap: sessions.Snapshot{ActiveSession: &sessions.Session{ID: "sess-2"}}})
	assert.Zero(t, m.growth)
}

func TestUpdate_HistoryErrorKeepsGrowth(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})
	m.growth = 5
	m, _ = update(t, m, historyMsg{err: errors.New("disk full")})
	assert.Equal(t, 5, m.growth)
}

type blockingSource struct{}

func (blockingSource) Sessions(ctx context.Context) (sessions.Snapshot, error) {
	<-ctx.Done()
	return sessions.Snapshot{}, ctx.Err()
}

func TestPollCmd_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(Options{Store: &fakeStore{}, Source: blockingSource{}, Context: ctx})

	done := make(chan tea.Msg, 1)
	go func() { done <- m.pollCmd()() }()
	cancel()

	select {
	case msg := <-done:
		got, ok := msg.(sessionsMsg)
		require.True(t, ok, "pollCmd returned %T", msg)
		assert.ErrorIs(t, got.err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll ignored cancellation")
	}
}

func TestPollCmd(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})
	assert.Nil(t, m.pollCmd(), "no source means no polling")
	assert.Equal(t, "Polling disabled", m.serverStatus)

	want := sessions.Snapshot{Timestamp: "t", ActiveSession: &sessions.Session{ID: "x"}}
	m.opts.Source = fakeSource{snap: want}
	msg := m.pollCmd()()
	assert.Equal(t, sessionsMsg{snap: want}, msg)
}

func TestUpdate_ShakeRunsDown(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})
	m.shakeFrames = 2

	m, cmd := update(t, m, shakeTickMsg{})
	assert.Equal(t, 1, m.shakeFrames)
	assert.NotNil(t, cmd)

	m, cmd = update(t, m, shakeTickMsg{})
	assert.Equal(t, 0, m.shakeFrames)
	assert.Nil(t, cmd)
}

func TestUpdate_Quit(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{})
	_, cmd := update(t, m, ctrl(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestView_DangerBanner(t *testing.T) {
	m, _, _ := newTestModel(t, state.WidgetState{TokensLeft: "10,000"})
	out := m.View()
	assert.Contains(t, out, "Context nearly full")
	assert.Contains(t, out, "99%")
	assert.Contains(t, out, "Gemini 2.0 Flash")
}

func TestGaugeBar(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		width   int
		filled  int
	}{
		{"empty", 0, 10, 0},
		{"half", 50, 10, 5},
		{"full", 100, 10, 10},
		{"rounds down", 59, 10, 5},
		{"default width", 100, 0, DefaultGaugeWidth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := GaugeBar(usage.Usage{Percent: tt.percent}, tt.width)
			assert.Equal(t, tt.filled, strings.Count(bar, "█"))
			w := tt.width
			if w == 0 {
				w = DefaultGaugeWidth
			}
			assert.Equal(t, w-tt.filled, strings.Count(bar, "░"))
		})
	}
}
