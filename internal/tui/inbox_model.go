package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ledgerline/banking-support/internal/chat"
	"github.com/ledgerline/banking-support/internal/domain"
)

type inboxFocus int

const (
	focusList inboxFocus = iota
	focusReply
)

const listWidth = 34

// InboxModel is the staff two-pane inbox: conversations on the left, the
// selected thread on the right and a reply line underneath.
type InboxModel struct {
	ctx   context.Context
	inbox *chat.Inbox
	keys  keyMap

	focus   inboxFocus
	cursor  int
	pending string
	reply   textinput.Model
	thread  viewport.Model
	err     error
	height  int
}

// NewInboxModel wraps inbox. The model opens it on Init and closes it on quit.
func NewInboxModel(ctx context.Context, inbox *chat.Inbox) InboxModel {
	reply := textinput.New()
	reply.Placeholder = "Reply to the selected customer"
	reply.CharLimit = 4000
	reply.Width = 76

	return InboxModel{
		ctx:    ctx,
		inbox:  inbox,
		keys:   defaultKeys,
		reply:  reply,
		thread: viewport.New(60, 18),
		height: 18,
	}
}

// Init implements tea.Model.
func (m InboxModel) Init() tea.Cmd {
	ctx, inbox := m.ctx, m.inbox
	return run(opOpen, func() error { return inbox.Open(ctx) })
}

// Update implements tea.Model.
func (m InboxModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-6, 3)
		m.thread.Width = max(msg.Width-listWidth-4, 20)
		m.thread.Height = m.height
		m.reply.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.inbox.Close()
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.Focus) {
			m.setFocus(1 - m.focus)
			return m, nil
		}
		if key.Matches(msg, m.keys.PageUp, m.keys.PageDown) {
			var cmd tea.Cmd
			m.thread, cmd = m.thread.Update(msg)
			return m, cmd
		}
		if m.focus == focusReply {
			return m.updateReply(msg)
		}
		return m.updateList(msg)

	case doneMsg:
		m.err = msg.err
		switch msg.op {
		case opOpen:
			m.refresh()
			if msg.err != nil {
				return m, nil
			}
			return m, listenForFeed(m.inbox.Events())
		case opSelect:
			if msg.err == nil {
				m.setFocus(focusReply)
			}
		case opReply:
			if msg.err == nil && m.reply.Value() == m.pending {
				m.reply.Reset()
			}
		}
		m.refresh()
		return m, nil

	case feedEventMsg:
		ctx, inbox, ev := m.ctx, m.inbox, msg.event
		return m, tea.Batch(
			run(opEvent, func() error { return inbox.HandleEvent(ctx, ev) }),
			listenForFeed(m.inbox.Events()),
		)

	case feedClosedMsg:
		return m, nil
	}
	return m, nil
}

func (m InboxModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	summaries := m.inbox.Summaries()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.inbox.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(summaries)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Submit):
		if m.inbox.State() == chat.StateFailed {
			return m, m.Init()
		}
		if m.cursor >= len(summaries) {
			return m, nil
		}
		ctx, inbox, userID := m.ctx, m.inbox, summaries[m.cursor].UserID
		return m, run(opSelect, func() error { return inbox.Select(ctx, userID) })
	}
	return m, nil
}

func (m InboxModel) updateReply(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.setFocus(focusList)
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.pending = m.reply.Value()
		m.inbox.SetReply(m.pending)
		ctx, inbox := m.ctx, m.inbox
		return m, run(opReply, func() error { return inbox.SendReply(ctx) })
	}
	var cmd tea.Cmd
	m.reply, cmd = m.reply.Update(msg)
	return m, cmd
}

func (m *InboxModel) setFocus(focus inboxFocus) {
	m.focus = focus
	if focus == focusReply {
		m.reply.Focus()
	} else {
		m.reply.Blur()
	}
}

func (m *InboxModel) refresh() {
	if n := len(m.inbox.Summaries()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}

	lines := make([]string, 0)
	for _, msg := range m.inbox.Thread() {
		lines = append(lines, renderMessage(msg, true))
	}
	if m.inbox.Selected() == "" {
		lines = append(lines, faintStyle.Render("Select a conversation."))
	}
	m.thread.SetContent(strings.Join(lines, "\n"))
	m.thread.GotoBottom()
}

func (m InboxModel) listView() string {
	summaries := m.inbox.Summaries()
	selected := m.inbox.Selected()

	rows := make([]string, 0, len(summaries))
	for i, s := range summaries {
		marker := "  "
		if s.UserID == selected {
			marker = "> "
		}
		preview := s.Content
		if s.Kind == domain.MessageKindImage {
			preview = "[image]"
		}
		row := fmt.Sprintf("%s%s %s", marker, truncate(s.UserID, 12), timeStyle.Render(s.CreatedAt.Local().Format("15:04")))
		row += "\n    " + truncate(preview, listWidth-6)
		if i == m.cursor {
			row = selectedStyle.Render(row)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		rows = append(rows, faintStyle.Render("No conversations."))
	}

	style := paneStyle
	if m.focus == focusList {
		style = focusedPaneStyle
	}
	return style.Width(listWidth).Height(m.height).Render(strings.Join(rows, "\n"))
}

// View implements tea.Model.
func (m InboxModel) View() string {
	threadStyle := paneStyle
	if m.focus == focusReply {
		threadStyle = focusedPaneStyle
	}

	status := faintStyle.Render(m.inbox.State().String())
	if m.inbox.State() == chat.StateFailed {
		status = errorStyle.Render("could not load conversations, press enter to retry")
	} else if m.err != nil {
		status = errorLine(m.err)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Support inbox"),
		lipgloss.JoinHorizontal(lipgloss.Top, m.listView(), threadStyle.Render(m.thread.View())),
		status,
		m.reply.View(),
		helpLine(m.keys.Up, m.keys.Down, m.keys.Submit, m.keys.Focus, m.keys.Quit),
	)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
