package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ledgerline/banking-support/internal/chat"
	"github.com/ledgerline/banking-support/internal/realtime"
)

const (
	opOpen   = "open"
	opSend   = "send"
	opImage  = "image"
	opEvent  = "event"
	opSelect = "select"
	opReply  = "reply"
)

// imageCommand prefixes input that should be uploaded as an image.
const imageCommand = "/image "

// ChatModel renders a customer's support thread with an input line.
type ChatModel struct {
	ctx  context.Context
	conv *chat.CustomerConversation
	keys keyMap

	input  textinput.Model
	thread viewport.Model
	err    error
	width  int
}

// NewChatModel wraps conv. The model opens it on Init and closes it on quit.
func NewChatModel(ctx context.Context, conv *chat.CustomerConversation) ChatModel {
	input := textinput.New()
	input.Placeholder = "Type a message, or /image <path>"
	input.CharLimit = 4000
	input.Width = 76
	input.Focus()

	return ChatModel{
		ctx:    ctx,
		conv:   conv,
		keys:   defaultKeys,
		input:  input,
		thread: viewport.New(80, 18),
		width:  80,
	}
}

// Init implements tea.Model.
func (m ChatModel) Init() tea.Cmd {
	return m.open()
}

func (m ChatModel) open() tea.Cmd {
	ctx, conv := m.ctx, m.conv
	return run(opOpen, func() error { return conv.Open(ctx) })
}

// Update implements tea.Model.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.thread.Width = msg.Width
		m.thread.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit, m.keys.Back):
			m.conv.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
			var cmd tea.Cmd
			m.thread, cmd = m.thread.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Submit):
			return m.submit()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case doneMsg:
		m.err = msg.err
		switch msg.op {
		case opOpen:
			m.refresh()
			if msg.err != nil {
				return m, nil
			}
			return m, listenForFeed(m.conv.Events())
		case opSend:
			if msg.err != nil && m.input.Value() == "" {
				m.input.SetValue(m.conv.Input())
				m.input.CursorEnd()
			}
		}
		m.refresh()
		return m, nil

	case feedEventMsg:
		listen := listenForFeed(m.conv.Events())
		if msg.event.Type == realtime.EventResync {
			ctx, conv, ev := m.ctx, m.conv, msg.event
			return m, tea.Batch(run(opEvent, func() error { return conv.HandleEvent(ctx, ev) }), listen)
		}
		_ = m.conv.HandleEvent(m.ctx, msg.event)
		m.refresh()
		return m, listen

	case feedClosedMsg:
		return m, nil
	}
	return m, nil
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	if m.conv.State() == chat.StateFailed {
		return m, m.open()
	}

	ctx, conv := m.ctx, m.conv
	text := m.input.Value()
	if path, ok := strings.CutPrefix(text, imageCommand); ok {
		m.input.Reset()
		return m, run(opImage, func() error {
			file, f, err := openImage(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return conv.SendImage(ctx, file)
		})
	}

	conv.SetInput(text)
	m.input.Reset()
	return m, run(opSend, func() error { return conv.Send(ctx) })
}

func (m *ChatModel) refresh() {
	messages := m.conv.Messages()
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, renderMessage(msg, false))
	}
	if len(lines) == 0 && m.conv.State() == chat.StateReady {
		lines = append(lines, faintStyle.Render("No messages yet. Ask us anything."))
	}
	m.thread.SetContent(strings.Join(lines, "\n"))
	m.thread.GotoBottom()
}

// View implements tea.Model.
func (m ChatModel) View() string {
	status := faintStyle.Render(m.conv.State().String())
	if m.conv.State() == chat.StateFailed {
		status = errorStyle.Render("could not load the conversation, press enter to retry")
	} else if m.err != nil {
		status = errorLine(m.err)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Support chat"),
		m.thread.View(),
		status,
		m.input.View(),
		helpLine(m.keys.Submit, m.keys.PageUp, m.keys.Quit),
	)
}
