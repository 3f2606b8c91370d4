package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// feedEventMsg carries one change-feed event into Update.
type feedEventMsg struct {
	event realtime.Event
}

// feedClosedMsg reports that the subscription ended.
type feedClosedMsg struct{}

// doneMsg reports the end of a fetch, reload or send.
type doneMsg struct {
	op  string
	err error
}

// listenForFeed blocks until the next change-feed event.
func listenForFeed(events <-chan realtime.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return feedClosedMsg{}
		}
		return feedEventMsg{event: ev}
	}
}

func run(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{op: op, err: fn()}
	}
}

// openImage reads a local file for upload. The caller closes the returned file.
func openImage(path string) (storage.File, *os.File, error) {
	path = strings.TrimSpace(path)
	f, err := os.Open(path)
	if err != nil {
		return storage.File{}, nil, apperrors.NewValidationError("cannot open image", map[string]any{"path": path})
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return storage.File{}, nil, apperrors.NewValidationError("cannot read image", map[string]any{"path": path})
	}
	return storage.File{Name: filepath.Base(path), Body: f, Size: info.Size()}, f, nil
}

func renderMessage(msg domain.Message, viewerIsStaff bool) string {
	var who string
	switch {
	case msg.IsFromStaff == viewerIsStaff:
		who = "you"
	case msg.IsFromStaff:
		who = "support"
	default:
		who = "customer"
	}
	if msg.IsFromStaff {
		who = staffStyle.Render(who)
	} else {
		who = customerStyle.Render(who)
	}

	body := msg.Content
	if msg.Kind == domain.MessageKindImage {
		body = faintStyle.Render("[image]") + " " + msg.Content
	}
	return fmt.Sprintf("%s %s: %s", timeStyle.Render(msg.CreatedAt.Local().Format("15:04")), who, body)
}

func errorLine(err error) string {
	if err == nil {
		return ""
	}
	domainErr := apperrors.ToDomainError(err)
	switch domainErr.Code {
	case apperrors.CodeWriteFailed:
		return errorStyle.Render("not sent, press enter to retry")
	case apperrors.CodeUploadFailed:
		return errorStyle.Render("upload failed, nothing was sent")
	case apperrors.CodeAuthRequired:
		return errorStyle.Render("session expired, run bankchat login")
	case apperrors.CodeInternal:
		return errorStyle.Render(err.Error())
	}
	return errorStyle.Render(domainErr.Message)
}
