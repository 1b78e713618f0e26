// Package chattui is the interactive terminal chat window: a conversation
// list, the active thread with a compose line, and the notification panel.
package chattui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stanzahq/stanza/internal/chat"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/notify"
)

type ViewID string

const (
	ViewConversations ViewID = "conversations"
	ViewThread        ViewID = "thread"
	ViewNotifications ViewID = "notifications"
)

// Config wires the window to the services of the acting user.
type Config struct {
	Chat     *chat.Service
	Notify   *notify.Service
	Live     events.Channel
	ViewerID string

	// Conversation, when set, is opened on start.
	Conversation string

	// PollInterval is the notification refetch period.
	PollInterval time.Duration
}

// Terminal focus reporting (xterm mode 1004). The terminal answers with
// CSI I on focus in and CSI O on focus out.
const (
	enableFocusReports  = "\x1b[?1004h"
	disableFocusReports = "\x1b[?1004l"
)

type focusMsg struct {
	focused bool
}

// focusFilter turns focus reports into focusMsg. This bubbletea release
// delivers them as unrecognised CSI sequences, identified by their
// String form.
func focusFilter(_ tea.Model, msg tea.Msg) tea.Msg {
	if _, isKey := msg.(tea.KeyMsg); isKey {
		return msg
	}
	seq, ok := msg.(fmt.Stringer)
	if !ok {
		return msg
	}
	switch seq.String() {
	case "?CSI[73]?":
		return focusMsg{focused: true}
	case "?CSI[79]?":
		return focusMsg{focused: false}
	}
	return msg
}

type changedMsg struct{}

type unreadMsg struct {
	count int
}

type openedMsg struct {
	err error
}

type activatedMsg struct {
	err error
}

type sentMsg struct {
	err error
}

type notificationsMsg struct {
	err error
}

type Model struct {
	ctx     context.Context
	viewer  string
	session *chat.Session
	feed    *notify.Feed
	now     func() time.Time

	// post delivers a message to the running program. Nil in tests.
	post func(tea.Msg)

	width  int
	height int

	view      ViewID
	selected  int
	notified  int
	filtering bool
	filter    string
	status    string
	unread    int
	initial   string
}

// NewModel builds the window. Live updates reach the program through post.
func NewModel(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Chat == nil || cfg.Notify == nil {
		return nil, errors.New("chat and notification services are required")
	}
	if strings.TrimSpace(cfg.ViewerID) == "" {
		return nil, errors.New("viewer is required")
	}

	m := &Model{
		ctx:     ctx,
		viewer:  cfg.ViewerID,
		now:     time.Now,
		view:    ViewConversations,
		initial: cfg.Conversation,
	}
	m.session = chat.NewSession(cfg.Chat, cfg.Live, cfg.ViewerID,
		chat.OnChange(func() { m.send(changedMsg{}) }),
	)
	m.feed = notify.NewFeed(cfg.Notify, cfg.ViewerID,
		notify.OnUpdate(func(unread int) { m.send(unreadMsg{count: unread}) }),
	)
	return m, nil
}

// send posts asynchronously; callbacks may fire from inside Update.
func (m *Model) send(msg tea.Msg) {
	if m.post == nil {
		return
	}
	go m.post(msg)
}

// Run opens the window and blocks until the user quits.
func Run(ctx context.Context, cfg Config) error {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithFilter(focusFilter))
	model.post = program.Send

	fmt.Fprint(os.Stdout, enableFocusReports)
	defer fmt.Fprint(os.Stdout, disableFocusReports)

	if cfg.Live != nil {
		if err := model.feed.Watch(ctx, cfg.Live); err != nil {
			logging.Logger.Warn().Err(err).Msg("notification live updates unavailable; polling only")
		}
	}
	pollerConfig := notify.DefaultPollerConfig()
	if cfg.PollInterval > 0 {
		pollerConfig.Interval = cfg.PollInterval
	}
	poller := notify.NewPoller(pollerConfig, model.feed)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = poller.Stop() }()

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Close() {
	m.session.Close()
	m.feed.Close()
}

func (m *Model) Init() tea.Cmd {
	return m.openCmd()
}

func (m *Model) openCmd() tea.Cmd {
	initial := m.initial
	return func() tea.Msg {
		if err := m.session.Open(m.ctx); err != nil {
			return openedMsg{err: err}
		}
		m.feed.Refresh(m.ctx)
		if initial != "" {
			return activatedMsg{err: m.session.Activate(m.ctx, initial)}
		}
		return openedMsg{}
	}
}

func (m *Model) activateCmd(conversationID string) tea.Cmd {
	return func() tea.Msg {
		return activatedMsg{err: m.session.Activate(m.ctx, conversationID)}
	}
}

func (m *Model) sendCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.session.Send(m.ctx)
		return sentMsg{err: err}
	}
}

func (m *Model) focusCmd(focused bool) tea.Cmd {
	return func() tea.Msg {
		m.session.SetFocused(m.ctx, focused)
		return nil
	}
}

func (m *Model) openNotificationsCmd() tea.Cmd {
	return func() tea.Msg {
		m.feed.Open(m.ctx)
		return notificationsMsg{}
	}
}

func (m *Model) markNotificationCmd(id string) tea.Cmd {
	return func() tea.Msg {
		return notificationsMsg{err: m.feed.MarkRead(m.ctx, id)}
	}
}

func (m *Model) markAllNotificationsCmd() tea.Cmd {
	return func() tea.Msg {
		return notificationsMsg{err: m.feed.MarkAllRead(m.ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case focusMsg:
		return m, m.focusCmd(typed.focused)
	case tea.ResumeMsg:
		return m, m.focusCmd(true)
	case changedMsg:
		m.clampSelection()
		return m, nil
	case unreadMsg:
		m.unread = typed.count
		return m, nil
	case openedMsg:
		m.setStatus(typed.err)
		m.unread = m.feed.UnreadCount()
		return m, nil
	case activatedMsg:
		m.setStatus(typed.err)
		if typed.err == nil {
			m.view = ViewThread
		}
		m.unread = m.feed.UnreadCount()
		return m, nil
	case sentMsg:
		m.setStatus(typed.err)
		return m, nil
	case notificationsMsg:
		m.setStatus(typed.err)
		m.unread = m.feed.UnreadCount()
		m.notified = clamp(m.notified, len(m.feed.Items()))
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyCtrlZ:
		return tea.Sequence(m.focusCmd(false), tea.Suspend)
	}
	switch m.view {
	case ViewThread:
		return m.handleThreadKey(msg)
	case ViewNotifications:
		return m.handleNotificationsKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	if m.filtering {
		switch msg.Type {
		case tea.KeyEnter:
			m.filtering = false
		case tea.KeyEsc:
			m.filtering = false
			m.filter = ""
		case tea.KeyBackspace:
			m.filter = dropLastRune(m.filter)
		case tea.KeySpace:
			m.filter += " "
		case tea.KeyRunes:
			m.filter += string(msg.Runes)
		}
		m.session.Filter(m.filter)
		m.clampSelection()
		return nil
	}

	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		m.selected = clamp(m.selected-1, len(m.session.Conversations()))
	case "down", "j":
		m.selected = clamp(m.selected+1, len(m.session.Conversations()))
	case "/":
		m.filtering = true
	case "esc":
		m.filter = ""
		m.session.Filter("")
		m.clampSelection()
	case "n":
		m.view = ViewNotifications
		return m.openNotificationsCmd()
	case "enter":
		conversations := m.session.Conversations()
		if m.selected < len(conversations) {
			return m.activateCmd(conversations[m.selected].ID)
		}
	}
	return nil
}

func (m *Model) handleThreadKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.session.Back()
		m.view = ViewConversations
		m.status = ""
		return nil
	case tea.KeyEnter:
		if strings.TrimSpace(m.session.Draft()) == "" {
			return nil
		}
		return m.sendCmd()
	case tea.KeyBackspace:
		m.session.SetDraft(dropLastRune(m.session.Draft()))
	case tea.KeySpace:
		m.session.SetDraft(m.session.Draft() + " ")
	case tea.KeyRunes:
		m.session.SetDraft(m.session.Draft() + string(msg.Runes))
	}
	return nil
}

func (m *Model) handleNotificationsKey(msg tea.KeyMsg) tea.Cmd {
	items := m.feed.Items()
	switch msg.String() {
	case "q":
		return tea.Quit
	case "esc", "n":
		m.feed.Hide()
		m.view = ViewConversations
		m.notified = 0
	case "up", "k":
		m.notified = clamp(m.notified-1, len(items))
	case "down", "j":
		m.notified = clamp(m.notified+1, len(items))
	case "enter":
		if m.notified < len(items) && !items[m.notified].IsRead {
			return m.markNotificationCmd(items[m.notified].ID)
		}
	case "a":
		if m.unread > 0 {
			return m.markAllNotificationsCmd()
		}
	}
	return nil
}

func (m *Model) setStatus(err error) {
	if err == nil {
		m.status = ""
		return
	}
	m.status = describeError(err)
}

func (m *Model) clampSelection() {
	m.selected = clamp(m.selected, len(m.session.Conversations()))
}

func describeError(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "Can't send that: " + err.Error()
	case errors.Is(err, models.ErrAuthorization):
		return "You are not part of this conversation"
	case errors.Is(err, models.ErrNotFound):
		return "Not found"
	default:
		return "Something went wrong: " + err.Error()
	}
}

func clamp(index, length int) int {
	if length == 0 || index < 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}

func dropLastRune(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return string(runes[:len(runes)-1])
}
