package chattui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/notify"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	badgeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("9")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	otherStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	unreadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	inputStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true)
)

func (m *Model) View() string {
	width, height := m.width, m.height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	header := m.renderHeader(width)
	footer := m.renderFooter(width)
	bodyHeight := max(height-lipgloss.Height(header)-lipgloss.Height(footer), 0)

	var body string
	switch m.view {
	case ViewThread:
		body = m.renderThread(width, bodyHeight)
	case ViewNotifications:
		body = m.renderNotifications(width, bodyHeight)
	default:
		body = m.renderConversations(width, bodyHeight)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader(width int) string {
	title := titleStyle.Render("Messages")
	switch m.view {
	case ViewThread:
		title = titleStyle.Render(m.threadTitle())
	case ViewNotifications:
		title = titleStyle.Render("Notifications")
	}
	bell := mutedStyle.Render("no new notifications")
	if m.unread > 0 {
		bell = badgeStyle.Render(fmt.Sprintf("%d new", m.unread))
	}
	gap := max(width-lipgloss.Width(title)-lipgloss.Width(bell), 1)
	return title + strings.Repeat(" ", gap) + bell
}

func (m *Model) threadTitle() string {
	active := m.session.Active()
	for _, summary := range m.session.Conversations() {
		if summary.ID == active && summary.Other != nil {
			return summary.Other.Name()
		}
	}
	return "Conversation"
}

func (m *Model) renderFooter(width int) string {
	var help string
	switch m.view {
	case ViewThread:
		help = "enter send · esc back · ctrl+c quit"
	case ViewNotifications:
		help = "↑/↓ move · enter mark read · a mark all read · esc close"
	default:
		help = "↑/↓ move · enter open · / search · n notifications · q quit"
		if m.filtering || m.filter != "" {
			help = "search: " + m.filter
		}
	}
	lines := []string{mutedStyle.Render(runewidth.Truncate(help, width, "…"))}
	if m.status != "" {
		lines = append([]string{errorStyle.Render(runewidth.Truncate(m.status, width, "…"))}, lines...)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderConversations(width, height int) string {
	conversations := m.session.Conversations()
	if len(conversations) == 0 {
		if m.filter != "" {
			return mutedStyle.Render(fmt.Sprintf("No conversations match %q", m.filter))
		}
		return mutedStyle.Render("No conversations yet")
	}

	now := m.now()
	start := windowStart(m.selected, len(conversations), height)
	lines := make([]string, 0, height)
	for i := start; i < len(conversations) && len(lines) < height; i++ {
		summary := conversations[i]
		name := "Unknown"
		if summary.Other != nil {
			name = summary.Other.Name()
		}
		last := "(no messages)"
		if summary.LastMessage != nil {
			last = strings.Join(strings.Fields(summary.LastMessage.Content), " ")
			if summary.LastMessage.SenderID == m.viewer {
				last = "You: " + last
			}
		}
		badge := "  "
		if summary.UnreadCount > 0 {
			badge = unreadStyle.Render(fmt.Sprintf("%d", summary.UnreadCount)) + " "
		}
		when := notify.TimeAgo(summary.UpdatedAt, now)
		prefix := fmt.Sprintf("%s%s  ", badge, name)
		room := max(width-runewidth.StringWidth(prefix)-runewidth.StringWidth(when)-2, 0)
		line := prefix + runewidth.FillRight(runewidth.Truncate(last, room, "…"), room) + "  " + mutedStyle.Render(when)
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderThread(width, height int) string {
	input := inputStyle.Width(width).Render("> " + m.session.Draft())
	room := max(height-lipgloss.Height(input), 0)

	var lines []string
	for _, msg := range m.session.Messages() {
		lines = append(lines, m.renderMessage(msg, width)...)
	}
	if len(lines) == 0 {
		lines = []string{mutedStyle.Render("No messages yet. Say hello!")}
	}
	if len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	for len(lines) < room {
		lines = append([]string{""}, lines...)
	}
	return strings.Join(append(lines, input), "\n")
}

func (m *Model) renderMessage(msg *models.Message, width int) []string {
	name := msg.SenderID
	if msg.Sender != nil {
		name = msg.Sender.Name()
	}
	style := otherStyle
	meta := notify.TimeAgo(msg.CreatedAt, m.now())
	if msg.SenderID == m.viewer {
		style = selfStyle
		name = "You"
		if msg.IsRead {
			meta += " · read"
		}
	}

	out := []string{style.Render(name) + " " + mutedStyle.Render(meta)}
	for _, line := range strings.Split(wordwrap.String(msg.Content, max(width-2, 10)), "\n") {
		out = append(out, "  "+line)
	}
	return out
}

func (m *Model) renderNotifications(width, height int) string {
	items := m.feed.Items()
	if len(items) == 0 {
		return mutedStyle.Render("No notifications yet")
	}

	now := m.now()
	start := windowStart(m.notified, len(items), height)
	lines := make([]string, 0, height)
	for i := start; i < len(items) && len(lines) < height; i++ {
		item := items[i]
		marker := "  "
		if !item.IsRead {
			marker = unreadStyle.Render("•") + " "
		}
		when := notify.TimeAgo(item.CreatedAt, now)
		room := max(width-runewidth.StringWidth(when)-4, 0)
		line := marker + runewidth.FillRight(runewidth.Truncate(item.Describe(), room, "…"), room) + "  " + mutedStyle.Render(when)
		if i == m.notified {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// windowStart scrolls so selected stays inside a window of height rows.
func windowStart(selected, total, height int) int {
	if height <= 0 || total <= height || selected < height {
		return 0
	}
	return min(selected-height+1, total-height)
}
