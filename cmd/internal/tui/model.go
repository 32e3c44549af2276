// Package tui is the terminal notification viewer.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"frontdesk/cmd/internal/notification"
)

// Source is the notification list the viewer renders. *notification.Sink implements it.
type Source interface {
	List() []notification.Notification
	MarkRead(id string) bool
	MarkAllRead() int
	UnreadCount() int
	Changes() (<-chan struct{}, func())
}

// Status is the header line content.
type Status struct {
	User     string
	Role     string
	Session  string
	Realtime string
}

// StatusFunc reports the current header status. It is polled.
type StatusFunc func() Status

const statusEvery = time.Second

type changedMsg struct{}

type statusTickMsg time.Time

type copyResultMsg struct{ err error }

// Model is the root bubbletea model.
type Model struct {
	src     Source
	status  StatusFunc
	changes <-chan struct{}
	copy    func(string) error
	now     func() time.Time

	items    []notification.Notification
	unread   int
	cursor   int
	detail   bool
	head     Status
	flash    string
	flashErr bool

	width  int
	height int
}

// New builds the viewer. The returned cancel releases the change subscription on src.
func New(src Source, status StatusFunc) (Model, func()) {
	ch, cancel := src.Changes()
	m := Model{
		src:     src,
		status:  status,
		changes: ch,
		copy:    clipboard.WriteAll,
		now:     time.Now,
	}
	m.reload()
	if status != nil {
		m.head = status()
	}
	return m, cancel
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), statusTickCmd())
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(statusEvery, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

func (m *Model) reload() {
	m.items = m.src.List()
	m.unread = m.src.UnreadCount()
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
}

func (m Model) selected() (notification.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return notification.Notification{}, false
	}
	return m.items[m.cursor], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case changedMsg:
		m.reload()
		return m, m.waitForChange()

	case statusTickMsg:
		if m.status != nil {
			m.head = m.status()
		}
		return m, statusTickCmd()

	case copyResultMsg:
		if msg.err != nil {
			m.flash, m.flashErr = "copy failed: "+msg.err.Error(), true
		} else {
			m.flash, m.flashErr = "copied", false
		}

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.flash = ""
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.detail = false
	case "j", "down":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(len(m.items)-1, 0)
	case "enter":
		if n, ok := m.selected(); ok {
			m.detail = !m.detail
			if !n.Read {
				m.src.MarkRead(n.ID)
				m.reload()
			}
		}
	case "r":
		if n, ok := m.selected(); ok && !n.Read {
			m.src.MarkRead(n.ID)
			m.reload()
		}
	case "a":
		if c := m.src.MarkAllRead(); c > 0 {
			m.flash = fmt.Sprintf("marked %d read", c)
		}
		m.reload()
	case "c":
		if n, ok := m.selected(); ok {
			text := n.Message
			if n.Title != "" {
				text = n.Title + ": " + text
			}
			copyFn := m.copy
			return m, func() tea.Msg { return copyResultMsg{err: copyFn(text)} }
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(dimStyle.Render("  no notifications yet"))
		b.WriteString("\n")
	} else {
		for i, n := range m.visible() {
			b.WriteString(m.renderRow(n, i+m.offset() == m.cursor))
			b.WriteString("\n")
		}
	}

	if m.detail {
		if n, ok := m.selected(); ok {
			b.WriteString("\n")
			b.WriteString(m.renderDetail(n))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.flash != "" {
		style := flashStyle
		if m.flashErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString(renderHelp("j/k", "move", "enter", "open", "r", "read", "a", "read all", "c", "copy", "q", "quit"))
	return b.String()
}

func (m Model) renderHeader() string {
	h := m.head
	who := h.User
	if who == "" {
		who = "not signed in"
	}
	if h.Role != "" {
		who += " (" + h.Role + ")"
	}
	parts := []string{
		titleStyle.Render("FRONT DESK"),
		normalStyle.Render(who),
	}
	if h.Session != "" {
		parts = append(parts, dimStyle.Render("session ")+stateStyle(h.Session).Render(h.Session))
	}
	if h.Realtime != "" {
		parts = append(parts, dimStyle.Render("realtime ")+stateStyle(h.Realtime).Render(h.Realtime))
	}
	parts = append(parts, unreadStyle.Render(fmt.Sprintf("%d unread", m.unread)))
	return strings.Join(parts, metaStyle.Render("  ·  "))
}

// listHeight is the number of rows available for the list. Zero means unbounded.
func (m Model) listHeight() int {
	if m.height <= 0 {
		return 0
	}
	// Chrome: header(2) + help(1) + flash(1) + spacing(1), detail box when open.
	h := m.height - 5
	if m.detail {
		h -= 6
	}
	return max(h, 1)
}

func (m Model) offset() int {
	h := m.listHeight()
	if h == 0 || m.cursor < h {
		return 0
	}
	return m.cursor - h + 1
}

func (m Model) visible() []notification.Notification {
	h := m.listHeight()
	off := m.offset()
	if h == 0 {
		return m.items
	}
	end := min(off+h, len(m.items))
	return m.items[off:end]
}

func (m Model) renderRow(n notification.Notification, selected bool) string {
	marker := "  "
	if !n.Read {
		marker = unreadStyle.Render("● ")
	}

	title := n.Title
	if title == "" {
		title = n.Message
	}
	titleStyled := normalStyle.Render(title)
	if selected {
		titleStyled = selectedStyle.Render(title)
	}

	meta := metaStyle.Render(fmt.Sprintf("%-12s %s", n.Channel, age(m.now(), n.Timestamp)))
	pri := ""
	if n.Priority != "" {
		pri = " " + priorityStyle(n.Priority).Render(n.Priority)
	}

	row := marker + titleStyled + pri + "  " + meta
	if selected {
		return selectedRowBg.Render(row)
	}
	return row
}

func (m Model) renderDetail(n notification.Notification) string {
	var b strings.Builder
	if n.Title != "" {
		b.WriteString(selectedStyle.Render(n.Title))
		b.WriteString("\n")
	}
	b.WriteString(normalStyle.Render(n.Message))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("%s · %s · %s", n.Type, n.Channel, n.Timestamp.Local().Format("2006-01-02 15:04:05"))))
	style := detailStyle
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(b.String())
}

// age renders a compact relative time.
func age(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2")
	}
}
