package chat

import (
	"context"
	"fmt"
	"strings"

	"chatflow/pkg/model"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Session is the chat session the UI renders and drives.
type Session interface {
	Messages() []model.Message
	Toasts() []model.Toast
	CurrentStep() string
	Typing() bool
	InputDisabled() bool
	SensitiveInput() bool
	UnreadCount() int
	AudioEnabled() bool
	NotificationsEnabled() bool
	TextAreaValue() string

	SubmitText(ctx context.Context, text string) bool
	SetTextAreaValue(ctx context.Context, value string) bool
	SetScrolledAway(away bool)
	ToggleAudio(ctx context.Context) bool
	ToggleNotifications(ctx context.Context) bool
	ShowHistory(ctx context.Context) bool
	Restart(ctx context.Context)
	DismissToast(ctx context.Context, id string) (string, bool)
	Watch(ctx context.Context) <-chan struct{}
}

// RuntimeInfo is shown in the header.
type RuntimeInfo struct {
	SessionID    string
	Flow         string
	Provider     string
	Storage      string
	BoundaryText string
}

type sessionChangedMsg struct{}

type actionDoneMsg struct{}

type chatModel struct {
	ctx     context.Context
	session Session
	changes <-chan struct{}

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	width     int
	height    int
	isReady   bool
	followLog bool
	runtime   RuntimeInfo
}

func newModel(ctx context.Context, session Session, info RuntimeInfo) *chatModel {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Type a message..."
	in.Focus()
	in.CharLimit = 0

	return &chatModel{
		ctx:       ctx,
		session:   session,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
		runtime:   info,
	}
}

func (m *chatModel) Init() tea.Cmd {
	m.changes = m.session.Watch(m.ctx)
	m.refreshViewport(true)
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.changes))
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case sessionChangedMsg:
		m.syncInput()
		m.refreshViewport(false)
		return m, waitForChange(m.changes)
	case actionDoneMsg:
		m.refreshViewport(false)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(typed); handled {
			return m, cmd
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		if !m.session.SetTextAreaValue(m.ctx, after) {
			m.input.SetValue(before)
		} else if value := m.session.TextAreaValue(); value != after {
			m.input.SetValue(value)
		}
	}
	return m, cmd
}

func (m *chatModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit, true
	case "ctrl+r":
		return m.action(func(ctx context.Context) { m.session.Restart(ctx) }), true
	case "ctrl+o":
		return m.action(func(ctx context.Context) { m.session.ShowHistory(ctx) }), true
	case "ctrl+a":
		m.session.ToggleAudio(m.ctx)
		return nil, true
	case "ctrl+n":
		m.session.ToggleNotifications(m.ctx)
		return nil, true
	case "ctrl+x":
		if toasts := m.session.Toasts(); len(toasts) > 0 {
			m.session.DismissToast(m.ctx, toasts[0].ID)
		}
		return nil, true
	case "enter":
		return m.submit(), true
	}

	if m.handleViewportKey(msg) {
		return nil, true
	}
	return nil, false
}

func (m *chatModel) submit() tea.Cmd {
	if m.session.InputDisabled() {
		return nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if isExitCommand(text) {
		return tea.Quit
	}

	m.input.SetValue("")
	m.followLog = true
	m.session.SetScrolledAway(false)
	return m.action(func(ctx context.Context) { m.session.SubmitText(ctx, text) })
}

// action runs fn off the update loop since step processing may stream for a while.
func (m *chatModel) action(fn func(ctx context.Context)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		fn(ctx)
		return actionDoneMsg{}
	}
}

func (m *chatModel) syncInput() {
	if m.session.SensitiveInput() {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}

	if m.session.InputDisabled() {
		m.input.Placeholder = "Please wait..."
	} else {
		m.input.Placeholder = "Type a message..."
	}
}

func (m *chatModel) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("💬 Chatflow")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"session:%s · step:%s · flow:%s · provider:%s · storage:%s · %s · audio:%s · notify:%s",
		displayOrNA(m.runtime.SessionID),
		displayOrNA(m.session.CurrentStep()),
		displayOrNA(m.runtime.Flow),
		displayOrNA(m.runtime.Provider),
		displayOrNA(m.runtime.Storage),
		m.unreadBadge(),
		onOff(m.session.AudioEnabled()),
		onOff(m.session.NotificationsEnabled()),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View())}

	for _, toast := range m.session.Toasts() {
		parts = append(parts, m.theme.toast.Render("🔔 "+contentText(toast.Content)))
	}

	status := m.theme.status.Render("💡 Enter send · PgUp/PgDn scroll · Ctrl+O history · Ctrl+R restart · Ctrl+A audio · Ctrl+N notify · Ctrl+X dismiss · Esc quit")
	if m.session.Typing() {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s bot is typing...", m.spinner.View()))
	} else if m.session.InputDisabled() {
		status = m.theme.statusBusy.Render("⏳ waiting for the next step...")
	}

	parts = append(parts,
		status,
		m.theme.inputLabel.Render("👤 You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.inputStyle().Width(m.width-2).Render(m.input.View()),
	)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *chatModel) unreadBadge() string {
	count := m.session.UnreadCount()
	if count == 0 {
		return "unread:0"
	}
	return m.theme.unread.Render(fmt.Sprintf("%d unread", count))
}

func (m *chatModel) inputStyle() lipgloss.Style {
	if m.session.InputDisabled() {
		return m.theme.inputOff
	}
	return m.theme.input
}

func (m *chatModel) resizeComponents() {
	w := max(m.width-6, 50)
	h := max(m.height-12, 8)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *chatModel) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset

	var sections []string
	for _, msg := range m.session.Messages() {
		if section := m.renderMessage(msg); section != "" {
			sections = append(sections, section)
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(m.viewport.TotalLineCount()-m.viewport.Height, 0)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *chatModel) renderMessage(msg model.Message) string {
	body := strings.TrimSpace(contentText(msg.Content))

	switch msg.Sender {
	case model.SenderSystem:
		if m.runtime.BoundaryText != "" && body == m.runtime.BoundaryText {
			return m.theme.boundary.Width(m.viewport.Width).Render(body)
		}
		return m.theme.system.Render("· " + body)
	case model.SenderBot:
		// A simulated stream starts from an empty placeholder.
		if body == "" {
			return ""
		}
	}

	style := m.theme.sender(msg.Sender)
	title := style.title.Render(fmt.Sprintf("%s · %s", style.label, msg.Timestamp.Local().Format("15:04")))
	return lipgloss.JoinVertical(lipgloss.Left, title, style.box.Width(m.viewport.Width).Render(body))
}

func (m *chatModel) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.setFollow(false)
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		m.setFollow(m.viewport.AtBottom())
		return true
	case "home":
		m.viewport.GotoTop()
		m.setFollow(false)
		return true
	case "end":
		m.viewport.GotoBottom()
		m.setFollow(true)
		return true
	default:
		return false
	}
}

func (m *chatModel) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.setFollow(false)
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		m.setFollow(m.viewport.AtBottom())
		return true
	default:
		return false
	}
}

// setFollow tracks whether the view sticks to the latest message and reports
// scrolling away to the session so unread messages are counted.
func (m *chatModel) setFollow(follow bool) {
	m.followLog = follow
	m.session.SetScrolledAway(!follow)
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return sessionChangedMsg{}
	}
}

func contentText(content any) string {
	switch typed := content.(type) {
	case nil:
		return ""
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
