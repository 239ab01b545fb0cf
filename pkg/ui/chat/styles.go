package chat

import (
	"chatflow/pkg/model"

	"github.com/charmbracelet/lipgloss"
)

// senderStyle is the card used for one kind of sender.
type senderStyle struct {
	label string
	title lipgloss.Style
	box   lipgloss.Style
}

type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	boundary   lipgloss.Style
	system     lipgloss.Style
	unread     lipgloss.Style
	toast      lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	inputOff   lipgloss.Style
	viewport   lipgloss.Style

	senders  map[string]senderStyle
	fallback senderStyle
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("152")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("67")),
		boundary: lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("245")).
			Align(lipgloss.Center),
		system: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		unread: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		toast: lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("58")).
			Padding(0, 1),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("186")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("117")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("74")).
			Padding(0, 1),
		inputOff: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("67")).
			Padding(0, 1),
		senders: map[string]senderStyle{
			model.SenderUser: card("you", "117", lipgloss.RoundedBorder()),
			model.SenderBot:  card("bot", "150", lipgloss.RoundedBorder()),
		},
		fallback: card("", "180", lipgloss.NormalBorder()),
	}
}

func card(label string, color string, border lipgloss.Border) senderStyle {
	c := lipgloss.Color(color)
	return senderStyle{
		label: label,
		title: lipgloss.NewStyle().Bold(true).Foreground(c),
		box:   lipgloss.NewStyle().Border(border).BorderForeground(c).Padding(0, 1),
	}
}

// sender returns the card for sender, labelled with the sender name when it has
// no dedicated style.
func (t theme) sender(sender string) senderStyle {
	if style, ok := t.senders[sender]; ok {
		return style
	}
	style := t.fallback
	style.label = sender
	return style
}
