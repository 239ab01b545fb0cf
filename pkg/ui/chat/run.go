package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Run shows the chat UI for session until the user quits or ctx ends.
func Run(ctx context.Context, session Session, info RuntimeInfo, opts ...tea.ProgramOption) error {
	model := newModel(ctx, session, info)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}, opts...)
	program := tea.NewProgram(model, opts...)
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("💬 Thanks for chatting")
}
