// Package tui implements the interactive chat using Bubble Tea, with a
// plain line-based fallback when stdout is not a terminal.
package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// Common key binding constants.
const (
	KeyCtrlC = "ctrl+c"
	KeyEnter = "enter"
	KeyEsc   = "esc"
)

// Responder answers one chat message.
type Responder func(ctx context.Context, message string) string

// ChatMessage is one rendered line of conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// IsTTY returns true if stdout is connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RunChat starts an interactive chat. If stdout is a TTY it runs the
// Bubble Tea program in alternate screen mode, otherwise it reads lines
// from stdin.
func RunChat(ctx context.Context, label string, history []ChatMessage, respond Responder) error {
	if IsTTY() {
		p := tea.NewProgram(NewChatModel(ctx, label, history, respond), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		return err
	}
	return RunREPL(ctx, os.Stdin, os.Stdout, respond)
}
