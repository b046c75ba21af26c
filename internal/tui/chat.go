package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// replyMsg carries the assistant's answer back into the update loop.
type replyMsg struct {
	Content string
}

// ChatModel is the Bubble Tea model for the chat screen.
type ChatModel struct {
	ctx       context.Context
	respond   Responder
	label     string
	messages  []ChatMessage
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	isLoading bool
	width     int
	height    int
}

// NewChatModel creates a ChatModel showing history and answering through respond.
func NewChatModel(ctx context.Context, label string, history []ChatMessage, respond Responder) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type your message... (Enter to send)"
	ti.CharLimit = 5000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor))

	vp := viewport.New(72, 15)
	vp.SetContent(formatMessages(history))
	vp.GotoBottom()

	return ChatModel{
		ctx:      ctx,
		respond:  respond,
		label:    label,
		messages: append([]ChatMessage(nil), history...),
		input:    ti,
		viewport: vp,
		spinner:  sp,
		width:    80,
		height:   24,
	}
}

// Messages returns the conversation shown so far.
func (m ChatModel) Messages() []ChatMessage { return m.messages }

// Init returns the initial command for the chat view.
func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the chat view.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyCtrlC, KeyEsc:
			return m, tea.Quit
		case KeyEnter:
			content := strings.TrimSpace(m.input.Value())
			if content == "" || m.isLoading {
				return m, nil
			}
			m.messages = append(m.messages, ChatMessage{Role: "user", Content: content})
			m.viewport.SetContent(formatMessages(m.messages))
			m.viewport.GotoBottom()
			m.input.Reset()
			m.isLoading = true
			return m, tea.Batch(m.ask(content), m.spinner.Tick)
		}

	case replyMsg:
		m.messages = append(m.messages, ChatMessage{Role: "assistant", Content: msg.Content})
		m.viewport.SetContent(formatMessages(m.messages))
		m.viewport.GotoBottom()
		m.isLoading = false
		return m, nil

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := msg.Height - 12
		if vpHeight < 5 {
			vpHeight = 5
		}
		vpWidth := msg.Width - 8
		if vpWidth < 20 {
			vpWidth = 20
		}
		m.viewport.Width = vpWidth
		m.viewport.Height = vpHeight
		m.input.Width = vpWidth - 4
		m.viewport.SetContent(formatMessages(m.messages))
		return m, nil
	}

	if !m.isLoading {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatModel) ask(content string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{Content: m.respond(m.ctx, content)}
	}
}

// View renders the chat view.
func (m ChatModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Chat: %s", m.label)))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")

	if m.isLoading {
		b.WriteString(fmt.Sprintf("%s Thinking...", m.spinner.View()))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n\n")
	b.WriteString(DimStyle.Render("Enter: Send · Esc: Quit"))

	return BoxStyle.Width(m.width - 4).Render(b.String())
}

// formatMessages formats the chat history for display in the viewport.
func formatMessages(messages []ChatMessage) string {
	if len(messages) == 0 {
		return DimStyle.Render("No messages yet. Start the conversation!")
	}

	var b strings.Builder
	for i, msg := range messages {
		switch msg.Role {
		case "user":
			b.WriteString(userStyle.Render("You: "))
		case "assistant":
			b.WriteString(assistantStyle.Render("Assistant: "))
		default:
			b.WriteString(DimStyle.Render(msg.Role + ": "))
		}
		b.WriteString(msg.Content)

		if i < len(messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
