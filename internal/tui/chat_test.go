package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func echo(_ context.Context, message string) string {
	return "echo: " + message
}

func TestRunREPL(t *testing.T) {
	in := strings.NewReader("hello\n\nsecond\n/quit\nignored\n")
	var out bytes.Buffer

	var seen []string
	respond := func(ctx context.Context, m string) string {
		seen = append(seen, m)
		return echo(ctx, m)
	}
	if err := RunREPL(context.Background(), in, &out, respond); err != nil {
		t.Fatalf("RunREPL failed: %v", err)
	}

	if strings.Join(seen, ",") != "hello,second" {
		t.Errorf("messages sent = %v", seen)
	}
	if !strings.Contains(out.String(), "echo: second") {
		t.Errorf("output missing reply:\n%s", out.String())
	}
}

func TestRunREPLStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	if err := RunREPL(context.Background(), strings.NewReader("only\n"), &out, echo); err != nil {
		t.Fatalf("RunREPL failed: %v", err)
	}
	if !strings.Contains(out.String(), "echo: only") {
		t.Errorf("output = %q", out.String())
	}
}

func TestChatModelSendAndReceive(t *testing.T) {
	m := NewChatModel(context.Background(), "u1", []ChatMessage{{Role: "user", Content: "earlier"}}, echo)

	for _, r := range "hi" {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(ChatModel)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ChatModel)
	if !m.isLoading {
		t.Fatal("model should be loading after Enter")
	}
	if cmd == nil {
		t.Fatal("Enter should return a command")
	}

	reply := m.ask("hi")()
	next, _ = m.Update(reply)
	m = next.(ChatModel)

	msgs := m.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[1].Content != "hi" || msgs[2].Content != "echo: hi" || msgs[2].Role != "assistant" {
		t.Errorf("messages = %+v", msgs)
	}
	if m.isLoading {
		t.Error("loading should clear after reply")
	}
	if !strings.Contains(m.View(), "echo: hi") {
		t.Error("view should render the reply")
	}
}

func TestChatModelIgnoresEmptyInput(t *testing.T) {
	m := NewChatModel(context.Background(), "u1", nil, echo)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("empty input should not send")
	}
	if len(next.(ChatModel).Messages()) != 0 {
		t.Error("empty input should not add messages")
	}
}
