package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RunREPL reads one message per line from in and writes each reply to out.
// It stops at EOF, on "/quit" or when ctx is cancelled.
func RunREPL(ctx context.Context, in io.Reader, out io.Writer, respond Responder) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		fmt.Fprintln(out, respond(ctx, line))
	}
}
