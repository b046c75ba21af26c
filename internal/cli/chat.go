// chat.go implements the "aiorch chat" interactive command.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/warriorcabo/ai-orchestration-system/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Open a chat with the orchestrator. A terminal gets the full-screen
view; piped input is answered one line at a time.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User identifier owning the conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	a, err := newApp(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	var history []tui.ChatMessage
	for _, e := range a.store.GetOrCreate(userID).History() {
		history = append(history, tui.ChatMessage{Role: e.Role, Content: e.Content})
	}

	respond := func(ctx context.Context, message string) string {
		return a.orch.ProcessMessage(ctx, userID, message)
	}
	return tui.RunChat(cmd.Context(), userID, history, respond)
}
