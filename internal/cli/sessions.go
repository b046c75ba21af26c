// sessions.go implements the "aiorch sessions" command listing persisted
// conversations.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warriorcabo/ai-orchestration-system/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted conversations",
	RunE:  runSessions,
}

var (
	limitFlag   int
	showFlag    string
	historyFlag int
)

func init() {
	sessionsCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum number of sessions to list")
	sessionsCmd.Flags().StringVar(&showFlag, "show", "", "Print the conversation of this user")
	sessionsCmd.Flags().IntVar(&historyFlag, "history", 20, "Messages shown with --show (0 = all)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	if !cfg.Session.Persist {
		return fmt.Errorf("session persistence is disabled (session.persist: false)")
	}

	h, err := session.NewHistory(resolvePath(dir, cfg.Session.DBPath))
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()

	if showFlag != "" {
		rec, err := h.LatestSession(showFlag)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no session for user %q", showFlag)
		}
		entries, err := h.RecentMessages(rec.ID, historyFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Session %s (%s)\n\n", rec.ID, rec.UserID)
		for _, e := range entries {
			fmt.Fprintf(out, "[%s] %s: %s\n", e.Time.Local().Format("2006-01-02 15:04"), e.Role, e.Content)
		}
		return nil
	}

	records, err := h.ListSessions(limitFlag)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions yet.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(out, "  %-36s  %-20s  %4d msgs  %s\n",
			rec.ID, rec.UserID, rec.Messages, rec.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
