// status.go implements the "aiorch status" command showing providers,
// configuration and recent errors.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/internal/provider"
	"github.com/warriorcabo/ai-orchestration-system/internal/server"
	"github.com/warriorcabo/ai-orchestration-system/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider configuration and recent errors",
	Long: `Display which providers are routed to which role, whether their
credentials are present, the orchestration settings and the most recent
errors from .aiorch/log.jsonl.`,
	RunE: runStatus,
}

var errorsFlag int

func init() {
	statusCmd.Flags().IntVar(&errorsFlag, "errors", 5, "Number of recent errors to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	a, err := newApp(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.TitleStyle.Render("aiorch status"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Providers:")
	for _, p := range a.providers {
		fmt.Fprintf(out, "  %s %-9s  %-7s %s\n", providerIcon(p), p.Role, p.Name, tui.DimStyle.Render(p.Model))
	}
	fmt.Fprintln(out)

	o := a.cfg.Orchestration
	fmt.Fprintf(out, "Retries: %d  Review loops: %d  Backoff: %s..%s  Breaker: %d failures / %s\n",
		o.MaxRetries, o.MaxFeedbackLoops, o.BackoffBase, o.MaxBackoff,
		o.CircuitBreakerThreshold, o.CircuitBreakerCooldown)
	if a.history != nil {
		if n, err := a.history.CountSessions(); err == nil {
			fmt.Fprintf(out, "Sessions: %d persisted\n", n)
		}
	}
	if a.archive != nil {
		fmt.Fprintf(out, "Outputs: %s\n", a.archive.Dir())
	}
	fmt.Fprintln(out)

	return printRecentErrors(out, a.logger, errorsFlag)
}

func providerIcon(p server.ProviderInfo) string {
	switch {
	case !p.Configured:
		return tui.IconFail
	case p.Name == provider.MockName:
		return tui.IconWarn
	}
	return tui.IconOK
}

// printRecentErrors prints the last n error events from the log file.
func printRecentErrors(out io.Writer, logger *log.Logger, n int) error {
	events, err := logger.ReadAll()
	if err != nil {
		return fmt.Errorf("reading log: %w", err)
	}

	var errs []log.LogEvent
	for _, e := range events {
		if e.Event == log.EventError {
			errs = append(errs, e)
		}
	}
	if len(errs) > n {
		errs = errs[len(errs)-n:]
	}

	if len(errs) == 0 {
		fmt.Fprintln(out, tui.SuccessStyle.Render("No recent errors."))
		return nil
	}
	fmt.Fprintln(out, tui.WarningStyle.Render(fmt.Sprintf("Recent errors (%d):", len(errs))))
	for _, e := range errs {
		fmt.Fprintf(out, "  %s  %-12s %s\n", e.Time.Local().Format("2006-01-02 15:04:05"), e.Source, e.Error)
	}
	return nil
}
