// clean.go implements the "aiorch clean" command for pruning the output
// archive.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warriorcabo/ai-orchestration-system/internal/archive"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune old exchanges from the output archive",
	Long: `Delete archived exchanges under the output directory, either by age
(--days) or by keeping only the newest --keep exchanges per user.`,
	RunE: runClean,
}

var (
	daysFlag   int
	keepFlag   int
	dryRunFlag bool
)

func init() {
	cleanCmd.Flags().IntVar(&daysFlag, "days", 30, "Remove exchanges older than this many days")
	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the newest N exchanges per user (overrides --days)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Show what would be removed without deleting")
}

func runClean(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}

	store := archive.NewFileStore(resolvePath(dir, cfg.Output.Dir))

	var pruned []string
	if keepFlag > 0 {
		pruned, err = store.PruneKeepRecent(keepFlag, dryRunFlag)
	} else {
		pruned, err = store.PruneByAge(time.Duration(daysFlag)*24*time.Hour, dryRunFlag)
	}
	if err != nil {
		return fmt.Errorf("pruning archive: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(pruned) == 0 {
		fmt.Fprintln(out, "Nothing to clean.")
		return nil
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, p := range pruned {
		fmt.Fprintf(out, "  %s\n", p)
	}
	fmt.Fprintf(out, "%s %d exchange(s).\n", verb, len(pruned))
	return nil
}
