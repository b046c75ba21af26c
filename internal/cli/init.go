// init.go implements the "aiorch init" command.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/warriorcabo/ai-orchestration-system/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to .aiorch/config.yaml",
	Long: `Create the .aiorch/ directory with a default config.yaml. Provider
credentials are read from OPENAI_API_KEY and GEMINI_API_KEY (or a .env file)
and are never written to the config.`,
	RunE: runInit,
}

var (
	forceFlag   bool
	offlineFlag bool
)

func init() {
	initCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing config")
	initCmd.Flags().BoolVar(&offlineFlag, "offline", false, "Route every role to the mock provider")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	path := filepath.Join(config.Dir(dir), "config.yaml")
	if _, statErr := os.Stat(path); statErr == nil && !forceFlag {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}

	cfg := config.DefaultConfig()
	if offlineFlag {
		cfg.Routing.Planner = "mock"
		cfg.Routing.Generator = "mock"
		cfg.Routing.Reviewer = "mock"
	}
	if err := config.WriteConfig(dir, cfg); err != nil {
		return err
	}

	fmt.Fprintln(out, "aiorch initialized")
	fmt.Fprintf(out, "Configuration written to %s\n", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Export %s and %s (or put them in .env)\n",
		cfg.Providers.OpenAI.APIKeyEnv, cfg.Providers.Gemini.APIKeyEnv)
	fmt.Fprintln(out, "  2. Run: aiorch ask \"your question\"")
	return nil
}
