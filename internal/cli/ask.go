// ask.go implements the "aiorch ask" command: one message, one reply.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User identifier owning the conversation")
}

func runAsk(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	a, err := newApp(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.orch.Process(cmd.Context(), userID, strings.Join(args, " "))
	fmt.Fprintln(cmd.OutOrStdout(), res.Reply)

	if Verbose() {
		fmt.Fprintf(cmd.ErrOrStderr(), "state=%s attempts=%d reviews=%d\n", res.State, res.Attempts, res.Reviews)
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", res.Err)
		}
	}
	return nil
}

// defaultUser names the local conversation after the OS user.
func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return "local-" + u
	}
	return "local"
}
