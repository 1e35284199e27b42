package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file or empty directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	path := args[0]

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Remove(path); err != nil {
		return fmt.Errorf("fabnetctl rm: %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
	return nil
}
