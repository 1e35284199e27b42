package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

func runMkdir(cmd *cobra.Command, args []string) error {
	path := args[0]

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Mkdir(path); err != nil {
		return fmt.Errorf("fabnetctl mkdir: %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
	return nil
}
