package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory's entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) == 1 {
		path = args[0]
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	items, err := a.cat.Listdir(path)
	if err != nil {
		return fmt.Errorf("fabnetctl ls: %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	for _, item := range items {
		kind := "f"
		if item.IsDirectory() {
			kind = "d"
		}
		fmt.Fprintf(out, "%s\t%10d\t%s\n", kind, item.Size, item.Name)
	}
	return nil
}
