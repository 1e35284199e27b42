package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const getBufSize = 64 * 1024

var getCmd = &cobra.Command{
	Use:   "get <remote-path> <local-file>",
	Short: "Download a catalog file to local disk",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath, localPath := args[0], args[1]

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	src, err := a.store.OpenRead(remotePath)
	if err != nil {
		return fmt.Errorf("fabnetctl get: open %s: %w", remotePath, err)
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("fabnetctl get: %w", err)
	}
	defer dst.Close()

	for {
		data, rerr := src.Read(getBufSize)
		if rerr != nil {
			return fmt.Errorf("fabnetctl get: read %s: %w", remotePath, rerr)
		}
		if len(data) == 0 {
			break
		}
		if _, werr := dst.Write(data); werr != nil {
			return fmt.Errorf("fabnetctl get: write %s: %w", localPath, werr)
		}
	}

	if err := src.Close(); err != nil {
		return fmt.Errorf("fabnetctl get: close %s: %w", remotePath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "get %s -> %s\n", remotePath, localPath)
	return nil
}
