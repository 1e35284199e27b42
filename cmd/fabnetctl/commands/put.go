package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const putBufSize = 64 * 1024

var putCmd = &cobra.Command{
	Use:   "put <local-file> <remote-path>",
	Short: "Upload a local file to the catalog",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath, remotePath := args[0], args[1]

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("fabnetctl put: %w", err)
	}
	defer src.Close()

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	dst, err := a.store.OpenWrite(remotePath)
	if err != nil {
		return fmt.Errorf("fabnetctl put: open %s: %w", remotePath, err)
	}

	buf := make([]byte, putBufSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("fabnetctl put: write %s: %w", remotePath, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("fabnetctl put: read %s: %w", localPath, rerr)
		}
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("fabnetctl put: close %s: %w", remotePath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "put %s -> %s\n", localPath, remotePath)
	return nil
}
