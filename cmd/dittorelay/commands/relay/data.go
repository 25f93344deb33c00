package relay

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
)

var (
	dataOffset int64
	dataLength int64
	dataFile   string
)

var readCmd = &cobra.Command{
	Use:   "read <name>",
	Short: "Read bytes through a relay",
	Long: `Read --length bytes at --offset through a relay and write them to
stdout or --file. An IDLE relay is woken first, so the command blocks for
at least the wake timeout.

Examples:
  dittorelay relay read disk0 --offset 0 --length 512 | hexdump -C`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <name>",
	Short: "Write bytes through a relay",
	Long: `Write stdin or --file at --offset through a relay.

Examples:
  echo -n hello | dittorelay relay write disk0 --offset 4096`,
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

var flushCmd = &cobra.Command{
	Use:   "flush <name>",
	Short: "Flush the device behind a relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdutil.GetClient().Flush(cmd.Context(), args[0])
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <name>",
	Short: "Discard a range on the device behind a relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dataLength <= 0 {
			return fmt.Errorf("--length must be positive")
		}
		return cmdutil.GetClient().Discard(cmd.Context(), args[0], dataOffset, dataLength)
	},
}

func init() {
	for _, c := range []*cobra.Command{readCmd, writeCmd, discardCmd} {
		c.Flags().Int64Var(&dataOffset, "offset", 0, "Byte offset in the relay address space")
	}
	for _, c := range []*cobra.Command{readCmd, discardCmd} {
		c.Flags().Int64Var(&dataLength, "length", 0, "Number of bytes")
	}
	readCmd.Flags().StringVar(&dataFile, "file", "", "Write the data to this file instead of stdout")
	writeCmd.Flags().StringVar(&dataFile, "file", "", "Read the data from this file instead of stdin")
}

func runRead(cmd *cobra.Command, args []string) error {
	if dataLength <= 0 {
		return fmt.Errorf("--length must be positive")
	}

	data, err := cmdutil.GetClient().Read(cmd.Context(), args[0], dataOffset, dataLength)
	if err != nil {
		return err
	}

	if dataFile != "" {
		return os.WriteFile(dataFile, data, 0644)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runWrite(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if dataFile != "" {
		data, err = os.ReadFile(dataFile)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	return cmdutil.GetClient().Write(cmd.Context(), args[0], dataOffset, data)
}
