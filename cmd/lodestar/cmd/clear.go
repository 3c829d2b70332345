package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all indexed data",
		Long: `Remove every chunk and source record from the index. The embedding
dimension is kept so the index can be rebuilt with the same provider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func runClear(ctx context.Context, cmd *cobra.Command, force bool) error {
	_, st, err := openExistingStore(".")
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	chunks := st.TotalChunkCount()
	sources := st.TrackedSourceCount()

	if !force {
		fmt.Fprintf(cmd.OutOrStdout(), "This deletes %d chunks from %d documents. Continue? [y/N]: ", chunks, sources)

		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	if err := st.ClearAll(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d chunks from %d documents.\n", chunks, sources)
	return nil
}
