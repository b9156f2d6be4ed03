package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ah_scanner/models"
)

var commandCmd = &cobra.Command{
	Use:       "command <poll_now|import_now|compact_now|pause|resume>",
	Short:     "Queue an operator command for the running daemon",
	Args:      cobra.ExactArgs(1),
	ValidArgs: commandNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, ok := models.ParseCommandType(args[0])
		if !ok {
			return fmt.Errorf("unknown command %q, want one of %s", args[0], strings.Join(commandNames(), ", "))
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.EnqueueCommand(ctx, typ, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s (id %d)\n", typ, id)
		return nil
	},
}

func commandNames() []string {
	names := make([]string, 0, len(models.CommandTypes))
	for _, c := range models.CommandTypes {
		names = append(names, string(c))
	}
	return names
}

func init() {
	rootCmd.AddCommand(commandCmd)
}
