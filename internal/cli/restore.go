package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "restore <entry-id> <note>",
		Short: "Write an archived note back in place of the current one",
		Args:  cobra.ExactArgs(2),
		Run:   runRestore,
	}

	RootCmd.AddCommand(cmd)
}

func runRestore(cmd *cobra.Command, args []string) {
	e, _, closeFn := openEngine(cmd)
	defer closeFn()

	entry, err := e.Restore(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("restore", err)
	}

	if textOutput() {
		fmt.Fprintf(stdout, "restored %s from %s (%d lines)\n", args[1], entry.ArchiveFile, entry.LineCount)
		return
	}
	printJSON(entry)
}
