package cli

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "check <note>",
		Short: "Check a note against its rotation threshold",
		Args:  cobra.ExactArgs(1),
		Run:   runCheck,
	}

	cmd.Flags().String("trigger", "maintenance", "Trigger: maintenance or persona_switch")

	RootCmd.AddCommand(cmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	trigger := parseTrigger(cmd)
	e, _, closeFn := openEngine(cmd)
	defer closeFn()

	check, err := e.CheckThreshold(args[0], trigger)
	if err != nil {
		if !goerr.HasTag(err, model.ErrTagValidation) {
			exitErr("check", err)
		}
		// A missing note has nothing to rotate.
		logging.From(cmd.Context()).Warn("note not checked", "path", args[0], "error", err)
	}

	if textOutput() {
		fmt.Fprintf(stdout, "%s: %d/%d lines, %s\n", check.Path, check.Lines, check.Threshold, check.Status)
		return
	}
	printJSON(check)
}
