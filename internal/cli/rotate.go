package cli

import (
	"fmt"
	"os"

	"github.com/rcliao/agent-notes/internal/rotation"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rotate <note>",
		Short: "Rotate a note into the archive if it is over threshold",
		Long: "Rotate a note into the archive when it has outgrown its threshold. " +
			"The note is replaced by a fresh template pointing at the summary of the archived content. " +
			"Use --force to rotate regardless of size.",
		Args: cobra.ExactArgs(1),
		Run:  runRotate,
	}

	cmd.Flags().StringP("agent", "a", "", "Agent owning the note (default: derived from the file name)")
	cmd.Flags().String("trigger", "maintenance", "Trigger: maintenance or persona_switch")
	cmd.Flags().Bool("force", false, "Rotate even when under threshold")
	cmd.Flags().Bool("verify", false, "Verify post-conditions after rotating")
	cmd.Flags().String("report", "", "Write a YAML run report to this path")

	RootCmd.AddCommand(cmd)
}

func runRotate(cmd *cobra.Command, args []string) {
	agentFlag, _ := cmd.Flags().GetString("agent")
	force, _ := cmd.Flags().GetBool("force")
	verify, _ := cmd.Flags().GetBool("verify")
	reportPath, _ := cmd.Flags().GetString("report")
	trigger := parseTrigger(cmd)

	e, _, closeFn := openEngine(cmd)
	defer closeFn()

	req := rotation.Request{Path: args[0], Agent: agentFor(args[0], agentFlag), Trigger: trigger}
	var (
		out *rotation.Outcome
		err error
	)
	if force {
		out, err = e.PerformRotation(cmd.Context(), req)
	} else {
		out, err = e.RotateIfNeeded(cmd.Context(), req)
	}

	if err == nil && verify && out.Rotated {
		if verr := e.VerifyRotation(cmd.Context(), out.Path, out.Entry); verr != nil {
			out.Error = verr.Error()
			err = verr
		}
	}

	if reportPath != "" && out != nil {
		if rerr := rotation.WriteReport(reportPath, []*rotation.Outcome{out}); rerr != nil {
			exitErr("write report", rerr)
		}
	}

	if out != nil {
		if textOutput() {
			fmt.Fprintln(stdout, rotation.StatusLine(out))
		} else {
			printJSON(out)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: rotate: %v\n", err)
		os.Exit(1)
	}
}
