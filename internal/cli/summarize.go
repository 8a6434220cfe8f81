package cli

import (
	"fmt"

	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "summarize <note>",
		Short: "Print a markdown summary of a note",
		Args:  cobra.ExactArgs(1),
		Run:   runSummarize,
	}

	cmd.Flags().StringP("agent", "a", "", "Agent owning the note (default: derived from the file name)")
	cmd.Flags().Bool("detailed", false, "Include every critical and important line and a section outline")

	RootCmd.AddCommand(cmd)
}

func runSummarize(cmd *cobra.Command, args []string) {
	agentFlag, _ := cmd.Flags().GetString("agent")
	detailed, _ := cmd.Flags().GetBool("detailed")
	a := newAnalyzer()

	doc, err := analyzer.LoadDocument(args[0], agentFor(args[0], agentFlag))
	if err != nil {
		exitErr("load note", err)
	}

	// Summaries are markdown either way.
	if detailed {
		fmt.Fprint(stdout, a.SummarizeDetailed(doc))
		return
	}
	fmt.Fprint(stdout, a.Summarize(doc))
}
