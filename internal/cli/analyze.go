package cli

import (
	"fmt"

	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze <note> [note...]",
		Short: "Score notes for importance",
		Long: "Score one note and show its tiers and previews, or score several notes and " +
			"list them from most to least important. Unreadable notes are skipped.",
		Args: cobra.MinimumNArgs(1),
		Run:  runAnalyze,
	}

	cmd.Flags().StringP("agent", "a", "", "Agent owning the notes (default: derived from each file name)")
	cmd.Flags().Int("preview", 5, "Preview lines per tier for a single note (0 = all)")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	agentFlag, _ := cmd.Flags().GetString("agent")
	preview, _ := cmd.Flags().GetInt("preview")
	a := newAnalyzer()

	if len(args) > 1 {
		reqs := make([]analyzer.Request, 0, len(args))
		for _, path := range args {
			reqs = append(reqs, analyzer.Request{Path: path, Agent: agentFor(path, agentFlag)})
		}
		results := a.BatchAnalyze(cmd.Context(), reqs)
		if textOutput() {
			for _, r := range results {
				fmt.Fprintf(stdout, "%3d %-9s %5d lines  %s\n", r.Score.Value, r.Class, r.Lines, r.Path)
			}
			return
		}
		printJSON(results)
		return
	}

	doc, err := analyzer.LoadDocument(args[0], agentFor(args[0], agentFlag))
	if err != nil {
		exitErr("load note", err)
	}
	report := a.Analyze(doc, preview)

	if textOutput() {
		fmt.Fprintf(stdout, "%s: score %d (%s), %d lines, %d critical, %d important\n",
			report.Path, report.Score.Value, report.Class, report.TotalLines,
			report.CriticalItems, report.ImportantItems)
		return
	}
	printJSON(report)
}
