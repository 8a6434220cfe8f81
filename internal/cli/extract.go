package cli

import (
	"fmt"

	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "extract <note>",
		Short: "List the lines of a note in one importance tier",
		Args:  cobra.ExactArgs(1),
		Run:   runExtract,
	}

	cmd.Flags().StringP("agent", "a", "", "Agent owning the note (default: derived from the file name)")
	cmd.Flags().String("class", "critical", "Tier: critical, important, normal, archive or temporary")
	cmd.Flags().IntP("max", "m", 0, "Max lines (0 = all)")

	RootCmd.AddCommand(cmd)
}

func runExtract(cmd *cobra.Command, args []string) {
	agentFlag, _ := cmd.Flags().GetString("agent")
	classStr, _ := cmd.Flags().GetString("class")
	maxLines, _ := cmd.Flags().GetInt("max")

	class, ok := model.ParseClassification(classStr)
	if !ok {
		exitErr("parse class", fmt.Errorf("unknown class %q", classStr))
	}

	a := newAnalyzer()
	doc, err := analyzer.LoadDocument(args[0], agentFor(args[0], agentFlag))
	if err != nil {
		exitErr("load note", err)
	}

	lines := []model.Line{}
	for line := range a.Extract(doc, class, maxLines) {
		lines = append(lines, line)
	}

	if textOutput() {
		for _, l := range lines {
			fmt.Fprintf(stdout, "L%d: %s\n", l.Number, l.Text)
		}
		return
	}
	printJSON(lines)
}
