package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/rcliao/agent-notes/internal/rotation"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Rotate every configured agent's note as needed",
		Long: "Check each note listed under agents.<name> in the config and rotate those over threshold. " +
			"A failed note does not stop the others. The index is trimmed to archive.max_entries afterwards.",
		Args: cobra.NoArgs,
		Run:  runMaintain,
	}

	cmd.Flags().String("trigger", "maintenance", "Trigger: maintenance or persona_switch")
	cmd.Flags().String("report", "", "Write a YAML run report to this path")
	cmd.Flags().Bool("optimize", false, "Also drop duplicate index entries")

	RootCmd.AddCommand(cmd)
}

func runMaintain(cmd *cobra.Command, args []string) {
	reportPath, _ := cmd.Flags().GetString("report")
	optimize, _ := cmd.Flags().GetBool("optimize")
	trigger := parseTrigger(cmd)

	if len(cfg.Agents) == 0 {
		exitErr("maintain", fmt.Errorf("no agents configured (set agents.<name>: <note path>)"))
	}

	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	slices.Sort(names)

	reqs := make([]rotation.Request, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, rotation.Request{Path: cfg.Agents[name], Agent: name, Trigger: trigger})
	}

	e, idx, closeFn := openEngine(cmd)
	defer closeFn()

	outcomes := e.BatchRotate(cmd.Context(), reqs)

	if optimize {
		if _, err := idx.Optimize(cmd.Context()); err != nil {
			exitErr("optimize index", err)
		}
	}
	if _, err := idx.Cleanup(cmd.Context(), cfg.Archive.MaxEntries); err != nil {
		exitErr("cleanup index", err)
	}

	if reportPath != "" {
		if err := rotation.WriteReport(reportPath, outcomes); err != nil {
			exitErr("write report", err)
		}
	}

	if textOutput() {
		for _, o := range outcomes {
			fmt.Fprintln(stdout, rotation.StatusLine(o))
		}
	} else {
		printJSON(outcomes)
	}

	// Notes that do not exist yet are skipped, not failed.
	for _, o := range outcomes {
		if o.Error != "" && !o.Skipped {
			os.Exit(1)
		}
	}
}
