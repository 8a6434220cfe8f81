package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Archive index management",
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of archive entries",
		Args:  cobra.NoArgs,
		Run:   runIndexCount,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archive entries, oldest first",
		Args:  cobra.NoArgs,
		Run:   runIndexList,
	}
	listCmd.Flags().StringP("agent", "a", "", "Filter by agent")
	listCmd.Flags().IntP("limit", "l", 0, "Show only the most recent N entries (0 = all)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		Run:   runIndexStats,
	}

	searchCmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Find entries by keyword",
		Args:  cobra.MinimumNArgs(1),
		Run:   runIndexSearch,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Keep only the most recent entries",
		Long:  "Drop the oldest index entries beyond --max (default archive.max_entries). Archive files stay on disk.",
		Args:  cobra.NoArgs,
		Run:   runIndexCleanup,
	}
	cleanupCmd.Flags().Int("max", 0, "Entries to keep (default: archive.max_entries)")

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Drop duplicate entries and sort by time",
		Args:  cobra.NoArgs,
		Run:   runIndexOptimize,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every entry's archive file exists",
		Args:  cobra.NoArgs,
		Run:   runIndexVerify,
	}

	indexCmd.AddCommand(countCmd, listCmd, statsCmd, searchCmd, cleanupCmd, optimizeCmd, verifyCmd)
	RootCmd.AddCommand(indexCmd)
}

func runIndexCount(cmd *cobra.Command, args []string) {
	idx := openIndex(cmd, newAnalyzer())
	n, err := idx.Count(cmd.Context())
	if err != nil {
		exitErr("count", err)
	}
	fmt.Fprintln(stdout, n)
}

func runIndexList(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")
	limit, _ := cmd.Flags().GetInt("limit")

	idx := openIndex(cmd, newAnalyzer())
	entries, err := idx.Entries(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	if agent != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if strings.EqualFold(e.Agent, agent) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	if textOutput() {
		for _, e := range entries {
			fmt.Fprintf(stdout, "%s  %s  %-10s %5d lines %8s  %s\n",
				e.ID, e.Timestamp.Format("2006-01-02 15:04"), e.Agent, e.LineCount,
				humanize.Bytes(uint64(e.ArchivedSize)), e.ArchiveFile)
		}
		return
	}
	printJSON(entries)
}

func runIndexStats(cmd *cobra.Command, args []string) {
	idx := openIndex(cmd, newAnalyzer())
	stats, err := idx.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if textOutput() {
		fmt.Fprintf(stdout, "%d entries in %s (%s, %s backend), newest %s\n",
			stats.Entries, stats.IndexPath, stats.IndexSizeText, stats.Backend, stats.NewestText)
		for _, k := range stats.TopKeywords {
			fmt.Fprintf(stdout, "  %-12s %d\n", k.Keyword, k.Count)
		}
		return
	}
	printJSON(stats)
}

func runIndexSearch(cmd *cobra.Command, args []string) {
	idx := openIndex(cmd, newAnalyzer())
	results, err := idx.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		exitErr("search", err)
	}

	if textOutput() {
		for _, r := range results {
			fmt.Fprintf(stdout, "%s  %-10s %s  [%s]\n", r.ID, r.Agent, r.ArchiveFile, strings.Join(r.Keywords, ", "))
		}
		return
	}
	printJSON(results)
}

func runIndexCleanup(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("max")
	if limit <= 0 {
		limit = cfg.Archive.MaxEntries
	}

	idx := openIndex(cmd, newAnalyzer())
	removed, err := idx.Cleanup(cmd.Context(), limit)
	if err != nil {
		exitErr("cleanup", err)
	}

	if textOutput() {
		fmt.Fprintf(stdout, "removed %d entries (keeping at most %d)\n", removed, limit)
		return
	}
	printJSON(map[string]int{"removed": removed, "max_entries": limit})
}

func runIndexOptimize(cmd *cobra.Command, args []string) {
	idx := openIndex(cmd, newAnalyzer())
	res, err := idx.Optimize(cmd.Context())
	if err != nil {
		exitErr("optimize", err)
	}

	if textOutput() {
		fmt.Fprintf(stdout, "%d -> %d entries, %d duplicates removed\n", res.Before, res.After, res.Duplicates)
		return
	}
	printJSON(res)
}

func runIndexVerify(cmd *cobra.Command, args []string) {
	idx := openIndex(cmd, newAnalyzer())
	report := idx.VerifyIntegrity(cmd.Context())

	if textOutput() {
		switch {
		case report.Error != "":
			fmt.Fprintf(stdout, "index unreadable: %s\n", report.Error)
		case report.Missing > 0:
			fmt.Fprintf(stdout, "%d of %d archive files missing\n", report.Missing, report.Total)
			for _, f := range report.Files {
				fmt.Fprintf(stdout, "  %s\n", f)
			}
		default:
			fmt.Fprintf(stdout, "ok: %d entries verified\n", report.Total)
		}
	} else {
		printJSON(report)
	}

	if !report.OK() {
		os.Exit(1)
	}
}
