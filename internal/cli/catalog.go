package cli

import (
	"fmt"
	"strings"

	"github.com/rcliao/agent-notes/internal/archive"
	"github.com/rcliao/agent-notes/internal/catalog"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Full-text catalog of archived notes (requires catalog.path)",
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search archived note sections",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCatalogSearch,
	}
	searchCmd.Flags().StringP("agent", "a", "", "Filter by agent")
	searchCmd.Flags().IntP("limit", "l", 20, "Max results")

	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the catalog from the archive index",
		Args:  cobra.NoArgs,
		Run:   runCatalogRebuild,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		Args:  cobra.NoArgs,
		Run:   runCatalogStats,
	}

	catalogCmd.AddCommand(searchCmd, rebuildCmd, statsCmd)
	RootCmd.AddCommand(catalogCmd)
}

func runCatalogSearch(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")
	limit, _ := cmd.Flags().GetInt("limit")

	c := requireCatalog()
	defer c.Close()

	hits, err := c.Search(cmd.Context(), catalog.SearchParams{
		Query: strings.Join(args, " "),
		Agent: agent,
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if textOutput() {
		for _, h := range hits {
			fmt.Fprintf(stdout, "%s:%d-%d (%s) %s\n", h.ArchiveFile, h.StartLine, h.EndLine, h.Agent, h.Snippet)
		}
		return
	}
	if len(hits) == 0 {
		fmt.Fprintln(stdout, "[]")
		return
	}
	printJSON(hits)
}

func runCatalogRebuild(cmd *cobra.Command, args []string) {
	c := requireCatalog()
	defer c.Close()

	idx := openIndex(cmd, newAnalyzer())
	entries, err := idx.Entries(cmd.Context())
	if err != nil {
		exitErr("read index", err)
	}

	store := archive.New(cfg.Archive.Dir, cfg.Archive.Compression)
	logger := logging.From(cmd.Context())
	res, err := c.Rebuild(cmd.Context(), entries, func(e model.ArchiveEntry) (string, error) {
		data, err := store.Read(e.ArchiveFile)
		if err != nil {
			logger.Warn("skipping unreadable archive", "archive_file", e.ArchiveFile, "error", err)
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		exitErr("rebuild", err)
	}

	if textOutput() {
		fmt.Fprintf(stdout, "recorded %d archives, skipped %d\n", res.Recorded, len(res.Skipped))
		return
	}
	printJSON(res)
}

func runCatalogStats(cmd *cobra.Command, args []string) {
	c := requireCatalog()
	defer c.Close()

	stats, err := c.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(stats)
}
