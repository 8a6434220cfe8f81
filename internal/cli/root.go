// Package cli implements the agent-notes CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/rcliao/agent-notes/internal/archive"
	"github.com/rcliao/agent-notes/internal/catalog"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/index"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/rotation"
	"github.com/spf13/cobra"
)

var (
	configPath string
	formatFlag string
	verbose    bool

	cfg *config.Config

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-notes",
	Short: "Keep agent note files bounded",
	Long: "Scores agent notes for importance, rotates notes that outgrow their threshold " +
		"into a dated archive, and maintains a searchable archive index.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./agent-notes.yml or ~/.agent-notes/agent-notes.yml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger := logging.New(level, os.Stderr)
	logging.SetDefault(logger)
	cmd.SetContext(logging.With(cmd.Context(), logger))
	return nil
}

func textOutput() bool {
	return strings.EqualFold(formatFlag, "text")
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(stdout, string(b))
}

// agentFor resolves the agent owning a note: the flag, then the configured
// agent whose path matches, then the file name without a "-notes" suffix.
func agentFor(path, flag string) string {
	if flag != "" {
		return flag
	}
	abs, _ := filepath.Abs(path)
	for name, p := range cfg.Agents {
		if pa, _ := filepath.Abs(p); pa == abs {
			return name
		}
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(strings.TrimSuffix(base, "-notes"), "_notes")
	return strings.ToLower(base)
}

func newAnalyzer() *analyzer.Analyzer {
	a, err := analyzer.New(cfg)
	if err != nil {
		exitErr("load patterns", err)
	}
	return a
}

func openIndex(cmd *cobra.Command, a *analyzer.Analyzer) *index.Manager {
	m, err := index.NewManager(cmd.Context(), cfg.Archive.Dir, cfg.Archive.Backend, a)
	if err != nil {
		exitErr("open index", err)
	}
	return m
}

// openCatalog returns nil when no catalog is configured.
func openCatalog() *catalog.Catalog {
	if cfg.Catalog.Path == "" {
		return nil
	}
	c, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		exitErr("open catalog", err)
	}
	return c
}

func requireCatalog() *catalog.Catalog {
	c := openCatalog()
	if c == nil {
		fmt.Fprintln(os.Stderr, "error: catalog disabled: set catalog.path or AGENT_NOTES_CATALOG_PATH")
		os.Exit(1)
	}
	return c
}

// openEngine wires the rotation engine. The returned close func releases
// the catalog, if any.
func openEngine(cmd *cobra.Command) (*rotation.Engine, *index.Manager, func()) {
	a := newAnalyzer()
	idx := openIndex(cmd, a)
	e := rotation.New(cfg, a, idx, archive.New(cfg.Archive.Dir, cfg.Archive.Compression))

	closeFn := func() {}
	if c := openCatalog(); c != nil {
		e.WithRecorder(c)
		closeFn = func() { c.Close() }
	}
	return e, idx, closeFn
}

func parseTrigger(cmd *cobra.Command) rotation.Trigger {
	s, _ := cmd.Flags().GetString("trigger")
	t, ok := rotation.ParseTrigger(s)
	if !ok {
		exitErr("parse trigger", fmt.Errorf("unknown trigger %q (use maintenance or persona_switch)", s))
	}
	return t
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
