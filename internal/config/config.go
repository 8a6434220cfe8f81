// Package config loads the rotation, scoring and archive settings.
//
// A Config is built once per invocation and passed explicitly to the
// analyzer, index manager and rotation engine.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix, e.g.
// AGENT_NOTES_ROTATION_THRESHOLD_LINES.
const EnvPrefix = "AGENT_NOTES"

// Compression modes for archive artifacts.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// Index backends.
const (
	BackendAuto       = "auto"
	BackendStructured = "structured"
	BackendTextual    = "textual"
)

// Rotation holds the line thresholds. Both triggers read from here.
type Rotation struct {
	ThresholdLines           int
	PreemptiveThresholdLines int
}

// Score holds the classification cut points on the 0-100 scale.
type Score struct {
	Critical         int
	Important        int
	Normal           int
	TemporaryPenalty int
}

// Archive holds archive storage settings.
type Archive struct {
	Dir         string
	MaxEntries  int
	Compression string
	Backend     string
}

// Catalog holds the optional SQLite catalog settings.
type Catalog struct {
	Path string
}

// Analysis holds analyzer tuning.
type Analysis struct {
	// Budget is the soft time budget for analyzing a 1000-line document.
	Budget time.Duration
}

// Patterns holds regular expressions for content signals.
type Patterns struct {
	Critical  []string
	Important []string
	Temporary []string
	// Agents maps an agent name to its domain keywords.
	Agents map[string][]string
}

// Config is the full configuration.
type Config struct {
	Rotation Rotation
	Score    Score
	Archive  Archive
	Catalog  Catalog
	Analysis Analysis
	Patterns Patterns
	// Agents maps an agent name to its note document path.
	Agents   map[string]string
	LogLevel string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Rotation: Rotation{
			ThresholdLines:           500,
			PreemptiveThresholdLines: 450,
		},
		Score: Score{
			Critical:         80,
			Important:        60,
			Normal:           30,
			TemporaryPenalty: 20,
		},
		Archive: Archive{
			Dir:         ".agent-notes/archive",
			MaxEntries:  100,
			Compression: CompressionNone,
			Backend:     BackendAuto,
		},
		Analysis: Analysis{Budget: time.Second},
		Patterns: Patterns{
			Critical:  append([]string(nil), defaultCritical...),
			Important: append([]string(nil), defaultImportant...),
			Temporary: append([]string(nil), defaultTemporary...),
			Agents:    defaultAgentKeywords(),
		},
		Agents:   map[string]string{},
		LogLevel: "info",
	}
}

var (
	defaultCritical = []string{
		`(?i)\bcritical\b`,
		`(?i)\burgent\b`,
		`(?i)\bblocker\b`,
		`(?i)\bsecurity\b`,
		`(?i)\bbreaking\b`,
		`(?i)\bmust not\b`,
		`(?i)\bnever\b`,
		`🚨`,
	}
	defaultImportant = []string{
		`(?i)\bimportant\b`,
		`(?i)\btodo\b`,
		`(?i)\bfixme\b`,
		`(?i)\bdecision\b`,
		`(?i)\bremember\b`,
		`(?i)\bwarning\b`,
		`(?i)\bblocked\b`,
		`(?i)\bnote:`,
		`⚠️`,
	}
	defaultTemporary = []string{
		`(?i)\bdraft\b`,
		`(?i)\btemp(orary)?\b`,
		`(?i)\bwip\b`,
		`(?i)\bscratch\b`,
		`(?i)\bignore\b`,
	}
)

func defaultAgentKeywords() map[string][]string {
	return map[string][]string{
		"planner": {"architecture", "design", "requirement", "strategy", "roadmap", "milestone", "scope"},
		"builder": {"implement", "test", "build", "bug", "fix", "refactor", "deploy"},
	}
}

// Load reads configuration from an optional file, AGENT_NOTES_* environment
// variables and the defaults, in that order of precedence (env wins).
// An empty path looks for agent-notes.yml in the working directory and
// ~/.agent-notes; a missing implicit file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agent-notes")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.agent-notes")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, goerr.Wrap(err, "read config file", goerr.V("path", path), goerr.T(model.ErrTagValidation))
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("rotation.threshold_lines", d.Rotation.ThresholdLines)
	v.SetDefault("rotation.preemptive_threshold_lines", d.Rotation.PreemptiveThresholdLines)
	v.SetDefault("score.critical", d.Score.Critical)
	v.SetDefault("score.important", d.Score.Important)
	v.SetDefault("score.normal", d.Score.Normal)
	v.SetDefault("score.temporary_penalty", d.Score.TemporaryPenalty)
	v.SetDefault("archive.dir", d.Archive.Dir)
	v.SetDefault("archive.max_entries", d.Archive.MaxEntries)
	v.SetDefault("archive.compression", d.Archive.Compression)
	v.SetDefault("archive.backend", d.Archive.Backend)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("analysis.budget", d.Analysis.Budget)
	v.SetDefault("patterns.critical", d.Patterns.Critical)
	v.SetDefault("patterns.important", d.Patterns.Important)
	v.SetDefault("patterns.temporary", d.Patterns.Temporary)
	v.SetDefault("log.level", d.LogLevel)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Rotation: Rotation{
			ThresholdLines:           v.GetInt("rotation.threshold_lines"),
			PreemptiveThresholdLines: v.GetInt("rotation.preemptive_threshold_lines"),
		},
		Score: Score{
			Critical:         v.GetInt("score.critical"),
			Important:        v.GetInt("score.important"),
			Normal:           v.GetInt("score.normal"),
			TemporaryPenalty: v.GetInt("score.temporary_penalty"),
		},
		Archive: Archive{
			Dir:         v.GetString("archive.dir"),
			MaxEntries:  v.GetInt("archive.max_entries"),
			Compression: strings.ToLower(v.GetString("archive.compression")),
			Backend:     strings.ToLower(v.GetString("archive.backend")),
		},
		Catalog:  Catalog{Path: v.GetString("catalog.path")},
		Analysis: Analysis{Budget: v.GetDuration("analysis.budget")},
		Patterns: Patterns{
			Critical:  v.GetStringSlice("patterns.critical"),
			Important: v.GetStringSlice("patterns.important"),
			Temporary: v.GetStringSlice("patterns.temporary"),
			Agents:    defaultAgentKeywords(),
		},
		Agents:   v.GetStringMapString("agents"),
		LogLevel: v.GetString("log.level"),
	}

	// Agent keyword sets from the file extend or replace the built-ins.
	for agent := range v.GetStringMap("patterns.agents") {
		cfg.Patterns.Agents[strings.ToLower(agent)] = v.GetStringSlice("patterns.agents." + agent)
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]string{}
	}
	return cfg
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	checks := []error{
		safety.InRange("rotation.threshold_lines", c.Rotation.ThresholdLines, 1, 1_000_000),
		safety.InRange("rotation.preemptive_threshold_lines", c.Rotation.PreemptiveThresholdLines, 1, c.Rotation.ThresholdLines),
		safety.InRange("score.critical", c.Score.Critical, 0, 100),
		safety.InRange("score.important", c.Score.Important, 0, c.Score.Critical),
		safety.InRange("score.normal", c.Score.Normal, 0, c.Score.Important),
		safety.InRange("score.temporary_penalty", c.Score.TemporaryPenalty, 0, 100),
		safety.InRange("archive.max_entries", c.Archive.MaxEntries, 1, 1_000_000),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	switch c.Archive.Compression {
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return goerr.New("unknown archive.compression",
			goerr.V("value", c.Archive.Compression), goerr.T(model.ErrTagValidation))
	}
	switch c.Archive.Backend {
	case BackendAuto, BackendStructured, BackendTextual:
	default:
		return goerr.New("unknown archive.backend",
			goerr.V("value", c.Archive.Backend), goerr.T(model.ErrTagValidation))
	}
	if c.Archive.Dir == "" {
		return goerr.New("archive.dir is empty", goerr.T(model.ErrTagValidation))
	}
	if c.Analysis.Budget < 0 {
		return goerr.New("analysis.budget is negative", goerr.V("value", c.Analysis.Budget), goerr.T(model.ErrTagValidation))
	}
	if len(c.Patterns.Critical) == 0 {
		return goerr.New("patterns.critical is empty", goerr.T(model.ErrTagValidation))
	}
	return nil
}

// Threshold returns the line threshold for a rotation trigger.
func (r Rotation) Threshold(preemptive bool) int {
	if preemptive {
		return r.PreemptiveThresholdLines
	}
	return r.ThresholdLines
}
