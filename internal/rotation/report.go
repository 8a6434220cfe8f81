package rotation

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/safety"
	"gopkg.in/yaml.v3"
)

// Report is the structured record of one rotation run.
type Report struct {
	GeneratedAt time.Time  `yaml:"generated_at"`
	Rotated     int        `yaml:"rotated"`
	Unchanged   int        `yaml:"unchanged"`
	Skipped     int        `yaml:"skipped"`
	Failed      int        `yaml:"failed"`
	Outcomes    []*Outcome `yaml:"outcomes"`
}

// NewReport tallies outcomes.
func NewReport(outcomes []*Outcome, at time.Time) *Report {
	r := &Report{GeneratedAt: at.UTC(), Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			r.Skipped++
		case o.Error != "":
			r.Failed++
		case o.Rotated:
			r.Rotated++
		default:
			r.Unchanged++
		}
	}
	return r
}

// WriteReport writes the outcomes as YAML to path.
func WriteReport(path string, outcomes []*Outcome) error {
	data, err := yaml.Marshal(NewReport(outcomes, time.Now()))
	if err != nil {
		return goerr.Wrap(err, "encode rotation report")
	}
	return safety.WriteAtomic(path, data, 0o644)
}
