package rotation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Template renders the fresh note that replaces a rotated one.
func Template(agent string, rotatedAt time.Time, archivedLines int, summaryRel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Notes\n\n", title(agent))
	b.WriteString("## Current Work\n\n")
	b.WriteString("## Notes\n\n")
	b.WriteString("---\n")
	fmt.Fprintf(&b, "Rotated: %s (%d lines archived)\n", rotatedAt.UTC().Format("2006-01-02 15:04:05 UTC"), archivedLines)
	if summaryRel != "" {
		fmt.Fprintf(&b, "Previous summary: %s\n", summaryRel)
	}
	return b.String()
}

func title(agent string) string {
	if agent == "" {
		return "Agent"
	}
	r, size := utf8.DecodeRuneInString(agent)
	return string(unicode.ToUpper(r)) + agent[size:]
}
