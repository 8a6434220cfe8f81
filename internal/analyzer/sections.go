package analyzer

import "strings"

// Section is a heading-delimited span of a note.
type Section struct {
	Title     string `json:"title"`
	Level     int    `json:"level"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Sections splits lines on markdown headings. Content before the first
// heading becomes an untitled level-0 section. Line numbers are 1-based.
func Sections(lines []string) []Section {
	var sections []Section
	current := Section{StartLine: 1}
	open := false

	flush := func(endLine int) {
		if !open {
			return
		}
		current.EndLine = endLine
		sections = append(sections, current)
	}

	for i, line := range lines {
		lineNum := i + 1
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush(lineNum - 1)
			current = Section{
				Title:     strings.TrimSpace(m[2]),
				Level:     len(m[1]),
				StartLine: lineNum,
			}
			open = true
			continue
		}
		if !open && strings.TrimSpace(line) != "" {
			open = true
		}
	}
	flush(len(lines))
	return sections
}
