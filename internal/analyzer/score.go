package analyzer

import (
	"math"
	"strings"

	"github.com/rcliao/agent-notes/internal/model"
)

type checkbox int

const (
	noCheckbox checkbox = iota
	openCheckbox
	doneCheckbox
)

// signal is what a single line contributes to scoring.
type signal struct {
	blank     bool
	critical  bool
	important bool
	temporary bool
	heading   bool
	decision  bool
	checkbox  checkbox
	agentHits int
	// patterns holds the indexes (critical first, then important) of the
	// patterns this line matched.
	patterns []int
}

func (s signal) isSignal() bool { return s.critical || s.important }

func (s signal) isStructured() bool {
	return s.isSignal() || s.heading || s.decision || s.checkbox != noCheckbox
}

// scan evaluates every line once. Scores are derived from the result.
type scan struct {
	lines   []signal
	counts  []int // matches per pattern index
	nonZero int   // non-blank lines
}

func (a *Analyzer) scan(doc *model.NoteDocument) *scan {
	sc := &scan{
		lines:  make([]signal, len(doc.Lines)),
		counts: make([]int, len(a.critical)+len(a.important)),
	}
	agentRe := a.agents[strings.ToLower(doc.Agent)]

	for i, text := range doc.Lines {
		var s signal
		if strings.TrimSpace(text) == "" {
			s.blank = true
			sc.lines[i] = s
			continue
		}
		sc.nonZero++

		for j, re := range a.critical {
			if re.MatchString(text) {
				s.critical = true
				s.patterns = append(s.patterns, j)
				sc.counts[j]++
			}
		}
		if !s.critical {
			for j, re := range a.important {
				if re.MatchString(text) {
					s.important = true
					s.patterns = append(s.patterns, len(a.critical)+j)
					sc.counts[len(a.critical)+j]++
				}
			}
		}
		s.temporary = anyMatch(a.temporary, text)
		s.heading = headingRe.MatchString(text)
		s.decision = decisionRe.MatchString(text)
		if m := checkboxRe.FindStringSubmatch(text); m != nil {
			if m[1] == " " {
				s.checkbox = openCheckbox
			} else {
				s.checkbox = doneCheckbox
			}
		}
		if agentRe != nil {
			s.agentHits = len(agentRe.FindAllStringIndex(text, -1))
		}
		sc.lines[i] = s
	}
	return sc
}

// density is the share of non-blank neighbours within contextRadius of line
// i that carry a structural or keyword signal.
func (sc *scan) density(i int) float64 {
	lo := max(0, i-contextRadius)
	hi := min(len(sc.lines)-1, i+contextRadius)
	var total, hits int
	for j := lo; j <= hi; j++ {
		if j == i || sc.lines[j].blank {
			continue
		}
		total++
		if sc.lines[j].isStructured() {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// AnalyzeImportance computes the document-level importance score.
func (a *Analyzer) AnalyzeImportance(doc *model.NoteDocument) model.Score {
	n := doc.LineCount()
	if n == 0 {
		return model.Score{}
	}
	sc := a.scan(doc)

	var (
		critical, important           int
		headings, open, done, decided int
		agentHits                     int
		recencySum, contextSum        float64
		signals                       int
		temporary                     bool
	)
	for i, s := range sc.lines {
		if s.critical {
			critical++
		}
		if s.important {
			important++
		}
		if s.heading {
			headings++
		}
		if s.decision {
			decided++
		}
		switch s.checkbox {
		case openCheckbox:
			open++
		case doneCheckbox:
			done++
		}
		agentHits += s.agentHits
		temporary = temporary || s.temporary

		if s.isSignal() {
			signals++
			recencySum += float64(i+1) / float64(n)
			contextSum += sc.density(i)
		}
	}

	var c model.Components
	c.Keyword = clamp(critical*20 + important*8)
	if signals > 0 {
		c.Recency = clamp(round(100 * recencySum / float64(signals)))
		c.Context = clamp(round(100 * contextSum / float64(signals)))
	}
	c.Format = clamp(headings*5 + open*3 + done + decided*10)
	c.Frequency = clamp(repetition(sc.counts) * 10)
	c.Agent = clamp(agentHits * 10)

	return model.Score{
		Value:      weighted(c),
		Components: c,
		Temporary:  temporary,
	}
}

// scoreLine scores the window around line i. Lines matching a CRITICAL or
// IMPORTANT pattern are floored at the matching cut point so that
// classification never ranks them below their keyword tier.
func (a *Analyzer) scoreLine(sc *scan, i int) model.Score {
	s := sc.lines[i]
	if s.blank {
		return model.Score{}
	}
	n := len(sc.lines)

	var c model.Components
	switch {
	case s.critical:
		c.Keyword = 100
	case s.important:
		c.Keyword = 60
	}
	c.Recency = clamp(round(100 * float64(i+1) / float64(n)))
	switch {
	case s.decision:
		c.Format = 80
	case s.heading:
		c.Format = 60
	case s.checkbox == openCheckbox:
		c.Format = 50
	case s.checkbox == doneCheckbox:
		c.Format = 20
	}
	c.Context = clamp(round(100 * sc.density(i)))
	for _, p := range s.patterns {
		c.Frequency = max(c.Frequency, clamp(sc.counts[p]*20))
	}
	if s.agentHits > 0 {
		c.Agent = 100
	}

	value := weighted(c)
	switch {
	case s.critical:
		value = max(value, a.thresholds.Critical)
	case s.important:
		value = max(value, a.thresholds.Important)
	}
	return model.Score{Value: clamp(value), Components: c, Temporary: s.temporary}
}

// repetition counts how many matches exceed the first for each pattern.
func repetition(counts []int) int {
	total := 0
	for _, n := range counts {
		if n > 1 {
			total += n - 1
		}
	}
	return total
}

func weighted(c model.Components) int {
	sum := c.Keyword*weightKeyword +
		c.Recency*weightRecency +
		c.Format*weightFormat +
		c.Context*weightContext +
		c.Frequency*weightFrequency +
		c.Agent*weightAgent
	return clamp(round(float64(sum) / 100))
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}

func round(f float64) int {
	return int(math.Round(f))
}
