package entry

import "strings"

// Summary is the structured form of an entry's summary text: a title plus
// up to five short bullet points.
type Summary struct {
	Title   string
	Bullets []string
}

// FormatSummary renders a summary into the single text blob stored on the
// entry: the first line is the title, each following line one bullet
// prefixed with "- ". ParseSummary inverts it exactly.
func FormatSummary(s Summary) string {
	var b strings.Builder
	b.WriteString(s.Title)
	for _, bullet := range s.Bullets {
		b.WriteString("\n- ")
		b.WriteString(bullet)
	}
	return b.String()
}

// ParseSummary splits a stored summary blob back into title and bullets.
func ParseSummary(text string) Summary {
	lines := strings.Split(text, "\n")
	s := Summary{Title: lines[0]}
	for _, line := range lines[1:] {
		s.Bullets = append(s.Bullets, strings.TrimPrefix(line, "- "))
	}
	return s
}
