package enhance

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// StrippedTags lists the tags whose closed pairs are removed with their content.
var StrippedTags = []string{"think", "details", "summary", "thinking"}

var (
	tagPatterns = compileTagPatterns(StrippedTags)
	newlineRuns = regexp.MustCompile(`\n+`)
)

func compileTagPatterns(tags []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		name := regexp.QuoteMeta(tag)
		patterns = append(patterns, regexp.MustCompile(`(?i)<`+name+`\b[^>]*>[\s\S]*?</`+name+`>`))
	}
	return patterns
}

// StripTags removes every closed think/details/summary/thinking pair and its
// content. Unclosed tags are kept. Runs of three or more newlines collapse to
// two. A run of two or more newlines touching a removed span and sitting
// between two non-space characters collapses to one. The result is trimmed.
func StripTags(text string) string {
	out := text
	var gaps []int
	for {
		removed := false
		for _, pattern := range tagPatterns {
			var ok bool
			out, gaps, ok = removeMatches(pattern, out, gaps)
			removed = removed || ok
		}
		// removal can join fragments into a new closed pair
		if !removed {
			break
		}
	}
	return strings.TrimSpace(collapseNewlines(out, gaps))
}

// removeMatches deletes every match of pattern and returns the new text with
// gap offsets remapped onto it plus one gap per removed span.
func removeMatches(pattern *regexp.Regexp, text string, gaps []int) (string, []int, bool) {
	matches := pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, gaps, false
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		last = m[1]
	}
	b.WriteString(text[last:])

	shift := func(offset int) int {
		delta := 0
		for _, m := range matches {
			switch {
			case offset >= m[1]:
				delta += m[1] - m[0]
			case offset > m[0]:
				return m[0] - delta
			default:
				return offset - delta
			}
		}
		return offset - delta
	}
	next := make([]int, 0, len(gaps)+len(matches))
	for _, g := range gaps {
		next = append(next, shift(g))
	}
	for _, m := range matches {
		next = append(next, shift(m[0]))
	}
	return b.String(), next, true
}

func collapseNewlines(text string, gaps []int) string {
	matches := newlineRuns.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		n := end - start
		if n < 2 {
			continue
		}
		switch {
		case touchesGap(start, end, gaps) && sandwiched(text, start, end):
			b.WriteString(text[last:start])
			b.WriteByte('\n')
			last = end
		case n > 2:
			b.WriteString(text[last:start])
			b.WriteString("\n\n")
			last = end
		}
	}
	b.WriteString(text[last:])
	return b.String()
}

func touchesGap(start, end int, gaps []int) bool {
	for _, g := range gaps {
		if g >= start && g <= end {
			return true
		}
	}
	return false
}

func sandwiched(text string, start, end int) bool {
	if start == 0 || end == len(text) {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(text[:start])
	after, _ := utf8.DecodeRuneInString(text[end:])
	return !unicode.IsSpace(before) && !unicode.IsSpace(after)
}
