// Package ingest turns course handbook PDFs into indexable sections.
//
// The handbook encodes structure typographically: section titles are set
// in a black (heaviest) font cut and subsection headings in a semibold
// cut. Splitting on font weight keeps each section intact instead of
// slicing mid-topic at a fixed character count.
package ingest

import (
	"fmt"
	"slices"
	"strings"
)

// Font cuts that carry structure in the course handbook.
const (
	titleFont   = "MyriadPro-Black"
	keywordFont = "MyriadPro-Semibold"
)

// Line is one text line in reading order with its dominant font.
type Line struct {
	Text string
	Font string
}

// Section is one title-delimited slice of the handbook. Content includes
// the subsection headings; Keywords lists them plus the title itself.
type Section struct {
	Title    string
	Content  string
	Keywords []string
	Source   string
}

// ID is a stable document key for the section, so re-indexing the same
// file updates rows in place.
func (s Section) ID(index int) string {
	return fmt.Sprintf("%s#%03d-%s", s.Source, index, slug(s.Title))
}

func isTitleFont(font string) bool {
	return font != "" && strings.Contains(strings.ToLower(font), strings.ToLower(titleFont))
}

func isKeywordFont(font string) bool {
	return font != "" && strings.Contains(strings.ToLower(font), strings.ToLower(keywordFont))
}

// Sectionise splits lines into title-delimited sections.
//
// A section starts at a run of title-font lines (multi-line titles are
// joined with spaces) and its content runs until the next title or the
// end of input. Lines before the first title belong to no section and
// are dropped.
func Sectionise(lines []Line, source string) []Section {
	var sections []Section

	i := 0
	for i < len(lines) {
		if !isTitleFont(lines[i].Font) {
			i++
			continue
		}

		var titleParts []string
		for i < len(lines) && isTitleFont(lines[i].Font) {
			titleParts = append(titleParts, strings.TrimSpace(lines[i].Text))
			i++
		}
		title := strings.TrimSpace(strings.Join(titleParts, " "))

		var content []string
		keywords := map[string]struct{}{title: {}}
		for i < len(lines) && !isTitleFont(lines[i].Font) {
			if isKeywordFont(lines[i].Font) {
				keywords[strings.TrimSpace(lines[i].Text)] = struct{}{}
			}
			content = append(content, lines[i].Text)
			i++
		}

		sections = append(sections, Section{
			Title:    title,
			Content:  title + "\n\n" + strings.TrimSpace(strings.Join(content, "\n")),
			Keywords: sortedKeys(keywords),
			Source:   source,
		})
	}

	return sections
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
