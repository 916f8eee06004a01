package ingest

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractLines reads a PDF and returns its text lines in reading order,
// each tagged with the dominant font of its spans. Rows with no visible
// text are skipped.
func ExtractLines(path string) ([]Line, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %q: %w", path, err)
	}
	defer f.Close()

	var lines []Line
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("reading page %d of %q: %w", pageNum, path, err)
		}

		for _, row := range rows {
			line, ok := rowToLine(row.Content)
			if ok {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

func rowToLine(spans []pdf.Text) (Line, bool) {
	var b strings.Builder
	for _, span := range spans {
		b.WriteString(span.S)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return Line{}, false
	}
	return Line{Text: text, Font: dominantFont(spans)}, true
}

// dominantFont is the most frequent font among spans that carry visible
// text, ties broken by first appearance.
func dominantFont(spans []pdf.Text) string {
	counts := make(map[string]int)
	var order []string
	for _, span := range spans {
		if strings.TrimSpace(span.S) == "" {
			continue
		}
		if _, seen := counts[span.Font]; !seen {
			order = append(order, span.Font)
		}
		counts[span.Font]++
	}

	best := ""
	for _, font := range order {
		if best == "" || counts[font] > counts[best] {
			best = font
		}
	}
	return best
}
