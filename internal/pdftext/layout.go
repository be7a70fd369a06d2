package pdftext

import (
	"math"
	"sort"
	"strings"
)

// Word is a run of glyphs on one line with no visible gap between them
type Word struct {
	X        float64
	W        float64
	FontSize float64
	S        string
}

// End returns the right edge of the word
func (w Word) End() float64 {
	return w.X + w.W
}

// Glyph is one positioned text item as reported by the PDF content stream
type Glyph struct {
	X        float64
	Y        float64
	W        float64
	FontSize float64
	S        string
}

// Line is a row of words sharing a baseline
type Line struct {
	Y     float64
	Words []Word
}

// Table is a grid of cell texts, header row included
type Table [][]string

const (
	// lineTolerance merges glyph rows whose baselines differ by less than this
	lineTolerance = 2.0
	// minTableColumns is the word count that makes a line part of a table
	minTableColumns = 3
	// defaultGap separates words when the font size is unknown
	defaultGap = 3.0
)

// BuildLines groups glyphs into lines ordered top to bottom and merges
// adjacent glyphs into words.
func BuildLines(glyphs []Glyph) []Line {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := make([]Glyph, len(glyphs))
	copy(sorted, glyphs)
	// PDF space grows upwards, so the top of the page has the largest Y
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y > sorted[j].Y
	})

	var groups [][]Glyph
	for _, g := range sorted {
		if g.S == "" {
			continue
		}
		n := len(groups)
		if n > 0 && math.Abs(groups[n-1][0].Y-g.Y) <= lineTolerance {
			groups[n-1] = append(groups[n-1], g)
			continue
		}
		groups = append(groups, []Glyph{g})
	}

	lines := make([]Line, 0, len(groups))
	for _, group := range groups {
		words := mergeWords(group)
		if len(words) == 0 {
			continue
		}
		lines = append(lines, Line{Y: group[0].Y, Words: words})
	}
	return lines
}

func mergeWords(glyphs []Glyph) []Word {
	sort.SliceStable(glyphs, func(i, j int) bool {
		return glyphs[i].X < glyphs[j].X
	})

	var words []Word
	var cur *Word
	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			// explicit spaces end the word
			cur = nil
			continue
		}
		gap := defaultGap
		if g.FontSize > 0 {
			gap = g.FontSize * 0.5
		}
		if cur != nil && g.X-cur.End() <= gap {
			cur.S += g.S
			if end := g.X + g.W; end > cur.End() {
				cur.W = end - cur.X
			}
			continue
		}
		words = append(words, Word{X: g.X, W: g.W, FontSize: g.FontSize, S: g.S})
		cur = &words[len(words)-1]
	}
	return words
}

// DetectTables finds runs of lines laid out in columns. The first line of a
// run with at least minTableColumns words defines the columns, unless the
// next line has at least twice as many words: then the first line was a
// preamble, and it is dropped in favour of the wider header. Shorter lines that leave the first column empty are
// wrapped cell text and are appended to the row above.
func DetectTables(lines []Line) []Table {
	var tables []Table
	var (
		current     Table
		bounds      []float64
		anchorWords int
		inTable     bool
	)

	flush := func() {
		if inTable && len(current) > 0 {
			tables = append(tables, current)
		}
		current, bounds, anchorWords, inTable = nil, nil, 0, false
	}

	for _, line := range lines {
		if !inTable {
			if len(line.Words) < minTableColumns {
				continue
			}
			bounds = columnBounds(line.Words)
			anchorWords = len(line.Words)
			inTable = true
			current = Table{assign(line.Words, bounds)}
			continue
		}

		if len(current) == 1 && len(line.Words) >= 2*anchorWords {
			bounds = columnBounds(line.Words)
			anchorWords = len(line.Words)
			current = Table{assign(line.Words, bounds)}
			continue
		}

		row := assign(line.Words, bounds)
		if len(line.Words) >= minTableColumns {
			current = append(current, row)
			continue
		}
		if row[0] == "" && len(current) > 1 {
			appendCells(current[len(current)-1], row)
			continue
		}
		flush()
	}
	flush()
	return tables
}

// columnBounds returns the left boundary of every column after the first,
// halfway between the end of one header word and the start of the next.
func columnBounds(header []Word) []float64 {
	bounds := make([]float64, 0, len(header)-1)
	for i := 1; i < len(header); i++ {
		bounds = append(bounds, (header[i-1].End()+header[i].X)/2)
	}
	return bounds
}

func assign(words []Word, bounds []float64) []string {
	cells := make([]string, len(bounds)+1)
	for _, w := range words {
		col := sort.SearchFloat64s(bounds, w.X+0.0001)
		if cells[col] == "" {
			cells[col] = w.S
		} else {
			cells[col] += " " + w.S
		}
	}
	return cells
}

func appendCells(dst, extra []string) {
	for i, s := range extra {
		if s == "" {
			continue
		}
		if dst[i] == "" {
			dst[i] = s
		} else {
			dst[i] += s
		}
	}
}
