package segment

import (
	"bytes"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// PHPScanner separates PHP code islands from the surrounding HTML.
type PHPScanner struct{}

// NewPHPScanner returns a PHPScanner.
func NewPHPScanner() *PHPScanner { return &PHPScanner{} }

// Name implements Scanner.
func (*PHPScanner) Name() string { return "php" }

// Accepts implements Scanner.
func (*PHPScanner) Accepts(host graph.Language, _ string) bool {
	return host == graph.LangPHP
}

var (
	phpOpenTags = [][]byte{[]byte("<?php"), []byte("<?=")}
	phpClose    = []byte("?>")
)

// Scan implements Scanner. PHP regions include their tags; text outside
// them is reported as HTML. An island that is never closed runs to the end.
func (*PHPScanner) Scan(content []byte, _ graph.Language) []Region {
	var regions []Region
	html := func(start, end int) {
		if end > start && len(bytes.TrimSpace(content[start:end])) > 0 {
			regions = append(regions, Region{
				Language:   graph.LangHTML,
				Start:      start,
				End:        end,
				Confidence: 0.7,
				Source:     "php:html",
			})
		}
	}

	pos := 0
	for pos < len(content) {
		open, tagLen := nextOpenTag(content[pos:])
		if open < 0 {
			break
		}
		open += pos
		html(pos, open)
		body := open + tagLen
		next := len(content)
		if i := bytes.Index(content[body:], phpClose); i >= 0 {
			next = body + i + len(phpClose)
		}
		regions = append(regions, Region{
			Language:   graph.LangPHP,
			Start:      open,
			End:        next,
			Confidence: 0.95,
			Source:     "php:code",
		})
		pos = next
	}
	if len(regions) > 0 {
		html(pos, len(content))
	}
	return regions
}

func nextOpenTag(b []byte) (int, int) {
	best, bestLen := -1, 0
	for _, tag := range phpOpenTags {
		if i := bytes.Index(b, tag); i >= 0 && (best < 0 || i < best) {
			best, bestLen = i, len(tag)
		}
	}
	return best, bestLen
}
