package segment

import (
	"bytes"
	"strings"

	"github.com/dusk-indust/polyparse/internal/detect"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// MarkdownScanner finds fenced code blocks and YAML front matter.
type MarkdownScanner struct{}

// NewMarkdownScanner returns a MarkdownScanner.
func NewMarkdownScanner() *MarkdownScanner { return &MarkdownScanner{} }

// Name implements Scanner.
func (*MarkdownScanner) Name() string { return "markdown" }

// Accepts implements Scanner.
func (*MarkdownScanner) Accepts(host graph.Language, _ string) bool {
	return host == graph.LangMarkdown
}

type fence struct {
	char   byte
	length int
	lang   graph.Language
	body   int // offset of the first body byte
}

// Scan implements Scanner. Fences without a recognizable info string stay
// part of the Markdown host.
func (*MarkdownScanner) Scan(content []byte, _ graph.Language) []Region {
	var regions []Region
	if fm, ok := frontMatter(content); ok {
		regions = append(regions, fm)
	}

	var cur *fence
	for off := 0; off < len(content); {
		end := bytes.IndexByte(content[off:], '\n')
		next := len(content)
		if end >= 0 {
			next = off + end + 1
		}
		line := content[off:next]

		if cur == nil {
			if f, ok := openFence(line); ok {
				f.body = next
				cur = &f
			}
		} else if closesFence(line, cur) {
			if cur.lang != graph.LangUnknown && off > cur.body {
				regions = append(regions, Region{
					Language:   cur.lang,
					Start:      cur.body,
					End:        off,
					Confidence: 0.9,
					Source:     "markdown:fence",
				})
			}
			cur = nil
		}
		off = next
	}
	// An unterminated fence runs to the end of the document.
	if cur != nil && cur.lang != graph.LangUnknown && len(content) > cur.body {
		regions = append(regions, Region{
			Language:   cur.lang,
			Start:      cur.body,
			End:        len(content),
			Confidence: 0.75,
			Source:     "markdown:fence",
		})
	}
	return regions
}

func openFence(line []byte) (fence, bool) {
	trimmed := bytes.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
		return fence{}, false
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return fence{}, false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	if n < 3 {
		return fence{}, false
	}
	info := strings.TrimSpace(string(trimmed[n:]))
	if c == '`' && strings.Contains(info, "`") {
		return fence{}, false
	}
	if fields := strings.Fields(info); len(fields) > 0 {
		info = strings.Trim(fields[0], "{}.")
	}
	return fence{char: c, length: n, lang: detect.FromName(info)}, true
}

func closesFence(line []byte, f *fence) bool {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) < f.length {
		return false
	}
	for _, b := range trimmed {
		if b != f.char {
			return false
		}
	}
	return true
}

// frontMatter recognizes a leading "---" delimited YAML header.
func frontMatter(content []byte) (Region, bool) {
	if !bytes.HasPrefix(content, []byte("---\n")) && !bytes.HasPrefix(content, []byte("---\r\n")) {
		return Region{}, false
	}
	start := bytes.IndexByte(content, '\n') + 1
	for off := start; off < len(content); {
		end := bytes.IndexByte(content[off:], '\n')
		next := len(content)
		if end >= 0 {
			next = off + end + 1
		}
		if string(bytes.TrimSpace(content[off:next])) == "---" {
			if off == start {
				return Region{}, false
			}
			return Region{
				Language:   graph.LangYAML,
				Start:      start,
				End:        off,
				Confidence: 0.85,
				Source:     "markdown:frontmatter",
			}, true
		}
		off = next
	}
	return Region{}, false
}
