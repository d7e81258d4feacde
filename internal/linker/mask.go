package linker

import (
	"bytes"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// style describes the comment and string syntax of a language family.
type style struct {
	line   []string
	block  [][2]string
	quotes string
	// blankStrings blanks string literals too. Only safe where import
	// statements never carry their specifier in a string.
	blankStrings bool
	// hashWord makes '#' a comment only at the start of a word.
	hashWord bool
}

var (
	cStyle      = style{line: []string{"//"}, block: [][2]string{{"/*", "*/"}}, quotes: "\"'`"}
	pythonStyle = style{line: []string{"#"}, quotes: "\"'", blankStrings: true}
	rustStyle   = style{line: []string{"//"}, block: [][2]string{{"/*", "*/"}}, quotes: "\""}
	rubyStyle   = style{line: []string{"#"}, block: [][2]string{{"\n=begin", "\n=end"}}, quotes: "\"'"}
	shellStyle  = style{line: []string{"#"}, quotes: "\"'", hashWord: true}
	phpStyle    = style{line: []string{"//", "#"}, block: [][2]string{{"/*", "*/"}}, quotes: "\"'"}
	cssStyle    = style{block: [][2]string{{"/*", "*/"}}, quotes: "\"'"}
	htmlStyle   = style{block: [][2]string{{"<!--", "-->"}}}
	sqlStyle    = style{line: []string{"--"}, block: [][2]string{{"/*", "*/"}}, quotes: "'"}
	plainStyle  = style{}
)

func styleFor(lang graph.Language) style {
	switch lang {
	case graph.LangPython:
		return pythonStyle
	case graph.LangRust:
		// Lifetimes rule out single-quoted literals.
		return rustStyle
	case graph.LangRuby:
		return rubyStyle
	case graph.LangShell:
		return shellStyle
	case graph.LangPHP:
		return phpStyle
	case graph.LangCSS:
		return cssStyle
	case graph.LangHTML, graph.LangMarkdown:
		return htmlStyle
	case graph.LangSQL:
		return sqlStyle
	case graph.LangJSON, graph.LangYAML, graph.LangUnknown:
		return plainStyle
	}
	return cStyle
}

// Blank returns a copy of content with the comments and string literals of
// lang replaced by spaces. Offsets and newlines are preserved, so positions
// found in the copy are positions in content.
func Blank(lang graph.Language, content []byte) []byte {
	st := styleFor(lang)
	st.blankStrings = true
	return mask(content, st)
}

// mask returns a copy of src with comments (and, for some styles, string
// literals) replaced by spaces. Newlines and byte offsets are preserved so
// match positions in the copy are positions in src.
func mask(src []byte, st style) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	blank := func(from, to int) {
		for i := from; i < to && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}

	for i := 0; i < len(src); {
		if end, ok := blockComment(src, i, st); ok {
			blank(i, end)
			i = end
			continue
		}
		if lineComment(src, i, st) {
			end := bytes.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			blank(i, i+end)
			i += end
			continue
		}
		if q := src[i]; bytes.IndexByte([]byte(st.quotes), q) >= 0 {
			end := stringEnd(src, i)
			if st.blankStrings {
				blank(i, end)
			}
			i = end
			continue
		}
		i++
	}
	return out
}

func blockComment(src []byte, i int, st style) (int, bool) {
	for _, b := range st.block {
		open := b[0]
		// Markers anchored at a line start match from the preceding newline
		// or from the beginning of the file.
		if open[0] == '\n' && i == 0 {
			open = open[1:]
		}
		if !bytes.HasPrefix(src[i:], []byte(open)) {
			continue
		}
		end := bytes.Index(src[i+len(open):], []byte(b[1]))
		if end < 0 {
			return len(src), true
		}
		return i + len(open) + end + len(b[1]), true
	}
	return 0, false
}

func lineComment(src []byte, i int, st style) bool {
	for _, marker := range st.line {
		if !bytes.HasPrefix(src[i:], []byte(marker)) {
			continue
		}
		if marker == "#" && st.hashWord && i > 0 && src[i-1] != ' ' && src[i-1] != '\t' && src[i-1] != '\n' {
			continue
		}
		return true
	}
	return false
}

// stringEnd returns the offset just past the string literal opening at i.
// Python-style triple quotes are honored; an unterminated single-line
// literal ends at the newline.
func stringEnd(src []byte, i int) int {
	q := src[i]
	if i+2 < len(src) && src[i+1] == q && src[i+2] == q && q != '`' {
		triple := []byte{q, q, q}
		if end := bytes.Index(src[i+3:], triple); end >= 0 {
			return i + 3 + end + 3
		}
		return len(src)
	}
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			if q != '`' {
				return j
			}
		}
	}
	return len(src)
}
