package heuristic

import (
	"sort"
	"strings"
)

// decl is one declaration found in blanked source. Offsets index the
// original content.
type decl struct {
	role  role
	kw    string
	name  string
	mods  string
	recv  string
	trait string
	// order is the index of the pattern that found the declaration.
	order int

	start     int
	nameEnd   int
	bodyStart int // opening brace or header end; -1 without a body
	headerEnd int
	end       int
}

// owner is the type a receiver-qualified function belongs to.
func (d *decl) owner() string {
	recv := strings.TrimSpace(d.recv)
	switch {
	case recv == "" || recv == "self.":
		return ""
	case strings.HasSuffix(recv, "::"), strings.HasSuffix(recv, "."):
		recv = strings.TrimRight(recv, ":.")
		return recv[strings.LastIndexAny(recv, ":.")+1:]
	}
	// Go receiver: "r *Repo[T]".
	f := strings.Fields(recv)
	t := strings.TrimLeft(f[len(f)-1], "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t
}

// findDecls runs every pattern of fam over src and returns the matches in
// source order. When two patterns match at the same offset the earlier
// pattern wins.
func findDecls(fam *family, src []byte) []*decl {
	var out []*decl
	seen := make(map[int]bool)
	for order, pat := range fam.patterns {
		re := pat.re
		group := func(m []int, name string) (string, int) {
			i := re.SubexpIndex(name)
			if i < 0 || m[2*i] < 0 {
				return "", -1
			}
			return string(src[m[2*i]:m[2*i+1]]), m[2*i+1]
		}
		for _, m := range re.FindAllSubmatchIndex(src, -1) {
			name, nameEnd := group(m, "name")
			if name == "" || (!pat.keyworded && reserved[name]) {
				continue
			}
			start := m[0]
			for start < len(src) && (src[start] == ' ' || src[start] == '\t' || src[start] == '\n') {
				start++
			}
			if seen[start] {
				continue
			}
			seen[start] = true
			d := &decl{role: pat.role, name: name, order: order, start: start, nameEnd: nameEnd}
			d.kw, _ = group(m, "kw")
			d.mods, _ = group(m, "mods")
			d.recv, _ = group(m, "recv")
			d.trait, _ = group(m, "trait")
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// --- Body ranges ---

// braceBody locates the body of a declaration whose header starts at from.
// Parentheses and brackets in the header are skipped. A header that ends
// in a semicolon or a newline has no body.
func braceBody(src []byte, from int) (open, end int) {
	depth := 0
	for i := from; i < len(src); i++ {
		switch src[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '{':
			if depth == 0 {
				return i, matchBrace(src, i)
			}
		case ';':
			if depth == 0 {
				return -1, i + 1
			}
		case '}':
			if depth == 0 {
				return -1, i
			}
		case '\n':
			if depth == 0 && !continues(src, i) {
				return -1, i
			}
		}
	}
	return -1, len(src)
}

// matchBrace returns the offset just past the brace closing the one at open.
func matchBrace(src []byte, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(src)
}

var continuationWords = []string{"extends", "implements", "where", "throws", "with", ":", "{", "->", "=>"}

// continues reports whether the header broken by the newline at nl goes on
// past it: the line ends in an operator or a comma, or the next line
// starts with a brace or an inheritance clause.
func continues(src []byte, nl int) bool {
	j := nl - 1
	for j >= 0 && (src[j] == ' ' || src[j] == '\t' || src[j] == '\r') {
		j--
	}
	if j >= 0 && strings.IndexByte(",=>:|&+(", src[j]) >= 0 {
		return true
	}
	k := nl + 1
	for k < len(src) && (src[k] == ' ' || src[k] == '\t' || src[k] == '\n' || src[k] == '\r') {
		k++
	}
	rest := string(src[k:min(k+12, len(src))])
	for _, w := range continuationWords {
		if strings.HasPrefix(rest, w) {
			return true
		}
	}
	return false
}

// indentBody locates the body of a Python or Ruby declaration: every
// following line indented deeper than the declaration line. Ruby bodies
// include their closing end.
func indentBody(src []byte, start int, ruby bool) (headerEnd, end int) {
	lineStart := strings.LastIndexByte(string(src[:start]), '\n') + 1
	indent := indentOf(src[lineStart:])

	headerEnd = lineEnd(src, start)
	if !ruby {
		// A Python header runs to the colon outside brackets.
		depth := 0
	scan:
		for i := start; i < len(src); i++ {
			switch src[i] {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			case ':':
				if depth == 0 {
					headerEnd = i + 1
					break scan
				}
			}
		}
	}

	end = lineEnd(src, headerEnd)
	for pos := end + 1; pos < len(src); {
		le := lineEnd(src, pos)
		line := src[pos:le]
		if strings.TrimSpace(string(line)) == "" {
			pos = le + 1
			continue
		}
		if indentOf(line) <= indent {
			if ruby && strings.HasPrefix(strings.TrimSpace(string(line)), "end") {
				end = le
			}
			break
		}
		end = le
		pos = le + 1
	}
	return headerEnd, end
}

func lineEnd(src []byte, from int) int {
	if from >= len(src) {
		return len(src)
	}
	if i := strings.IndexByte(string(src[from:]), '\n'); i >= 0 {
		return from + i
	}
	return len(src)
}

// indentOf counts leading whitespace, a tab counting as four columns.
func indentOf(line []byte) int {
	n := 0
	for _, b := range line {
		switch b {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// parameters splits the parameter list that follows a declaration name.
func parameters(src []byte, from int, limit int) []string {
	i := from
	for i < limit && i < len(src) && src[i] != '(' {
		if src[i] == '{' || src[i] == '\n' || src[i] == ';' {
			return nil
		}
		i++
	}
	if i >= limit || i >= len(src) {
		return nil
	}
	depth, start := 0, i+1
	var out []string
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '(', '[', '{', '<':
			depth++
		case '>':
			if src[j-1] != '=' && src[j-1] != '-' {
				depth--
			}
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if p := strings.Join(strings.Fields(string(src[start:j])), " "); p != "" {
					out = append(out, p)
				}
				return out
			}
		case ',':
			if depth == 1 {
				if p := strings.Join(strings.Fields(string(src[start:j])), " "); p != "" {
					out = append(out, p)
				}
				start = j + 1
			}
		}
	}
	return out
}
