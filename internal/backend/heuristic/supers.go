package heuristic

import (
	"regexp"
	"strings"

	"github.com/dusk-indust/polyparse/internal/graph"
)

var (
	genericArgs = regexp.MustCompile(`<[^<>]*>`)
	callArgs    = regexp.MustCompile(`\([^()]*\)`)
	extendsRe   = regexp.MustCompile(`\bextends\s+(.+?)(?:\bimplements\b|\bwith\b|\{|$)`)
	implementRe = regexp.MustCompile(`\bimplements\s+(.+?)(?:\{|$)`)
	withRe      = regexp.MustCompile(`\bwith\s+([\w.$]+)`)
	colonRe     = regexp.MustCompile(`^\s*(?:\([^{]*?\))?\s*:\s*([^{]+)`)
)

// typeList splits a comma-separated list of type references, dropping
// generic arguments, constructor arguments and access modifiers.
func typeList(s string) []string {
	for genericArgs.MatchString(s) {
		s = genericArgs.ReplaceAllString(s, "")
	}
	for callArgs.MatchString(s) {
		s = callArgs.ReplaceAllString(s, "")
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		fields := strings.Fields(item)
		for len(fields) > 1 {
			switch fields[0] {
			case "public", "private", "protected", "virtual", "internal":
				fields = fields[1:]
				continue
			}
			break
		}
		if len(fields) == 0 {
			continue
		}
		name := strings.TrimRight(fields[0], "{;:")
		if name != "" && !reserved[name] {
			out = append(out, name)
		}
	}
	return out
}

// extendsImplements handles extends/implements headers. Interfaces extend
// every listed type.
func extendsImplements(kind graph.ComponentKind, header string) []super {
	var out []super
	if m := extendsRe.FindStringSubmatch(header); m != nil {
		for _, t := range typeList(m[1]) {
			out = append(out, super{graph.RelExtends, t})
		}
	}
	if m := implementRe.FindStringSubmatch(header); m != nil {
		for _, t := range typeList(m[1]) {
			out = append(out, super{graph.RelImplements, t})
		}
	}
	return out
}

// jvmSupers covers Java and Scala keywords plus Kotlin colon lists, where
// a supertype called with arguments is the superclass.
func jvmSupers(kind graph.ComponentKind, header string) []super {
	out := extendsImplements(kind, header)
	for _, m := range withRe.FindAllStringSubmatch(header, -1) {
		out = append(out, super{graph.RelMixesIn, m[1]})
	}
	if len(out) > 0 {
		return out
	}
	m := colonRe.FindStringSubmatch(header)
	if m == nil {
		return nil
	}
	list := m[1]
	if i := strings.Index(list, " where "); i >= 0 {
		list = list[:i]
	}
	for _, item := range strings.Split(genericArgs.ReplaceAllString(list, ""), ",") {
		item = strings.TrimSpace(item)
		rel := graph.RelImplements
		if strings.Contains(item, "(") || kind == graph.KindInterface {
			rel = graph.RelExtends
		}
		for _, t := range typeList(item) {
			out = append(out, super{rel, t})
		}
	}
	return out
}

// colonSupers covers C++, C# and Swift base lists.
func colonSupers(kind graph.ComponentKind, header string) []super {
	m := colonRe.FindStringSubmatch(genericArgs.ReplaceAllString(header, ""))
	if m == nil {
		return nil
	}
	list := m[1]
	if i := strings.Index(list, " where "); i >= 0 {
		list = list[:i]
	}
	var out []super
	for i, t := range typeList(list) {
		rel := graph.RelExtends
		switch {
		case kind == graph.KindInterface:
		case isInterfaceName(t):
			rel = graph.RelImplements
		case i > 0 || kind == graph.KindStruct || kind == graph.KindEnum:
			rel = graph.RelImplements
		}
		out = append(out, super{rel, t})
	}
	return out
}

// isInterfaceName recognizes the IName convention.
func isInterfaceName(t string) bool {
	t = t[strings.LastIndexAny(t, ".:")+1:]
	return len(t) > 1 && t[0] == 'I' && t[1] >= 'A' && t[1] <= 'Z'
}

// pythonSupers reads the base list of a class statement. Keyword arguments
// such as metaclass and the implicit object base are skipped.
func pythonSupers(_ graph.ComponentKind, header string) []super {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "(") {
		return nil
	}
	end := strings.LastIndex(header, ")")
	if end < 0 {
		return nil
	}
	var out []super
	for _, item := range strings.Split(header[1:end], ",") {
		item = strings.TrimSpace(item)
		if item == "" || item == "object" || strings.Contains(item, "=") {
			continue
		}
		if i := strings.Index(item, "["); i >= 0 {
			item = item[:i]
		}
		out = append(out, super{graph.RelExtends, item})
	}
	return out
}

// rubySupers reads "class A < B".
func rubySupers(_ graph.ComponentKind, header string) []super {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "<")
	if !ok {
		return nil
	}
	if f := strings.Fields(rest); len(f) > 0 {
		return []super{{graph.RelExtends, f[0]}}
	}
	return nil
}

// rustSupers reads supertraits: "trait A: B + C".
func rustSupers(kind graph.ComponentKind, header string) []super {
	if kind != graph.KindTrait {
		return nil
	}
	m := colonRe.FindStringSubmatch(genericArgs.ReplaceAllString(header, ""))
	if m == nil {
		return nil
	}
	var out []super
	for _, t := range strings.Split(m[1], "+") {
		f := strings.Fields(t)
		if len(f) == 0 || strings.HasPrefix(f[0], "'") {
			continue
		}
		if t = strings.TrimSuffix(f[0], "{"); t != "" {
			out = append(out, super{graph.RelExtends, t})
		}
	}
	return out
}
