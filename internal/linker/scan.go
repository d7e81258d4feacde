package linker

import (
	"regexp"
	"strings"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// StatementKind classifies the syntax a statement was found in.
type StatementKind string

const (
	KindImport   StatementKind = "import"
	KindExport   StatementKind = "export"
	KindRequire  StatementKind = "require"
	KindDynamic  StatementKind = "dynamic"
	KindInclude  StatementKind = "include"
	KindUse      StatementKind = "use"
	KindSource   StatementKind = "source"
	KindResource StatementKind = "resource"
)

// Statement is one import-like statement found in text.
type Statement struct {
	Specifier string
	// Names maps local bindings to imported names, with the same shape the
	// language backends give backend.Import.Names.
	Names    map[string]string
	Kind     StatementKind
	Location graph.Location
}

// Import converts the statement for backend.ImportFrom.
func (st Statement) Import() backend.Import {
	return backend.Import{Specifier: st.Specifier, Names: st.Names, Location: st.Location}
}

// Scan finds the import-like statements of content written in lang. It
// never fails; text without recognizable import syntax yields nil.
func Scan(lang graph.Language, content []byte) []Statement {
	return scan(lang, content, 0, backend.NewLines(content))
}

type scanner struct {
	src   string
	base  int
	lines backend.Lines
	out   []Statement
}

// scanFunc appends the statements of one language family.
type scanFunc func(sc *scanner)

var scanners = map[graph.Language]scanFunc{
	graph.LangTypeScript: scanJS,
	graph.LangJavaScript: scanJS,
	graph.LangVue:        scanJS,
	graph.LangSvelte:     scanJS,
	graph.LangPython:     scanPython,
	graph.LangGo:         scanGo,
	graph.LangRust:       scanRust,
	graph.LangJava:       scanJVM,
	graph.LangKotlin:     scanJVM,
	graph.LangScala:      scanScala,
	graph.LangC:          scanC,
	graph.LangCPP:        scanC,
	graph.LangCSharp:     scanCSharp,
	graph.LangPHP:        scanPHP,
	graph.LangRuby:       scanRuby,
	graph.LangShell:      scanShell,
	graph.LangSwift:      scanSwift,
	graph.LangCSS:        scanCSS,
	graph.LangHTML:       scanHTML,
}

// Supported reports whether Scan recognizes any syntax of lang.
func Supported(lang graph.Language) bool {
	_, ok := scanners[lang]
	return ok
}

// scan runs the scanner of lang over content, which starts at byte base of
// the text indexed by lines.
func scan(lang graph.Language, content []byte, base int, lines backend.Lines) []Statement {
	fn, ok := scanners[lang]
	if !ok || len(content) == 0 {
		return nil
	}
	sc := &scanner{src: string(mask(content, styleFor(lang))), base: base, lines: lines}
	fn(sc)
	return sc.out
}

func (sc *scanner) add(kind StatementKind, spec string, names map[string]string, start, end int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return
	}
	if len(names) == 0 {
		names = nil
	}
	sc.out = append(sc.out, Statement{
		Specifier: spec,
		Names:     names,
		Kind:      kind,
		Location:  sc.lines.Location(sc.base+start, sc.base+end),
	})
}

// group returns submatch n of m, or "" when it did not participate.
func (sc *scanner) group(m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return sc.src[m[2*n]:m[2*n+1]]
}

// --- JavaScript and TypeScript ---

var (
	jsImportFrom = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:type\s+)?([^'";]*?)\s*\bfrom\s*['"]([^'"\n]+)['"]`)
	jsImportBare = regexp.MustCompile(`(?m)^[ \t]*import\s*['"]([^'"\n]+)['"]`)
	jsExportFrom = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:type\s+)?([^'";]*?)\s*\bfrom\s*['"]([^'"\n]+)['"]`)
	jsRequire    = regexp.MustCompile(`(?:\b(?:const|let|var|import)\s+([\w$]+|\{[^}]*\})\s*=\s*)?\brequire\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)
	jsDynamic    = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)

	jsNamespace = regexp.MustCompile(`\*\s*as\s+([\w$]+)`)
	jsNamed     = regexp.MustCompile(`\{([^}]*)\}`)
	jsDefault   = regexp.MustCompile(`^([\w$]+)`)
)

func scanJS(sc *scanner) {
	for _, m := range jsImportFrom.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindImport, sc.group(m, 2), jsClause(sc.group(m, 1)), m[0], m[1])
	}
	for _, m := range jsImportBare.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindImport, sc.group(m, 1), nil, m[0], m[1])
	}
	for _, m := range jsExportFrom.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindExport, sc.group(m, 2), jsClause(sc.group(m, 1)), m[0], m[1])
	}
	for _, m := range jsRequire.FindAllStringSubmatchIndex(sc.src, -1) {
		names := map[string]string{}
		if binding := sc.group(m, 1); strings.HasPrefix(binding, "{") {
			// const { a, b: c } = require("x")
			for _, item := range splitList(strings.Trim(binding, "{}")) {
				imported, local, found := strings.Cut(item, ":")
				if !found {
					local = imported
				}
				names[strings.TrimSpace(local)] = strings.TrimSpace(imported)
			}
		} else if binding != "" {
			names[binding] = "*"
		}
		sc.add(KindRequire, sc.group(m, 2), names, m[0], m[1])
	}
	for _, m := range jsDynamic.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindDynamic, sc.group(m, 1), nil, m[0], m[1])
	}
}

// jsClause maps the bindings of an import or export clause.
func jsClause(clause string) map[string]string {
	names := map[string]string{}
	clause = strings.TrimSpace(clause)
	if clause == "*" {
		names["*"] = "*"
		return names
	}
	if m := jsNamespace.FindStringSubmatch(clause); m != nil {
		names[m[1]] = "*"
	}
	if m := jsNamed.FindStringSubmatch(clause); m != nil {
		for _, item := range splitList(m[1]) {
			item = strings.TrimPrefix(item, "type ")
			imported, local, found := strings.Cut(item, " as ")
			if !found {
				local = imported
			}
			names[strings.TrimSpace(local)] = strings.TrimSpace(imported)
		}
	}
	if m := jsDefault.FindStringSubmatch(clause); m != nil {
		names[m[1]] = "default"
	}
	return names
}

// --- Python ---

var (
	pyImport     = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([^\n;]+)`)
	pyImportFrom = regexp.MustCompile(`(?m)^[ \t]*from[ \t]+([.\w]+)[ \t]+import[ \t]+(\([^)]*\)|(?:\\\n|[^\n;\\])*)`)
)

func scanPython(sc *scanner) {
	for _, m := range pyImport.FindAllStringSubmatchIndex(sc.src, -1) {
		for _, item := range splitList(sc.group(m, 1)) {
			module, alias, found := strings.Cut(item, " as ")
			module = strings.TrimSpace(module)
			if !found {
				alias, _, _ = strings.Cut(module, ".")
			}
			sc.add(KindImport, module, map[string]string{strings.TrimSpace(alias): "*"}, m[0], m[1])
		}
	}
	for _, m := range pyImportFrom.FindAllStringSubmatchIndex(sc.src, -1) {
		list := strings.Trim(strings.ReplaceAll(sc.group(m, 2), "\\\n", " "), "() \t")
		names := map[string]string{}
		for _, item := range splitList(list) {
			imported, local, found := strings.Cut(item, " as ")
			if !found {
				local = imported
			}
			names[strings.TrimSpace(local)] = strings.TrimSpace(imported)
		}
		sc.add(KindImport, sc.group(m, 1), names, m[0], m[1])
	}
}

// --- Go ---

var (
	goImport      = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+(?:([\w.]+)[ \t]+)?"([^"\n]+)"`)
	goImportBlock = regexp.MustCompile(`(?m)^[ \t]*import[ \t]*\(([^)]*)\)`)
	goImportSpec  = regexp.MustCompile(`(?m)^[ \t]*(?:([\w.]+)[ \t]+)?"([^"\n]+)"`)
)

func scanGo(sc *scanner) {
	for _, m := range goImport.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindImport, sc.group(m, 2), goNames(sc.group(m, 1), sc.group(m, 2)), m[0], m[1])
	}
	for _, m := range goImportBlock.FindAllStringSubmatchIndex(sc.src, -1) {
		body, off := sc.group(m, 1), m[2]
		for _, s := range goImportSpec.FindAllStringSubmatchIndex(body, -1) {
			local, path := "", body[s[4]:s[5]]
			if s[2] >= 0 {
				local = body[s[2]:s[3]]
			}
			sc.add(KindImport, path, goNames(local, path), off+s[0], off+s[1])
		}
	}
}

// goNames binds the package name of path, or nothing for blank and dot
// imports.
func goNames(local, path string) map[string]string {
	switch local {
	case "_", ".":
		return nil
	case "":
		local = path[strings.LastIndex(path, "/")+1:]
	}
	return map[string]string{local: "*"}
}

// --- Rust ---

var rustUse = regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([^)]*\))?[ \t]+)?use[ \t]+([^;]+);`)

var rustAs = regexp.MustCompile(`\s+as\s+`)

func scanRust(sc *scanner) {
	for _, m := range rustUse.FindAllStringSubmatchIndex(sc.src, -1) {
		tree := rustAs.ReplaceAllString(sc.group(m, 1), "\x00")
		tree = strings.Join(strings.Fields(tree), "")
		tree = strings.ReplaceAll(tree, "\x00", " as ")
		expandUse("", strings.TrimPrefix(tree, "::"), func(spec string, names map[string]string) {
			sc.add(KindUse, spec, names, m[0], m[1])
		})
	}
}

// expandUse flattens a use tree into one import per leaf, matching how the
// Rust backend binds names.
func expandUse(prefix, tree string, emit func(spec string, names map[string]string)) {
	join := func(a, b string) string {
		if a == "" {
			return b
		}
		if b == "" {
			return a
		}
		return a + "::" + b
	}
	split := func(path string) (string, string) {
		i := strings.LastIndex(path, "::")
		if i < 0 {
			return "", path
		}
		return path[:i], path[i+2:]
	}

	switch {
	case strings.HasSuffix(tree, "}") && strings.Contains(tree, "{"):
		i := strings.Index(tree, "{")
		path := join(prefix, strings.TrimSuffix(tree[:i], "::"))
		for _, item := range splitTop(tree[i+1 : len(tree)-1]) {
			if item == "self" {
				_, name := split(path)
				emit(path, map[string]string{name: "*"})
				continue
			}
			expandUse(path, item, emit)
		}
	case tree == "*" || strings.HasSuffix(tree, "::*"):
		emit(strings.TrimSuffix(join(prefix, tree), "::*"), map[string]string{"*": "*"})
	case strings.Contains(tree, " as "):
		path, alias, _ := strings.Cut(tree, " as ")
		module, name := split(join(prefix, path))
		if module == "" {
			module, name = join(prefix, path), "*"
		}
		emit(module, map[string]string{alias: name})
	default:
		path := join(prefix, tree)
		module, name := split(path)
		if module == "" {
			emit(path, map[string]string{name: "*"})
			return
		}
		emit(module, map[string]string{name: name})
	}
}

// splitTop splits s on commas outside braces.
func splitTop(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				if item := strings.TrimSpace(s[start:i]); item != "" {
					out = append(out, item)
				}
				start = i + 1
			}
		}
	}
	if item := strings.TrimSpace(s[start:]); item != "" {
		out = append(out, item)
	}
	return out
}

// --- JVM ---

var (
	jvmImport   = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+(static[ \t]+)?([\w.]+?)(\.\*)?(?:[ \t]+as[ \t]+(\w+))?[ \t]*;?[ \t]*$`)
	scalaImport = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([\w.]+?)(?:\.(\{[^}]*\}|_|\*))?[ \t]*$`)
)

func scanJVM(sc *scanner) {
	for _, m := range jvmImport.FindAllStringSubmatchIndex(sc.src, -1) {
		static, path, alias := sc.group(m, 1) != "", sc.group(m, 2), sc.group(m, 4)
		if sc.group(m, 3) != "" {
			sc.add(KindImport, path, map[string]string{"*": "*"}, m[0], m[1])
			continue
		}
		i := strings.LastIndex(path, ".")
		if i < 0 {
			sc.add(KindImport, path, nil, m[0], m[1])
			continue
		}
		// import a.b.C binds C from a.b.C; a static import binds a member
		// of class a.b.C.
		module, name := path, path[i+1:]
		if static {
			module = path[:i]
		}
		local := name
		if alias != "" {
			local = alias
		}
		sc.add(KindImport, module, map[string]string{local: name}, m[0], m[1])
	}
}

func scanScala(sc *scanner) {
	for _, m := range scalaImport.FindAllStringSubmatchIndex(sc.src, -1) {
		path, sel := sc.group(m, 1), sc.group(m, 2)
		switch {
		case sel == "_" || sel == "*":
			sc.add(KindImport, path, map[string]string{"*": "*"}, m[0], m[1])
		case strings.HasPrefix(sel, "{"):
			for _, item := range splitList(strings.Trim(sel, "{}")) {
				imported, local, found := strings.Cut(item, "=>")
				imported = strings.TrimSpace(imported)
				if !found {
					local = imported
				}
				if imported == "_" {
					sc.add(KindImport, path, map[string]string{"*": "*"}, m[0], m[1])
					continue
				}
				sc.add(KindImport, path+"."+imported, map[string]string{strings.TrimSpace(local): imported}, m[0], m[1])
			}
		default:
			name := path[strings.LastIndex(path, ".")+1:]
			sc.add(KindImport, path, map[string]string{name: name}, m[0], m[1])
		}
	}
}

// --- C family ---

var (
	cInclude    = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*include[ \t]*[<"]([^>"\n]+)[>"]`)
	csharpUsing = regexp.MustCompile(`(?m)^[ \t]*(?:global[ \t]+)?using[ \t]+(?:static[ \t]+)?(?:(\w+)[ \t]*=[ \t]*)?([\w.]+)[ \t]*;`)
	swiftImport = regexp.MustCompile(`(?m)^[ \t]*(?:@\w+[ \t]+)*import[ \t]+(?:(?:typealias|struct|class|enum|protocol|let|var|func)[ \t]+)?([\w.]+)`)
)

func scanC(sc *scanner) {
	for _, m := range cInclude.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindInclude, sc.group(m, 1), nil, m[0], m[1])
	}
}

func scanCSharp(sc *scanner) {
	for _, m := range csharpUsing.FindAllStringSubmatchIndex(sc.src, -1) {
		var names map[string]string
		if alias := sc.group(m, 1); alias != "" {
			names = map[string]string{alias: "*"}
		}
		sc.add(KindUse, sc.group(m, 2), names, m[0], m[1])
	}
}

func scanSwift(sc *scanner) {
	for _, m := range swiftImport.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindImport, sc.group(m, 1), nil, m[0], m[1])
	}
}

// --- Scripting languages ---

var (
	phpUse     = regexp.MustCompile(`(?m)^use[ \t]+(?:function[ \t]+|const[ \t]+)?\\?([\w\\]+?)(?:\\\{([^}]*)\}|[ \t]+as[ \t]+(\w+))?[ \t]*;`)
	phpRequire = regexp.MustCompile(`\b(?:require|include)(?:_once)?\b[ \t]*\(?[ \t]*(__DIR__[ \t]*\.[ \t]*)?['"]([^'"\n]+)['"]`)
	rbRequire  = regexp.MustCompile(`(?m)^[ \t]*(require_relative|require|load)\b[ \t]*\(?[ \t]*['"]([^'"\n]+)['"]`)
	shSource   = regexp.MustCompile(`(?m)^[ \t]*(?:source|\.)[ \t]+["']?([^\s"';|&]+)`)
)

func scanPHP(sc *scanner) {
	for _, m := range phpUse.FindAllStringSubmatchIndex(sc.src, -1) {
		path := sc.group(m, 1)
		if group := sc.group(m, 2); group != "" {
			for _, item := range splitList(group) {
				imported, alias, found := strings.Cut(item, " as ")
				imported = strings.TrimSpace(imported)
				name := imported[strings.LastIndex(imported, `\`)+1:]
				if !found {
					alias = name
				}
				sc.add(KindUse, path+`\`+imported, map[string]string{strings.TrimSpace(alias): name}, m[0], m[1])
			}
			continue
		}
		name := path[strings.LastIndex(path, `\`)+1:]
		local := name
		if alias := sc.group(m, 3); alias != "" {
			local = alias
		}
		sc.add(KindUse, path, map[string]string{local: name}, m[0], m[1])
	}
	for _, m := range phpRequire.FindAllStringSubmatchIndex(sc.src, -1) {
		spec := sc.group(m, 2)
		if sc.group(m, 1) != "" {
			spec = "." + spec
		}
		sc.add(KindRequire, spec, nil, m[0], m[1])
	}
}

func scanRuby(sc *scanner) {
	for _, m := range rbRequire.FindAllStringSubmatchIndex(sc.src, -1) {
		spec := sc.group(m, 2)
		if sc.group(m, 1) == "require_relative" && !strings.HasPrefix(spec, ".") {
			spec = "./" + spec
		}
		sc.add(KindRequire, spec, nil, m[0], m[1])
	}
}

func scanShell(sc *scanner) {
	for _, m := range shSource.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindSource, sc.group(m, 1), nil, m[0], m[1])
	}
}

// --- Markup and styles ---

var (
	cssImport  = regexp.MustCompile(`@import[ \t]+(?:url\([ \t]*)?['"]?([^'")\s;]+)`)
	htmlScript = regexp.MustCompile(`(?i)<script\b[^>]*\bsrc\s*=\s*['"]([^'"]+)['"]`)
	htmlLink   = regexp.MustCompile(`(?i)<link\b[^>]*\bhref\s*=\s*['"]([^'"]+)['"]`)
)

func scanCSS(sc *scanner) {
	for _, m := range cssImport.FindAllStringSubmatchIndex(sc.src, -1) {
		sc.add(KindImport, sc.group(m, 1), nil, m[0], m[1])
	}
}

func scanHTML(sc *scanner) {
	for _, re := range []*regexp.Regexp{htmlScript, htmlLink} {
		for _, m := range re.FindAllStringSubmatchIndex(sc.src, -1) {
			if spec := sc.group(m, 1); !strings.HasPrefix(spec, "data:") && !strings.HasPrefix(spec, "#") {
				sc.add(KindResource, spec, nil, m[0], m[1])
			}
		}
	}
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.Join(strings.Fields(item), " "); item != "" {
			out = append(out, item)
		}
	}
	return out
}
