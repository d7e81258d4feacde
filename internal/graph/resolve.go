package graph

import (
	"bufio"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver rewrites import placeholders (RESOLVE:<specifier>) whose
// specifier names a file of the workspace into that file's component id. It
// is built once per indexing run from the set of known slash-separated,
// workspace-relative file paths.
type Resolver struct {
	root     string
	fileSet  map[string]bool
	dirIndex map[string][]string
	goModule string
	npmMains map[string]string // package name -> main file
}

// NewResolver builds a Resolver for the workspace at root. It reads go.mod
// and package.json files under root to support module-aware specifiers.
func NewResolver(root string, knownFiles []string) *Resolver {
	r := &Resolver{
		root:     root,
		fileSet:  make(map[string]bool, len(knownFiles)),
		dirIndex: make(map[string][]string),
		npmMains: make(map[string]string),
	}
	for _, f := range knownFiles {
		f = filepath.ToSlash(f)
		r.fileSet[f] = true
		dir := path.Dir(f)
		r.dirIndex[dir] = append(r.dirIndex[dir], f)
	}
	for dir := range r.dirIndex {
		sort.Strings(r.dirIndex[dir])
	}
	r.goModule = readGoModule(filepath.Join(root, "go.mod"))
	r.scanPackageJSON()
	return r
}

// ResolveImports returns rels with every resolvable import placeholder
// rewritten to the target file's component id. files maps component id to
// the FILE components of the workspace and supplies the importing file's
// path and language. Rewritten relationships get a new id, isResolved=true
// and resolvedPath metadata; everything else passes through unchanged.
func (r *Resolver) ResolveImports(rels []Relationship, files map[string]Component) []Relationship {
	out := make([]Relationship, 0, len(rels))
	for _, rel := range rels {
		out = append(out, r.resolveOne(rel, files))
	}
	return out
}

func (r *Resolver) resolveOne(rel Relationship, files map[string]Component) Relationship {
	if !isImportKind(rel.Kind) {
		return rel
	}
	prefix, spec, ok := SplitPlaceholder(rel.TargetID)
	if !ok || prefix != PrefixResolve {
		return rel
	}
	src, ok := files[rel.SourceID]
	if !ok {
		return rel
	}
	target, ok := r.ResolveSpecifier(src.Language, src.FilePath, spec)
	if !ok {
		return rel
	}
	meta := make(map[string]any, len(rel.Metadata)+3)
	for k, v := range rel.Metadata {
		meta[k] = v
	}
	meta[MetaIsResolved] = true
	meta[MetaResolvedPath] = target
	meta[MetaSpecifier] = spec
	return NewRelationship(rel.Kind, rel.SourceID, ComponentID(KindFile, target, target), rel.Location, meta)
}

// ResolveSpecifier maps an import specifier written in fromFile to a
// workspace-relative file path.
func (r *Resolver) ResolveSpecifier(lang Language, fromFile, spec string) (string, bool) {
	fromFile = filepath.ToSlash(fromFile)
	switch lang {
	case LangTypeScript, LangJavaScript, LangVue, LangSvelte:
		return r.resolveJS(spec, fromFile)
	case LangGo:
		return r.resolveGo(spec)
	case LangPython:
		return r.resolvePython(spec, fromFile)
	case LangRust:
		return r.resolveRust(spec, fromFile)
	case LangJava, LangKotlin, LangScala:
		return r.resolveJVM(spec)
	case LangC, LangCPP:
		return r.resolveRelative(spec, fromFile, nil, true)
	case LangPHP, LangRuby, LangCSS, LangHTML, LangShell:
		return r.resolveRelative(spec, fromFile, []string{".php", ".rb", ".css", ".sh"}, false)
	}
	return "", false
}

var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".vue", ".svelte", "/index.ts", "/index.tsx", "/index.js"}

func (r *Resolver) resolveJS(spec, fromFile string) (string, bool) {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/") {
		return r.resolveRelative(spec, fromFile, jsExtensions, false)
	}
	if main, ok := r.npmMains[spec]; ok {
		return main, true
	}
	// "@scope/pkg/sub" or "pkg/sub": resolve sub against the package dir.
	for name, main := range r.npmMains {
		if rest, found := strings.CutPrefix(spec, name+"/"); found {
			dir := path.Dir(main)
			if strings.HasSuffix(dir, "/src") || dir == "src" {
				dir = path.Dir(dir)
			}
			for _, base := range []string{path.Join(dir, "src", rest), path.Join(dir, rest)} {
				if p, ok := r.probe(base, jsExtensions); ok {
					return p, true
				}
			}
		}
	}
	return "", false
}

func (r *Resolver) resolveGo(spec string) (string, bool) {
	if r.goModule == "" || !strings.HasPrefix(spec, r.goModule) {
		return "", false
	}
	dir := strings.TrimPrefix(strings.TrimPrefix(spec, r.goModule), "/")
	if dir == "" {
		dir = "."
	}
	for _, f := range r.dirIndex[dir] {
		if strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go") {
			return f, true
		}
	}
	return "", false
}

var pyExtensions = []string{".py", "/__init__.py"}

func (r *Resolver) resolvePython(spec, fromFile string) (string, bool) {
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	module := strings.ReplaceAll(spec[dots:], ".", "/")
	if dots > 0 {
		base := path.Dir(fromFile)
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		if module == "" {
			return r.probe(path.Join(base, "__init__"), []string{".py"})
		}
		return r.probe(path.Join(base, module), pyExtensions)
	}
	// Absolute module: try the workspace root, the file's own directory and
	// the conventional src/ layout.
	for _, base := range []string{module, path.Join(path.Dir(fromFile), module), path.Join("src", module)} {
		if p, ok := r.probe(base, pyExtensions); ok {
			return p, true
		}
	}
	return "", false
}

var rsExtensions = []string{".rs", "/mod.rs"}

func (r *Resolver) resolveRust(spec, fromFile string) (string, bool) {
	if i := strings.Index(spec, "::{"); i >= 0 {
		spec = spec[:i]
	}
	head, rest, _ := strings.Cut(spec, "::")
	modPath := strings.ReplaceAll(rest, "::", "/")
	var bases []string
	switch head {
	case "crate":
		if root := crateRoot(fromFile); root != "" {
			bases = append(bases, path.Join(root, modPath))
		}
		bases = append(bases, path.Join("src", modPath), modPath)
	case "self":
		bases = []string{path.Join(path.Dir(fromFile), modPath)}
	case "super":
		bases = []string{path.Join(path.Dir(path.Dir(fromFile)), modPath)}
	default:
		return "", false
	}
	// A use path may end in an item name rather than a module; drop trailing
	// segments until a module file matches.
	for _, base := range bases {
		for b := base; b != "." && b != "" && b != "/"; b = path.Dir(b) {
			if p, ok := r.probe(b, rsExtensions); ok {
				return p, true
			}
		}
	}
	return "", false
}

// crateRoot returns the nearest enclosing src directory of a Rust file.
func crateRoot(file string) string {
	for dir := path.Dir(file); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if path.Base(dir) == "src" {
			return dir
		}
	}
	return ""
}

// resolveJVM matches a dotted class name against any file whose path ends in
// the class's package path.
func (r *Resolver) resolveJVM(spec string) (string, bool) {
	spec = strings.TrimSuffix(spec, ".*")
	suffix := strings.ReplaceAll(spec, ".", "/")
	var matches []string
	for f := range r.fileSet {
		ext := path.Ext(f)
		if strings.TrimSuffix(f, ext) == suffix || strings.HasSuffix(strings.TrimSuffix(f, ext), "/"+suffix) {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// resolveRelative resolves spec against the importing file's directory and,
// when fromRoot is set, against the workspace root as well.
func (r *Resolver) resolveRelative(spec, fromFile string, exts []string, fromRoot bool) (string, bool) {
	var bases []string
	if strings.HasPrefix(spec, "/") {
		bases = []string{strings.TrimPrefix(spec, "/")}
	} else {
		bases = []string{path.Join(path.Dir(fromFile), spec)}
		if fromRoot {
			bases = append(bases, path.Clean(spec))
		}
	}
	for _, b := range bases {
		if p, ok := r.probe(b, exts); ok {
			return p, true
		}
	}
	return "", false
}

// probe checks base, then base with each extension appended, against the
// known file set. No filesystem I/O.
func (r *Resolver) probe(base string, exts []string) (string, bool) {
	base = path.Clean(base)
	if r.fileSet[base] {
		return base, true
	}
	for _, ext := range exts {
		if r.fileSet[base+ext] {
			return base + ext, true
		}
	}
	return "", false
}

// --- Workspace metadata ---

func readGoModule(modFile string) string {
	f, err := os.Open(modFile)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}

type packageJSON struct {
	Name   string `json:"name"`
	Main   string `json:"main"`
	Module string `json:"module"`
	Types  string `json:"types"`
}

// scanPackageJSON records name -> entry file for every package.json that
// sits next to known files.
func (r *Resolver) scanPackageJSON() {
	dirs := make([]string, 0, len(r.dirIndex)+1)
	dirs = append(dirs, ".")
	for dir := range r.dirIndex {
		if dir != "." {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(dir), "package.json"))
		if err != nil {
			continue
		}
		var pkg packageJSON
		if err := json.Unmarshal(data, &pkg); err != nil || pkg.Name == "" {
			continue
		}
		for _, entry := range []string{pkg.Types, pkg.Module, pkg.Main, "src/index", "index"} {
			if entry == "" {
				continue
			}
			base := path.Join(dir, strings.TrimPrefix(entry, "./"))
			base = strings.TrimSuffix(base, path.Ext(base))
			if p, ok := r.probe(base, jsExtensions); ok {
				r.npmMains[pkg.Name] = p
				break
			}
		}
	}
}
