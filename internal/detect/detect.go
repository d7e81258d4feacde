// Package detect infers the language of a source file from its name and an
// optional content sample. Detection never fails: input that matches nothing
// yields graph.LangUnknown.
package detect

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// Candidate is one possible language with the confidence of the evidence
// that produced it.
type Candidate struct {
	Language   graph.Language `json:"language"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
}

// Result is the best guess plus every candidate, highest confidence first.
type Result struct {
	Language   graph.Language `json:"language"`
	Candidates []Candidate    `json:"candidates"`
}

// Evidence sources, in descending confidence.
const (
	SourceFilename  = "filename"
	SourceExtension = "extension"
	SourceShebang   = "shebang"
	SourceContent   = "content"
	SourceEnry      = "enry"
)

var extensions = map[string]graph.Language{
	".go":     graph.LangGo,
	".ts":     graph.LangTypeScript,
	".tsx":    graph.LangTypeScript,
	".mts":    graph.LangTypeScript,
	".cts":    graph.LangTypeScript,
	".js":     graph.LangJavaScript,
	".jsx":    graph.LangJavaScript,
	".mjs":    graph.LangJavaScript,
	".cjs":    graph.LangJavaScript,
	".py":     graph.LangPython,
	".pyi":    graph.LangPython,
	".pyw":    graph.LangPython,
	".rs":     graph.LangRust,
	".java":   graph.LangJava,
	".kt":     graph.LangKotlin,
	".kts":    graph.LangKotlin,
	".scala":  graph.LangScala,
	".sc":     graph.LangScala,
	".c":      graph.LangC,
	".h":      graph.LangC,
	".cc":     graph.LangCPP,
	".cpp":    graph.LangCPP,
	".cxx":    graph.LangCPP,
	".hpp":    graph.LangCPP,
	".hh":     graph.LangCPP,
	".cs":     graph.LangCSharp,
	".php":    graph.LangPHP,
	".phtml":  graph.LangPHP,
	".rb":     graph.LangRuby,
	".rake":   graph.LangRuby,
	".swift":  graph.LangSwift,
	".sh":     graph.LangShell,
	".bash":   graph.LangShell,
	".zsh":    graph.LangShell,
	".html":   graph.LangHTML,
	".htm":    graph.LangHTML,
	".css":    graph.LangCSS,
	".scss":   graph.LangCSS,
	".md":     graph.LangMarkdown,
	".mdx":    graph.LangMarkdown,
	".vue":    graph.LangVue,
	".svelte": graph.LangSvelte,
	".json":   graph.LangJSON,
	".yaml":   graph.LangYAML,
	".yml":    graph.LangYAML,
	".sql":    graph.LangSQL,
}

var filenames = map[string]graph.Language{
	"Gemfile":      graph.LangRuby,
	"Rakefile":     graph.LangRuby,
	"Podfile":      graph.LangRuby,
	"BUILD.bazel":  graph.LangPython,
	"SConstruct":   graph.LangPython,
	".bashrc":      graph.LangShell,
	".zshrc":       graph.LangShell,
	".profile":     graph.LangShell,
	"package.json": graph.LangJSON,
}

var interpreters = map[string]graph.Language{
	"python":  graph.LangPython,
	"python2": graph.LangPython,
	"python3": graph.LangPython,
	"node":    graph.LangJavaScript,
	"deno":    graph.LangTypeScript,
	"ts-node": graph.LangTypeScript,
	"bash":    graph.LangShell,
	"sh":      graph.LangShell,
	"zsh":     graph.LangShell,
	"dash":    graph.LangShell,
	"ruby":    graph.LangRuby,
	"php":     graph.LangPHP,
}

// enryNames maps go-enry language names onto ours.
var enryNames = map[string]graph.Language{
	"Go":         graph.LangGo,
	"TypeScript": graph.LangTypeScript,
	"TSX":        graph.LangTypeScript,
	"JavaScript": graph.LangJavaScript,
	"JSX":        graph.LangJavaScript,
	"Python":     graph.LangPython,
	"Rust":       graph.LangRust,
	"Java":       graph.LangJava,
	"Kotlin":     graph.LangKotlin,
	"Scala":      graph.LangScala,
	"C":          graph.LangC,
	"C++":        graph.LangCPP,
	"C#":         graph.LangCSharp,
	"PHP":        graph.LangPHP,
	"Hack":       graph.LangPHP,
	"Ruby":       graph.LangRuby,
	"Swift":      graph.LangSwift,
	"Shell":      graph.LangShell,
	"HTML":       graph.LangHTML,
	"CSS":        graph.LangCSS,
	"SCSS":       graph.LangCSS,
	"Markdown":   graph.LangMarkdown,
	"Vue":        graph.LangVue,
	"Svelte":     graph.LangSvelte,
	"JSON":       graph.LangJSON,
	"YAML":       graph.LangYAML,
	"SQL":        graph.LangSQL,
}

// aliases maps names seen in code fences, script type attributes and CLI
// flags onto languages.
var aliases = map[string]graph.Language{
	"go": graph.LangGo, "golang": graph.LangGo,
	"ts": graph.LangTypeScript, "typescript": graph.LangTypeScript, "tsx": graph.LangTypeScript,
	"js": graph.LangJavaScript, "javascript": graph.LangJavaScript, "jsx": graph.LangJavaScript,
	"node": graph.LangJavaScript, "mjs": graph.LangJavaScript, "ecmascript": graph.LangJavaScript,
	"py": graph.LangPython, "python": graph.LangPython, "python3": graph.LangPython,
	"rs": graph.LangRust, "rust": graph.LangRust,
	"java": graph.LangJava, "kotlin": graph.LangKotlin, "kt": graph.LangKotlin,
	"scala": graph.LangScala,
	"c": graph.LangC, "cpp": graph.LangCPP, "c++": graph.LangCPP, "cxx": graph.LangCPP,
	"cs": graph.LangCSharp, "csharp": graph.LangCSharp, "c#": graph.LangCSharp,
	"php": graph.LangPHP, "rb": graph.LangRuby, "ruby": graph.LangRuby,
	"swift": graph.LangSwift,
	"sh": graph.LangShell, "bash": graph.LangShell, "shell": graph.LangShell, "zsh": graph.LangShell,
	"html": graph.LangHTML, "css": graph.LangCSS, "scss": graph.LangCSS,
	"md": graph.LangMarkdown, "markdown": graph.LangMarkdown,
	"vue": graph.LangVue, "svelte": graph.LangSvelte,
	"json": graph.LangJSON, "yaml": graph.LangYAML, "yml": graph.LangYAML, "sql": graph.LangSQL,
}

// sniffLimit bounds how much of the sample content heuristics look at.
const sniffLimit = 8 << 10

// Detect returns the most likely language of the file at path. sample may be
// nil; when present it enables shebang and content detection.
func Detect(path string, sample []byte) Result {
	if len(sample) > sniffLimit {
		sample = sample[:sniffLimit]
	}
	base := filepath.Base(path)
	var cands []Candidate

	if lang, ok := filenames[base]; ok {
		cands = append(cands, Candidate{lang, 0.95, SourceFilename})
	}
	if lang := ByExtension(path); lang != graph.LangUnknown {
		cands = append(cands, Candidate{lang, 0.9, SourceExtension})
	}
	if lang, ok := shebang(sample); ok {
		cands = append(cands, Candidate{lang, 0.85, SourceShebang})
	}
	if lang, ok := sniff(sample); ok {
		cands = append(cands, Candidate{lang, 0.65, SourceContent})
	}
	if len(sample) > 0 {
		if lang, ok := enryNames[enry.GetLanguage(base, sample)]; ok {
			cands = append(cands, Candidate{lang, 0.6, SourceEnry})
		}
	} else if name, safe := enry.GetLanguageByFilename(base); safe {
		if lang, ok := enryNames[name]; ok {
			cands = append(cands, Candidate{lang, 0.6, SourceEnry})
		}
	}

	cands = dedupe(cands)
	if len(cands) == 0 {
		return Result{Language: graph.LangUnknown}
	}
	return Result{Language: cands[0].Language, Candidates: cands}
}

// ByExtension maps the extension of path to a language.
func ByExtension(path string) graph.Language {
	if lang, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return graph.LangUnknown
}

// FromName maps a language alias ("ts", "golang", "text/javascript") to a
// language, or LangUnknown.
func FromName(name string) graph.Language {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimPrefix(name, "x-")
	if lang, ok := aliases[name]; ok {
		return lang
	}
	return graph.LangUnknown
}

// shebang reads "#!/usr/bin/env python3 -u" or "#!/bin/bash" style lines.
func shebang(sample []byte) (graph.Language, bool) {
	if !bytes.HasPrefix(sample, []byte("#!")) {
		return "", false
	}
	line := sample[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return "", false
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		rest := fields[1:]
		for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return "", false
		}
		interp = filepath.Base(rest[0])
	}
	if lang, ok := interpreters[interp]; ok {
		return lang, true
	}
	// python3.12, ruby2.7
	trimmed := strings.TrimRight(interp, "0123456789.")
	lang, ok := interpreters[trimmed]
	return lang, ok
}

// sniff recognizes a handful of unambiguous document openings.
func sniff(sample []byte) (graph.Language, bool) {
	s := bytes.TrimLeft(sample, " \t\r\n\ufeff")
	lower := bytes.ToLower(s[:min(len(s), 256)])
	switch {
	case bytes.HasPrefix(s, []byte("<?php")):
		return graph.LangPHP, true
	case bytes.HasPrefix(lower, []byte("<!doctype html")), bytes.HasPrefix(lower, []byte("<html")):
		return graph.LangHTML, true
	}
	return "", false
}

// dedupe keeps the highest confidence per language and sorts descending by
// confidence, then by language name.
func dedupe(cands []Candidate) []Candidate {
	best := make(map[graph.Language]Candidate, len(cands))
	for _, c := range cands {
		if prev, ok := best[c.Language]; !ok || c.Confidence > prev.Confidence {
			best[c.Language] = c
		}
	}
	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Language < out[j].Language
	})
	return out
}
