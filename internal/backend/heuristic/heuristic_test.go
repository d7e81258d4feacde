package heuristic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func extract(t *testing.T, path string, lang graph.Language, src string) *backend.Extraction {
	t.Helper()
	ex, err := New().Extract(context.Background(), backend.Request{FilePath: path, Language: lang, Content: []byte(src)})
	require.NoError(t, err)
	require.NotEmpty(t, ex.Components)
	require.Equal(t, graph.KindFile, ex.Components[0].Kind, "file component comes first")
	return ex
}

func findComponent(ex *backend.Extraction, kind graph.ComponentKind, name string) *graph.Component {
	for i := range ex.Components {
		c := &ex.Components[i]
		if c.Kind == kind && c.Name == name {
			return c
		}
	}
	return nil
}

func mustFind(t *testing.T, ex *backend.Extraction, kind graph.ComponentKind, name string) *graph.Component {
	t.Helper()
	c := findComponent(ex, kind, name)
	require.NotNil(t, c, "%s %s not extracted", kind, name)
	assert.Greater(t, c.Location.StartLine, 0)
	assert.LessOrEqual(t, c.Location.StartLine, c.Location.EndLine)
	return c
}

func findRel(ex *backend.Extraction, kind graph.RelationshipKind, sourceID, targetID string) *graph.Relationship {
	for i := range ex.Relationships {
		r := &ex.Relationships[i]
		if r.Kind == kind && r.SourceID == sourceID && r.TargetID == targetID {
			return r
		}
	}
	return nil
}

func assertRel(t *testing.T, ex *backend.Extraction, kind graph.RelationshipKind, sourceID, targetID string) *graph.Relationship {
	t.Helper()
	r := findRel(ex, kind, sourceID, targetID)
	if !assert.NotNil(t, r, "missing %s %s -> %s", kind, sourceID, targetID) {
		return &graph.Relationship{Metadata: map[string]any{}}
	}
	return r
}

// ---------------------------------------------------------------------------
// Descriptor
// ---------------------------------------------------------------------------

func TestBackend_Descriptor(t *testing.T) {
	b := New()
	assert.Equal(t, Name, b.Name())
	assert.Equal(t, graph.LevelBasic, b.Level())
	assert.False(t, b.Capabilities().TypeInfo)

	langs := b.Languages()
	for _, l := range []graph.Language{graph.LangGo, graph.LangRuby, graph.LangJSON, graph.LangYAML, graph.LangHTML} {
		assert.Contains(t, langs, l)
	}
	assert.NotContains(t, langs, graph.LangUnknown)
}

func TestExtract_UnknownLanguageYieldsFileOnly(t *testing.T) {
	ex := extract(t, "notes.txt", graph.LangUnknown, "just some words (with brackets\n")
	assert.Len(t, ex.Components, 1)
	assert.Empty(t, ex.Relationships)
	assert.Empty(t, ex.Diagnostics)
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Extract(ctx, backend.Request{FilePath: "a.ts", Language: graph.LangTypeScript, Content: []byte("class A {}")})
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

func TestTypeScript_ExtendsUnknownBaseIsPlaceholder(t *testing.T) {
	ex := extract(t, "a.ts", graph.LangTypeScript, "class A extends B {}")
	a := mustFind(t, ex, graph.KindClass, "A")
	rel := assertRel(t, ex, graph.RelExtends, a.ID, "RESOLVE:B")
	assert.Equal(t, false, rel.Metadata[graph.MetaIsResolved])
}

func TestTypeScript_ExtendsLocalBaseResolves(t *testing.T) {
	ex := extract(t, "a.ts", graph.LangTypeScript, "class A extends B {}\nclass B {}")
	a := mustFind(t, ex, graph.KindClass, "A")
	b := mustFind(t, ex, graph.KindClass, "B")
	rel := assertRel(t, ex, graph.RelExtends, a.ID, b.ID)
	assert.Equal(t, true, rel.Metadata[graph.MetaIsResolved])
}

func TestTypeScript_ClassMembers(t *testing.T) {
	src := `import { Logger } from "./log";

export class Service implements Runnable {
  private name: string;

  constructor(name: string) {
    this.name = name;
  }

  async run(id: number): Promise<void> {
    // start() is not a call
    const l = new Logger();
    this.stop();
    throw new Error("boom");
  }

  stop() {}
}
`
	ex := extract(t, "svc.ts", graph.LangTypeScript, src)
	svc := mustFind(t, ex, graph.KindClass, "Service")
	assert.Equal(t, true, svc.Metadata[graph.MetaExported])
	assertRel(t, ex, graph.RelImplements, svc.ID, "RESOLVE:Runnable")

	name := mustFind(t, ex, graph.KindProperty, "name")
	assert.Equal(t, "private", name.Metadata[graph.MetaVisibility])
	assertRel(t, ex, graph.RelHasProperty, svc.ID, name.ID)

	ctor := mustFind(t, ex, graph.KindConstructor, "constructor")
	assert.Equal(t, svc.ID, ctor.ParentID)

	run := mustFind(t, ex, graph.KindMethod, "run")
	assert.Equal(t, "Service.run", run.QualifiedName())
	assert.Equal(t, true, run.Metadata[graph.MetaAsync])
	assert.Equal(t, []string{"id: number"}, run.Metadata[graph.MetaParameters])

	stop := mustFind(t, ex, graph.KindMethod, "stop")
	assertRel(t, ex, graph.RelCalls, run.ID, stop.ID)
	assertRel(t, ex, graph.RelThrows, run.ID, "RESOLVE:Error")
	created := assertRel(t, ex, graph.RelCreates, run.ID, "RESOLVE:Logger")
	assert.Equal(t, "./log", created.Metadata[graph.MetaImportedFrom])
	assert.Nil(t, findRel(ex, graph.RelCalls, run.ID, "RESOLVE:start"), "calls in comments are ignored")

	file := ex.Components[0]
	assertRel(t, ex, graph.RelImportsFrom, file.ID, "RESOLVE:./log")
	assertRel(t, ex, graph.RelExports, file.ID, svc.ID)
}

// ---------------------------------------------------------------------------
// Languages
// ---------------------------------------------------------------------------

func TestPython_ClassAndMethods(t *testing.T) {
	src := `import os
from .base import Base as B


class Repo(B):
    """Stores rows. class Fake: is not a class."""
    limit = 10

    def __init__(self, db):
        self.db = db

    def find(self, key):
        return self.db.get(key)

    def _evict(self):
        pass


def helper():
    return Repo(None)
`
	ex := extract(t, "repo.py", graph.LangPython, src)
	assert.Empty(t, ex.Diagnostics)
	repo := mustFind(t, ex, graph.KindClass, "Repo")
	assert.Equal(t, 5, repo.Location.StartLine)
	assert.Nil(t, findComponent(ex, graph.KindClass, "Fake"))

	base := assertRel(t, ex, graph.RelExtends, repo.ID, "RESOLVE:B")
	assert.Equal(t, ".base", base.Metadata[graph.MetaImportedFrom])

	ctor := mustFind(t, ex, graph.KindConstructor, "__init__")
	assert.Equal(t, []string{"db"}, ctor.Metadata[graph.MetaParameters])
	assert.Nil(t, findComponent(ex, graph.KindProperty, "db"), "assignments inside methods are not properties")

	find := mustFind(t, ex, graph.KindMethod, "find")
	assert.Equal(t, "Repo.find", find.QualifiedName())
	assert.Equal(t, 12, find.Location.StartLine)
	assert.Equal(t, 13, find.Location.EndLine)

	evict := mustFind(t, ex, graph.KindMethod, "_evict")
	assert.Equal(t, "protected", evict.Metadata[graph.MetaVisibility])

	limit := mustFind(t, ex, graph.KindProperty, "limit")
	assertRel(t, ex, graph.RelHasProperty, repo.ID, limit.ID)

	helper := mustFind(t, ex, graph.KindFunction, "helper")
	assertRel(t, ex, graph.RelCalls, helper.ID, repo.ID)
}

func TestGo_MethodsAttachToStruct(t *testing.T) {
	src := `package shapes

import "math"

// Area is declared before its receiver type.
func (c *Circle) Area() float64 {
	return math.Pow(c.R, 2) * math.Pi
}

type Circle struct {
	R float64
}

type Shape interface {
	Area() float64
}

func (s Square) Side() float64 { return 1 }

func newCircle() *Circle {
	return &Circle{R: 1}
}
`
	ex := extract(t, "shapes.go", graph.LangGo, src)
	circle := mustFind(t, ex, graph.KindStruct, "Circle")
	assert.Equal(t, true, circle.Metadata[graph.MetaExported])

	area := findComponent(ex, graph.KindMethod, "Area")
	require.NotNil(t, area)
	areaID := graph.ComponentID(graph.KindMethod, "Circle.Area", "shapes.go")
	assertRel(t, ex, graph.RelHasMethod, circle.ID, areaID)
	pow := assertRel(t, ex, graph.RelCalls, areaID, "RESOLVE:math.Pow")
	assert.Equal(t, "math", pow.Metadata[graph.MetaImportedFrom])

	r := mustFind(t, ex, graph.KindProperty, "R")
	assertRel(t, ex, graph.RelHasProperty, circle.ID, r.ID)

	shape := mustFind(t, ex, graph.KindInterface, "Shape")
	assertRel(t, ex, graph.RelHasMethod, shape.ID, graph.ComponentID(graph.KindMethod, "Shape.Area", "shapes.go"))

	// Square is not declared here; the method keeps its qualified name.
	side := mustFind(t, ex, graph.KindMethod, "Side")
	assert.Equal(t, "Square.Side", side.QualifiedName())

	fn := mustFind(t, ex, graph.KindFunction, "newCircle")
	assert.Equal(t, false, fn.Metadata[graph.MetaExported])
	assertRel(t, ex, graph.RelImportsFrom, ex.Components[0].ID, "RESOLVE:math")
}

func TestRust_ImplTraitForStruct(t *testing.T) {
	src := `use std::fmt;

pub trait Shape: fmt::Debug {
    fn area(&self) -> f64;
}

pub struct Square {
    pub side: f64,
}

impl Shape for Square {
    fn area(&self) -> f64 {
        self.side * self.side
    }
}

impl Square {
    pub fn new(side: f64) -> Self {
        Square { side }
    }
}
`
	ex := extract(t, "lib.rs", graph.LangRust, src)
	shape := mustFind(t, ex, graph.KindTrait, "Shape")
	assertRel(t, ex, graph.RelExtends, shape.ID, "RESOLVE:fmt::Debug")

	square := mustFind(t, ex, graph.KindStruct, "Square")
	assert.Equal(t, true, square.Metadata[graph.MetaExported])
	assertRel(t, ex, graph.RelImplements, square.ID, shape.ID)

	side := mustFind(t, ex, graph.KindProperty, "side")
	assertRel(t, ex, graph.RelHasProperty, square.ID, side.ID)

	areaID := graph.ComponentID(graph.KindMethod, "Square::area", "lib.rs")
	assertRel(t, ex, graph.RelHasMethod, square.ID, areaID)
	assertRel(t, ex, graph.RelHasMethod, shape.ID, graph.ComponentID(graph.KindMethod, "Shape::area", "lib.rs"))

	ctor := graph.ComponentID(graph.KindMethod, "Square::new", "lib.rs")
	assertRel(t, ex, graph.RelHasMethod, square.ID, ctor)
}

func TestRust_ReservedWordsAsFunctionNames(t *testing.T) {
	src := `pub struct Parser {
    pos: usize,
}

impl Iterator for Parser {
    type Item = u8;
    fn next(&mut self) -> Option<u8> {
        None
    }
}

impl Parser {
    pub fn new() -> Self {
        Parser { pos: 0 }
    }

    fn lock(&self) -> bool {
        true
    }
}

fn select(p: &Parser) -> usize {
    p.pos
}
`
	ex := extract(t, "parser.rs", graph.LangRust, src)
	parser := mustFind(t, ex, graph.KindStruct, "Parser")
	for _, name := range []string{"next", "new", "lock"} {
		id := graph.ComponentID(graph.KindMethod, "Parser::"+name, "parser.rs")
		assertRel(t, ex, graph.RelHasMethod, parser.ID, id)
	}
	mustFind(t, ex, graph.KindFunction, "select")
}

func TestRuby_MixinsAndConstructor(t *testing.T) {
	src := `require_relative "greeting"

module Greeting
  def greet
    "hello #{name}"
  end
end

class Person < Base
  include Greeting

  def initialize(name)
    @name = name
  end

  def self.build
    new("x")
  end
end
`
	ex := extract(t, "person.rb", graph.LangRuby, src)
	person := mustFind(t, ex, graph.KindClass, "Person")
	assert.Equal(t, 9, person.Location.StartLine)
	assert.Equal(t, 19, person.Location.EndLine)
	greeting := mustFind(t, ex, graph.KindModule, "Greeting")

	assertRel(t, ex, graph.RelExtends, person.ID, "RESOLVE:Base")
	assertRel(t, ex, graph.RelMixesIn, person.ID, greeting.ID)

	ctor := mustFind(t, ex, graph.KindConstructor, "initialize")
	assert.Equal(t, "Person::initialize", ctor.QualifiedName())

	build := mustFind(t, ex, graph.KindMethod, "build")
	assert.Equal(t, true, build.Metadata[graph.MetaStatic])

	assertRel(t, ex, graph.RelImportsFrom, ex.Components[0].ID, "RESOLVE:./greeting")
}

func TestPHP_TraitsInNamespace(t *testing.T) {
	src := `<?php
namespace App;

trait Loggable {
    public function log($msg) {}
}

class Service extends BaseService implements Runnable {
    use Loggable;

    private $name;

    public function __construct($name) {
        $this->name = $name;
    }
}
`
	ex := extract(t, "Service.php", graph.LangPHP, src)
	ns := mustFind(t, ex, graph.KindNamespace, "App")
	svc := mustFind(t, ex, graph.KindClass, "Service")
	assert.Equal(t, `App\Service`, svc.QualifiedName())
	assertRel(t, ex, graph.RelInNamespace, svc.ID, ns.ID)

	trait := mustFind(t, ex, graph.KindTrait, "Loggable")
	assertRel(t, ex, graph.RelUsesTrait, svc.ID, trait.ID)
	assertRel(t, ex, graph.RelExtends, svc.ID, "RESOLVE:BaseService")
	assertRel(t, ex, graph.RelImplements, svc.ID, "RESOLVE:Runnable")

	mustFind(t, ex, graph.KindConstructor, "__construct")
	name := mustFind(t, ex, graph.KindProperty, "name")
	assert.Equal(t, "private", name.Metadata[graph.MetaVisibility])
}

func TestJava_ClassHierarchy(t *testing.T) {
	src := `package com.example;

import java.util.List;

public abstract class Shape implements Comparable<Shape>, Serializable {
    private final String name;

    public Shape(String name) {
        this.name = name;
    }

    public abstract double area();

    public static Shape largest(List<Shape> all) {
        return all.get(0);
    }
}
`
	ex := extract(t, "Shape.java", graph.LangJava, src)
	shape := mustFind(t, ex, graph.KindClass, "Shape")
	assert.Equal(t, true, shape.Metadata[graph.MetaAbstract])
	assertRel(t, ex, graph.RelImplements, shape.ID, "RESOLVE:Comparable")
	assertRel(t, ex, graph.RelImplements, shape.ID, "RESOLVE:Serializable")

	mustFind(t, ex, graph.KindConstructor, "Shape")
	mustFind(t, ex, graph.KindProperty, "name")
	largest := mustFind(t, ex, graph.KindMethod, "largest")
	assert.Equal(t, true, largest.Metadata[graph.MetaStatic])
	assert.Equal(t, []string{"List<Shape> all"}, largest.Metadata[graph.MetaParameters])
}

// ---------------------------------------------------------------------------
// Data documents
// ---------------------------------------------------------------------------

func TestJSON_TopLevelAndNestedKeys(t *testing.T) {
	src := `{
  "name": "app",
  "scripts": {
    "build": "go build",
    "test": "go test"
  }
}`
	ex := extract(t, "package.json", graph.LangJSON, src)
	assert.Empty(t, ex.Diagnostics)
	scripts := mustFind(t, ex, graph.KindProperty, "scripts")
	assert.Equal(t, "mapping", scripts.Metadata["valueKind"])
	assert.Equal(t, 3, scripts.Location.StartLine)
	build := mustFind(t, ex, graph.KindProperty, "build")
	assert.Equal(t, "scripts.build", build.QualifiedName())
	assertRel(t, ex, graph.RelContains, scripts.ID, build.ID)
}

func TestYAML_KeysTwoLevelsDeep(t *testing.T) {
	src := `server:
  http:
    port: 8080
  debug: true
tags: [a, b]
`
	ex := extract(t, "config.yaml", graph.LangYAML, src)
	mustFind(t, ex, graph.KindProperty, "server")
	http := mustFind(t, ex, graph.KindProperty, "http")
	assert.Equal(t, "server.http", http.QualifiedName())
	assert.Nil(t, findComponent(ex, graph.KindProperty, "port"), "third level is not declared")
	tags := mustFind(t, ex, graph.KindProperty, "tags")
	assert.Equal(t, "sequence", tags.Metadata["valueKind"])
}

// ---------------------------------------------------------------------------
// ValidateSyntax
// ---------------------------------------------------------------------------

func TestValidateSyntax(t *testing.T) {
	tests := []struct {
		name string
		lang graph.Language
		src  string
		line int
	}{
		{"json", graph.LangJSON, "{\n  \"a\": 1,\n  \"b\": }\n", 3},
		{"yaml", graph.LangYAML, "a: 1\nb: [1, 2\n", 0},
		{"unclosed brace", graph.LangTypeScript, "function f() {\n  return 1;\n", 1},
		{"stray close", graph.LangGo, "package x\n\nfunc f() {}\n}\n", 4},
		{"mismatched", graph.LangJava, "class A { void f() ] }", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := New().ValidateSyntax(context.Background(), backend.Request{FilePath: "x", Language: tt.lang, Content: []byte(tt.src)})
			require.Len(t, diags, 1)
			assert.Equal(t, graph.SeverityError, diags[0].Severity)
			assert.Equal(t, Name, diags[0].Backend)
			if tt.line > 0 {
				assert.Equal(t, tt.line, diags[0].Line)
			}
		})
	}
}

func TestValidateSyntax_Clean(t *testing.T) {
	tests := []struct {
		lang graph.Language
		src  string
	}{
		{graph.LangTypeScript, "const s = \"}\"; // {\nfunction f() { return [1, (2)]; }\n"},
		{graph.LangPython, "x = '('  # ]\n"},
		{graph.LangJSON, `{"a": [1, 2]}`},
		{graph.LangYAML, "a: 1\n"},
		{graph.LangMarkdown, "# Title ("},
		{graph.LangShell, "case $x in a) echo ;; esac\n"},
	}
	for _, tt := range tests {
		diags := New().ValidateSyntax(context.Background(), backend.Request{FilePath: "x", Language: tt.lang, Content: []byte(tt.src)})
		assert.Empty(t, diags, string(tt.lang))
	}
}

func TestExtract_ReportsDiagnosticsWithPartialOutput(t *testing.T) {
	ex := extract(t, "a.ts", graph.LangTypeScript, "class A {\n  run() {\n")
	require.Len(t, ex.Diagnostics, 1)
	assert.Equal(t, "unbalanced", ex.Diagnostics[0].Code)
	mustFind(t, ex, graph.KindClass, "A")
}
