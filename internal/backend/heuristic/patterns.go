package heuristic

import (
	"regexp"
	"strings"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// role says what a pattern match declares and where it may appear.
type role int

const (
	// roleType declares a type, namespace or module anywhere outside a
	// function body.
	roleType role = iota
	// roleFunc declares a function, or a method when directly inside a type.
	roleFunc
	// roleMember declares a method and only counts directly inside a type.
	roleMember
	// roleProperty declares a property and only counts directly inside a type.
	roleProperty
	// roleAttach opens a block whose functions belong to a type declared
	// elsewhere: Rust impl blocks and Swift extensions.
	roleAttach
)

type pattern struct {
	re   *regexp.Regexp
	role role
	// keyworded patterns capture the name right after a declaring keyword,
	// so a reserved word there is still a real name ("fn new").
	keyworded bool
}

// family is the declaration syntax of a group of languages.
type family struct {
	patterns []pattern
	// indent marks languages whose bodies end by indentation.
	indent bool
	sep    string
	// ctor reports whether a method named name constructs type typeName.
	ctor func(name, typeName string) bool
	// mixins finds trait and mixin usages in a type body.
	mixins *regexp.Regexp
	// mixinKind is the relationship mixins produce.
	mixinKind graph.RelationshipKind
	// supers extracts inheritance from the text between a type's name and
	// its body.
	supers func(kind graph.ComponentKind, header string) []super
}

type super struct {
	kind   graph.RelationshipKind
	target string
}

const mods = `(?P<mods>(?:(?:export|default|declare|public|private|protected|internal|abstract|final|static|sealed|open|data|partial|inline|value|case|fileprivate|readonly|override|virtual|async|synchronized|native|extern|const|constexpr|explicit|unsafe|suspend|mutating|tailrec|operator|infix|new|pub(?:\([^)\n]*\))?)[ \t]+)*)`

func p(expr string, r role) pattern { return pattern{re: regexp.MustCompile(expr), role: r} }

// kp is p for a keyworded pattern.
func kp(expr string, r role) pattern {
	pat := p(expr, r)
	pat.keyworded = true
	return pat
}

// typeDecl matches keyword-introduced type declarations shared by most
// brace languages.
func typeDecl(keywords string) pattern {
	return kp(`(?m)^[ \t]*`+mods+`(?P<kw>`+keywords+`)[ \t]+(?P<name>[A-Za-z_$][\w$]*)`, roleType)
}

// keywordFunc matches functions introduced by a keyword such as fun or def.
func keywordFunc(keywords string) pattern {
	return kp(`(?m)^[ \t]*`+mods+`(?:class[ \t]+)?(?:`+keywords+`)[ \t]*\*?[ \t]*(?:<[^>\n]*>[ \t]*)?(?P<recv>(?:[\w]+\.)+)?(?P<name>[A-Za-z_$][\w$]*)[ \t]*[(<:=]`, roleFunc)
}

// cMethod matches C-family method and function definitions: an optional
// return type, a name and a parameter list followed by a body.
var cMethod = `(?m)^[ \t]*` + mods + `(?:<[^>\n]*>[ \t]*)?(?:[\w$<>\[\],.?*&:]+[ \t]+)?[*&]?(?P<recv>(?:[A-Za-z_]\w*::)+)?(?P<name>~?[A-Za-z_]\w*)\s*\([^;{}]*\)\s*(?:const\s*)?(?:noexcept\s*)?(?:throws\s+[\w., ]+?\s*)?(?:->\s*[^{;]+)?(?::[^{;]*)?\{`

// cField matches typed field declarations ending in a semicolon.
var cField = `(?m)^[ \t]+` + mods + `(?:[\w$<>\[\],.?]+[ \t]+)(?P<name>[A-Za-z_]\w*)[ \t]*(?:=[^;{]*)?;`

var (
	jsFamily = &family{
		sep: ".",
		patterns: []pattern{
			typeDecl(`class|interface|enum|namespace|module`),
			keywordFunc(`function`),
			p(`(?m)^[ \t]*(?P<mods>(?:export[ \t]+)?)(?:const|let|var)[ \t]+(?P<name>[\w$]+)[ \t]*(?::[^=\n]+)?=[ \t]*(?:async[ \t]+)?(?:function\b|(?:\([^)]*\)|[\w$]+)[ \t]*(?::[ \t]*[^=\n]+)?=>)`, roleFunc),
			p(`(?m)^[ \t]+(?P<mods>(?:(?:public|private|protected|static|async|readonly|abstract|override|get|set)[ \t]+)*)\*?(?P<name>#?[\w$]+)[ \t]*(?:<[^>()\n]*>)?[ \t]*\([^)]*\)[ \t]*(?::[ \t]*[^{;\n]+)?\{`, roleMember),
			p(`(?m)^[ \t]+(?P<mods>(?:(?:public|private|protected|static|readonly|declare|override)[ \t]+)*)(?P<name>#?[\w$]+)[ \t]*[?!]?[ \t]*(?::[^=;\n(]+)?(?:=[^;\n]*)?;`, roleProperty),
		},
		ctor:   func(name, _ string) bool { return name == "constructor" },
		supers: extendsImplements,
	}

	jvmFamily = &family{
		sep: ".",
		patterns: []pattern{
			typeDecl(`enum[ \t]+class|annotation[ \t]+class|class|interface|enum|record|object|trait`),
			keywordFunc(`fun|def`),
			p(cMethod, roleMember),
			p(`(?m)^[ \t]+`+mods+`(?:val|var|lazy[ \t]+val)[ \t]+(?P<name>\w+)`, roleProperty),
			p(cField, roleProperty),
		},
		ctor:   func(name, typeName string) bool { return name == typeName || name == "this" },
		supers: jvmSupers,
	}

	csharpFamily = &family{
		sep: ".",
		patterns: []pattern{
			typeDecl(`class|interface|struct|enum|record[ \t]+struct|record|namespace`),
			p(cMethod, roleMember),
			p(`(?m)^[ \t]+`+mods+`[\w<>\[\],.?]+[ \t]+(?P<name>[A-Z]\w*)\s*\{\s*(?:get|set|init)`, roleProperty),
			p(cField, roleProperty),
		},
		ctor:   func(name, typeName string) bool { return name == typeName },
		supers: colonSupers,
	}

	cFamily = &family{
		sep: "::",
		patterns: []pattern{
			typeDecl(`class|struct|union|enum[ \t]+class|enum|namespace`),
			p(cMethod, roleFunc),
			p(cField, roleProperty),
		},
		ctor:   func(name, typeName string) bool { return name == typeName },
		supers: colonSupers,
	}

	swiftFamily = &family{
		sep: ".",
		patterns: []pattern{
			typeDecl(`class|struct|enum|protocol|actor`),
			p(`(?m)^[ \t]*(?:(?:public|private|fileprivate|internal)[ \t]+)?extension[ \t]+(?P<name>[\w.]+)`, roleAttach),
			keywordFunc(`func`),
			p(`(?m)^[ \t]*`+mods+`(?:(?:convenience|required)[ \t]+)*(?P<name>init)[?!]?[ \t]*\(`, roleMember),
			p(`(?m)^[ \t]+`+mods+`(?:let|var)[ \t]+(?P<name>\w+)`, roleProperty),
		},
		ctor:   func(name, _ string) bool { return name == "init" },
		supers: colonSupers,
	}

	goFamily = &family{
		sep: ".",
		patterns: []pattern{
			p(`(?m)^type[ \t]+(?P<name>\w+)(?:\[[^\]\n]*\])?[ \t]+(?:=[ \t]*)?(?P<kw>[\w.\[\]*]+)`, roleType),
			kp(`(?m)^func[ \t]*(?:\((?P<recv>[^)]*)\)[ \t]*)?(?P<name>\w+)`, roleFunc),
			p(`(?m)^[ \t]+(?P<name>[A-Za-z_]\w*)\(`, roleMember),
			p(`(?m)^[ \t]+(?P<name>[A-Za-z_]\w*)[ \t]+[\w.*\[\]]`, roleProperty),
		},
	}

	rustFamily = &family{
		sep: "::",
		patterns: []pattern{
			typeDecl(`struct|enum|trait|union|mod`),
			p(`(?m)^[ \t]*(?:unsafe[ \t]+)?impl(?:<[^>{\n]*>)?[ \t]+(?:(?P<trait>[\w:]+)(?:<[^>{\n]*>)?[ \t]+for[ \t]+)?(?P<name>[\w:]+)`, roleAttach),
			keywordFunc(`fn`),
			p(`(?m)^[ \t]+(?:pub(?:\([^)\n]*\))?[ \t]+)?(?P<name>[a-z_]\w*)[ \t]*:[ \t]*[^,\n:]`, roleProperty),
		},
		supers: rustSupers,
	}

	phpFamily = &family{
		sep: `\`,
		patterns: []pattern{
			typeDecl(`class|interface|trait|enum|namespace`),
			keywordFunc(`function`),
			p(`(?m)^[ \t]+(?P<mods>(?:(?:public|private|protected|static|readonly|var)[ \t]+)+)(?:\??[\w\\]+[ \t]+)?\$(?P<name>\w+)`, roleProperty),
		},
		ctor:      func(name, _ string) bool { return name == "__construct" },
		mixins:    regexp.MustCompile(`(?m)^[ \t]+use[ \t]+([\w\\, \t]+)[ \t]*[;{]`),
		mixinKind: graph.RelUsesTrait,
		supers:    extendsImplements,
	}

	pythonFamily = &family{
		sep:    ".",
		indent: true,
		patterns: []pattern{
			p(`(?m)^[ \t]*class[ \t]+(?P<name>\w+)`, roleType),
			p(`(?m)^[ \t]*(?P<mods>(?:async[ \t]+)?)def[ \t]+(?P<name>\w+)`, roleFunc),
			p(`(?m)^[ \t]+(?P<name>[A-Za-z_]\w*)[ \t]*(?::[^=\n]+)?=[^=]`, roleProperty),
		},
		ctor:   func(name, _ string) bool { return name == "__init__" },
		supers: pythonSupers,
	}

	rubyFamily = &family{
		sep:    "::",
		indent: true,
		patterns: []pattern{
			p(`(?m)^[ \t]*(?P<kw>class|module)[ \t]+(?P<name>[A-Z]\w*)`, roleType),
			p(`(?m)^[ \t]*def[ \t]+(?P<recv>self\.)?(?P<name>\w+[?!=]?)`, roleFunc),
		},
		ctor:      func(name, _ string) bool { return name == "initialize" },
		mixins:    regexp.MustCompile(`(?m)^[ \t]+(?:include|extend|prepend)[ \t]+([\w:, \t]+)$`),
		mixinKind: graph.RelMixesIn,
		supers:    rubySupers,
	}

	shellFamily = &family{
		sep: ".",
		patterns: []pattern{
			p(`(?m)^[ \t]*function[ \t]+(?P<name>[\w-]+)(?:[ \t]*\(\))?[ \t]*\{`, roleFunc),
			p(`(?m)^[ \t]*(?P<name>[\w-]+)[ \t]*\(\)[ \t]*\{`, roleFunc),
		},
	}

	sqlFamily = &family{
		sep: ".",
		patterns: []pattern{
			p(`(?im)^[ \t]*create[ \t]+(?:or[ \t]+replace[ \t]+)?(?:temp(?:orary)?[ \t]+)?(?P<kw>table|view|function|procedure|type)[ \t]+(?:if[ \t]+not[ \t]+exists[ \t]+)?(?P<name>[\w.]+)`, roleType),
		},
	}
)

var families = map[graph.Language]*family{
	graph.LangTypeScript: jsFamily,
	graph.LangJavaScript: jsFamily,
	graph.LangVue:        jsFamily,
	graph.LangSvelte:     jsFamily,
	graph.LangJava:       jvmFamily,
	graph.LangKotlin:     jvmFamily,
	graph.LangScala:      jvmFamily,
	graph.LangCSharp:     csharpFamily,
	graph.LangC:          cFamily,
	graph.LangCPP:        cFamily,
	graph.LangSwift:      swiftFamily,
	graph.LangGo:         goFamily,
	graph.LangRust:       rustFamily,
	graph.LangPHP:        phpFamily,
	graph.LangPython:     pythonFamily,
	graph.LangRuby:       rubyFamily,
	graph.LangShell:      shellFamily,
	graph.LangSQL:        sqlFamily,
}

// kindOf maps a declaration keyword to a component kind. Patterns without
// a keyword declare classes.
func kindOf(kw string) graph.ComponentKind {
	kw = strings.ToLower(strings.Join(strings.Fields(kw), " "))
	switch kw {
	case "", "class", "record", "object", "actor", "table":
		return graph.KindClass
	case "interface", "protocol", "annotation class":
		return graph.KindInterface
	case "struct", "union", "record struct":
		return graph.KindStruct
	case "enum", "enum class":
		return graph.KindEnum
	case "trait":
		return graph.KindTrait
	case "namespace":
		return graph.KindNamespace
	case "module", "mod":
		return graph.KindModule
	case "function", "procedure":
		return graph.KindFunction
	case "view", "type":
		return graph.KindType
	}
	return graph.KindType
}

// reserved words never name a declaration.
var reserved = map[string]bool{
	"if": true, "else": true, "for": true, "foreach": true, "while": true, "do": true, "switch": true,
	"case": true, "catch": true, "try": true, "finally": true, "return": true, "throw": true,
	"new": true, "delete": true, "sizeof": true, "typeof": true, "function": true, "func": true,
	"fn": true, "def": true, "fun": true, "class": true, "struct": true, "using": true, "lock": true,
	"synchronized": true, "with": true, "when": true, "match": true, "await": true, "yield": true,
	"super": true, "this": true, "self": true, "import": true, "package": true, "go": true,
	"defer": true, "select": true, "range": true, "elif": true, "except": true, "pass": true,
	"break": true, "continue": true, "static": true, "else if": true, "in": true, "of": true,
}
