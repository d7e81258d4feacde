package graph

import "strings"

// --- Enums ---

// ComponentKind classifies components in the code graph.
type ComponentKind string

const (
	KindFile        ComponentKind = "FILE"
	KindModule      ComponentKind = "MODULE"
	KindNamespace   ComponentKind = "NAMESPACE"
	KindClass       ComponentKind = "CLASS"
	KindInterface   ComponentKind = "INTERFACE"
	KindStruct      ComponentKind = "STRUCT"
	KindTrait       ComponentKind = "TRAIT"
	KindEnum        ComponentKind = "ENUM"
	KindType        ComponentKind = "TYPE"
	KindFunction    ComponentKind = "FUNCTION"
	KindMethod      ComponentKind = "METHOD"
	KindConstructor ComponentKind = "CONSTRUCTOR"
	KindProperty    ComponentKind = "PROPERTY"
	KindVariable    ComponentKind = "VARIABLE"
	KindConstant    ComponentKind = "CONSTANT"
)

// IsContainer reports whether components of this kind can own members.
func (k ComponentKind) IsContainer() bool {
	switch k {
	case KindFile, KindModule, KindNamespace, KindClass, KindInterface, KindStruct, KindTrait, KindEnum:
		return true
	}
	return false
}

// IsTypeLike reports whether the kind declares a type that other types can
// extend or implement.
func (k ComponentKind) IsTypeLike() bool {
	switch k {
	case KindClass, KindInterface, KindStruct, KindTrait, KindEnum, KindType:
		return true
	}
	return false
}

// RelationshipKind classifies edges between components.
type RelationshipKind string

const (
	// structural
	RelContains    RelationshipKind = "CONTAINS"
	RelBelongsTo   RelationshipKind = "BELONGS_TO"
	RelHasMethod   RelationshipKind = "HAS_METHOD"
	RelHasProperty RelationshipKind = "HAS_PROPERTY"
	RelInNamespace RelationshipKind = "IN_NAMESPACE"

	// behavioral
	RelCalls      RelationshipKind = "CALLS"
	RelUses       RelationshipKind = "USES"
	RelReferences RelationshipKind = "REFERENCES"
	RelCreates    RelationshipKind = "CREATES"
	RelThrows     RelationshipKind = "THROWS"

	// inheritance
	RelExtends    RelationshipKind = "EXTENDS"
	RelImplements RelationshipKind = "IMPLEMENTS"
	RelUsesTrait  RelationshipKind = "USES_TRAIT"
	RelMixesIn    RelationshipKind = "MIXES_IN"

	// import/export
	RelImports     RelationshipKind = "IMPORTS"
	RelImportsFrom RelationshipKind = "IMPORTS_FROM"
	RelExports     RelationshipKind = "EXPORTS"
)

// Category groups relationship kinds.
type Category string

const (
	CategoryStructural   Category = "structural"
	CategoryBehavioral   Category = "behavioral"
	CategoryInheritance  Category = "inheritance"
	CategoryImportExport Category = "import_export"
	CategoryUnknown      Category = "unknown"
)

// Category returns the group the kind belongs to.
func (k RelationshipKind) Category() Category {
	switch k {
	case RelContains, RelBelongsTo, RelHasMethod, RelHasProperty, RelInNamespace:
		return CategoryStructural
	case RelCalls, RelUses, RelReferences, RelCreates, RelThrows:
		return CategoryBehavioral
	case RelExtends, RelImplements, RelUsesTrait, RelMixesIn:
		return CategoryInheritance
	case RelImports, RelImportsFrom, RelExports:
		return CategoryImportExport
	default:
		return CategoryUnknown
	}
}

// Language identifies a programming or markup language.
type Language string

const (
	LangUnknown    Language = "unknown"
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
	LangScala      Language = "scala"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangCSharp     Language = "csharp"
	LangPHP        Language = "php"
	LangRuby       Language = "ruby"
	LangSwift      Language = "swift"
	LangShell      Language = "shell"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangMarkdown   Language = "markdown"
	LangVue        Language = "vue"
	LangSvelte     Language = "svelte"
	LangJSON       Language = "json"
	LangYAML       Language = "yaml"
	LangSQL        Language = "sql"
)

// Tier is the provenance class of a relationship batch.
type Tier string

const (
	TierSemantic   Tier = "semantic"
	TierStructural Tier = "structural"
	TierInitial    Tier = "initial"
)

// Rank orders tiers: semantic > structural > initial. Unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case TierSemantic:
		return 3
	case TierStructural:
		return 2
	case TierInitial:
		return 1
	default:
		return 0
	}
}

// DefaultConfidence is the confidence assumed for a relationship of this
// tier when its metadata does not carry one.
func (t Tier) DefaultConfidence() float64 {
	switch t {
	case TierSemantic:
		return 0.9
	case TierStructural:
		return 0.7
	case TierInitial:
		return 0.5
	default:
		return 0.3
	}
}

// ParsingLevel is the depth a backend reaches.
type ParsingLevel string

const (
	LevelSemantic   ParsingLevel = "semantic"
	LevelStructural ParsingLevel = "structural"
	LevelBasic      ParsingLevel = "basic"
)

// Rank orders parsing levels: semantic > structural > basic.
func (l ParsingLevel) Rank() int {
	switch l {
	case LevelSemantic:
		return 3
	case LevelStructural:
		return 2
	case LevelBasic:
		return 1
	default:
		return 0
	}
}

// Tier maps a parsing level to the tier its relationships are merged under.
func (l ParsingLevel) Tier() Tier {
	if l == LevelSemantic {
		return TierSemantic
	}
	return TierStructural
}

// BackendClass is the overall backend classification reported for a parse.
type BackendClass string

const (
	BackendAST           BackendClass = "ast"
	BackendHybrid        BackendClass = "hybrid"
	BackendDetectorsOnly BackendClass = "detectors-only"
)

// --- Placeholders ---

const (
	// PrefixResolve marks a target known by qualified name but declared
	// outside the current file.
	PrefixResolve = "RESOLVE:"
	// PrefixUnresolved marks a target that is only an expression.
	PrefixUnresolved = "UNRESOLVED:"
)

// ResolvePlaceholder returns the RESOLVE: token for a qualified name.
func ResolvePlaceholder(qualifiedName string) string {
	return PrefixResolve + qualifiedName
}

// UnresolvedPlaceholder returns the UNRESOLVED: token for an expression.
func UnresolvedPlaceholder(expr string) string {
	return PrefixUnresolved + expr
}

// IsPlaceholder reports whether id is a RESOLVE: or UNRESOLVED: token.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PrefixResolve) || strings.HasPrefix(id, PrefixUnresolved)
}

// SplitPlaceholder returns the prefix and the name carried by a placeholder.
func SplitPlaceholder(id string) (prefix, name string, ok bool) {
	switch {
	case strings.HasPrefix(id, PrefixResolve):
		return PrefixResolve, id[len(PrefixResolve):], true
	case strings.HasPrefix(id, PrefixUnresolved):
		return PrefixUnresolved, id[len(PrefixUnresolved):], true
	}
	return "", "", false
}

// --- Metadata keys ---

const (
	MetaConfidence        = "confidence"
	MetaTier              = "tier"
	MetaContributingTiers = "contributingTiers"
	MetaIsResolved        = "isResolved"
	MetaQualifiedName     = "qualifiedName"
	MetaNamespace         = "namespace"
	MetaVisibility        = "visibility"
	MetaStatic            = "static"
	MetaAbstract          = "abstract"
	MetaAsync             = "async"
	MetaExported          = "exported"
	MetaParameters        = "parameters"
	MetaReturnType        = "returnType"
	MetaDoc               = "doc"
	MetaBackend           = "backend"
	MetaSpecifier         = "specifier"
	MetaImportedNames     = "importedNames"
	MetaImportedFrom      = "importedFrom"
	MetaResolvedPath      = "resolvedPath"
	MetaExpression        = "expression"
	MetaDirection         = "direction"
	MetaLOC               = "loc"
)

// --- Models ---

// Location is a 1-based line/column range.
type Location struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// Shift moves the location down by lines.
func (l Location) Shift(lines int) Location {
	l.StartLine += lines
	l.EndLine += lines
	return l
}

// Component is a named, located code entity.
type Component struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Kind     ComponentKind  `json:"kind"`
	Language Language       `json:"language"`
	FilePath string         `json:"filePath"`
	Location Location       `json:"location"`
	ParentID string         `json:"parentId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Code     string         `json:"code,omitempty"`
}

// QualifiedName returns the qualified name recorded in metadata, or Name.
func (c Component) QualifiedName() string {
	if qn, ok := c.Metadata[MetaQualifiedName].(string); ok && qn != "" {
		return qn
	}
	return c.Name
}

// Relationship is a typed, directed edge.
type Relationship struct {
	ID       string           `json:"id"`
	Kind     RelationshipKind `json:"kind"`
	SourceID string           `json:"sourceId"`
	TargetID string           `json:"targetId"`
	Location *Location        `json:"location,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Confidence returns the explicit confidence in metadata, if any.
func (r Relationship) Confidence() (float64, bool) {
	return floatValue(r.Metadata[MetaConfidence])
}

// Tier returns the tier recorded in metadata.
func (r Relationship) Tier() Tier {
	t, _ := r.Metadata[MetaTier].(string)
	return Tier(t)
}

// IsResolved reports whether the target is a concrete component id.
func (r Relationship) IsResolved() bool {
	if v, ok := r.Metadata[MetaIsResolved].(bool); ok {
		return v
	}
	return !IsPlaceholder(r.TargetID)
}

// Block is one language-tagged range of a document.
type Block struct {
	Language   Language `json:"language"`
	StartByte  int      `json:"startByte"`
	EndByte    int      `json:"endByte"`
	StartLine  int      `json:"startLine"`
	EndLine    int      `json:"endLine"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
}

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is a syntax or backend problem reported as data.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Backend  string   `json:"backend,omitempty"`
	Code     string   `json:"code,omitempty"`
}

// ClusterNode represents a group of files connected by imports.
type ClusterNode struct {
	Name          string   `json:"name"`
	CohesionScore float64  `json:"cohesionScore"`
	Members       []string `json:"members"` // file paths
}

// GraphStats summarizes a stored graph.
type GraphStats struct {
	FileCount         int `json:"fileCount"`
	ComponentCount    int `json:"componentCount"`
	RelationshipCount int `json:"relationshipCount"`
	ClusterCount      int `json:"clusterCount"`
}

// DependencyChain is an ordered sequence of file paths along imports.
type DependencyChain struct {
	Nodes []string `json:"nodes"`
	Depth int      `json:"depth"`
}

// ImpactResult describes which files are affected by changing others.
type ImpactResult struct {
	DirectlyAffected     []string `json:"directlyAffected"`
	TransitivelyAffected []string `json:"transitivelyAffected"`
	RiskScore            float64  `json:"riskScore"` // 0.0-1.0, share of files affected
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
