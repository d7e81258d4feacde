package mcptools

import (
	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/index"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// IndexInput is the input for the index tool.
type IndexInput struct {
	RepoPath  string   `json:"repoPath" jsonschema:"the absolute path to the workspace to index"`
	Languages []string `json:"languages,omitempty" jsonschema:"languages to index (default: every detected language), e.g. go, typescript, python"`
	Exclude   []string `json:"exclude,omitempty" jsonschema:"glob patterns over workspace-relative paths to skip, e.g. dist or **/*.gen.go"`
}

// IndexOutput is the result of the index tool.
type IndexOutput struct {
	Files    int               `json:"files"`
	Skipped  int               `json:"skipped"`
	Resolved int               `json:"resolved"`
	Warnings int               `json:"warnings"`
	Failed   []index.FileError `json:"failed,omitempty"`
	Stats    graph.GraphStats  `json:"stats"`
}

// QueryComponentsInput is the input for the query_components tool.
type QueryComponentsInput struct {
	Query string `json:"query" jsonschema:"substring of the component name, case-insensitive"`
	Kind  string `json:"kind,omitempty" jsonschema:"filter by component kind, e.g. FUNCTION, CLASS, METHOD, INTERFACE, FILE"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 20)"`
}

// QueryComponentsOutput is the result of the query_components tool.
type QueryComponentsOutput struct {
	Components []graph.Component `json:"components"`
	Total      int               `json:"total"`
}

// GetRelationshipsInput is the input for the get_relationships tool.
type GetRelationshipsInput struct {
	ComponentID string `json:"componentId" jsonschema:"id of the component"`
	Direction   string `json:"direction,omitempty" jsonschema:"downstream (outgoing), upstream (incoming) or both. Default: both"`
	Kind        string `json:"kind,omitempty" jsonschema:"filter by relationship kind, e.g. CALLS, EXTENDS, IMPORTS_FROM"`
}

// GetRelationshipsOutput is the result of the get_relationships tool.
type GetRelationshipsOutput struct {
	Relationships []graph.Relationship `json:"relationships"`
}

// GetDependenciesInput is the input for the get_dependencies tool.
type GetDependenciesInput struct {
	FilePath  string `json:"filePath" jsonschema:"workspace-relative file path"`
	Direction string `json:"direction,omitempty" jsonschema:"downstream (what it imports) or upstream (what imports it). Default: downstream"`
	MaxDepth  int    `json:"maxDepth,omitempty" jsonschema:"maximum traversal depth (default: 5)"`
}

// GetDependenciesOutput is the result of the get_dependencies tool.
type GetDependenciesOutput struct {
	Chains []graph.DependencyChain `json:"chains"`
}

// AssessImpactInput is the input for the assess_impact tool.
type AssessImpactInput struct {
	ChangedFiles []string `json:"changedFiles" jsonschema:"workspace-relative paths of the files that will be modified"`
}

// AssessImpactOutput is the result of the assess_impact tool.
type AssessImpactOutput struct {
	Impact graph.ImpactResult `json:"impact"`
}

// GetClustersInput is the input for the get_clusters tool.
type GetClustersInput struct{}

// GetClustersOutput is the result of the get_clusters tool.
type GetClustersOutput struct {
	Clusters []graph.ClusterNode `json:"clusters"`
}

// ParseFileInput is the input for the parse_file tool.
type ParseFileInput struct {
	FilePath            string   `json:"filePath" jsonschema:"path of the file; read from disk unless content is given"`
	Content             *string  `json:"content,omitempty" jsonschema:"file content to parse instead of reading filePath"`
	Language            string   `json:"language,omitempty" jsonschema:"force the host language instead of detecting it"`
	SegmentationOnly    bool     `json:"segmentationOnly,omitempty" jsonschema:"stop after splitting the file into language blocks"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty" jsonschema:"minimum relationship confidence kept (default from configuration)"`
}

// ParseFileOutput is the result of the parse_file tool.
type ParseFileOutput struct {
	Result *graph.ParseResult `json:"result"`
}

// ValidateSyntaxInput is the input for the validate_syntax tool.
type ValidateSyntaxInput struct {
	FilePath string  `json:"filePath" jsonschema:"path of the file; read from disk unless content is given"`
	Content  *string `json:"content,omitempty" jsonschema:"source to validate instead of reading filePath"`
	Language string  `json:"language,omitempty" jsonschema:"force the language instead of detecting it"`
}

// ValidateSyntaxOutput is the result of the validate_syntax tool.
type ValidateSyntaxOutput struct {
	Validation coordinator.Validation `json:"validation"`
}
