package mcptools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/index"
)

// CodeIntelService holds the coordinator and graph store used by MCP tool
// handlers.
type CodeIntelService struct {
	coord   *coordinator.Coordinator
	store   graph.Store
	indexer *index.Indexer
	opts    coordinator.Options
	log     *logrus.Entry

	// persistPath, when set, receives a Kuzu copy of the graph after each
	// index run.
	persistPath string

	// index runs are serialized; queries may run alongside them.
	indexMu sync.Mutex
}

// ServiceOption configures a CodeIntelService.
type ServiceOption func(*CodeIntelService)

// WithParseOptions sets the pipeline options used by parse_file and index.
func WithParseOptions(opts coordinator.Options) ServiceOption {
	return func(s *CodeIntelService) { s.opts = opts }
}

// WithLogger sets the service logger.
func WithLogger(log *logrus.Entry) ServiceOption {
	return func(s *CodeIntelService) { s.log = log }
}

// WithPersistPath copies the graph into a Kuzu database at path after each
// index run.
func WithPersistPath(path string) ServiceOption {
	return func(s *CodeIntelService) { s.persistPath = path }
}

// NewCodeIntelService creates a CodeIntelService parsing with coord and
// storing into store.
func NewCodeIntelService(coord *coordinator.Coordinator, store graph.Store, opts ...ServiceOption) *CodeIntelService {
	s := &CodeIntelService{
		coord: coord,
		store: store,
		opts:  coordinator.DefaultOptions(),
		log:   logrus.StandardLogger().WithField("component", "mcp"),
	}
	for _, o := range opts {
		o(s)
	}
	s.indexer = index.New(coord, store, index.WithLogger(s.log))
	return s
}

// Index walks a workspace, parses every source file, stores the graph and
// computes clusters.
func (s *CodeIntelService) Index(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexInput,
) (*mcp.CallToolResult, IndexOutput, error) {
	if input.RepoPath == "" {
		return nil, IndexOutput{}, fmt.Errorf("repoPath is required")
	}
	info, err := os.Stat(input.RepoPath)
	if err != nil {
		return nil, IndexOutput{}, fmt.Errorf("cannot access repoPath: %w", err)
	}
	if !info.IsDir() {
		return nil, IndexOutput{}, fmt.Errorf("repoPath is not a directory: %s", input.RepoPath)
	}

	langs := make([]graph.Language, 0, len(input.Languages))
	for _, l := range input.Languages {
		langs = append(langs, graph.Language(strings.ToLower(l)))
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	sum, err := s.indexer.Index(ctx, input.RepoPath, index.Options{
		Exclude:   input.Exclude,
		Languages: langs,
		Parse:     s.opts,
	})
	if err != nil {
		return nil, IndexOutput{}, err
	}

	if s.persistPath != "" {
		if err := persistGraph(ctx, s.store, s.persistPath); err != nil {
			s.log.WithError(err).WithField("path", s.persistPath).Warn("failed to persist graph")
		}
	}

	return nil, IndexOutput{
		Files:    sum.Files,
		Skipped:  sum.Skipped,
		Resolved: sum.Resolved,
		Warnings: sum.Warnings,
		Failed:   sum.Failed,
		Stats:    sum.Stats,
	}, nil
}

// persistGraph copies the graph from src into a fresh Kuzu database at
// persistPath so that later CLI runs can query it without re-indexing.
func persistGraph(ctx context.Context, src graph.Store, persistPath string) error {
	// Remove old graph to avoid stale data.
	os.RemoveAll(persistPath)

	dst, err := graph.NewKuzuFileStore(persistPath)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	defer dst.Close()
	return graph.CopyStore(ctx, src, dst)
}

// QueryComponents searches for components by name substring match.
func (s *CodeIntelService) QueryComponents(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryComponentsInput,
) (*mcp.CallToolResult, QueryComponentsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	kind := graph.ComponentKind(strings.ToUpper(input.Kind))

	comps, err := s.store.QueryComponents(ctx, input.Query, kind, limit)
	if err != nil {
		return nil, QueryComponentsOutput{}, fmt.Errorf("query components: %w", err)
	}
	if comps == nil {
		comps = []graph.Component{}
	}
	return nil, QueryComponentsOutput{Components: comps, Total: len(comps)}, nil
}

// GetRelationships lists the relationships touching a component.
func (s *CodeIntelService) GetRelationships(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetRelationshipsInput,
) (*mcp.CallToolResult, GetRelationshipsOutput, error) {
	if input.ComponentID == "" {
		return nil, GetRelationshipsOutput{}, fmt.Errorf("componentId is required")
	}
	dir, err := parseDirection(input.Direction, graph.DirectionBoth)
	if err != nil {
		return nil, GetRelationshipsOutput{}, err
	}

	rels, err := s.store.GetRelationships(ctx, input.ComponentID, dir)
	if err != nil {
		return nil, GetRelationshipsOutput{}, fmt.Errorf("get relationships: %w", err)
	}
	out := []graph.Relationship{}
	kind := graph.RelationshipKind(strings.ToUpper(input.Kind))
	for _, r := range rels {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	return nil, GetRelationshipsOutput{Relationships: out}, nil
}

// GetDependencies traverses file-level imports from a file.
func (s *CodeIntelService) GetDependencies(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetDependenciesInput,
) (*mcp.CallToolResult, GetDependenciesOutput, error) {
	if input.FilePath == "" {
		return nil, GetDependenciesOutput{}, fmt.Errorf("filePath is required")
	}
	dir, err := parseDirection(input.Direction, graph.DirectionDownstream)
	if err != nil {
		return nil, GetDependenciesOutput{}, err
	}
	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}

	chains, err := s.store.GetDependencies(ctx, input.FilePath, dir, maxDepth)
	if err != nil {
		return nil, GetDependenciesOutput{}, fmt.Errorf("get dependencies: %w", err)
	}
	if chains == nil {
		chains = []graph.DependencyChain{}
	}
	return nil, GetDependenciesOutput{Chains: chains}, nil
}

// AssessImpact computes the blast radius of modifying a set of files.
func (s *CodeIntelService) AssessImpact(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AssessImpactInput,
) (*mcp.CallToolResult, AssessImpactOutput, error) {
	if len(input.ChangedFiles) == 0 {
		return nil, AssessImpactOutput{}, fmt.Errorf("changedFiles is required")
	}

	impact, err := s.store.AssessImpact(ctx, input.ChangedFiles)
	if err != nil {
		return nil, AssessImpactOutput{}, fmt.Errorf("assess impact: %w", err)
	}
	return nil, AssessImpactOutput{Impact: *impact}, nil
}

// GetClusters returns all file clusters in the graph.
func (s *CodeIntelService) GetClusters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GetClustersInput,
) (*mcp.CallToolResult, GetClustersOutput, error) {
	clusters, err := s.store.GetClusters(ctx)
	if err != nil {
		return nil, GetClustersOutput{}, fmt.Errorf("get clusters: %w", err)
	}
	if clusters == nil {
		clusters = []graph.ClusterNode{}
	}
	return nil, GetClustersOutput{Clusters: clusters}, nil
}

// ParseFile runs the document pipeline on one file.
func (s *CodeIntelService) ParseFile(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ParseFileInput,
) (*mcp.CallToolResult, ParseFileOutput, error) {
	if input.FilePath == "" {
		return nil, ParseFileOutput{}, fmt.Errorf("filePath is required")
	}
	opts := s.opts
	opts.ForceParser = graph.Language(strings.ToLower(input.Language))
	opts.SegmentationOnly = input.SegmentationOnly
	if t := input.ConfidenceThreshold; t != nil {
		if *t < 0 || *t > 1 {
			return nil, ParseFileOutput{}, fmt.Errorf("confidenceThreshold %v is outside [0, 1]", *t)
		}
		opts.ConfidenceThreshold = *t
	}

	var content []byte
	if input.Content != nil {
		content = []byte(*input.Content)
	}
	res, err := s.coord.ParseDocument(ctx, input.FilePath, content, opts)
	if err != nil {
		return nil, ParseFileOutput{}, err
	}
	return nil, ParseFileOutput{Result: res}, nil
}

// ValidateSyntax checks a file with the primary backend of its language.
func (s *CodeIntelService) ValidateSyntax(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateSyntaxInput,
) (*mcp.CallToolResult, ValidateSyntaxOutput, error) {
	if input.FilePath == "" {
		return nil, ValidateSyntaxOutput{}, fmt.Errorf("filePath is required")
	}
	var content []byte
	if input.Content != nil {
		content = []byte(*input.Content)
	}
	v, err := s.coord.ValidateSyntax(ctx, input.FilePath, content, graph.Language(strings.ToLower(input.Language)))
	if err != nil {
		return nil, ValidateSyntaxOutput{}, err
	}
	return nil, ValidateSyntaxOutput{Validation: *v}, nil
}

func parseDirection(s string, def graph.Direction) (graph.Direction, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "upstream":
		return graph.DirectionUpstream, nil
	case "downstream":
		return graph.DirectionDownstream, nil
	case "both":
		return graph.DirectionBoth, nil
	}
	return "", fmt.Errorf("unknown direction %q: want upstream, downstream or both", s)
}
