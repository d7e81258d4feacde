package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCodeIntelMCPServer creates an MCP server with the parse, validate,
// index and graph query tools registered.
func NewCodeIntelMCPServer(svc *CodeIntelService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "polyparse",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "parse_file",
		Description: "Parse one source file into components and relationships. Mixed-language files are split into blocks, each block is extracted by the best backend for its language, and relationship tiers are merged.",
	}, svc.ParseFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_syntax",
		Description: "Check a file's syntax with the primary backend for its language. Returns diagnostics with line and column.",
	}, svc.ValidateSyntax)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index",
		Description: "Index a workspace: parse every source file, store the component graph, resolve imports to workspace files and compute file clusters.",
	}, svc.Index)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_components",
		Description: "Search indexed components (functions, classes, methods, types, etc.) by name substring. Optionally filter by kind and limit results.",
	}, svc.QueryComponents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_relationships",
		Description: "List the relationships of a component: calls, inheritance, containment and imports, incoming or outgoing.",
	}, svc.GetRelationships)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_dependencies",
		Description: "Traverse file-level imports upstream or downstream from a file. Returns dependency chains up to the specified depth.",
	}, svc.GetDependencies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assess_impact",
		Description: "Compute the blast radius of modifying a set of files. Returns directly and transitively affected files with a risk score.",
	}, svc.AssessImpact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_clusters",
		Description: "Return the file clusters found by the last index run. Clusters are groups of files connected by imports, with cohesion scores.",
	}, svc.GetClusters)

	return server
}

// RunMCPServer starts an HTTP server exposing the MCP tools.
func RunMCPServer(ctx context.Context, svc *CodeIntelService, addr string) error {
	server := NewCodeIntelMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunMCPServerStdio serves the MCP tools on stdio, blocking until stdin is
// closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, svc *CodeIntelService) error {
	return NewCodeIntelMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
