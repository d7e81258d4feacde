package coordinator

import (
	"fmt"

	"github.com/dusk-indust/polyparse/internal/aggregate"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Options are the per-call flags of ParseDocument.
type Options struct {
	// EnableSegmentation splits mixed-language files into blocks. When off,
	// the whole file is one block.
	EnableSegmentation bool `json:"enableSegmentation"`
	// EnableInitialLinking runs the text-level import linker.
	EnableInitialLinking bool `json:"enableInitialLinking"`
	// EnableAggregation merges tiers; when off relationships pass through
	// unmerged and unfiltered.
	EnableAggregation bool `json:"enableAggregation"`
	// ConfidenceThreshold is the minimum confidence kept by aggregation.
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	// WorkspaceRoot enables linker hints that resolve specifiers to files.
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`
	// ForceParser overrides language detection.
	ForceParser graph.Language `json:"forceParser,omitempty"`
	// SegmentationOnly stops after segmentation.
	SegmentationOnly bool `json:"segmentationOnly"`
}

// DefaultOptions turns every stage on with the default threshold.
func DefaultOptions() Options {
	return Options{
		EnableSegmentation:   true,
		EnableInitialLinking: true,
		EnableAggregation:    true,
		ConfidenceThreshold:  aggregate.DefaultThreshold,
	}
}

// fingerprint distinguishes cached results parsed with different options.
func (o Options) fingerprint() string {
	return fmt.Sprintf("%t|%t|%t|%g|%s|%s|%t",
		o.EnableSegmentation, o.EnableInitialLinking, o.EnableAggregation,
		o.ConfidenceThreshold, o.WorkspaceRoot, o.ForceParser, o.SegmentationOnly)
}
