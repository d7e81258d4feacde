package graph

import (
	"bytes"
	"time"
)

// ParseResult is the complete output of parsing one document. Callers must
// treat it as immutable once returned.
type ParseResult struct {
	Components    []Component         `json:"components"`
	Relationships []Relationship      `json:"relationships"`
	Segmentation  SegmentationSummary `json:"segmentation"`
	Linking       LinkingSummary      `json:"linking"`
	Metadata      ResultMetadata      `json:"metadata"`
}

// SegmentationSummary records how the document was split.
type SegmentationSummary struct {
	Blocks         []Block      `json:"blocks"`
	Scanner        string       `json:"scanner"`
	Classification BackendClass `json:"classification"`
	Mixed          bool         `json:"mixed"`
}

// LinkingSummary records what the initial linker found.
type LinkingSummary struct {
	Enabled       bool `json:"enabled"`
	Specifiers    int  `json:"specifiers"`
	Relationships int  `json:"relationships"`
	Hinted        int  `json:"hinted"`
}

// ResultMetadata describes how a ParseResult was produced.
type ResultMetadata struct {
	FilePath          string        `json:"filePath"`
	Language          Language      `json:"language"`
	LanguagesDetected []Language    `json:"languagesDetected"`
	Backend           BackendClass  `json:"backend"`
	ParsingLevel      ParsingLevel  `json:"parsingLevel"`
	BackendsUsed      []string      `json:"backendsUsed,omitempty"`
	ProcessingTime    time.Duration `json:"processingTimeNs"`
	Aggregated        bool          `json:"aggregated"`
	Dropped           int           `json:"dropped"`
	Warnings          []string      `json:"warnings"`
	Diagnostics       []Diagnostic  `json:"diagnostics,omitempty"`
}

// FileComponent returns the FILE component of the result, if present.
func (r *ParseResult) FileComponent() (Component, bool) {
	for _, c := range r.Components {
		if c.Kind == KindFile {
			return c, true
		}
	}
	return Component{}, false
}

// CountLOC counts lines in source: newline bytes plus one for a non-empty
// final line.
func CountLOC(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	n := bytes.Count(source, []byte{'\n'})
	if source[len(source)-1] != '\n' {
		n++
	}
	return n
}
