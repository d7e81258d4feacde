// Package segment splits a document into language-tagged blocks so that
// files mixing several languages (HTML with script and style, Vue and Svelte
// components, PHP templates, Markdown with fenced code) can be extracted one
// region at a time.
package segment

import (
	"bytes"
	"sort"

	"github.com/dusk-indust/polyparse/internal/detect"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Block sources that are not scanner names.
const (
	SourceDisabled = "disabled"
	SourceDetector = "detector"
	SourceHost     = "host"
)

// DisabledConfidence is the confidence of the single block returned when
// segmentation is turned off.
const DisabledConfidence = 0.6

// Metadata describes how a document was segmented.
type Metadata struct {
	Scanner        string             `json:"scanner"`
	Classification graph.BackendClass `json:"classification"`
	HostLanguage   graph.Language     `json:"hostLanguage"`
	Languages      []graph.Language   `json:"languages"`
	Mixed          bool               `json:"mixed"`
}

// Result is the chosen partition of a document. Blocks never overlap and are
// ordered by start offset.
type Result struct {
	Blocks   []graph.Block `json:"blocks"`
	Metadata Metadata      `json:"metadata"`
}

// Region is a candidate language range proposed by a scanner. Regions from
// one scanner may overlap; the segmenter picks a non-overlapping subset.
type Region struct {
	Language   graph.Language
	Start, End int
	Confidence float64
	Source     string
}

// Scanner proposes language regions for the documents it accepts.
type Scanner interface {
	Name() string
	Accepts(host graph.Language, path string) bool
	Scan(content []byte, host graph.Language) []Region
}

// Segmenter picks a scanner per document and turns its regions into blocks.
// It holds no per-document state and is safe for concurrent use.
type Segmenter struct {
	enabled  bool
	scanners []Scanner
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithScanners replaces the default scanner set.
func WithScanners(scanners ...Scanner) Option {
	return func(s *Segmenter) { s.scanners = scanners }
}

// WithEnabled turns segmentation on or off. A disabled segmenter always
// returns one whole-document block.
func WithEnabled(enabled bool) Option {
	return func(s *Segmenter) { s.enabled = enabled }
}

// New returns an enabled Segmenter with the markup, Markdown and PHP scanners.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		enabled:  true,
		scanners: []Scanner{NewMarkupScanner(), NewMarkdownScanner(), NewPHPScanner()},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Segment splits content. host overrides language detection when it is not
// empty.
func (s *Segmenter) Segment(filePath string, content []byte, host graph.Language) Result {
	var hostConf float64
	if host == "" || host == graph.LangUnknown {
		d := detect.Detect(filePath, content)
		host = d.Language
		if len(d.Candidates) > 0 {
			hostConf = d.Candidates[0].Confidence
		}
	} else {
		hostConf = 1
	}
	if !s.enabled {
		return Single(content, host, DisabledConfidence, SourceDisabled)
	}

	for _, sc := range s.scanners {
		if !sc.Accepts(host, filePath) {
			continue
		}
		regions := sc.Scan(content, host)
		if len(regions) == 0 {
			continue
		}
		blocks := partition(content, regions, host, hostConf)
		langs := languages(blocks)
		class := graph.BackendDetectorsOnly
		if len(blocks) > 1 || (len(blocks) == 1 && blocks[0].Language != host) {
			class = graph.BackendHybrid
		}
		return Result{
			Blocks: blocks,
			Metadata: Metadata{
				Scanner:        sc.Name(),
				Classification: class,
				HostLanguage:   host,
				Languages:      langs,
				Mixed:          len(langs) > 1,
			},
		}
	}

	if hostConf == 0 {
		hostConf = DisabledConfidence
	}
	return Single(content, host, hostConf, SourceDetector)
}

// Single returns a result with one block spanning the whole document.
func Single(content []byte, lang graph.Language, confidence float64, source string) Result {
	block := graph.Block{
		Language:   lang,
		StartByte:  0,
		EndByte:    len(content),
		StartLine:  1,
		EndLine:    max(graph.CountLOC(content), 1),
		Confidence: confidence,
		Source:     source,
	}
	return Result{
		Blocks: []graph.Block{block},
		Metadata: Metadata{
			Scanner:        source,
			Classification: graph.BackendDetectorsOnly,
			HostLanguage:   lang,
			Languages:      []graph.Language{lang},
		},
	}
}

// partition chooses non-overlapping regions greedily by confidence and fills
// the non-blank gaps between them with host-language blocks.
func partition(content []byte, regions []Region, host graph.Language, hostConf float64) []graph.Block {
	sorted := make([]Region, 0, len(regions))
	for _, r := range regions {
		r.Start = max(r.Start, 0)
		r.End = min(r.End, len(content))
		if r.End > r.Start {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End-a.Start > b.End-b.Start
	})

	var chosen []Region
	for _, r := range sorted {
		overlaps := false
		for _, c := range chosen {
			if r.Start < c.End && c.Start < r.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			chosen = append(chosen, r)
		}
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].Start < chosen[j].Start })

	if hostConf == 0 {
		hostConf = 0.5
	}
	lines := newLineIndex(content)
	var blocks []graph.Block
	addGap := func(start, end int) {
		if end > start && len(bytes.TrimSpace(content[start:end])) > 0 {
			blocks = append(blocks, lines.block(host, start, end, hostConf, SourceHost))
		}
	}
	pos := 0
	for _, r := range chosen {
		addGap(pos, r.Start)
		blocks = append(blocks, lines.block(r.Language, r.Start, r.End, r.Confidence, r.Source))
		pos = r.End
	}
	addGap(pos, len(content))
	return blocks
}

func languages(blocks []graph.Block) []graph.Language {
	seen := make(map[graph.Language]bool)
	var out []graph.Language
	for _, b := range blocks {
		if !seen[b.Language] {
			seen[b.Language] = true
			out = append(out, b.Language)
		}
	}
	return out
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(content []byte) lineIndex {
	idx := lineIndex{0}
	for i, b := range content {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// line returns the line containing offset.
func (li lineIndex) line(offset int) int {
	return sort.Search(len(li), func(i int) bool { return li[i] > offset })
}

func (li lineIndex) block(lang graph.Language, start, end int, conf float64, source string) graph.Block {
	return graph.Block{
		Language:   lang,
		StartByte:  start,
		EndByte:    end,
		StartLine:  li.line(start),
		EndLine:    li.line(max(end-1, start)),
		Confidence: conf,
		Source:     source,
	}
}
