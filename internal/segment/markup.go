package segment

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/dusk-indust/polyparse/internal/detect"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// MarkupScanner finds script, style and component template bodies in HTML,
// Vue and Svelte documents.
type MarkupScanner struct{}

// NewMarkupScanner returns a MarkupScanner.
func NewMarkupScanner() *MarkupScanner { return &MarkupScanner{} }

// Name implements Scanner.
func (*MarkupScanner) Name() string { return "markup" }

// Accepts implements Scanner.
func (*MarkupScanner) Accepts(host graph.Language, _ string) bool {
	return host == graph.LangHTML || host == graph.LangVue || host == graph.LangSvelte
}

// Scan implements Scanner. Offsets are tracked from the tokenizer's raw token
// bytes so that regions index the original content exactly.
func (*MarkupScanner) Scan(content []byte, host graph.Language) []Region {
	z := html.NewTokenizer(bytes.NewReader(content))
	var (
		regions       []Region
		pos           int
		open          string // raw-text element whose body comes next
		openLang      graph.Language
		templateDepth int
		templateStart int
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		start := pos
		pos += len(z.Raw())

		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			attrs := readAttrs(z, hasAttr)
			switch string(name) {
			case "script":
				open, openLang = "script", scriptLanguage(attrs)
			case "style":
				open, openLang = "style", graph.LangCSS
			case "template":
				if host == graph.LangVue {
					if templateDepth == 0 {
						templateStart = pos
					}
					templateDepth++
				}
			}
		case html.TextToken:
			if open != "" && openLang != "" && len(bytes.TrimSpace(content[start:pos])) > 0 {
				conf := 0.95
				if open == "style" {
					conf = 0.9
				}
				regions = append(regions, Region{
					Language:   openLang,
					Start:      start,
					End:        pos,
					Confidence: conf,
					Source:     "markup:" + open,
				})
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				open, openLang = "", ""
			case "template":
				if host == graph.LangVue && templateDepth > 0 {
					templateDepth--
					if templateDepth == 0 && start > templateStart {
						regions = append(regions, Region{
							Language:   graph.LangHTML,
							Start:      templateStart,
							End:        start,
							Confidence: 0.8,
							Source:     "markup:template",
						})
					}
				}
			}
		}
	}
	return regions
}

func readAttrs(z *html.Tokenizer, more bool) map[string]string {
	attrs := make(map[string]string)
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		attrs[string(k)] = string(v)
	}
	return attrs
}

// scriptLanguage picks the language of a script element from its lang or
// type attribute. An empty result means the body is not code (templates,
// unknown MIME types) and is left to the host.
func scriptLanguage(attrs map[string]string) graph.Language {
	if lang, ok := attrs["lang"]; ok {
		if l := detect.FromName(lang); l != graph.LangUnknown {
			return l
		}
	}
	typ := strings.ToLower(strings.TrimSpace(attrs["type"]))
	switch typ {
	case "", "module", "text/javascript", "application/javascript", "text/ecmascript", "text/babel", "text/jsx":
		return graph.LangJavaScript
	case "text/typescript", "application/typescript":
		return graph.LangTypeScript
	case "application/json", "application/ld+json", "importmap", "speculationrules":
		return graph.LangJSON
	}
	return ""
}
