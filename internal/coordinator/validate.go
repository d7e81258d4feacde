package coordinator

import (
	"context"
	"os"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/detect"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Validation is the outcome of a syntax check.
type Validation struct {
	FilePath    string             `json:"filePath"`
	Language    graph.Language     `json:"language"`
	Backend     string             `json:"backend"`
	Valid       bool               `json:"valid"`
	Diagnostics []graph.Diagnostic `json:"diagnostics"`
}

// ValidateSyntax checks content with the primary backend of its language.
// A nil content is read from path; lang overrides detection when set.
func (c *Coordinator) ValidateSyntax(ctx context.Context, path string, content []byte, lang graph.Language) (*Validation, error) {
	if content == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.InputReadFailure, "read input").WithContext("file", path)
		}
		content = data
	}
	if lang == "" {
		lang = detect.Detect(path, content).Language
	}
	b, err := c.registry.Primary(lang)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	done := make(chan []graph.Diagnostic, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- []graph.Diagnostic{{
					Severity: graph.SeverityWarning,
					Message:  "validator panicked",
					Backend:  b.Name(),
				}}
			}
		}()
		done <- b.ValidateSyntax(ctx, backend.Request{FilePath: path, Language: lang, Content: content})
	}()

	var diags []graph.Diagnostic
	select {
	case diags = <-done:
	case <-ctx.Done():
		return nil, perrors.Wrap(ctx.Err(), perrors.BackendCommunicationFailure, "validator did not answer in time").
			WithContext("backend", b.Name())
	}

	v := &Validation{FilePath: path, Language: lang, Backend: b.Name(), Valid: true, Diagnostics: diags}
	for _, d := range diags {
		if d.Severity == graph.SeverityError {
			v.Valid = false
			break
		}
	}
	if v.Diagnostics == nil {
		v.Diagnostics = []graph.Diagnostic{}
	}
	return v, nil
}
