// Package pyast is the semantic Python backend. It asks the Python helper
// for the module's AST over the bridge and converts the AST into components
// and relationships.
package pyast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/bridge"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Name is the backend name.
const Name = "python-ast"

// Compile-time check.
var _ backend.Backend = (*Backend)(nil)

// Backend converts helper ASTs. It holds no per-file state; every call
// builds its own Session.
type Backend struct {
	caller bridge.Caller
	log    *logrus.Entry
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(log *logrus.Entry) Option {
	return func(b *Backend) { b.log = log }
}

// New returns a Backend calling the helper through caller.
func New(caller bridge.Caller, opts ...Option) *Backend {
	b := &Backend{
		caller: caller,
		log:    logrus.StandardLogger().WithField("component", "pyast"),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Adapter builds a Backend on top of a registry-provided caller. It is the
// Adapter of Python subprocess and remote descriptors.
func Adapter(caller bridge.Caller) backend.Backend { return New(caller) }

// Descriptor returns a subprocess descriptor for the Python helper.
func Descriptor(cfg bridge.ProcessConfig) backend.Descriptor {
	return backend.Subprocess(Name, cfg, Adapter)
}

// RemoteDescriptor returns a descriptor for a Python helper served over HTTP.
func RemoteDescriptor(cfg bridge.HTTPConfig) backend.Descriptor {
	return backend.Remote(Name, cfg, Adapter)
}

func (b *Backend) Name() string                { return Name }
func (b *Backend) Languages() []graph.Language { return []graph.Language{graph.LangPython} }
func (b *Backend) Level() graph.ParsingLevel   { return graph.LevelSemantic }

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Symbols: true, Relationships: true, TypeInfo: true}
}

// ValidateSyntax parses the content in the helper. A helper that cannot be
// reached yields a warning diagnostic, not an error.
func (b *Backend) ValidateSyntax(ctx context.Context, req backend.Request) []graph.Diagnostic {
	resp, err := b.parse(ctx, req)
	if err != nil {
		return []graph.Diagnostic{{
			Severity: graph.SeverityWarning,
			Message:  err.Error(),
			Backend:  Name,
			Code:     perrors.BackendCommunicationFailure.String(),
		}}
	}
	if !resp.OK() {
		return []graph.Diagnostic{failureDiagnostic(resp)}
	}
	return nil
}

// Extract converts the helper's AST. A syntax error reported by the helper
// is a SyntaxDiagnostic error carrying the helper's position, so that an
// error-tolerant backend later in the chain still extracts the file. Any
// other failure, including a malformed response, is a communication failure.
func (b *Backend) Extract(ctx context.Context, req backend.Request) (*backend.Extraction, error) {
	resp, err := b.parse(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		if resp.Error == "SyntaxError" {
			d := failureDiagnostic(resp)
			return nil, perrors.Newf(perrors.SyntaxDiagnostic, "python helper: SyntaxError at line %d: %s", d.Line, d.Message).
				WithContext("file", req.FilePath).
				WithContext("line", d.Line)
		}
		return nil, perrors.Newf(perrors.BackendCommunicationFailure, "python helper: %s: %s", resp.Error, resp.Message).
			WithContext("file", req.FilePath)
	}
	s := backend.NewSession(req, Name)

	var module node
	if err := json.Unmarshal(resp.AST, &module); err != nil || module.typ() != "Module" {
		if err == nil {
			err = fmt.Errorf("root node is %q", module.typ())
		}
		return nil, perrors.Wrap(err, perrors.BackendCommunicationFailure, "python helper: undecodable AST").
			WithContext("file", req.FilePath)
	}
	convert(s, module)
	b.log.WithFields(logrus.Fields{"file": req.FilePath}).Debug("converted python AST")
	return s.Result(), nil
}

func (b *Backend) parse(ctx context.Context, req backend.Request) (*bridge.Response, error) {
	return b.caller.Call(ctx, bridge.Request{
		Command:  bridge.CommandParseContent,
		FilePath: req.FilePath,
		Content:  string(req.Content),
	})
}

func failureDiagnostic(resp *bridge.Response) graph.Diagnostic {
	d := graph.Diagnostic{
		Severity: graph.SeverityError,
		Message:  resp.Message,
		Line:     resp.Lineno,
		Column:   resp.Offset,
		Backend:  Name,
		Code:     resp.Error,
	}
	if d.Message == "" {
		d.Message = resp.Error
	}
	return d
}
