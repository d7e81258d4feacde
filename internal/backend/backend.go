// Package backend defines the extraction contract every language backend
// implements, the tagged descriptors used to register backends, the Registry
// that maps languages to backend chains, and the per-call Session that holds
// a file's symbol tables while a backend extracts it.
package backend

import (
	"context"

	"github.com/dusk-indust/polyparse/internal/bridge"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Capabilities declares what a backend can produce.
type Capabilities struct {
	Symbols       bool `json:"symbols"`
	Relationships bool `json:"relationships"`
	TypeInfo      bool `json:"typeInfo"`
	Incremental   bool `json:"incremental"`
}

// Request is the input of one extraction or validation call. Language is
// the language of Content, which for a segmented block may differ from the
// language implied by FilePath.
type Request struct {
	FilePath string
	Language graph.Language
	Content  []byte
}

// Extraction is what a backend returns for one request.
type Extraction struct {
	Components    []graph.Component
	Relationships []graph.Relationship
	Diagnostics   []graph.Diagnostic
}

// Backend is the uniform extraction contract.
//
// ValidateSyntax never fails: syntax problems are returned as diagnostics.
// Extract reports parse-level problems as partial output plus diagnostics and
// returns an error only when the backend itself could not run (a helper that
// timed out or exited, an internal panic).
type Backend interface {
	Name() string
	Languages() []graph.Language
	Capabilities() Capabilities
	Level() graph.ParsingLevel
	ValidateSyntax(ctx context.Context, req Request) []graph.Diagnostic
	Extract(ctx context.Context, req Request) (*Extraction, error)
}

// Kind tags how a Descriptor reaches its backend.
type Kind int

const (
	// KindNative is an in-process backend.
	KindNative Kind = iota
	// KindSubprocess is a backend served by a long-lived local helper process.
	KindSubprocess
	// KindRemote is a backend served by a helper over HTTP.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindSubprocess:
		return "subprocess"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Descriptor is a tagged description of a backend. Exactly the fields that
// belong to Kind are set: Native for KindNative, Process and Adapter for
// KindSubprocess, Remote and Adapter for KindRemote.
type Descriptor struct {
	Name    string
	Kind    Kind
	Native  Backend
	Process *bridge.ProcessConfig
	Remote  *bridge.HTTPConfig
	// Adapter builds the backend on top of the helper's Caller.
	Adapter func(bridge.Caller) Backend
}

// Native describes an in-process backend.
func Native(b Backend) Descriptor {
	return Descriptor{Name: b.Name(), Kind: KindNative, Native: b}
}

// Subprocess describes a backend served by the helper process cfg. Every
// descriptor naming the same cfg.Name shares one process.
func Subprocess(name string, cfg bridge.ProcessConfig, adapter func(bridge.Caller) Backend) Descriptor {
	return Descriptor{Name: name, Kind: KindSubprocess, Process: &cfg, Adapter: adapter}
}

// Remote describes a backend served by an HTTP helper.
func Remote(name string, cfg bridge.HTTPConfig, adapter func(bridge.Caller) Backend) Descriptor {
	return Descriptor{Name: name, Kind: KindRemote, Remote: &cfg, Adapter: adapter}
}
