package bridge

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// HelperFS holds the helper scripts shipped inside the binary.
//
//go:embed helpers/*
var HelperFS embed.FS

// PythonHelperName names the Python syntax helper.
const PythonHelperName = "python-ast"

// PythonOptions configures the Python helper.
type PythonOptions struct {
	// Interpreter is the python executable. Empty means python3 on PATH.
	Interpreter string
	// Script overrides the embedded helper script.
	Script string
	// CacheDir is where the embedded script is written. Empty means the
	// user cache directory.
	CacheDir    string
	Timeout     time.Duration
	MaxRestarts int
}

// PythonHelper returns the process configuration of the Python helper in
// server mode, materializing the embedded script on disk when needed.
func PythonHelper(opts PythonOptions) (ProcessConfig, error) {
	interp := opts.Interpreter
	if interp == "" {
		interp = "python3"
	}
	if _, err := exec.LookPath(interp); err != nil {
		return ProcessConfig{}, fmt.Errorf("bridge: python interpreter %q: %w", interp, err)
	}
	script := opts.Script
	if script == "" {
		var err error
		if script, err = materialize("helpers/pyast.py", opts.CacheDir); err != nil {
			return ProcessConfig{}, err
		}
	}
	return ProcessConfig{
		Name:        PythonHelperName,
		Command:     interp,
		Args:        []string{"-u", script, "--server"},
		Timeout:     opts.Timeout,
		MaxRestarts: opts.MaxRestarts,
	}, nil
}

// materialize writes an embedded helper into dir under a content-addressed
// name and returns its path. An existing copy is reused.
func materialize(name, dir string) (string, error) {
	data, err := HelperFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("bridge: embedded helper %s: %w", name, err)
	}
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "polyparse", "helpers")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("bridge: create helper dir: %w", err)
	}
	sum := sha256.Sum256(data)
	path := filepath.Join(dir, hex.EncodeToString(sum[:6])+"-"+filepath.Base(name))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	tmp, err := os.CreateTemp(dir, ".helper-*")
	if err != nil {
		return "", fmt.Errorf("bridge: write helper: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("bridge: write helper: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("bridge: write helper: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("bridge: install helper: %w", err)
	}
	return path, nil
}
