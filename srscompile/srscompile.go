// Package srscompile runs the external rule-set compiler.
package srscompile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"paepcke.de/asn2srs/ruledoc"
)

// _DEFAULT_BINARY is looked up in PATH.
const _DEFAULT_BINARY = "sing-box"

// ErrEmptyOutput ...
var ErrEmptyOutput = errors.New("compiler produced no output")

// CompileError reports a failed compiler invocation.
type CompileError struct {
	Category string
	Stderr   string
	Cause    error
}

func (e *CompileError) Error() string {
	msg := "[srscompile] [" + e.Category + "] " + e.Cause.Error()
	if e.Stderr != "" {
		msg += " [" + e.Stderr + "]"
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Cause }

// Compiler ...
type Compiler struct {
	Binary string   // compiler executable, default sing-box
	Args   []string // leading arguments, default "rule-set compile"
}

// New ...
func New(binary string) *Compiler {
	if binary == "" {
		binary = _DEFAULT_BINARY
	}
	return &Compiler{Binary: binary, Args: []string{"rule-set", "compile"}}
}

// Compile marshals doc, runs `<binary> rule-set compile --output out.srs in.json`
// inside a scratch directory and returns the artifact bytes.
func (c *Compiler) Compile(ctx context.Context, doc *ruledoc.Document) ([]byte, error) {
	src, err := doc.Marshal()
	if err != nil {
		return nil, &CompileError{Category: doc.Category, Cause: err}
	}
	dir, err := os.MkdirTemp("", "asn2srs-")
	if err != nil {
		return nil, &CompileError{Category: doc.Category, Cause: err}
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, doc.Category+".json")
	out := filepath.Join(dir, doc.Category+".srs")
	if err := os.WriteFile(in, src, 0o600); err != nil {
		return nil, &CompileError{Category: doc.Category, Cause: err}
	}

	args := append(append([]string{}, c.Args...), "--output", out, in)
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &CompileError{Category: doc.Category, Stderr: strings.TrimSpace(stderr.String()), Cause: err}
	}

	data, err := os.ReadFile(out)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &CompileError{Category: doc.Category, Cause: err}
	}
	if len(data) == 0 {
		return nil, &CompileError{Category: doc.Category, Stderr: strings.TrimSpace(stderr.String()), Cause: ErrEmptyOutput}
	}
	return data, nil
}
