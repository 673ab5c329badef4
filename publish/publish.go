// Package publish commits and pushes changed artifacts with git.
package publish

import (
	"bytes"
	"context"
	"os/exec"
	"slices"
	"strings"
)

// defaults
const (
	_DEFAULT_REMOTE  = "origin"
	_DEFAULT_BRANCH  = "rule-sets"
	_DEFAULT_MESSAGE = "Update rule-sets"
)

// PublishError reports a failed git step.
type PublishError struct {
	Step   string // add | commit | push
	Output string
	Cause  error
}

func (e *PublishError) Error() string {
	msg := "[publish] [" + e.Step + "] " + e.Cause.Error()
	if e.Output != "" {
		msg += " [" + e.Output + "]"
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Cause }

// Runner executes one git command inside the repository.
type Runner interface {
	Git(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the git binary.
type ExecRunner struct {
	Dir    string // repository work tree
	Binary string // default git
}

// Git ...
func (r ExecRunner) Git(ctx context.Context, args ...string) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = r.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Change is one file to publish and the category it belongs to.
type Change struct {
	Category string
	Path     string
}

// Publisher ...
type Publisher struct {
	Runner Runner
	Remote string
	Branch string
	Push   bool // false commits locally only

	// Author overrides the commit identity, "Name <mail>".
	Author string
}

// New ...
func New(r Runner, remote, branch string, push bool) *Publisher {
	if remote == "" {
		remote = _DEFAULT_REMOTE
	}
	if branch == "" {
		branch = _DEFAULT_BRANCH
	}
	return &Publisher{Runner: r, Remote: remote, Branch: branch, Push: push}
}

// Publish stages and commits exactly the given files. Without changes it does
// nothing and reports false.
func (p *Publisher) Publish(ctx context.Context, changes []Change) (bool, error) {
	if len(changes) == 0 {
		return false, nil
	}
	var files []string
	for _, c := range changes {
		files = append(files, c.Path)
	}
	slices.Sort(files)
	files = slices.Compact(files)

	if err := p.git(ctx, "add", append([]string{"add", "--"}, files...)...); err != nil {
		return false, err
	}
	commit := []string{"commit", "-m", Message(changes)}
	if p.Author != "" {
		commit = append(commit, "--author", p.Author)
	}
	commit = append(commit, "--")
	commit = append(commit, files...)
	if err := p.git(ctx, "commit", commit...); err != nil {
		return false, err
	}
	if p.Push {
		if err := p.git(ctx, "push", "push", p.Remote, "HEAD:refs/heads/"+p.Branch); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Message is the deterministic commit message for a change set.
func Message(changes []Change) string {
	var names []string
	for _, c := range changes {
		names = append(names, c.Category)
	}
	slices.Sort(names)
	names = slices.Compact(names)
	return _DEFAULT_MESSAGE + ": " + strings.Join(names, ", ")
}

// git ...
func (p *Publisher) git(ctx context.Context, step string, args ...string) error {
	out, err := p.Runner.Git(ctx, args...)
	if err != nil {
		return &PublishError{Step: step, Output: strings.TrimSpace(string(out)), Cause: err}
	}
	return nil
}
