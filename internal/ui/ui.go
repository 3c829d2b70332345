// Package ui renders indexing and download progress to the terminal,
// with a rich TUI on interactive terminals and plain text everywhere
// else.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one phase of an indexing run.
type Stage int

const (
	// StageDiscover walks the filesystem for indexable documents.
	StageDiscover Stage = iota
	// StageDownload fetches embedding model weights.
	StageDownload
	// StageIndex chunks, embeds and stores documents.
	StageIndex
	// StageComplete indicates the run is finished.
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageDiscover:
		return "Discovering"
	case StageDownload:
		return "Downloading"
	case StageIndex:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageDiscover:
		return "SCAN"
	case StageDownload:
		return "FETCH"
	case StageIndex:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage    Stage
	Current  int
	Total    int
	Document string
	Message  string
}

// ErrorEvent is an error or warning surfaced during a run.
type ErrorEvent struct {
	Document string
	Err      error
	IsWarn   bool
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Indexed  int
	Skipped  int
	Failed   int
	Chunks   int
	Duration time.Duration
}

// Renderer displays run progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures renderer selection and output.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	RootPath   string // shown in the TUI header
}

// NewRenderer picks a renderer for the environment: the TUI for
// interactive terminals, plain text for pipes and CI.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
