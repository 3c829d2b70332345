package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lodestar-dev/lodestar/internal/errors"
)

// TUIRenderer drives a bubbletea program showing run progress.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *runModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is
// not an interactive terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.InternalError("output is not a TTY", nil)
	}

	model := newRunModel(cfg.RootPath)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(errorCountMsg(event))
	}
}

func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			// Do not hang shutdown on an unresponsive terminal.
		}
	}
	return nil
}

type progressMsg ProgressEvent
type errorCountMsg ErrorEvent
type completeMsg CompletionStats

// runModel is the bubbletea model for a run.
type runModel struct {
	rootPath string
	styles   Styles

	spinner     spinner.Model
	progressBar progress.Model

	stage    Stage
	current  int
	total    int
	document string
	message  string
	errs     int
	warns    int

	width    int
	quitting bool
	complete bool
	stats    CompletionStats
}

func newRunModel(rootPath string) *runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan))

	p := progress.New(
		progress.WithSolidFill(ColorCyan),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &runModel{
		rootPath:    rootPath,
		styles:      DefaultStyles(),
		spinner:     s,
		progressBar: p,
		width:       80,
	}
}

func (m *runModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = msg.Width - 20
		if m.progressBar.Width < 20 {
			m.progressBar.Width = 20
		}

	case progressMsg:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		m.document = msg.Document
		m.message = msg.Message
		return m, nil

	case errorCountMsg:
		if msg.IsWarn {
			m.warns++
		} else {
			m.errs++
		}
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *runModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	var lines []string

	title := "lodestar"
	if m.rootPath != "" {
		title = fmt.Sprintf("lodestar · %s", m.rootPath)
	}
	lines = append(lines, m.styles.Header.Render(title))
	lines = append(lines, m.renderStages())

	if m.total > 0 {
		percent := float64(m.current) / float64(m.total)
		if percent > 1 {
			percent = 1
		}
		bar := m.progressBar.ViewAs(percent)
		pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", percent*100))
		lines = append(lines, fmt.Sprintf("%s  %s", bar, pct))
		lines = append(lines, m.styles.Label.Render(fmt.Sprintf("%d / %d", m.current, m.total)))
	} else {
		lines = append(lines, fmt.Sprintf("%s %s...", m.spinner.View(), m.stage.String()))
	}

	if m.document != "" {
		lines = append(lines, m.styles.Dim.Render(truncatePath(m.document, m.width-4)))
	}
	if m.message != "" {
		lines = append(lines, m.styles.Label.Render(m.message))
	}

	if status := m.renderStatus(); status != "" {
		lines = append(lines, status)
	}

	return strings.Join(lines, "\n") + "\n"
}

func (m *runModel) renderStages() string {
	stages := []Stage{StageDiscover, StageDownload, StageIndex}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style
		switch {
		case s < m.stage:
			icon = "●"
			style = m.styles.Success
		case s == m.stage:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}

	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *runModel) renderStatus() string {
	var parts []string
	if m.warns > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("%d warnings", m.warns)))
	}
	if m.errs > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("%d errors", m.errs)))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, m.styles.Dim.Render("  |  "))
}

func (m *runModel) renderComplete() string {
	var lines []string
	lines = append(lines, m.styles.Success.Render("Indexing complete"))
	lines = append(lines, fmt.Sprintf("%s %s",
		m.styles.Label.Render("Indexed:"),
		m.styles.Active.Render(fmt.Sprintf("%d documents", m.stats.Indexed))))
	lines = append(lines, fmt.Sprintf("%s %s",
		m.styles.Label.Render("Skipped:"),
		m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Skipped))))
	lines = append(lines, fmt.Sprintf("%s  %s",
		m.styles.Label.Render("Chunks:"),
		m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Chunks))))
	lines = append(lines, fmt.Sprintf("%s %s",
		m.styles.Label.Render("Elapsed:"),
		m.styles.Active.Render(m.stats.Duration.Round(100*time.Millisecond).String())))

	if m.stats.Failed > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("%d documents failed", m.stats.Failed)))
	}

	return strings.Join(lines, "\n") + "\n"
}

// truncatePath shortens a path from the left, keeping the filename.
func truncatePath(path string, maxLen int) string {
	if maxLen < 4 || len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

var _ Renderer = (*TUIRenderer)(nil)
