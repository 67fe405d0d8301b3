package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/hybridslq/internal/slq"
)

// Header describes the run shown at the top of the watch view.
type Header struct {
	Problem       string
	Partitions    int
	MaxIterations int
	Threads       int
	// ExitOnFinish quits the view as soon as the solver returns.
	ExitOnFinish bool
}

// RunFunc starts the solver with the observers the view needs.
type RunFunc func(ctx context.Context, opts ...slq.Option) (*slq.Result, error)

type cell int

const (
	cellIdle cell = iota
	cellBackward
	cellForward
	cellDone
	cellFailed
)

type partitionMsg struct {
	pass      slq.Pass
	partition int
	done      bool
	elapsed   time.Duration
	err       error
}

type iterationMsg slq.IterationRecord

type finishMsg slq.Status

type resultMsg struct {
	err error
}

type watchModel struct {
	header  Header
	cells   []cell
	pass    slq.Pass
	records []slq.IterationRecord
	status  *slq.Status
	err     error
	done    bool
	started time.Time

	width  int
	height int
}

func newWatchModel(h Header) watchModel {
	n := h.Partitions
	if n < 0 {
		n = 0
	}
	return watchModel{
		header:  h,
		cells:   make([]cell, n),
		started: time.Now(),
		width:   80,
		height:  24,
	}
}

func (m watchModel) Init() tea.Cmd { return nil }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case partitionMsg:
		m.pass = msg.pass
		if msg.partition < 0 || msg.partition >= len(m.cells) {
			return m, nil
		}
		switch {
		case msg.err != nil:
			m.cells[msg.partition] = cellFailed
		case msg.done:
			m.cells[msg.partition] = cellDone
		case msg.pass == slq.PassBackward:
			m.cells[msg.partition] = cellBackward
		default:
			m.cells[msg.partition] = cellForward
		}
		return m, nil
	case iterationMsg:
		m.records = append(m.records, slq.IterationRecord(msg))
		for i := range m.cells {
			m.cells[i] = cellIdle
		}
		return m, nil
	case finishMsg:
		st := slq.Status(msg)
		m.status = &st
		return m, nil
	case resultMsg:
		m.done = true
		m.err = msg.err
		if m.header.ExitOnFinish {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString("\n" + m.statusLine() + "\n")
	b.WriteString("   " + m.progressBar() + "\n\n")

	b.WriteString("   " + dim.Render("partitions ") + m.partitionRow() + "\n\n")

	if chart := m.chart(); chart != "" {
		for _, line := range strings.Split(chart, "\n") {
			b.WriteString("   " + line + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.table())

	if m.err != nil && (m.status == nil || m.status.Err == nil) {
		b.WriteString("\n   " + yellow.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n   " + dimmer.Render("q quit") + "\n")
	return b.String()
}

func (m watchModel) statusLine() string {
	icon := green.Render("●")
	text := green.Render("running")
	switch {
	case m.status != nil && m.status.State == slq.Failed:
		icon = yellow.Render("○")
		text = yellow.Render(fmt.Sprintf("failed: %s", m.status.Failure))
	case m.status != nil:
		icon = cyan.Render("◆")
		text = cyan.Render(fmt.Sprintf("%s (%s)", m.status.State, m.status.Reason))
	case m.done:
		icon = yellow.Render("○")
		text = yellow.Render("stopped")
	case m.pass != "":
		text = green.Render(string(m.pass) + " pass")
	}
	return fmt.Sprintf("   %s %s  %s", icon, bold.Render(cyan.Render(m.header.Problem)), text)
}

func (m watchModel) iteration() int {
	if len(m.records) == 0 {
		return 0
	}
	return m.records[len(m.records)-1].Iteration
}

func (m watchModel) progressBar() string {
	barWidth := 36
	progress := 0.0
	if m.header.MaxIterations > 0 {
		progress = float64(m.iteration()) / float64(m.header.MaxIterations)
	}
	if m.status != nil || progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	label := fmt.Sprintf("iter %d/%d", m.iteration(), m.header.MaxIterations)
	return fmt.Sprintf("%s %s  %s", bar, dim.Render(label), dim.Render(fmt.Sprintf("%d threads", m.header.Threads)))
}

func (m watchModel) partitionRow() string {
	var b strings.Builder
	for _, c := range m.cells {
		switch c {
		case cellBackward:
			b.WriteString(magenta.Render("▓"))
		case cellForward:
			b.WriteString(cyan.Render("▒"))
		case cellDone:
			b.WriteString(green.Render("█"))
		case cellFailed:
			b.WriteString(yellow.Render("x"))
		default:
			b.WriteString(dimmer.Render("░"))
		}
	}
	return b.String()
}

func (m watchModel) chart() string {
	if len(m.records) < 2 {
		return ""
	}
	merit := make([]float64, len(m.records))
	for i, r := range m.records {
		merit[i] = r.Performance.Merit
	}
	w := m.width - 16
	if w < 20 {
		w = 20
	}
	if w > 2*len(merit)+20 {
		w = 2*len(merit) + 20
	}
	h := m.height / 3
	if h < 5 {
		h = 5
	}
	return asciigraph.Plot(merit,
		asciigraph.Height(h),
		asciigraph.Width(w),
		asciigraph.Precision(4),
		asciigraph.Caption("merit per iteration"),
	)
}

func (m watchModel) table() string {
	if len(m.records) == 0 {
		return "   " + dim.Render("waiting for the initial rollout") + "\n"
	}
	var b strings.Builder
	b.WriteString("   " + dim.Render(fmt.Sprintf("%5s  %12s  %12s  %10s  %10s  %6s  %8s", "iter", "cost", "merit", "ise1", "ise2", "lr", "time")) + "\n")
	rows := m.height / 4
	if rows < 3 {
		rows = 3
	}
	start := len(m.records) - rows
	if start < 0 {
		start = 0
	}
	for _, r := range m.records[start:] {
		p := r.Performance
		b.WriteString("   " + white.Render(fmt.Sprintf("%5d  %12.6g  %12.6g  %10.3g  %10.3g  %6.3g  %8s",
			r.Iteration, p.Cost, p.Merit, p.ISE1, p.ISE2, r.LearningRate, r.Elapsed.Round(time.Millisecond))) + "\n")
	}
	return b.String()
}

// Watcher forwards solver progress into a running program. It satisfies both
// observer interfaces and may be called from any goroutine.
type Watcher struct {
	program *tea.Program
}

func NewWatcher(p *tea.Program) *Watcher {
	return &Watcher{program: p}
}

func (w *Watcher) Options() []slq.Option {
	return []slq.Option{slq.WithPassObserver(w), slq.WithIterationObserver(w)}
}

func (w *Watcher) OnPartitionStart(pass slq.Pass, partition int) {
	w.program.Send(partitionMsg{pass: pass, partition: partition})
}

func (w *Watcher) OnPartitionDone(pass slq.Pass, partition int, elapsed time.Duration, err error) {
	w.program.Send(partitionMsg{pass: pass, partition: partition, done: true, elapsed: elapsed, err: err})
}

func (w *Watcher) OnIteration(rec slq.IterationRecord) {
	w.program.Send(iterationMsg(rec))
}

func (w *Watcher) OnFinish(status slq.Status) {
	w.program.Send(finishMsg(status))
}

// Watch runs the solver behind a live terminal view. Quitting the view
// cancels the run; the solver's result and error are returned once it stops.
func Watch(ctx context.Context, h Header, run RunFunc, opts ...tea.ProgramOption) (*slq.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWatchModel(h), opts...)
	w := NewWatcher(p)

	type outcome struct {
		res *slq.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := run(ctx, w.Options()...)
		done <- outcome{res: res, err: err}
		p.Send(resultMsg{err: err})
	}()

	_, uiErr := p.Run()
	cancel()
	out := <-done
	if uiErr != nil {
		return out.res, fmt.Errorf("watch: %w", uiErr)
	}
	return out.res, out.err
}
