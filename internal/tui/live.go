package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/hybridslq/internal/slq"
)

const (
	width       = 70
	height      = 16
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws the merit history on a plain terminal after every
// iteration. It is the fallback for `run --live` when no TTY program is wanted.
type LiveRenderer struct {
	out       io.Writer
	title     string
	frameRate int
	ansi      bool
	lastFrame time.Time
	canvas    [][]rune

	mu      sync.Mutex
	records []slq.IterationRecord
	busy    map[int]slq.Pass
}

func NewLiveRenderer(out io.Writer, title string, frameRate int) *LiveRenderer {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
	}
	return &LiveRenderer{
		out:       out,
		title:     title,
		frameRate: frameRate,
		ansi:      true,
		canvas:    canvas,
		busy:      make(map[int]slq.Pass),
	}
}

// WithoutANSI disables the clear-screen escapes, which keeps output diffable.
func (r *LiveRenderer) WithoutANSI() *LiveRenderer {
	r.ansi = false
	return r
}

func (r *LiveRenderer) Options() []slq.Option {
	return []slq.Option{slq.WithPassObserver(r), slq.WithIterationObserver(r)}
}

func (r *LiveRenderer) OnPartitionStart(pass slq.Pass, partition int) {
	r.mu.Lock()
	r.busy[partition] = pass
	r.mu.Unlock()
}

func (r *LiveRenderer) OnPartitionDone(_ slq.Pass, partition int, _ time.Duration, _ error) {
	r.mu.Lock()
	delete(r.busy, partition)
	r.mu.Unlock()
}

func (r *LiveRenderer) OnIteration(rec slq.IterationRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	if r.frameRate > 0 && time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.draw()
	r.render(nil)
}

func (r *LiveRenderer) OnFinish(status slq.Status) {
	r.draw()
	r.render(&status)
	if r.ansi {
		fmt.Fprint(r.out, showCursor)
	}
}

func (r *LiveRenderer) clear() {
	for y := range r.canvas {
		for x := range r.canvas[y] {
			r.canvas[y][x] = ' '
		}
	}
}

func (r *LiveRenderer) set(x, y int, c rune) {
	if x >= 0 && x < width && y >= 0 && y < height {
		r.canvas[y][x] = c
	}
}

func (r *LiveRenderer) line(x1, y1, x2, y2 int, c rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		r.set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// draw plots log10(merit - min + 1) so the tail of a converging run stays visible.
func (r *LiveRenderer) draw() {
	r.clear()
	r.mu.Lock()
	values := make([]float64, len(r.records))
	for i, rec := range r.records {
		values[i] = rec.Performance.Merit
	}
	r.mu.Unlock()

	if len(values) == 0 {
		return
	}
	lo := math.Inf(1)
	for _, v := range values {
		lo = math.Min(lo, v)
	}
	hi := 0.0
	for i, v := range values {
		values[i] = math.Log10(v - lo + 1)
		hi = math.Max(hi, values[i])
	}

	px := func(i int) int {
		if len(values) == 1 {
			return 0
		}
		return i * (width - 1) / (len(values) - 1)
	}
	py := func(v float64) int {
		if hi == 0 {
			return height - 1
		}
		return height - 1 - int(math.Round(v/hi*float64(height-1)))
	}

	for x := 0; x < width; x++ {
		r.set(x, height-1, '.')
	}
	for i := 1; i < len(values); i++ {
		r.line(px(i-1), py(values[i-1]), px(i), py(values[i]), '*')
	}
	for i, v := range values {
		r.set(px(i), py(v), 'o')
	}
}

func (r *LiveRenderer) render(status *slq.Status) {
	r.mu.Lock()
	last := slq.IterationRecord{}
	if n := len(r.records); n > 0 {
		last = r.records[n-1]
	}
	busy := len(r.busy)
	r.mu.Unlock()

	var b strings.Builder
	if r.ansi {
		b.WriteString(clearScreen + hideCursor)
	}
	b.WriteString(fmt.Sprintf("  %s  iter=%d  merit=%.6g  lr=%.3g\n", r.title, last.Iteration, last.Performance.Merit, last.LearningRate))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	for _, row := range r.canvas {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}

	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	p := last.Performance
	b.WriteString(fmt.Sprintf("  cost=%.6g ise1=%.3g ise2=%.3g busy=%d\n", p.Cost, p.ISE1, p.ISE2, busy))
	if status != nil {
		if status.State == slq.Failed {
			b.WriteString(fmt.Sprintf("  failed: %s: %v\n", status.Failure, status.Err))
		} else {
			b.WriteString(fmt.Sprintf("  %s: %s\n", status.State, status.Reason))
		}
	}

	fmt.Fprint(r.out, b.String())
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
