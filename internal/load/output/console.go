// Package output renders live progress and the final summary of a load
// test run on the console.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/mentorpal/askload/internal/load/engine"
	"github.com/mentorpal/askload/internal/load/metrics"
)

const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	ruleChar      = "━"
	boxVertical   = "│"
	boxTop        = "┌"
	boxTopEnd     = "┐"
	boxBottom     = "└"
	boxBottomEnd  = "┘"
	barFilled     = "█"
	barEmpty      = "░"
	boxWidth      = 55
	progressWidth = 40
)

// LiveStats is one refresh of the live display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	Iterations int64
	CheckRate  float64
	HasChecks  bool

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	CurrentStage int
	TotalStages  int
}

type palette struct {
	accent  *color.Color
	bold    *color.Color
	dim     *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	latency *color.Color
	phase   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		accent:  color.New(color.FgCyan),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		latency: color.New(color.FgBlue),
		phase:   color.New(color.FgMagenta),
	}
	for _, c := range []*color.Color{p.accent, p.bold, p.dim, p.good, p.warn, p.bad, p.latency, p.phase} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// ConsoleOutput draws the live progress box on a terminal, or one line per
// update otherwise, and the end-of-run summary.
type ConsoleOutput struct {
	testName     string
	executorType string
	writer       io.Writer
	isTTY        bool
	quiet        bool
	colors       palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig configures NewConsoleOutput.
type ConsoleOutputConfig struct {
	TestName     string
	ExecutorType string
	Writer       io.Writer
	Quiet        bool
	ForceColors  bool
	ForceTTY     bool
}

// NewConsoleOutput creates a console writer; Writer defaults to stdout.
func NewConsoleOutput(cfg ConsoleOutputConfig) *ConsoleOutput {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	useColors := cfg.ForceColors || (isTTY && os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb")

	return &ConsoleOutput{
		testName:     cfg.TestName,
		executorType: cfg.ExecutorType,
		writer:       cfg.Writer,
		isTTY:        isTTY,
		quiet:        cfg.Quiet,
		colors:       newPalette(useColors),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY reports whether updates redraw in place.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test name banner.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	title := c.testName + " - Running"
	if c.executorType != "" {
		title += fmt.Sprintf(" [%s]", c.executorType)
	}
	c.banner(title, c.colors.bold)
	c.writeln("")
}

// Refresh shows stats the way the output supports: redrawn in place on a
// terminal, appended as one line otherwise.
func (c *ConsoleOutput) Refresh(stats *LiveStats) {
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// Update redraws the live display.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	fmt.Fprintf(c.writer, cursorUp, c.linesOutput)
	for i := 0; i < c.linesOutput; i++ {
		fmt.Fprint(c.writer, clearLine+"\n")
	}
	fmt.Fprintf(c.writer, cursorUp, c.linesOutput)
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	p := c.colors
	var lines []string

	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		p.good.Sprint(progressBar(stats.Progress, progressWidth)),
		p.bold.Sprintf("%.0f%%", stats.Progress*100),
		p.dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))))

	phase := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, "Stage:    "+p.phase.Sprint(phase), "")

	lines = append(lines, p.dim.Sprint(boxTop+strings.Repeat(ruleChar, boxWidth-2)+boxTopEnd))
	lines = append(lines, c.boxRow(
		fmt.Sprintf("VUs:     %s / %d", p.accent.Sprint(stats.ActiveVUs), stats.TargetVUs),
		"Requests:    "+p.accent.Sprint(formatNumber(stats.TotalRequests))))

	errColor := rateColor(p, stats.ErrorRate, 0.01, 0.05)
	lines = append(lines, c.boxRow(
		"RPS:     "+p.good.Sprintf("%.1f", stats.CurrentRPS),
		fmt.Sprintf("Errors:      %s (%s)", errColor.Sprint(stats.Errors), errColor.Sprintf("%.1f%%", stats.ErrorRate*100))))

	checks := "-"
	if stats.HasChecks {
		checks = rateColor(p, 1-stats.CheckRate, 0.01, 0.05).Sprintf("%.1f%%", stats.CheckRate*100)
	}
	lines = append(lines, c.boxRow(
		"Iters:   "+p.accent.Sprint(formatNumber(stats.Iterations)),
		"Checks:      "+checks))

	lines = append(lines, c.boxRow(
		"P95:     "+p.latency.Sprint(formatDurationShort(stats.LatencyP95)),
		"Avg:         "+p.latency.Sprint(formatDurationShort(stats.LatencyAvg))))
	lines = append(lines, p.dim.Sprint(boxBottom+strings.Repeat(ruleChar, boxWidth-2)+boxBottomEnd))

	return lines
}

func (c *ConsoleOutput) boxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2
	pad := func(s string) string {
		n := colWidth - visibleLen(s)
		if n < 0 {
			n = 0
		}
		return s + strings.Repeat(" ", n)
	}
	bar := c.colors.dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s %s %s", bar, pad(left), bar, pad(right), bar)
}

func rateColor(p palette, rate, warnAt, badAt float64) *color.Color {
	switch {
	case rate > badAt:
		return p.bad
	case rate > warnAt:
		return p.warn
	default:
		return p.good
	}
}

func progressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled) + "]"
}

// PrintNonInteractiveUpdate prints one status line, for logs and CI.
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d | Reqs: %d | Iters: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TotalRequests,
		stats.Iterations,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the end-of-run summary. Quiet mode prints only
// PASSED or FAILED.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	if result == nil {
		return
	}
	p := c.colors
	if c.quiet {
		if result.Passed {
			c.writeln(p.good.Sprint("PASSED"))
		} else {
			c.writeln(p.bad.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isTTY {
		c.clearLive()
	}

	status, statusColor := "Completed ✓", p.good
	if !result.Passed {
		status, statusColor = "Failed ✗", p.bad
	}
	c.writeln("")
	c.banner(fmt.Sprintf("%s - %s", p.bold.Sprint(result.Name), statusColor.Sprint(status)), nil)
	c.writeln("")

	c.writeln("Run ID:        " + p.dim.Sprint(result.RunID))
	c.writeln("Duration:      " + p.accent.Sprint(formatDuration(result.Duration)))
	if m := result.Metrics; m != nil {
		c.writeln("Total Reqs:    " + p.accent.Sprint(formatNumber(m.TotalRequests)))
		success := 1 - m.ErrorRate
		c.writeln("Success Rate:  " + rateColor(p, 1-success, 0.01, 0.05).Sprintf("%.1f%%", success*100))
		c.writeln(fmt.Sprintf("Iterations:    %s (errors: %d)", p.accent.Sprint(formatNumber(m.Iterations)), m.IterationErrors))
	}
	if dropped := droppedIterations(result); dropped > 0 {
		c.writeln("Dropped Iters: " + p.warn.Sprint(formatNumber(dropped)))
	}
	c.writeln("")

	if m := result.Metrics; m != nil {
		c.writeln(p.bold.Sprint("Latency Distribution:"))
		c.writeln("  Min:       " + formatDurationShort(m.Latency.Min))
		c.writeln("  P50:       " + formatDurationShort(m.Latency.P50))
		c.writeln("  P90:       " + formatDurationShort(m.Latency.P90))
		c.writeln("  P95:       " + formatDurationShort(m.Latency.P95))
		c.writeln("  P99:       " + formatDurationShort(m.Latency.P99))
		c.writeln("  Max:       " + formatDurationShort(m.Latency.Max))
		c.writeln("")

		c.printChecks(m.Checks)
	}

	if len(result.Thresholds) > 0 {
		c.writeln(p.bold.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := p.good.Sprint("✓")
			if !t.Passed {
				mark = p.bad.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}

	if result.Error != "" {
		c.writeln(p.bad.Sprint("Error: ") + result.Error)
		c.writeln("")
	}

	if result.Passed {
		c.writeln("Result: " + p.good.Sprint("PASSED"))
	} else {
		c.writeln("Result: " + p.bad.Sprint("FAILED"))
	}
}

func (c *ConsoleOutput) printChecks(checks metrics.ChecksSummary) {
	if len(checks.Checks) == 0 {
		return
	}
	p := c.colors

	c.writeln(fmt.Sprintf("%s %s (%d/%d)",
		p.bold.Sprint("Checks:"),
		rateColor(p, 1-checks.Rate, 0.01, 0.05).Sprintf("%.2f%%", checks.Rate*100),
		checks.Passes, checks.Passes+checks.Fails))

	width := 0
	for _, cs := range checks.Checks {
		width = max(width, len(cs.Name))
	}
	for _, cs := range checks.Checks {
		mark := p.good.Sprint("✓")
		if cs.Fails > 0 {
			mark = p.bad.Sprint("✗")
		}
		c.writeln(fmt.Sprintf("  %s %-*s  %6.2f%%  ✓ %d / ✗ %d",
			mark, width, cs.Name, cs.PassRate()*100, cs.Passes, cs.Fails))
	}
	c.writeln("")
}

func droppedIterations(result *engine.TestResult) int64 {
	var n int64
	for _, s := range result.Scenarios {
		if s != nil && s.Stats != nil {
			n += s.Stats.DroppedIterations
		}
	}
	return n
}

func (c *ConsoleOutput) banner(title string, col *color.Color) {
	rule := c.colors.accent.Sprint(strings.Repeat(ruleChar, 56))
	c.writeln(rule)
	if col != nil {
		title = col.Sprint(title)
	}
	c.writeln(title)
	c.writeln(rule)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromMetrics builds LiveStats from a metrics snapshot and the
// engine's progress.
func StatsFromMetrics(snap *metrics.Snapshot, progress float64, totalDuration time.Duration, targetVUs, currentStage, totalStages int) *LiveStats {
	if snap == nil {
		return &LiveStats{
			Progress:     progress,
			TargetVUs:    targetVUs,
			CurrentStage: currentStage,
			TotalStages:  totalStages,
			CurrentPhase: string(metrics.PhaseInit),
		}
	}

	elapsed := snap.Elapsed
	var remaining time.Duration
	if progress > 0 && progress < 1 {
		remaining = time.Duration(float64(elapsed) * (1 - progress) / progress)
	} else if totalDuration > elapsed {
		remaining = totalDuration - elapsed
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       elapsed,
		Remaining:     remaining,
		ActiveVUs:     snap.ActiveVUs,
		TargetVUs:     targetVUs,
		CurrentRPS:    snap.RPS,
		TotalRequests: snap.TotalRequests,
		Errors:        snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		Iterations:    snap.Iterations,
		CheckRate:     snap.Checks.Rate,
		HasChecks:     snap.Checks.Passes+snap.Checks.Fails > 0,
		LatencyP95:    snap.Latency.P95,
		LatencyAvg:    snap.Latency.Mean,
		CurrentPhase:  string(snap.CurrentPhase),
		CurrentStage:  currentStage,
		TotalStages:   totalStages,
	}
}
