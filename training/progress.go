package training

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ANSI fragments used by the optional color decoration.
const (
	ansiReset   = "\x1b[0m"
	ansiGreen   = "\x1b[32m"
	ansiCyan    = "\x1b[36m"
	ansiDim     = "\x1b[38;5;238m"
	ansiClearLn = "\x1b[K"
)

const barWidth = 20

// ProgressPrinter renders per-batch and per-epoch training status lines.
// Batch lines overwrite themselves with a carriage return; the epoch
// summary is a table row, with a column header emitted once on the
// first epoch. Color is a decoration only and is off by default.
type ProgressPrinter struct {
	out         io.Writer
	color       bool
	diagNames   []string
	metricNames []string
	epochStart  time.Time
	phaseStart  time.Time
	headerDone  bool
}

// NewProgressPrinter creates a printer writing to out. diagNames and
// metricNames become columns of the epoch summary table.
func NewProgressPrinter(out io.Writer, color bool, diagNames, metricNames []string) *ProgressPrinter {
	return &ProgressPrinter{
		out:         out,
		color:       color,
		diagNames:   append([]string(nil), diagNames...),
		metricNames: append([]string(nil), metricNames...),
	}
}

// StartEpoch marks the beginning of an epoch (and its training phase).
func (p *ProgressPrinter) StartEpoch() {
	now := time.Now()
	p.epochStart = now
	p.phaseStart = now
}

// StartValidation marks the beginning of the validation phase.
func (p *ProgressPrinter) StartValidation() {
	p.phaseStart = time.Now()
}

// Batch renders the in-place progress line for one batch. batch is the
// zero-based index within total batches.
func (p *ProgressPrinter) Batch(epoch, batch, total int, loss, meanLoss float64, train bool) {
	filled := barWidth * (batch + 1) / total
	bar := strings.Repeat("-", filled) + ">" + strings.Repeat(" ", barWidth-filled)

	elapsed := time.Since(p.phaseStart)
	eta := time.Duration(0)
	if batch+1 > 0 {
		eta = elapsed / time.Duration(batch+1) * time.Duration(total-batch-1)
	}

	name := "train_loss"
	prefix, suffix := "", ""
	if !train {
		name = "val_loss"
		if p.color {
			prefix, suffix = ansiDim, ansiReset
		}
	}
	fmt.Fprintf(p.out, "\r%s%sEpoch %03d (%03d/%03d) [%s] %s %f (%f) %s / ETA %s%s",
		ansiClearLn, prefix, epoch, batch+1, total, bar,
		name, loss, meanLoss,
		FormatDuration(elapsed), FormatDuration(eta), suffix)
}

// EpochSummary is everything the per-epoch report line displays.
type EpochSummary struct {
	Epoch           int
	TrainLoss       float64
	TrainImproved   bool
	ValLoss         float64
	ValImproved     bool
	Diagnostics     []float64
	DiagnosticBests []bool
	Metrics         []float64
	MetricBests     []bool
	Dropout         float64
}

// Epoch prints the summary row for one epoch, preceded by the column
// header on the first epoch.
func (p *ProgressPrinter) Epoch(s EpochSummary) {
	if !p.headerDone {
		p.printHeader()
		p.headerDone = true
	}

	epochCol := fmt.Sprintf("Epoch %03d", s.Epoch)
	if s.ValImproved {
		epochCol = p.paint(ansiGreen, epochCol)
	}
	cols := []string{
		epochCol,
		p.paintIf(s.TrainImproved, ansiGreen, fmt.Sprintf("%7.4f", s.TrainLoss)),
		p.paintIf(s.ValImproved, ansiGreen, fmt.Sprintf("%7.5f", s.ValLoss)),
	}
	for i, v := range s.Diagnostics {
		cols = append(cols, p.paintIf(s.DiagnosticBests[i], ansiCyan, fmt.Sprintf("%8.4f", v)))
	}
	for i, v := range s.Metrics {
		cols = append(cols, p.paintIf(s.MetricBests[i], ansiCyan, fmt.Sprintf("%8.4f", v)))
	}
	cols = append(cols,
		fmt.Sprintf("%5.3f", s.Dropout),
		FormatDuration(time.Since(p.epochStart)),
	)
	fmt.Fprintf(p.out, "\r%s%s\n", ansiClearLn, strings.Join(cols, " | "))
}

// Finish prints the end-of-training summary.
func (p *ProgressPrinter) Finish(epochsRun int, bestValLoss float64, bestEpoch int, total time.Duration) {
	fmt.Fprintf(p.out, "Training finished in %d epochs (%s) with minimum loss = %f (epoch %d)\n",
		epochsRun, FormatDuration(total), bestValLoss, bestEpoch)
}

func (p *ProgressPrinter) printHeader() {
	headers := []string{"Epoch num", " train ", "  val  "}
	for _, name := range p.diagNames {
		headers = append(headers, centered(name, 8))
	}
	for _, name := range p.metricNames {
		headers = append(headers, centered(name, 8))
	}
	headers = append(headers, "p_drp", "time ")
	line := strings.Join(headers, " | ")
	fmt.Fprintf(p.out, "%s\n", line)
	fmt.Fprintf(p.out, "%s\n", strings.Repeat("-", len(line)))
}

func (p *ProgressPrinter) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *ProgressPrinter) paintIf(cond bool, code, s string) string {
	if !cond {
		return s
	}
	return p.paint(code, s)
}

// centered pads name to width, centering it, truncating longer names.
func centered(name string, width int) string {
	if len(name) >= width {
		return name[:width]
	}
	left := (width - len(name)) / 2
	right := width - len(name) - left
	return strings.Repeat(" ", left) + name + strings.Repeat(" ", right)
}

// FormatDuration formats a duration as MM:SS, adding an hour field for
// long runs.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
