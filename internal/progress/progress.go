// Package progress reports backfill progress.
package progress

import (
	"io"
	"os"
	"time"

	"github.com/loykin/lhm/internal/common"
	"github.com/schollz/progressbar/v3"
)

// Printer receives the size of the id range to copy and how much of it is done.
type Printer interface {
	Start(total int64)
	Notify(done int64)
	End()
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(int64)  {}
func (Nop) Notify(int64) {}
func (Nop) End()         {}

// Bar renders a terminal progress bar.
type Bar struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewBar returns a bar writing to w, or stderr when w is nil.
func NewBar(w io.Writer, description string) *Bar {
	if w == nil {
		w = os.Stderr
	}
	return &Bar{w: w, description: description}
}

func (b *Bar) Start(total int64) {
	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(b.description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionFullWidth(),
	)
}

func (b *Bar) Notify(done int64) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Set64(done)
}

func (b *Bar) End() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	_, _ = io.WriteString(b.w, "\n")
}

// Log writes a log line each time another step percent of the range is done.
type Log struct {
	logger *common.Logger
	step   int64
	total  int64
	next   int64
}

// NewLog returns a printer logging every step percent (10 when step <= 0).
func NewLog(logger *common.Logger, step int64) *Log {
	if logger == nil {
		logger = common.GetLogger().WithComponent("progress")
	}
	if step <= 0 || step > 100 {
		step = 10
	}
	return &Log{logger: logger, step: step}
}

func (l *Log) Start(total int64) {
	l.total = total
	l.next = l.step
}

func (l *Log) Notify(done int64) {
	if l.total <= 0 {
		return
	}
	pct := done * 100 / l.total
	if pct < l.next {
		return
	}
	l.logger.Info("copy progress", "percent", pct, "done", done, "total", l.total)
	for l.next <= pct {
		l.next += l.step
	}
}

func (l *Log) End() {
	l.logger.Info("copy progress", "percent", 100, "done", l.total, "total", l.total)
}
