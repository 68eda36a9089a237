package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"dupaudit/pkg/progress"
)

// progressSink renders pipeline progress: a bar per stage on a terminal,
// zap info lines otherwise.
type progressSink interface {
	progress.Sink
	Close()
}

func newProgressSink(w io.Writer, logger *zap.Logger) progressSink {
	if isTerminal(w) {
		return &barSink{out: w}
	}
	return &logSink{logger: logger}
}

// barSink keeps one progress bar for the current stage.
type barSink struct {
	mu    sync.Mutex
	out   io.Writer
	stage string
	bar   *progressbar.ProgressBar
}

func (s *barSink) Notify(u progress.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Stage != s.stage || s.bar == nil {
		s.finish()
		s.stage = u.Stage

		total := int64(u.Total)
		if total <= 0 {
			total = -1
		}
		s.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(s.out),
			progressbar.OptionSetDescription(u.Stage),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(u.Total > 0),
			progressbar.OptionClearOnFinish(),
		)
	}

	_ = s.bar.Set(u.Completed)
	if u.Done {
		s.finish()
	}
}

func (s *barSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish()
}

func (s *barSink) finish() {
	if s.bar == nil {
		return
	}
	_ = s.bar.Finish()
	s.bar = nil
}

type logSink struct {
	logger *zap.Logger
}

func (s *logSink) Notify(u progress.Update) {
	s.logger.Info("progress",
		zap.String("stage", u.Stage),
		zap.Int("completed", u.Completed),
		zap.Int("total", u.Total),
		zap.Float64("eta_seconds", u.ETA.Seconds()),
		zap.Bool("done", u.Done))
}

func (s *logSink) Close() {}
