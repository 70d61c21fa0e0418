package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/hpungsan/nounimaging/internal/stream"
)

// progressScale is the bar resolution; fractions map onto 0..progressScale.
const progressScale = 1000

// progressSink renders run progress on a terminal as a bar, and as plain
// lines when output is redirected.
type progressSink struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressSink(w io.Writer) *progressSink {
	s := &progressSink{w: w}
	if isTerminal(w) {
		s.bar = progressbar.NewOptions(progressScale,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return s
}

func (s *progressSink) Send(ev stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case stream.KindProgress:
		p, ok := ev.Data.(stream.Progress)
		if !ok {
			return nil
		}
		if s.bar != nil {
			s.bar.Describe(fmt.Sprintf("%-16s", p.Stage))
			return s.bar.Set(int(p.Fraction * progressScale))
		}
		_, err := fmt.Fprintf(s.w, "%3.0f%% %-16s %s\n", p.Fraction*100, p.Stage, p.Status)
		return err
	case stream.KindComplete:
		if s.bar != nil {
			return s.bar.Finish()
		}
	case stream.KindError:
		if s.bar != nil {
			return s.bar.Exit()
		}
	}
	return nil
}

func (s *progressSink) Heartbeat() error { return nil }

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
