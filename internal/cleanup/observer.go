// Package cleanup implements the Cleanup Observer: a once-daily sweep
// that deletes aged top-level files from the agent-writable transfer
// directories, leaving subdirectories untouched.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nevindra/ductor/internal/calendar"
)

// Config configures the Cleanup Observer.
type Config struct {
	CheckHour int // local hour [0,23] at which the daily sweep may run
	MaxAge    time.Duration
	Dirs      []string
}

// Observer is the Cleanup Observer.
type Observer struct {
	cfg    Config
	logger *slog.Logger

	lastRunDay string
	stop       chan struct{}
	done       chan struct{}
}

func NewObserver(cfg Config, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{cfg: cfg, logger: logger}
}

// Start spawns the background 3600-second check loop.
func (o *Observer) Start(ctx context.Context) {
	o.stop = make(chan struct{})
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-o.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							o.logger.Error("cleanup observer: tick panic recovered", "panic", r)
						}
					}()
					o.tick()
				}()
			}
		}
	}()
}

// Stop cancels the background loop and awaits its exit.
func (o *Observer) Stop() {
	if o.stop == nil {
		return
	}
	close(o.stop)
	<-o.done
}

func (o *Observer) tick() {
	now := time.Now()
	if now.Hour() != o.cfg.CheckHour {
		return
	}
	today := calendar.DayKey(now.Year(), int(now.Month()), now.Day())
	if today == o.lastRunDay {
		return
	}
	o.lastRunDay = today

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("cleanup observer: sweep panic recovered", "panic", r)
			}
		}()
		o.sweep()
	}()
}

func (o *Observer) sweep() {
	cutoff := time.Now().Add(-o.cfg.MaxAge)
	for _, dir := range o.cfg.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				o.logger.Warn("cleanup observer: read dir failed", "dir", dir, "err", err)
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(dir, e.Name())
				if err := os.Remove(path); err != nil {
					o.logger.Warn("cleanup observer: remove failed", "path", path, "err", err)
				}
			}
		}
	}
}
