package service

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ExportSweeper periodically removes export directories left behind by a
// crashed or interrupted delivery.
type ExportSweeper struct {
	logger   *zap.Logger
	dir      string
	ttl      time.Duration
	interval time.Duration
	nowFunc  func() time.Time
	stopChan chan struct{}
}

// NewExportSweeper creates a sweeper for export directories under dir
// (os.TempDir when empty) older than ttl.
func NewExportSweeper(logger *zap.Logger, dir string, ttl time.Duration) *ExportSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &ExportSweeper{
		logger:   logger,
		dir:      dir,
		ttl:      ttl,
		interval: 10 * time.Minute,
		nowFunc:  time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *ExportSweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *ExportSweeper) Stop() {
	close(s.stopChan)
}

func (s *ExportSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopChan:
			s.logger.Info("export sweeper stopped")
			return
		}
	}
}

// Sweep removes stale export directories and returns how many were removed.
func (s *ExportSweeper) Sweep() int {
	matches, err := filepath.Glob(filepath.Join(s.dir, exportDirPattern))
	if err != nil {
		s.logger.Error("failed to list export directories", zap.Error(err))
		return 0
	}

	cutoff := s.nowFunc().Add(-s.ttl)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove stale export directory", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("removed stale export directories",
			zap.Int("count", removed),
			zap.Time("older_than", cutoff),
		)
	}
	return removed
}
