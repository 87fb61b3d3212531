package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sifan077/clicktrail/internal/app/metrics"
	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
	"go.uber.org/zap"
)

const (
	// DateLayout is the calendar-day format accepted for export ranges.
	DateLayout = "2006-01-02"

	exportDirPattern = "clicks-export-*"
	ctxCheckEvery    = 1000
	mib              = 1024 * 1024
)

// ExportHeader is the fixed column order of exported hit files.
var ExportHeader = []string{"ts_iso", "post_id", "item_idx", "ip", "user_agent", "referer", "token", "target_url"}

// ExportRequest selects hits between two UTC calendar days, both inclusive.
type ExportRequest struct {
	From   time.Time
	To     time.Time
	PostID *int64
}

// ExportArtifact is a fully written export ready for delivery. Everything it
// references lives under Dir; Cleanup removes it.
type ExportArtifact struct {
	Dir        string
	Path       string
	FileName   string
	Rows       int
	RawSize    int64
	Size       int64
	Compressed bool
	Oversized  bool
	Caption    string
}

// Cleanup removes the artifact's scoped directory.
func (a *ExportArtifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// ExportOptions configures an Exporter.
type ExportOptions struct {
	// Dir is the parent of per-export temp directories; empty means os.TempDir.
	Dir      string
	MaxBytes int64
	Logger   *zap.Logger
	Now      func() time.Time
}

// Exporter renders raw hits to CSV, zipping files above the size limit.
type Exporter struct {
	hits     repository.HitRepository
	dir      string
	maxBytes int64
	logger   *zap.Logger
	nowFunc  func() time.Time
}

// NewExporter returns an exporter reading from hits.
func NewExporter(hits repository.HitRepository, opts ExportOptions) *Exporter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		hits:     hits,
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		logger:   logger,
		nowFunc:  now,
	}
}

// DefaultRange is the trailing seven days ending now.
func (e *Exporter) DefaultRange() (time.Time, time.Time) {
	to := e.nowFunc().UTC()
	return to.AddDate(0, 0, -7), to
}

// Export writes the matching hits and returns the artifact to deliver.
// No file survives when it returns an error, including ErrEmptyResult.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (*ExportArtifact, error) {
	from := startOfDay(req.From)
	to := startOfDay(req.To)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from.Format(DateLayout), to.Format(DateLayout))
	}

	dir, err := os.MkdirTemp(e.dir, exportDirPattern)
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	artifact := &ExportArtifact{Dir: dir}
	ok := false
	defer func() {
		if !ok {
			_ = artifact.Cleanup()
		}
	}()

	name := fmt.Sprintf("clicks_%s_%s", from.Format(DateLayout), to.Format(DateLayout))
	if req.PostID != nil {
		name += "_post" + strconv.FormatInt(*req.PostID, 10)
	}
	csvPath := filepath.Join(dir, name+".csv")

	filter := repository.HitFilter{
		From:   from.Unix(),
		To:     to.Add(24*time.Hour - time.Second).Unix(),
		PostID: req.PostID,
	}
	rows, err := e.writeCSV(ctx, csvPath, filter)
	if err != nil {
		metrics.Exports.WithLabelValues(metrics.ExportFailed).Inc()
		return nil, err
	}
	if rows == 0 {
		metrics.Exports.WithLabelValues(metrics.ExportEmpty).Inc()
		return nil, ErrEmptyResult
	}

	info, err := os.Stat(csvPath)
	if err != nil {
		return nil, fmt.Errorf("stat export: %w", err)
	}
	artifact.Rows = rows
	artifact.RawSize = info.Size()
	artifact.Path = csvPath
	artifact.FileName = filepath.Base(csvPath)
	artifact.Size = artifact.RawSize

	if e.maxBytes > 0 && artifact.RawSize > e.maxBytes {
		zipPath := filepath.Join(dir, name+".zip")
		if err := zipSingle(zipPath, csvPath); err != nil {
			return nil, fmt.Errorf("compress export: %w", err)
		}
		zinfo, err := os.Stat(zipPath)
		if err != nil {
			return nil, fmt.Errorf("stat archive: %w", err)
		}
		_ = os.Remove(csvPath)
		artifact.Path = zipPath
		artifact.FileName = filepath.Base(zipPath)
		artifact.Size = zinfo.Size()
		artifact.Compressed = true
		artifact.Oversized = artifact.Size > e.maxBytes
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifact.Caption = e.caption(from, to, req.PostID, artifact.Oversized)
	if artifact.Oversized {
		metrics.Exports.WithLabelValues(metrics.ExportOversized).Inc()
		e.logger.Warn("export archive still exceeds size limit",
			zap.Int64("size", artifact.Size),
			zap.Int64("limit", e.maxBytes),
		)
	}

	ok = true
	return artifact, nil
}

func (e *Exporter) writeCSV(ctx context.Context, path string, filter repository.HitFilter) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	seen := 0
	n, err := e.hits.EachRow(ctx, filter, func(row model.HitRow) error {
		seen++
		if seen%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return w.Write([]string{
			time.Unix(row.Timestamp, 0).UTC().Format(time.RFC3339),
			strconv.FormatInt(row.PostID, 10),
			strconv.Itoa(row.ItemIndex),
			row.IP,
			row.UserAgent,
			row.Referer,
			row.Token,
			row.TargetURL,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read hits: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close export: %w", err)
	}
	return n, ctx.Err()
}

func (e *Exporter) caption(from, to time.Time, postID *int64, oversized bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Click export %s — %s", from.Format(DateLayout), to.Format(DateLayout))
	if postID != nil {
		fmt.Fprintf(&b, " | post_id=%d", *postID)
	}
	if oversized {
		fmt.Fprintf(&b, "\n⚠️ The file is still larger than %s. Narrow the date range or pass a post_id.", formatLimit(e.maxBytes))
	}
	return b.String()
}

func zipSingle(dst, src string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zw := zip.NewWriter(out)
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:   filepath.Base(src),
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, in); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatLimit(n int64) string {
	if n > 0 && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
