// Package command implements the operator commands: publish, summarize,
// list links and export hits. Argument shapes are validated here and turned
// into user-facing results; only unexpected failures come back as errors.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sifan077/clicktrail/internal/app/metrics"
	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/service"
	"go.uber.org/zap"
)

// Result codes.
const (
	CodeOK                = "ok"
	CodeEmpty             = "empty_result"
	CodeInvalidRange      = "invalid_range"
	CodeInvalidIdentifier = "invalid_identifier"
	CodeInvalidInput      = "invalid_input"
	CodeTargetUnresolved  = "delivery_target_unresolved"
)

// Result is what the command layer reports back to the caller.
type Result struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(message string, data any) Result {
	return Result{OK: true, Code: CodeOK, Message: message, Data: data}
}

func empty(message string) Result {
	return Result{OK: true, Code: CodeEmpty, Message: message}
}

func rejected(code, message string) Result {
	return Result{OK: false, Code: code, Message: message}
}

// Document is a file handed to the reporting channel.
type Document struct {
	Path     string
	FileName string
	Caption  string
}

// Reporter delivers payloads to the external reporting channel.
type Reporter interface {
	SendText(ctx context.Context, chatID, text string) error
	SendDocument(ctx context.Context, chatID string, doc Document) error
}

// Services groups the core services the commands drive.
type Services struct {
	Publish  *service.PublishService
	Stats    *service.StatsService
	Links    *service.LinkService
	Exporter *service.Exporter
	Ratings  *service.RatingService
}

// Options configures a Dispatcher.
type Options struct {
	// ReportChatID, when set, receives every report instead of the invoking chat.
	ReportChatID string
	// Reporter may be nil; summaries are then returned inline and exports
	// cannot be delivered.
	Reporter Reporter
	Logger   *zap.Logger
}

// Dispatcher executes operator commands.
type Dispatcher struct {
	svc          Services
	reporter     Reporter
	reportChatID string
	logger       *zap.Logger
}

// NewDispatcher returns a dispatcher over svc.
func NewDispatcher(svc Services, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		svc:          svc,
		reporter:     opts.Reporter,
		reportChatID: strings.TrimSpace(opts.ReportChatID),
		logger:       logger,
	}
}

// Publish records a post and issues its short links.
func (d *Dispatcher) Publish(ctx context.Context, in service.PublishInput) (Result, error) {
	res, err := d.svc.Publish.Publish(ctx, in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPublish) {
			return rejected(CodeInvalidInput, err.Error()), nil
		}
		return Result{}, err
	}
	return ok(fmt.Sprintf("Published. ID: %d", res.PostID), res), nil
}

// Summarize computes the window summary. args[0], when numeric, is clamped
// into 1..30 days; anything else falls back to 7.
func (d *Dispatcher) Summarize(ctx context.Context, chatID string, args []string) (Result, error) {
	days := ParseDays(args)

	stats, err := d.svc.Stats.Summarize(ctx, days)
	if err != nil {
		return Result{}, err
	}
	if stats.Posts == 0 {
		return empty(fmt.Sprintf("No posts in the last %d days.", days)), nil
	}

	text := service.FormatSummary(stats)
	target := d.target(chatID)
	if d.reporter == nil || target == "" || target == chatID {
		return ok(text, stats), nil
	}
	if err := d.reporter.SendText(ctx, target, text); err != nil {
		return Result{}, fmt.Errorf("deliver summary: %w", err)
	}
	return ok("Summary sent to the report chat.", stats), nil
}

// Links lists the short links of the post named by args[0].
func (d *Dispatcher) Links(ctx context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return rejected(CodeInvalidIdentifier, "Usage: links <post_id>"), nil
	}
	postID, err := parseID(args[0])
	if err != nil {
		return rejected(CodeInvalidIdentifier, "post_id must be a number."), nil
	}

	links, err := d.svc.Links.Links(ctx, postID)
	if err != nil {
		if errors.Is(err, service.ErrEmptyResult) {
			return empty("No redirects found for this post."), nil
		}
		return Result{}, err
	}

	lines := []string{fmt.Sprintf("🔗 Links of post %d:", postID)}
	for _, l := range links {
		lines = append(lines, fmt.Sprintf("#%d: %s\nClicks: %d", l.Item, l.TargetURL, l.Clicks))
	}
	return ok(strings.Join(lines, "\n\n"), links), nil
}

// ExportArgs is the parsed form of the export command arguments.
type ExportArgs struct {
	From   time.Time
	To     time.Time
	PostID *int64
}

// ParseExportArgs accepts no arguments (trailing seven days), "d1 d2" or
// "d1 d2 post_id" with dates as YYYY-MM-DD.
func ParseExportArgs(args []string, defaultFrom, defaultTo time.Time) (ExportArgs, error) {
	if len(args) < 2 {
		return ExportArgs{From: defaultFrom, To: defaultTo}, nil
	}

	from, errFrom := time.ParseInLocation(service.DateLayout, args[0], time.UTC)
	to, errTo := time.ParseInLocation(service.DateLayout, args[1], time.UTC)
	if errFrom != nil || errTo != nil {
		return ExportArgs{}, fmt.Errorf("%w: dates must be YYYY-MM-DD", service.ErrInvalidRange)
	}
	if to.Before(from) {
		return ExportArgs{}, fmt.Errorf("%w: start date is after end date", service.ErrInvalidRange)
	}

	out := ExportArgs{From: from, To: to}
	if len(args) >= 3 {
		id, err := parseID(args[2])
		if err != nil {
			return ExportArgs{}, fmt.Errorf("%w: post_id must be a number", service.ErrInvalidIdentifier)
		}
		out.PostID = &id
	}
	return out, nil
}

// Export writes hits for the requested range and delivers the file.
func (d *Dispatcher) Export(ctx context.Context, chatID string, args []string) (Result, error) {
	defFrom, defTo := d.svc.Exporter.DefaultRange()
	parsed, err := ParseExportArgs(args, defFrom, defTo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRange):
			return rejected(CodeInvalidRange, "Date format: YYYY-MM-DD. Example: export 2025-11-01 2025-11-10 [post_id]"), nil
		case errors.Is(err, service.ErrInvalidIdentifier):
			return rejected(CodeInvalidIdentifier, "post_id must be a number."), nil
		}
		return Result{}, err
	}

	target := d.target(chatID)
	if target == "" || d.reporter == nil {
		return rejected(CodeTargetUnresolved, "Could not determine where to send the report."), nil
	}

	artifact, err := d.svc.Exporter.Export(ctx, service.ExportRequest{
		From:   parsed.From,
		To:     parsed.To,
		PostID: parsed.PostID,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyResult) {
			return empty("No clicks in the requested period (or wrong post_id)."), nil
		}
		return Result{}, err
	}
	defer func() {
		if cErr := artifact.Cleanup(); cErr != nil {
			d.logger.Warn("failed to remove export artifacts", zap.String("dir", artifact.Dir), zap.Error(cErr))
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := d.reporter.SendDocument(ctx, target, Document{
		Path:     artifact.Path,
		FileName: artifact.FileName,
		Caption:  artifact.Caption,
	}); err != nil {
		metrics.Exports.WithLabelValues(metrics.ExportFailed).Inc()
		return Result{}, fmt.Errorf("deliver export: %w", err)
	}
	metrics.Exports.WithLabelValues(metrics.ExportDelivered).Inc()
	metrics.ExportBytes.Observe(float64(artifact.Size))

	summary := map[string]any{
		"rows":       artifact.Rows,
		"file_name":  artifact.FileName,
		"size":       artifact.Size,
		"compressed": artifact.Compressed,
		"oversized":  artifact.Oversized,
		"caption":    artifact.Caption,
	}
	msg := "Export delivered."
	if target != chatID {
		msg = "Done: export sent to the report chat."
	}
	return ok(msg, summary), nil
}

// Rate records a rating expressed as a callback payload or explicit action.
func (d *Dispatcher) Rate(ctx context.Context, postID, raterID int64, action model.RatingAction) (Result, error) {
	rating, err := d.svc.Ratings.Rate(ctx, service.RateInput{PostID: postID, RaterID: raterID, Action: action})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRating):
			return rejected(CodeInvalidInput, err.Error()), nil
		case errors.Is(err, service.ErrInvalidIdentifier):
			return rejected(CodeInvalidIdentifier, err.Error()), nil
		}
		return Result{}, err
	}
	return ok("Accepted.", rating), nil
}

func (d *Dispatcher) target(chatID string) string {
	if d.reportChatID != "" {
		return d.reportChatID
	}
	return strings.TrimSpace(chatID)
}

// ParseDays reads the optional window argument of the summarize command.
func ParseDays(args []string) int {
	if len(args) == 0 {
		return service.DefaultWindowDays
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return service.DefaultWindowDays
	}
	return max(service.MinWindowDays, min(service.MaxWindowDays, n))
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
