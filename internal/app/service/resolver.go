package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/clicktrail/internal/app/metrics"
	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
	"go.uber.org/zap"
)

// Requester carries the inbound request metadata stored on a hit.
type Requester struct {
	IP        string
	UserAgent string
	Referer   string
}

// Resolution is the outcome of resolving a token.
type Resolution struct {
	TargetURL string
	Recorded  bool
}

// HitNotifier receives every recorded hit, e.g. to feed a stream. Notify is
// called on the redirect path and should not block; see HitQueue.
type HitNotifier interface {
	Notify(notice model.HitNotice) error
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// AntiBurst is the minimum gap between two recorded hits from one IP on
	// one target. Zero disables suppression.
	AntiBurst time.Duration
	Filter    *TokenFilter
	Notifier  HitNotifier
	Logger    *zap.Logger
	Now       func() time.Time
}

// Resolver maps tokens to destinations and writes the hit ledger.
type Resolver struct {
	redirects repository.RedirectRepository
	hits      repository.HitRepository
	window    int64
	filter    *TokenFilter
	notifier  HitNotifier
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewResolver returns a resolver over the given repositories.
func NewResolver(redirects repository.RedirectRepository, hits repository.HitRepository, opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		redirects: redirects,
		hits:      hits,
		window:    int64(opts.AntiBurst / time.Second),
		filter:    opts.Filter,
		notifier:  opts.Notifier,
		logger:    logger,
		nowFunc:   now,
	}
}

// Resolve looks up token and records a hit unless the same IP was recorded
// on the same target less than the anti-burst window ago. The destination
// is returned whether or not the hit was recorded.
func (r *Resolver) Resolve(ctx context.Context, token string, who Requester) (*Resolution, error) {
	if !ValidToken(token) || (r.filter != nil && !r.filter.MayContain(token)) {
		metrics.Redirects.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, ErrNotFound
	}

	target, err := r.redirects.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrRedirectNotFound) {
			metrics.Redirects.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return nil, ErrNotFound
		}
		metrics.Redirects.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("load redirect: %w", err)
	}

	hit := &model.HitEvent{
		RedirectID: target.ID,
		Timestamp:  r.nowFunc().Unix(),
		IP:         who.IP,
		UserAgent:  who.UserAgent,
		Referer:    who.Referer,
	}
	recorded, err := r.hits.RecordUnlessRecent(ctx, hit, r.window)
	if err != nil {
		metrics.Redirects.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("record hit: %w", err)
	}

	if recorded {
		metrics.Redirects.WithLabelValues(metrics.OutcomeRecorded).Inc()
		if r.notifier != nil {
			r.notify(target, hit)
		}
	} else {
		metrics.Redirects.WithLabelValues(metrics.OutcomeSuppressed).Inc()
		r.logger.Debug("hit suppressed by anti-burst window",
			zap.String("token", token),
			zap.String("ip", who.IP),
		)
	}

	return &Resolution{TargetURL: target.TargetURL, Recorded: recorded}, nil
}

func (r *Resolver) notify(target *model.RedirectTarget, hit *model.HitEvent) {
	notice := model.HitNotice{
		HitID:      hit.ID,
		RedirectID: target.ID,
		Token:      target.Token,
		PostID:     target.PostID,
		ItemIndex:  target.ItemIndex,
		IP:         hit.IP,
		UserAgent:  hit.UserAgent,
		Referer:    hit.Referer,
		Timestamp:  hit.Time(),
	}
	if err := r.notifier.Notify(notice); err != nil {
		r.logger.Error("failed to publish hit notice", zap.Error(err), zap.String("token", target.Token))
	}
}
