package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
	infraPostgres "github.com/sifan077/clicktrail/internal/infra/postgres"
	infraSQLite "github.com/sifan077/clicktrail/internal/infra/sqlite"
	"gorm.io/gorm"
)

type mockRedirectRepository struct {
	createFn     func(ctx context.Context, target *model.RedirectTarget) error
	getFn        func(ctx context.Context, token string) (*model.RedirectTarget, error)
	listByPostFn func(ctx context.Context, postID int64) ([]model.RedirectTarget, error)
}

func (m *mockRedirectRepository) Create(ctx context.Context, target *model.RedirectTarget) error {
	if m.createFn != nil {
		return m.createFn(ctx, target)
	}
	return nil
}

func (m *mockRedirectRepository) GetByToken(ctx context.Context, token string) (*model.RedirectTarget, error) {
	if m.getFn != nil {
		return m.getFn(ctx, token)
	}
	return nil, repository.ErrRedirectNotFound
}

func (m *mockRedirectRepository) ListByPost(ctx context.Context, postID int64) ([]model.RedirectTarget, error) {
	if m.listByPostFn != nil {
		return m.listByPostFn(ctx, postID)
	}
	return nil, nil
}

func (m *mockRedirectRepository) ListTokens(ctx context.Context) ([]string, error) {
	return nil, nil
}

type mockHitRepository struct {
	recordFn func(ctx context.Context, hit *model.HitEvent, windowSeconds int64) (bool, error)
	countFn  func(ctx context.Context, redirectID int64) (int64, error)
}

func (m *mockHitRepository) RecordUnlessRecent(ctx context.Context, hit *model.HitEvent, windowSeconds int64) (bool, error) {
	if m.recordFn != nil {
		return m.recordFn(ctx, hit, windowSeconds)
	}
	return true, nil
}

func (m *mockHitRepository) CountByRedirect(ctx context.Context, redirectID int64) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, redirectID)
	}
	return 0, nil
}

func (m *mockHitRepository) CountByPostItemSince(ctx context.Context, postIDs []int64, since int64) ([]repository.ItemClicks, error) {
	return nil, nil
}

func (m *mockHitRepository) EachRow(ctx context.Context, filter repository.HitFilter, fn func(model.HitRow) error) (int, error) {
	return 0, nil
}

// fixedClock is a settable clock for injecting into services.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// store bundles GORM repositories over an in-memory SQLite database.
type store struct {
	db        *gorm.DB
	posts     repository.PostRepository
	redirects repository.RedirectRepository
	hits      repository.HitRepository
	ratings   repository.RatingRepository
}

func newStore(t *testing.T) *store {
	t.Helper()

	db, err := infraSQLite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := infraPostgres.AutoMigrate(context.Background(), db, infraPostgres.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &store{
		db:        db,
		posts:     repository.NewPostRepository(db),
		redirects: repository.NewRedirectRepository(db),
		hits:      repository.NewHitRepository(db),
		ratings:   repository.NewRatingRepository(db),
	}
}

func TestLinkService_Links(t *testing.T) {
	issuer := NewTokenIssuer(&mockRedirectRepository{}, TokenIssuerOptions{BaseURL: "https://s.example", ItemsPerPost: 3})
	redirects := &mockRedirectRepository{
		listByPostFn: func(ctx context.Context, postID int64) ([]model.RedirectTarget, error) {
			if postID != 5 {
				t.Fatalf("unexpected post id %d", postID)
			}
			return []model.RedirectTarget{
				{ID: 1, Token: "AAAAAAAAAA", PostID: 5, ItemIndex: 1, TargetURL: "https://a.example"},
				{ID: 2, Token: "BBBBBBBBBB", PostID: 5, ItemIndex: 2, TargetURL: "https://b.example"},
			}, nil
		},
	}
	hits := &mockHitRepository{
		countFn: func(ctx context.Context, redirectID int64) (int64, error) {
			return redirectID * 10, nil
		},
	}

	svc := NewLinkService(redirects, hits, issuer)
	links, err := svc.Links(context.Background(), 5)
	if err != nil {
		t.Fatalf("Links returned error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[1].Clicks != 20 || links[1].ShortURL != "https://s.example/r/BBBBBBBBBB" {
		t.Fatalf("unexpected link %+v", links[1])
	}
}

func TestLinkService_Links_Empty(t *testing.T) {
	svc := NewLinkService(&mockRedirectRepository{}, &mockHitRepository{}, NewTokenIssuer(&mockRedirectRepository{}, TokenIssuerOptions{}))

	_, err := svc.Links(context.Background(), 42)
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestLinkService_Links_CountError(t *testing.T) {
	boom := errors.New("boom")
	redirects := &mockRedirectRepository{
		listByPostFn: func(ctx context.Context, postID int64) ([]model.RedirectTarget, error) {
			return []model.RedirectTarget{{ID: 1, ItemIndex: 1}}, nil
		},
	}
	hits := &mockHitRepository{
		countFn: func(ctx context.Context, redirectID int64) (int64, error) { return 0, boom },
	}

	svc := NewLinkService(redirects, hits, NewTokenIssuer(redirects, TokenIssuerOptions{}))
	if _, err := svc.Links(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
