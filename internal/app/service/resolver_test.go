package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sifan077/clicktrail/internal/app/model"
)

type chanNotifier struct {
	notices chan model.HitNotice
	err     error
}

func (n *chanNotifier) Notify(notice model.HitNotice) error {
	n.notices <- notice
	return n.err
}

// publishedPost issues one target per URL for post postID.
func publishedPost(t *testing.T, s *store, postID int64, urls ...string) []*model.RedirectTarget {
	t.Helper()
	issuer := NewTokenIssuer(s.redirects, TokenIssuerOptions{BaseURL: "https://s.example", ItemsPerPost: len(urls)})

	var targets []*model.RedirectTarget
	for i, u := range urls {
		target, _, err := issuer.Issue(context.Background(), postID, i+1, u)
		if err != nil {
			t.Fatalf("issue item %d: %v", i+1, err)
		}
		targets = append(targets, target)
	}
	return targets
}

func countHits(t *testing.T, s *store, redirectID int64) int64 {
	t.Helper()
	n, err := s.hits.CountByRedirect(context.Background(), redirectID)
	if err != nil {
		t.Fatalf("count hits: %v", err)
	}
	return n
}

func TestResolver_RepeatedHitsFromOneIPAreSuppressed(t *testing.T) {
	s := newStore(t)
	targets := publishedPost(t, s, 100, "https://u1.example", "https://u2.example", "https://u3.example")
	clock := newClock(time.Unix(1_700_000_000, 0))
	resolver := NewResolver(s.redirects, s.hits, ResolverOptions{AntiBurst: 10 * time.Second, Now: clock.Now})

	for i := 0; i < 3; i++ {
		res, err := resolver.Resolve(context.Background(), targets[0].Token, Requester{IP: "1.1.1.1"})
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if res.TargetURL != "https://u1.example" {
			t.Fatalf("resolve %d: unexpected target %s", i, res.TargetURL)
		}
		if res.Recorded != (i == 0) {
			t.Fatalf("resolve %d: recorded=%v", i, res.Recorded)
		}
		clock.Advance(2 * time.Second)
	}

	if n := countHits(t, s, targets[0].ID); n != 1 {
		t.Fatalf("expected 1 hit, got %d", n)
	}
}

func TestResolver_DistinctIPsAreRecorded(t *testing.T) {
	s := newStore(t)
	targets := publishedPost(t, s, 100, "https://u1.example", "https://u2.example", "https://u3.example")
	clock := newClock(time.Unix(1_700_000_000, 0))
	resolver := NewResolver(s.redirects, s.hits, ResolverOptions{AntiBurst: 10 * time.Second, Now: clock.Now})

	for _, ip := range []string{"1.1.1.1", "2.2.2.2"} {
		res, err := resolver.Resolve(context.Background(), targets[0].Token, Requester{IP: ip, UserAgent: "ua", Referer: "ref"})
		if err != nil {
			t.Fatalf("resolve from %s: %v", ip, err)
		}
		if !res.Recorded {
			t.Fatalf("expected hit from %s to be recorded", ip)
		}
		clock.Advance(500 * time.Millisecond)
	}

	if n := countHits(t, s, targets[0].ID); n != 2 {
		t.Fatalf("expected 2 hits, got %d", n)
	}
}

func TestResolver_WindowElapsedRecordsAgain(t *testing.T) {
	s := newStore(t)
	targets := publishedPost(t, s, 1, "https://u1.example")
	clock := newClock(time.Unix(1_700_000_000, 0))
	resolver := NewResolver(s.redirects, s.hits, ResolverOptions{AntiBurst: 10 * time.Second, Now: clock.Now})

	for _, step := range []time.Duration{0, 10 * time.Second, 9 * time.Second, time.Second} {
		clock.Advance(step)
		if _, err := resolver.Resolve(context.Background(), targets[0].Token, Requester{IP: "1.1.1.1"}); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	// Recorded at +0, +10 and +20; +19 was within the window of +10.
	if n := countHits(t, s, targets[0].ID); n != 3 {
		t.Fatalf("expected 3 hits, got %d", n)
	}
}

func TestResolver_ZeroWindowRecordsEveryHit(t *testing.T) {
	s := newStore(t)
	targets := publishedPost(t, s, 1, "https://u1.example")
	resolver := NewResolver(s.redirects, s.hits, ResolverOptions{})

	for i := 0; i < 4; i++ {
		if _, err := resolver.Resolve(context.Background(), targets[0].Token, Requester{IP: "1.1.1.1"}); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if n := countHits(t, s, targets[0].ID); n != 4 {
		t.Fatalf("expected 4 hits, got %d", n)
	}
}

func TestResolver_NotFound(t *testing.T) {
	s := newStore(t)
	targets := publishedPost(t, s, 1, "https://u1.example")
	filter := NewTokenFilter(10, 0.001)

	withoutFilter := NewResolver(s.redirects, s.hits, ResolverOptions{})
	for _, tok := range []string{"", "bad", "ZZZZZZZZZZ"} {
		if _, err := withoutFilter.Resolve(context.Background(), tok, Requester{IP: "1.1.1.1"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("token %q: expected ErrNotFound, got %v", tok, err)
		}
	}

	// The filter was never told about the issued token, so it answers "not issued".
	withFilter := NewResolver(s.redirects, s.hits, ResolverOptions{Filter: filter})
	if _, err := withFilter.Resolve(context.Background(), targets[0].Token, Requester{IP: "1.1.1.1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from filter, got %v", err)
	}
	filter.Add(targets[0].Token)
	if _, err := withFilter.Resolve(context.Background(), targets[0].Token, Requester{IP: "1.1.1.1"}); err != nil {
		t.Fatalf("expected resolve after filter add, got %v", err)
	}

	if n := countHits(t, s, targets[0].ID); n != 1 {
		t.Fatalf("expected 1 hit, got %d", n)
	}
}

func TestResolver_StoreErrorIsReturned(t *testing.T) {
	boom := errors.New("locked")
	redirects := &mockRedirectRepository{
		getFn: func(ctx context.Context, token string) (*model.RedirectTarget, error) {
			return &model.RedirectTarget{ID: 1, Token: token, TargetURL: "https://example.com"}, nil
		},
	}
	hits := &mockHitRepository{
		recordFn: func(ctx context.Context, hit *model.HitEvent, windowSeconds int64) (bool, error) {
			return false, boom
		},
	}
	resolver := NewResolver(redirects, hits, ResolverOptions{AntiBurst: 10 * time.Second})

	_, err := resolver.Resolve(context.Background(), "AAAAAAAAAA", Requester{IP: "1.1.1.1"})
	if !errors.Is(err, boom) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestResolver_PassesWindowInSeconds(t *testing.T) {
	var window int64
	redirects := &mockRedirectRepository{
		getFn: func(ctx context.Context, token string) (*model.RedirectTarget, error) {
			return &model.RedirectTarget{ID: 1, Token: token}, nil
		},
	}
	hits := &mockHitRepository{
		recordFn: func(ctx context.Context, hit *model.HitEvent, windowSeconds int64) (bool, error) {
			window = windowSeconds
			return true, nil
		},
	}
	resolver := NewResolver(redirects, hits, ResolverOptions{AntiBurst: 15 * time.Second})

	if _, err := resolver.Resolve(context.Background(), "AAAAAAAAAA", Requester{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if window != 15 {
		t.Fatalf("expected window of 15 seconds, got %d", window)
	}
}

func TestResolver_NotifiesRecordedHits(t *testing.T) {
	s := newStore(t)
	targets := publishedPost(t, s, 7, "https://u1.example", "https://u2.example")
	notifier := &chanNotifier{notices: make(chan model.HitNotice, 4), err: errors.New("stream down")}
	clock := newClock(time.Unix(1_700_000_000, 0))
	resolver := NewResolver(s.redirects, s.hits, ResolverOptions{
		AntiBurst: 10 * time.Second,
		Notifier:  notifier,
		Now:       clock.Now,
	})

	for i := 0; i < 2; i++ {
		res, err := resolver.Resolve(context.Background(), targets[1].Token, Requester{IP: "9.9.9.9", UserAgent: "curl"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.TargetURL != "https://u2.example" {
			t.Fatalf("notifier failure must not affect the redirect, got %+v", res)
		}
	}

	select {
	case notice := <-notifier.notices:
		if notice.Token != targets[1].Token || notice.PostID != 7 || notice.ItemIndex != 2 || notice.IP != "9.9.9.9" {
			t.Fatalf("unexpected notice %+v", notice)
		}
		if !notice.Timestamp.Equal(clock.Now()) {
			t.Fatalf("unexpected notice time %v", notice.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a hit notice")
	}

	select {
	case notice := <-notifier.notices:
		t.Fatalf("suppressed hit must not be notified, got %+v", notice)
	case <-time.After(100 * time.Millisecond):
	}
}
