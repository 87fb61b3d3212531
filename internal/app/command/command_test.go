package command

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
	"github.com/sifan077/clicktrail/internal/app/service"
	infraPostgres "github.com/sifan077/clicktrail/internal/infra/postgres"
	infraSQLite "github.com/sifan077/clicktrail/internal/infra/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)

type sentDocument struct {
	chatID  string
	doc     Document
	content []byte
}

type fakeReporter struct {
	texts   map[string]string
	docs    []sentDocument
	sendErr error
}

func (f *fakeReporter) SendText(_ context.Context, chatID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.texts == nil {
		f.texts = make(map[string]string)
	}
	f.texts[chatID] = text
	return nil
}

func (f *fakeReporter) SendDocument(_ context.Context, chatID string, doc Document) error {
	content, err := os.ReadFile(doc.Path)
	if err != nil {
		return err
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.docs = append(f.docs, sentDocument{chatID: chatID, doc: doc, content: content})
	return nil
}

type fixture struct {
	db         *gorm.DB
	exportDir  string
	dispatcher *Dispatcher
	publish    *service.PublishService
	resolver   *service.Resolver
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	db, err := infraSQLite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, infraPostgres.AutoMigrate(context.Background(), db, infraPostgres.Models()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	now := func() time.Time { return testNow }
	posts := repository.NewPostRepository(db)
	redirects := repository.NewRedirectRepository(db)
	hits := repository.NewHitRepository(db)
	ratings := repository.NewRatingRepository(db)

	issuer := service.NewTokenIssuer(redirects, service.TokenIssuerOptions{
		BaseURL:      "https://s.example",
		ItemsPerPost: 3,
		Now:          now,
	})
	exportDir := t.TempDir()
	publish := service.NewPublishService(posts, issuer, repository.NewTransactor(db), 3, nil, now)

	return &fixture{
		db:        db,
		exportDir: exportDir,
		publish:   publish,
		resolver:  service.NewResolver(redirects, hits, service.ResolverOptions{AntiBurst: 10 * time.Second, Now: now}),
		dispatcher: NewDispatcher(Services{
			Publish: publish,
			Stats:   service.NewStatsService(posts, hits, ratings, 3, now),
			Links:   service.NewLinkService(redirects, hits, issuer),
			Exporter: service.NewExporter(hits, service.ExportOptions{
				Dir:      exportDir,
				MaxBytes: 15 * 1024 * 1024,
				Now:      now,
			}),
			Ratings: service.NewRatingService(posts, ratings, 3, now),
		}, opts),
	}
}

// publishAndClick publishes a post and records one hit on its first item.
func (f *fixture) publishAndClick(t *testing.T) *service.PublishResult {
	t.Helper()
	res, err := f.publish.Publish(context.Background(), service.PublishInput{
		MessageRef: 1,
		Items: []service.PublishItem{
			{URL: "https://u1.example"},
			{URL: "https://u2.example"},
			{URL: "https://u3.example"},
		},
	})
	require.NoError(t, err)

	_, err = f.resolver.Resolve(context.Background(), res.Links[0].Token, service.Requester{IP: "1.1.1.1", UserAgent: "ua"})
	require.NoError(t, err)
	return res
}

func (f *fixture) exportEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.exportDir)
	require.NoError(t, err)
	return entries
}

func TestParseDays(t *testing.T) {
	cases := []struct {
		args []string
		want int
	}{
		{nil, 7},
		{[]string{"3"}, 3},
		{[]string{"0"}, 1},
		{[]string{"-4"}, 1},
		{[]string{"99"}, 30},
		{[]string{"abc"}, 7},
		{[]string{" 12 "}, 12},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseDays(tc.args), "args=%v", tc.args)
	}
}

func TestParseExportArgs(t *testing.T) {
	defFrom, defTo := testNow.AddDate(0, 0, -7), testNow

	got, err := ParseExportArgs(nil, defFrom, defTo)
	require.NoError(t, err)
	assert.Equal(t, ExportArgs{From: defFrom, To: defTo}, got)

	got, err = ParseExportArgs([]string{"2025-11-01"}, defFrom, defTo)
	require.NoError(t, err)
	assert.Equal(t, defFrom, got.From)

	got, err = ParseExportArgs([]string{"2025-11-01", "2025-11-10"}, defFrom, defTo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), got.From)
	assert.Equal(t, time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC), got.To)
	assert.Nil(t, got.PostID)

	got, err = ParseExportArgs([]string{"2025-11-01", "2025-11-01", "42"}, defFrom, defTo)
	require.NoError(t, err)
	require.NotNil(t, got.PostID)
	assert.EqualValues(t, 42, *got.PostID)

	_, err = ParseExportArgs([]string{"11/01/2025", "2025-11-10"}, defFrom, defTo)
	assert.ErrorIs(t, err, service.ErrInvalidRange)

	_, err = ParseExportArgs([]string{"2025-11-10", "2025-11-01"}, defFrom, defTo)
	assert.ErrorIs(t, err, service.ErrInvalidRange)

	_, err = ParseExportArgs([]string{"2025-11-01", "2025-11-10", "abc"}, defFrom, defTo)
	assert.ErrorIs(t, err, service.ErrInvalidIdentifier)
}

func TestDispatcher_ExportWithoutTarget(t *testing.T) {
	f := newFixture(t, Options{})
	f.publishAndClick(t)

	res, err := f.dispatcher.Export(context.Background(), "", nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, CodeTargetUnresolved, res.Code)
	assert.Empty(t, f.exportEntries(t))

	// A chat without a reporter cannot receive files either.
	res, err = f.dispatcher.Export(context.Background(), "chat-1", nil)
	require.NoError(t, err)
	assert.Equal(t, CodeTargetUnresolved, res.Code)
	assert.Empty(t, f.exportEntries(t))
}

func TestDispatcher_ExportDelivers(t *testing.T) {
	reporter := &fakeReporter{}
	f := newFixture(t, Options{Reporter: reporter})
	f.publishAndClick(t)

	res, err := f.dispatcher.Export(context.Background(), "chat-1", []string{"2025-11-10", "2025-11-10"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, "Export delivered.", res.Message)

	require.Len(t, reporter.docs, 1)
	sent := reporter.docs[0]
	assert.Equal(t, "chat-1", sent.chatID)
	assert.Equal(t, "clicks_2025-11-10_2025-11-10.csv", sent.doc.FileName)
	assert.Equal(t, "Click export 2025-11-10 — 2025-11-10", sent.doc.Caption)
	assert.True(t, strings.HasPrefix(string(sent.content), strings.Join(service.ExportHeader, ",")))
	assert.Contains(t, string(sent.content), "https://u1.example")

	assert.Empty(t, f.exportEntries(t), "export files are removed after delivery")
}

func TestDispatcher_ExportPrefersReportChat(t *testing.T) {
	reporter := &fakeReporter{}
	f := newFixture(t, Options{Reporter: reporter, ReportChatID: "ops"})
	res := f.publishAndClick(t)

	out, err := f.dispatcher.Export(context.Background(), "chat-1", []string{"2025-11-01", "2025-11-10", "1"})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "Done: export sent to the report chat.", out.Message)
	require.Len(t, reporter.docs, 1)
	assert.Equal(t, "ops", reporter.docs[0].chatID)
	assert.Contains(t, reporter.docs[0].doc.Caption, "post_id=1")
	assert.EqualValues(t, 1, res.PostID)

	// No invoking chat at all still resolves to the report chat.
	out, err = f.dispatcher.Export(context.Background(), "", nil)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Len(t, reporter.docs, 2)
}

func TestDispatcher_ExportEmptyAndInvalid(t *testing.T) {
	reporter := &fakeReporter{}
	f := newFixture(t, Options{Reporter: reporter})

	res, err := f.dispatcher.Export(context.Background(), "chat-1", []string{"2025-11-01", "2025-11-02"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, CodeEmpty, res.Code)
	assert.Empty(t, reporter.docs)
	assert.Empty(t, f.exportEntries(t))

	res, err = f.dispatcher.Export(context.Background(), "chat-1", []string{"2025-13-01", "2025-11-02"})
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidRange, res.Code)

	res, err = f.dispatcher.Export(context.Background(), "chat-1", []string{"2025-11-01", "2025-11-02", "x"})
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidIdentifier, res.Code)
}

func TestDispatcher_ExportDeliveryFailure(t *testing.T) {
	reporter := &fakeReporter{sendErr: errors.New("channel down")}
	f := newFixture(t, Options{Reporter: reporter})
	f.publishAndClick(t)

	_, err := f.dispatcher.Export(context.Background(), "chat-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, reporter.sendErr)
	assert.Empty(t, f.exportEntries(t))
}

func TestDispatcher_Summarize(t *testing.T) {
	reporter := &fakeReporter{}
	f := newFixture(t, Options{Reporter: reporter, ReportChatID: "ops"})

	res, err := f.dispatcher.Summarize(context.Background(), "chat-1", nil)
	require.NoError(t, err)
	assert.Equal(t, CodeEmpty, res.Code)
	assert.Empty(t, reporter.texts)

	f.publishAndClick(t)
	res, err = f.dispatcher.Summarize(context.Background(), "chat-1", []string{"500"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	stats, ok := res.Data.(*service.Stats)
	require.True(t, ok)
	assert.Equal(t, 30, stats.Days)
	assert.EqualValues(t, 1, stats.ClicksTotal)
	assert.Contains(t, reporter.texts["ops"], "Last 30 days")
}

func TestDispatcher_SummarizeInline(t *testing.T) {
	f := newFixture(t, Options{})
	f.publishAndClick(t)

	res, err := f.dispatcher.Summarize(context.Background(), "chat-1", []string{"nope"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "Last 7 days")
	assert.Contains(t, res.Message, "clicks total: 1")
}

func TestDispatcher_Links(t *testing.T) {
	f := newFixture(t, Options{})
	pub := f.publishAndClick(t)

	res, err := f.dispatcher.Links(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidIdentifier, res.Code)

	res, err = f.dispatcher.Links(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidIdentifier, res.Code)

	res, err = f.dispatcher.Links(context.Background(), []string{"999"})
	require.NoError(t, err)
	assert.Equal(t, CodeEmpty, res.Code)

	res, err = f.dispatcher.Links(context.Background(), []string{"1"})
	require.NoError(t, err)
	require.True(t, res.OK)
	links, ok := res.Data.([]service.LinkStat)
	require.True(t, ok)
	require.Len(t, links, 3)
	assert.EqualValues(t, 1, links[0].Clicks)
	assert.Equal(t, pub.Links[0].ShortURL, links[0].ShortURL)
	assert.Contains(t, res.Message, "#1: https://u1.example\nClicks: 1")
}

func TestDispatcher_PublishAndRate(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.dispatcher.Publish(context.Background(), service.PublishInput{MessageRef: 1, Items: []service.PublishItem{{URL: "https://a.example"}}})
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidInput, res.Code)

	res, err = f.dispatcher.Publish(context.Background(), service.PublishInput{
		MessageRef: 1,
		Items: []service.PublishItem{
			{URL: "https://a.example"},
			{URL: "https://b.example"},
			{URL: "https://c.example"},
		},
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "Published. ID: 1", res.Message)

	res, err = f.dispatcher.Rate(context.Background(), 1, 5, model.RatingAction{Kind: model.RatingKindAll, Emoji: "🔥"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = f.dispatcher.Rate(context.Background(), 1, 5, model.RatingAction{Kind: model.RatingKindItem, Item: 9})
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidInput, res.Code)

	res, err = f.dispatcher.Rate(context.Background(), 77, 5, model.RatingAction{Kind: model.RatingKindItem, Item: 1})
	require.NoError(t, err)
	assert.Equal(t, CodeInvalidIdentifier, res.Code)
}
