package repository

import (
	"context"

	"github.com/sifan077/clicktrail/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemClicks is the hit count of one (post, item) pair.
type ItemClicks struct {
	PostID    int64 `gorm:"column:post_id"`
	ItemIndex int   `gorm:"column:item_idx"`
	Clicks    int64 `gorm:"column:clicks"`
}

// HitFilter selects hits for export. From and To are inclusive unix seconds.
type HitFilter struct {
	From   int64
	To     int64
	PostID *int64
}

// HitRepository is the append-only hit ledger.
//
// RecordUnlessRecent performs the anti-burst check and the insert as one
// transaction. On Postgres the owning redirect row is locked FOR UPDATE; on
// SQLite the store runs on a single connection, which serializes writers.
type HitRepository interface {
	RecordUnlessRecent(ctx context.Context, hit *model.HitEvent, windowSeconds int64) (bool, error)
	CountByRedirect(ctx context.Context, redirectID int64) (int64, error)
	CountByPostItemSince(ctx context.Context, postIDs []int64, since int64) ([]ItemClicks, error)
	EachRow(ctx context.Context, filter HitFilter, fn func(model.HitRow) error) (int, error)
}

type hitRepository struct {
	db *gorm.DB
}

// NewHitRepository returns a GORM-backed HitRepository.
func NewHitRepository(db *gorm.DB) HitRepository {
	return &hitRepository{db: db}
}

func (r *hitRepository) RecordUnlessRecent(ctx context.Context, hit *model.HitEvent, windowSeconds int64) (bool, error) {
	recorded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if windowSeconds > 0 {
			if tx.Dialector.Name() == "postgres" {
				var owner model.RedirectTarget
				if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Select("id").
					Where("id = ?", hit.RedirectID).
					Take(&owner).Error; err != nil {
					return err
				}
			}

			var last []model.HitEvent
			if err := tx.Select("id", "ts").
				Where("redirect_id = ? AND ip = ?", hit.RedirectID, hit.IP).
				Order("ts DESC, id DESC").
				Limit(1).
				Find(&last).Error; err != nil {
				return err
			}
			if len(last) == 1 && hit.Timestamp-last[0].Timestamp < windowSeconds {
				return nil
			}
		}

		if err := tx.Create(hit).Error; err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func (r *hitRepository) CountByRedirect(ctx context.Context, redirectID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.HitEvent{}).
		Where("redirect_id = ?", redirectID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByPostItemSince returns one row per redirect target of the given posts,
// with zero clicks for targets that have no hit at or after since.
func (r *hitRepository) CountByPostItemSince(ctx context.Context, postIDs []int64, since int64) ([]ItemClicks, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}

	var rows []ItemClicks
	if err := r.db.WithContext(ctx).
		Table("redirects AS r").
		Select("r.post_id AS post_id, r.item_idx AS item_idx, COUNT(h.id) AS clicks").
		Joins("LEFT JOIN redirect_hits AS h ON h.redirect_id = r.id AND h.ts >= ?", since).
		Where("r.post_id IN ?", postIDs).
		Group("r.post_id, r.item_idx").
		Order("r.post_id, r.item_idx").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// EachRow streams matching hits ordered by timestamp and returns how many
// rows were passed to fn. An error from fn stops the iteration.
func (r *hitRepository) EachRow(ctx context.Context, filter HitFilter, fn func(model.HitRow) error) (int, error) {
	q := r.db.WithContext(ctx).
		Table("redirect_hits AS h").
		Select("h.ts AS ts, r.post_id AS post_id, r.item_idx AS item_idx, h.ip AS ip, " +
			"h.ua AS ua, h.referer AS referer, r.token AS token, r.target_url AS target_url").
		Joins("JOIN redirects AS r ON r.id = h.redirect_id").
		Where("h.ts BETWEEN ? AND ?", filter.From, filter.To)
	if filter.PostID != nil {
		q = q.Where("r.post_id = ?", *filter.PostID)
	}

	rows, err := q.Order("h.ts ASC, h.id ASC").Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var row model.HitRow
		if err := r.db.ScanRows(rows, &row); err != nil {
			return n, err
		}
		if err := fn(row); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}
