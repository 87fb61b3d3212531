package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/sifan077/clicktrail/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrRedirectNotFound signals that no redirect target carries the token.
	ErrRedirectNotFound = errors.New("redirect not found")
	// ErrTokenConflict signals that the token is already bound to another target.
	ErrTokenConflict = errors.New("token already exists")
)

// RedirectRepository defines the data access contract for redirect targets.
type RedirectRepository interface {
	// Create inserts a target. Must fail with ErrTokenConflict if the token is taken.
	Create(ctx context.Context, target *model.RedirectTarget) error
	GetByToken(ctx context.Context, token string) (*model.RedirectTarget, error)
	ListByPost(ctx context.Context, postID int64) ([]model.RedirectTarget, error)
	ListTokens(ctx context.Context) ([]string, error)
}

type redirectRepository struct {
	db *gorm.DB
}

// NewRedirectRepository returns a GORM-backed RedirectRepository.
func NewRedirectRepository(db *gorm.DB) RedirectRepository {
	return &redirectRepository{db: db}
}

// Create runs the insert in its own (nested) transaction so a token conflict
// inside an enclosing transaction only rolls back to the savepoint.
func (r *redirectRepository) Create(ctx context.Context, target *model.RedirectTarget) error {
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(target).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenConflict
		}
		return err
	}
	return nil
}

func (r *redirectRepository) GetByToken(ctx context.Context, token string) (*model.RedirectTarget, error) {
	var target model.RedirectTarget
	if err := conn(ctx, r.db).Where("token = ?", token).First(&target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedirectNotFound
		}
		return nil, err
	}
	return &target, nil
}

func (r *redirectRepository) ListByPost(ctx context.Context, postID int64) ([]model.RedirectTarget, error) {
	var targets []model.RedirectTarget
	if err := conn(ctx, r.db).
		Where("post_id = ?", postID).
		Order("item_idx ASC").
		Find(&targets).Error; err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *redirectRepository) ListTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if err := conn(ctx, r.db).
		Model(&model.RedirectTarget{}).
		Pluck("token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// isUniqueViolation relies on gorm's error translation first; drivers that
// do not translate are matched by message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
