package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

type LessonMediaRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, media *types.LessonMediaRecord) (*types.LessonMediaRecord, error)
	GetByLessonID(ctx context.Context, tx *gorm.DB, lessonID uuid.UUID) ([]*types.LessonMediaRecord, error)
}

type lessonMediaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonMediaRepo(db *gorm.DB, baseLog *logger.Logger) LessonMediaRepo {
	repoLog := baseLog.With("repo", "LessonMediaRepo")
	return &lessonMediaRepo{db: db, log: repoLog}
}

// Upsert writes the media row keyed by (lesson_id, mode), replacing an
// existing row for the same key.
func (r *lessonMediaRepo) Upsert(ctx context.Context, tx *gorm.DB, media *types.LessonMediaRecord) (*types.LessonMediaRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lesson_id"}, {Name: "mode"}},
			DoUpdates: clause.AssignmentColumns([]string{"media_url", "duration", "metadata", "updated_at"}),
		}).
		Create(media).Error; err != nil {
		return nil, err
	}
	return media, nil
}

func (r *lessonMediaRepo) GetByLessonID(ctx context.Context, tx *gorm.DB, lessonID uuid.UUID) ([]*types.LessonMediaRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LessonMediaRecord
	if err := transaction.WithContext(ctx).
		Where("lesson_id = ?", lessonID).
		Order("mode ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
