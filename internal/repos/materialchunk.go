package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

type MaterialChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.MaterialChunkRecord) ([]*types.MaterialChunkRecord, error)
	GetByChunkKeys(ctx context.Context, tx *gorm.DB, keys []string) ([]*types.MaterialChunkRecord, error)
	CountByCourseID(ctx context.Context, tx *gorm.DB, courseID string) (int64, error)
}

type materialChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMaterialChunkRepo(db *gorm.DB, baseLog *logger.Logger) MaterialChunkRepo {
	repoLog := baseLog.With("repo", "MaterialChunkRepo")
	return &materialChunkRepo{db: db, log: repoLog}
}

func (r *materialChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.MaterialChunkRecord) ([]*types.MaterialChunkRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.MaterialChunkRecord{}, nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *materialChunkRepo) GetByChunkKeys(ctx context.Context, tx *gorm.DB, keys []string) ([]*types.MaterialChunkRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MaterialChunkRecord
	if len(keys) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_key IN ?", keys).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *materialChunkRepo) CountByCourseID(ctx context.Context, tx *gorm.DB, courseID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.MaterialChunkRecord{}).
		Where("course_id = ?", courseID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
