package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.LessonRecord{},
		&types.LessonMediaRecord{},
		&types.MaterialChunkRecord{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestMaterialChunkRepoCountAndFetch(t *testing.T) {
	db := newTestDB(t)
	repo := NewMaterialChunkRepo(db, newTestLogger(t))
	ctx := context.Background()

	chunks := []*types.MaterialChunkRecord{
		{ID: uuid.New(), CourseID: "course-1", ChunkKey: "c1-a", Text: "alpha"},
		{ID: uuid.New(), CourseID: "course-1", ChunkKey: "c1-b", Text: "beta"},
		{ID: uuid.New(), CourseID: "course-2", ChunkKey: "c2-a", Text: "gamma"},
	}
	if _, err := repo.Create(ctx, nil, chunks); err != nil {
		t.Fatalf("create chunks: %v", err)
	}

	count, err := repo.CountByCourseID(ctx, nil, "course-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("course-1 chunk count: want=2 got=%d", count)
	}

	got, err := repo.GetByChunkKeys(ctx, nil, []string{"c1-b", "c2-a"})
	if err != nil {
		t.Fatalf("get by keys: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("fetched chunks: want=2 got=%d", len(got))
	}

	empty, err := repo.GetByChunkKeys(ctx, nil, nil)
	if err != nil {
		t.Fatalf("get by empty keys: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty key query: want=0 got=%d", len(empty))
	}
}

func TestLessonMediaRepoUpsertReplaces(t *testing.T) {
	db := newTestDB(t)
	log := newTestLogger(t)
	lessons := NewLessonRepo(db, log)
	media := NewLessonMediaRepo(db, log)
	ctx := context.Background()

	lesson, err := lessons.Create(ctx, nil, &types.LessonRecord{
		ID:       uuid.New(),
		CourseID: "course-1",
		UserID:   "user-1",
		Topic:    "Backpropagation",
		Modality: string(types.ModalitySlides),
	})
	if err != nil {
		t.Fatalf("create lesson: %v", err)
	}

	first := &types.LessonMediaRecord{
		ID:       uuid.New(),
		LessonID: lesson.ID,
		Mode:     "podcast",
		MediaURL: "https://media.example/a.mp3",
		Duration: 120,
	}
	if _, err := media.Upsert(ctx, nil, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &types.LessonMediaRecord{
		ID:       uuid.New(),
		LessonID: lesson.ID,
		Mode:     "podcast",
		MediaURL: "https://media.example/b.mp3",
		Duration: 95,
	}
	if _, err := media.Upsert(ctx, nil, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := media.GetByLessonID(ctx, nil, lesson.ID)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("media rows after upsert: want=1 got=%d", len(rows))
	}
	if rows[0].MediaURL != "https://media.example/b.mp3" {
		t.Fatalf("media url after upsert: got=%q", rows[0].MediaURL)
	}
}
