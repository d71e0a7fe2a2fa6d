package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LessonRecord is the persisted row for a generated lesson.
type LessonRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID  string         `gorm:"column:course_id;not null;index" json:"course_id"`
	UserID    string         `gorm:"column:user_id;not null;index" json:"user_id"`
	Topic     string         `gorm:"column:topic;not null" json:"topic"`
	Modality  string         `gorm:"column:modality;not null" json:"modality"`
	Style     string         `gorm:"column:style" json:"style"`
	Tier      int            `gorm:"column:tier" json:"tier"`
	Content   datatypes.JSON `gorm:"type:jsonb;column:content" json:"content"`
	Sources   datatypes.JSON `gorm:"type:jsonb;column:sources" json:"sources"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LessonRecord) TableName() string {
	return "lesson"
}

// LessonMediaRecord is the generated audio-visual record, upserted keyed
// by (lesson, mode).
type LessonMediaRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LessonID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_lesson_media_mode,unique" json:"lesson_id"`
	Mode      string         `gorm:"column:mode;not null;index:idx_lesson_media_mode,unique" json:"mode"`
	MediaURL  string         `gorm:"column:media_url" json:"media_url"`
	Duration  float64        `gorm:"column:duration" json:"duration"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LessonMediaRecord) TableName() string {
	return "lesson_media"
}

// MaterialChunkRecord is one indexed chunk of course material. The chunk
// text lives here; the embedding lives in the vector store under the same ID.
type MaterialChunkRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID  string         `gorm:"column:course_id;not null;index" json:"course_id"`
	ChunkKey  string         `gorm:"column:chunk_key;not null;uniqueIndex" json:"chunk_key"`
	Text      string         `gorm:"column:text;not null" json:"text"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (MaterialChunkRecord) TableName() string {
	return "material_chunk"
}
