package models

import (
	"time"

	"gorm.io/gorm"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizArchived  QuizStatus = "archived"
)

type GradingStrategy string

const (
	GradingHighest    GradingStrategy = "highest"
	GradingMostRecent GradingStrategy = "most_recent"
	GradingFirst      GradingStrategy = "first"
)

// Quiz is the configuration owner for attempts. It is never mutated by the
// attempt engine.
type Quiz struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	ClassroomID uint       `json:"classroom_id" gorm:"not null;index"`
	Status      QuizStatus `json:"status" gorm:"default:draft;index" validate:"omitempty,oneof=draft published archived"`

	// 0 means unlimited
	MaxAttempts     int             `json:"max_attempts" gorm:"default:0" validate:"min=0,max=100"`
	GradingStrategy GradingStrategy `json:"grading_strategy" gorm:"default:highest" validate:"omitempty,oneof=highest most_recent first"`
	QuestionCount   int             `json:"question_count" gorm:"default:0"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Quiz) TableName() string {
	return "quizzes"
}
