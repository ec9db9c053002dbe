// Package history records executed commands.
package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Command is one executed shell command and its result.
type Command struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Instruction string    `gorm:"type:text" json:"instruction"`
	Command     string    `gorm:"type:text" json:"command"`
	Output      string    `gorm:"type:text" json:"output"`
	Status      string    `gorm:"size:32" json:"status"`
	Model       string    `gorm:"size:64" json:"model"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Recorder persists commands.
type Recorder interface {
	Record(ctx context.Context, cmd Command) error
	Recent(ctx context.Context, limit int) ([]Command, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, Command) error { return nil }

func (Nop) Recent(context.Context, int) ([]Command, error) { return nil, nil }

// GormRecorder stores commands in a relational database.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder migrates the command table and returns a recorder. A nil db yields a Nop.
func NewGormRecorder(db *gorm.DB) (Recorder, error) {
	if db == nil {
		return Nop{}, nil
	}
	if err := db.AutoMigrate(&Command{}); err != nil {
		return nil, fmt.Errorf("migrate command history: %w", err)
	}
	return &GormRecorder{db: db}, nil
}

func (r *GormRecorder) Record(ctx context.Context, cmd Command) error {
	if err := r.db.WithContext(ctx).Create(&cmd).Error; err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// Recent returns up to limit commands, newest first.
func (r *GormRecorder) Recent(ctx context.Context, limit int) ([]Command, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Command
	err := r.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return out, nil
}
