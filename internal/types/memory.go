package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MemoryKindGlobal     = "global"
	MemoryKindChat       = "chat"
	MemoryKindUserFact   = "user_fact"
	MemoryKindPreference = "preference"
)

// ValidMemoryKind reports whether kind is one of the recognized memory kinds.
func ValidMemoryKind(kind string) bool {
	switch kind {
	case MemoryKindGlobal, MemoryKindChat, MemoryKindUserFact, MemoryKindPreference:
		return true
	}
	return false
}

type Memory struct {
	gorm.Model
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	ChatID     *uuid.UUID     `gorm:"type:uuid;index;column:chat_id" json:"chat_id,omitempty"`
	Chat       *Chat          `gorm:"constraint:OnDelete:SET NULL;foreignKey:ChatID;references:ID" json:"-"`
	Kind       string         `gorm:"not null;index;column:kind" json:"kind"`
	Content    string         `gorm:"not null;column:content" json:"content"`
	Importance float64        `gorm:"not null;default:0.5;column:importance" json:"importance"`
	Embedding  datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Memory) TableName() string {
	return "memory"
}

func (m *Memory) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
