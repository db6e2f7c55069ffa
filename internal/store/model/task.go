package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "OPEN"
	TaskStatusOffered   TaskStatus = "OFFERED"
	TaskStatusConverted TaskStatus = "CONVERTED"
)

type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Version     int64      `json:"version" gorm:"not null;default:1"`
	Name        string     `json:"name" gorm:"not null"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags" gorm:"serializer:json;type:text"`
	Worker      string     `json:"worker" gorm:"not null;index"`
	Status      TaskStatus `json:"status" gorm:"not null;index"`
	OfferID     *uuid.UUID `json:"offer_id,omitempty" gorm:"type:uuid"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type TaskList []Task

func (t Task) String() string {
	val, _ := json.Marshal(t)
	return string(val)
}

func NewTaskFromID(id uuid.UUID) *Task {
	return &Task{ID: id}
}
