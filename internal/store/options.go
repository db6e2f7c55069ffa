package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func (b *BaseQuerier) apply(tx *gorm.DB) *gorm.DB {
	if b == nil {
		return tx
	}
	for _, fn := range b.QueryFn {
		tx = fn(tx)
	}
	return tx
}

type TaskQueryFilter BaseQuerier

func NewTaskQueryFilter() *TaskQueryFilter {
	return &TaskQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *TaskQueryFilter) ByStatus(statuses ...model.TaskStatus) *TaskQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return f
}

func (f *TaskQueryFilter) ByWorker(worker string) *TaskQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("worker = ?", worker)
	})
	return f
}

// ByTag matches tasks carrying the tag. Tags are stored as a json array of strings.
func (f *TaskQueryFilter) ByTag(tag string) *TaskQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("tags LIKE ?", "%"+jsonQuote(tag)+"%")
	})
	return f
}

type OfferQueryFilter BaseQuerier

func NewOfferQueryFilter() *OfferQueryFilter {
	return &OfferQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// ByParty matches offers where the party is either the employer or the worker.
func (f *OfferQueryFilter) ByParty(party string) *OfferQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(employer = ? OR worker = ?)", party, party)
	})
	return f
}

func (f *OfferQueryFilter) ByTaskID(id uuid.UUID) *OfferQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("task_id = ?", id)
	})
	return f
}

func (f *OfferQueryFilter) ByStatus(statuses ...model.OfferStatus) *OfferQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return f
}

// Funded keeps offers whose value is already locked on the ledger.
func (f *OfferQueryFilter) Funded() *OfferQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("escrow_address <> ''")
	})
	return f
}

func (f *OfferQueryFilter) DeclinedBefore(t time.Time) *OfferQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("declined_at < ?", t.UTC())
	})
	return f
}

// NotSurfacedSince keeps offers never surfaced or surfaced before t.
func (f *OfferQueryFilter) NotSurfacedSince(t time.Time) *OfferQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(surfaced_at IS NULL OR surfaced_at < ?)", t.UTC())
	})
	return f
}

type ConversionQueryFilter BaseQuerier

func NewConversionQueryFilter() *ConversionQueryFilter {
	return &ConversionQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *ConversionQueryFilter) ByState(states ...model.ConversionState) *ConversionQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("state IN ?", states)
	})
	return f
}

func (f *ConversionQueryFilter) ByKind(kinds ...model.ConversionKind) *ConversionQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("kind IN ?", kinds)
	})
	return f
}

func (f *ConversionQueryFilter) UpdatedBefore(t time.Time) *ConversionQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("updated_at < ?", t.UTC())
	})
	return f
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *JobQueryFilter) ByParty(party string) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(employer = ? OR worker = ?)", party, party)
	})
	return f
}

func (f *JobQueryFilter) Public() *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("public = ?", true)
	})
	return f
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
