package store

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
	"gorm.io/gorm"
)

type Job interface {
	Get(ctx context.Context, address string) (*model.Job, error)
	GetByOfferID(ctx context.Context, offerID uuid.UUID) (*model.Job, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	// Update rewrites the listing and refund columns of a job reference.
	Update(ctx context.Context, job model.Job) (*model.Job, error)
	Query(ctx context.Context, filter *JobQueryFilter) iter.Seq2[model.Job, error]
	InitialMigration(ctx context.Context) error
}

type JobStore struct {
	db *gorm.DB
}

var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) InitialMigration(ctx context.Context) error {
	return j.getDB(ctx).AutoMigrate(&model.Job{})
}

func (j *JobStore) Get(ctx context.Context, address string) (*model.Job, error) {
	job := &model.Job{Address: address}
	if err := j.getDB(ctx).WithContext(ctx).First(job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return job, nil
}

func (j *JobStore) GetByOfferID(ctx context.Context, offerID uuid.UUID) (*model.Job, error) {
	var job model.Job
	if err := j.getDB(ctx).WithContext(ctx).Where("offer_id = ?", offerID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (j *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if err := j.getDB(ctx).WithContext(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &job, nil
}

func (j *JobStore) Update(ctx context.Context, job model.Job) (*model.Job, error) {
	result := j.getDB(ctx).WithContext(ctx).Model(&job).
		Select("worker", "public", "refund_tx_id", "updated_at").
		Updates(&job)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return &job, nil
}

func (j *JobStore) Query(ctx context.Context, filter *JobQueryFilter) iter.Seq2[model.Job, error] {
	return paginate(ctx, j.getDB(ctx), (*BaseQuerier)(filter), "address", func(job model.Job) any { return job.Address })
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return j.db
}
