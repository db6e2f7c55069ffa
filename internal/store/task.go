package store

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
	"gorm.io/gorm"
)

var taskMutableColumns = []string{"version", "name", "description", "tags", "status", "offer_id", "updated_at"}

type Task interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Create(ctx context.Context, task model.Task) (*model.Task, error)
	// CompareAndSwap replaces the task if its stored version is still expectedVersion.
	// On success task.Version holds the new version.
	CompareAndSwap(ctx context.Context, expectedVersion int64, task *model.Task) (bool, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error)
	Query(ctx context.Context, filter *TaskQueryFilter) iter.Seq2[model.Task, error]
	InitialMigration(ctx context.Context) error
}

type TaskStore struct {
	db *gorm.DB
}

// Make sure we conform to Task interface
var _ Task = (*TaskStore)(nil)

func NewTaskStore(db *gorm.DB) Task {
	return &TaskStore{db: db}
}

func (t *TaskStore) InitialMigration(ctx context.Context) error {
	return t.getDB(ctx).AutoMigrate(&model.Task{})
}

func (t *TaskStore) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	task := model.NewTaskFromID(id)
	if err := t.getDB(ctx).WithContext(ctx).First(task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return task, nil
}

func (t *TaskStore) Create(ctx context.Context, task model.Task) (*model.Task, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Version = 1

	if err := t.getDB(ctx).WithContext(ctx).Create(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &task, nil
}

func (t *TaskStore) CompareAndSwap(ctx context.Context, expectedVersion int64, task *model.Task) (bool, error) {
	next := *task
	next.Version = expectedVersion + 1
	next.UpdatedAt = t.db.NowFunc()

	result := t.getDB(ctx).WithContext(ctx).Model(&next).
		Where("version = ?", expectedVersion).
		Select(taskMutableColumns).
		Updates(&next)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*task = next
	return true, nil
}

func (t *TaskStore) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error) {
	result := t.getDB(ctx).WithContext(ctx).
		Where("id = ? AND version = ?", id, expectedVersion).
		Delete(&model.Task{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (t *TaskStore) Query(ctx context.Context, filter *TaskQueryFilter) iter.Seq2[model.Task, error] {
	return paginate(ctx, t.getDB(ctx), (*BaseQuerier)(filter), "id", func(task model.Task) any { return task.ID })
}

func (t *TaskStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return t.db
}
