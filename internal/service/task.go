package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/events"
	"github.com/taskbridge/marketplace/internal/service/mappers"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/internal/store/model"
	"go.uber.org/zap"
)

type TaskService struct {
	store    store.Store
	producer *events.EventProducer
}

func NewTaskService(store store.Store, producer *events.EventProducer) *TaskService {
	return &TaskService{store: store, producer: producer}
}

func (t *TaskService) CreateTask(ctx context.Context, form mappers.TaskCreateForm) (*model.Task, error) {
	task, err := t.store.Task().Create(ctx, form.ToTask())
	if err != nil {
		return nil, err
	}

	zap.S().Named("task_service").Infow("task created", "task_id", task.ID, "worker", task.Worker)
	t.publish(ctx, events.TaskCreatedKind, *task)

	return task, nil
}

func (t *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	task, err := t.store.Task().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrTaskNotFound(id)
		}
		return nil, err
	}
	return task, nil
}

// ListOpenTasks returns the browsable tasks. A task disappears from the list as soon as an
// offer is made on it.
func (t *TaskService) ListOpenTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	storeFilter := store.NewTaskQueryFilter().ByStatus(model.TaskStatusOpen)
	if filter.Tag != "" {
		storeFilter = storeFilter.ByTag(filter.Tag)
	}
	if filter.Worker != "" {
		storeFilter = storeFilter.ByWorker(filter.Worker)
	}

	tasks := make([]model.Task, 0)
	for task, err := range t.store.Task().Query(ctx, storeFilter) {
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		if filter.Limit > 0 && len(tasks) == filter.Limit {
			break
		}
	}
	return tasks, nil
}

// DeleteTask removes an open task on behalf of its worker.
func (t *TaskService) DeleteTask(ctx context.Context, id uuid.UUID, worker string) error {
	task, err := t.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task.Worker != worker {
		return NewErrNotAuthorized(worker, "delete task "+id.String())
	}
	if task.Status != model.TaskStatusOpen {
		return NewErrTaskNotOpen(id, task.Status)
	}

	deleted, err := t.store.Task().Delete(ctx, id, task.Version)
	if err != nil {
		return err
	}
	if !deleted {
		// an offer won the race
		return NewErrTaskNotOpen(id, model.TaskStatusOffered)
	}

	zap.S().Named("task_service").Infow("task deleted", "task_id", id, "worker", worker)
	t.publish(ctx, events.TaskDeletedKind, *task)

	return nil
}

func (t *TaskService) publish(ctx context.Context, kind string, task model.Task) {
	ev := events.TaskEvent{
		TaskID: task.ID.String(),
		Worker: task.Worker,
		Status: string(task.Status),
		Tags:   task.Tags,
	}
	if err := t.producer.Publish(ctx, kind, ev); err != nil {
		zap.S().Named("task_service").Errorw("failed to write event", "error", err, "event_kind", kind)
	}
}
