package store

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
	"gorm.io/gorm"
)

var conversionMutableColumns = []string{
	"version", "kind", "state", "tx_id", "job_address", "attempts", "last_error", "submitted_at", "confirmed_at", "updated_at",
}

type Conversion interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error)
	Create(ctx context.Context, conversion model.Conversion) (*model.Conversion, error)
	CompareAndSwap(ctx context.Context, expectedVersion int64, conversion *model.Conversion) (bool, error)
	// Delete removes the marker only if nobody touched it since it was read.
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error)
	Query(ctx context.Context, filter *ConversionQueryFilter) iter.Seq2[model.Conversion, error]
	InitialMigration(ctx context.Context) error
}

type ConversionStore struct {
	db *gorm.DB
}

var _ Conversion = (*ConversionStore)(nil)

func NewConversionStore(db *gorm.DB) Conversion {
	return &ConversionStore{db: db}
}

func (c *ConversionStore) InitialMigration(ctx context.Context) error {
	return c.getDB(ctx).AutoMigrate(&model.Conversion{})
}

func (c *ConversionStore) Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	conversion := &model.Conversion{ID: id}
	if err := c.getDB(ctx).WithContext(ctx).First(conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return conversion, nil
}

func (c *ConversionStore) Create(ctx context.Context, conversion model.Conversion) (*model.Conversion, error) {
	conversion.Version = 1
	if err := c.getDB(ctx).WithContext(ctx).Create(&conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &conversion, nil
}

func (c *ConversionStore) CompareAndSwap(ctx context.Context, expectedVersion int64, conversion *model.Conversion) (bool, error) {
	next := *conversion
	next.Version = expectedVersion + 1
	next.UpdatedAt = c.db.NowFunc()

	result := c.getDB(ctx).WithContext(ctx).Model(&next).
		Where("version = ?", expectedVersion).
		Select(conversionMutableColumns).
		Updates(&next)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*conversion = next
	return true, nil
}

func (c *ConversionStore) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error) {
	result := c.getDB(ctx).WithContext(ctx).
		Where("id = ? AND version = ?", id, expectedVersion).
		Delete(&model.Conversion{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (c *ConversionStore) Query(ctx context.Context, filter *ConversionQueryFilter) iter.Seq2[model.Conversion, error] {
	return paginate(ctx, c.getDB(ctx), (*BaseQuerier)(filter), "id", func(conversion model.Conversion) any { return conversion.ID })
}

func (c *ConversionStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return c.db
}
