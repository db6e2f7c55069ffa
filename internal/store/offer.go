package store

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
	"gorm.io/gorm"
)

// amounts, mode and duration are fixed once the offer exists and are never written again
var offerMutableColumns = []string{
	"version", "status", "escrow_address", "escrow_tx_id", "job_address", "declined_at", "surfaced_at", "updated_at",
}

type Offer interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Offer, error)
	Create(ctx context.Context, offer model.Offer) (*model.Offer, error)
	CompareAndSwap(ctx context.Context, expectedVersion int64, offer *model.Offer) (bool, error)
	Query(ctx context.Context, filter *OfferQueryFilter) iter.Seq2[model.Offer, error]
	InitialMigration(ctx context.Context) error
}

type OfferStore struct {
	db *gorm.DB
}

var _ Offer = (*OfferStore)(nil)

func NewOfferStore(db *gorm.DB) Offer {
	return &OfferStore{db: db}
}

func (o *OfferStore) InitialMigration(ctx context.Context) error {
	return o.getDB(ctx).AutoMigrate(&model.Offer{})
}

func (o *OfferStore) Get(ctx context.Context, id uuid.UUID) (*model.Offer, error) {
	offer := &model.Offer{ID: id}
	if err := o.getDB(ctx).WithContext(ctx).First(offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return offer, nil
}

func (o *OfferStore) Create(ctx context.Context, offer model.Offer) (*model.Offer, error) {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	offer.Version = 1

	if err := o.getDB(ctx).WithContext(ctx).Create(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &offer, nil
}

func (o *OfferStore) CompareAndSwap(ctx context.Context, expectedVersion int64, offer *model.Offer) (bool, error) {
	next := *offer
	next.Version = expectedVersion + 1
	next.UpdatedAt = o.db.NowFunc()

	result := o.getDB(ctx).WithContext(ctx).Model(&next).
		Where("version = ?", expectedVersion).
		Select(offerMutableColumns).
		Updates(&next)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*offer = next
	return true, nil
}

func (o *OfferStore) Query(ctx context.Context, filter *OfferQueryFilter) iter.Seq2[model.Offer, error] {
	return paginate(ctx, o.getDB(ctx), (*BaseQuerier)(filter), "id", func(offer model.Offer) any { return offer.ID })
}

func (o *OfferStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return o.db
}
