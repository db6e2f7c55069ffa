package store

import (
	"context"

	"github.com/taskbridge/marketplace/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Task() Task
	Offer() Offer
	Conversion() Conversion
	Job() Job
	InitialMigration(ctx context.Context) error
	Statistics(ctx context.Context) (model.MarketplaceStats, error)
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db         *gorm.DB
	task       Task
	offer      Offer
	conversion Conversion
	job        Job
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		task:       NewTaskStore(db),
		offer:      NewOfferStore(db),
		conversion: NewConversionStore(db),
		job:        NewJobStore(db),
		db:         db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Task() Task {
	return s.task
}

func (s *DataStore) Offer() Offer {
	return s.offer
}

func (s *DataStore) Conversion() Conversion {
	return s.conversion
}

func (s *DataStore) Job() Job {
	return s.job
}

// InitialMigration creates the schema from the models. Production databases are migrated
// with the versioned sql files instead.
func (s *DataStore) InitialMigration(ctx context.Context) error {
	if err := s.Task().InitialMigration(ctx); err != nil {
		return err
	}
	if err := s.Offer().InitialMigration(ctx); err != nil {
		return err
	}
	if err := s.Conversion().InitialMigration(ctx); err != nil {
		return err
	}
	return s.Job().InitialMigration(ctx)
}

type statusCount struct {
	Status string
	Total  int64
}

func (s *DataStore) Statistics(ctx context.Context) (model.MarketplaceStats, error) {
	stats := model.NewMarketplaceStats()
	db := s.db.WithContext(ctx)

	var rows []statusCount
	if err := db.Model(&model.Task{}).Select("status, count(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.TasksByStatus[model.TaskStatus(r.Status)] = r.Total
	}

	rows = nil
	if err := db.Model(&model.Offer{}).Select("status, count(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.OffersByStatus[model.OfferStatus(r.Status)] = r.Total
	}

	rows = nil
	if err := db.Model(&model.Conversion{}).Select("state AS status, count(*) AS total").Group("state").Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.ConversionsByState[model.ConversionState(r.Status)] = r.Total
	}

	if err := db.Model(&model.Offer{}).
		Where("status = ? AND escrow_address <> ''", model.OfferStatusDeclined).
		Count(&stats.PendingDispositions).Error; err != nil {
		return stats, err
	}

	if err := db.Model(&model.Job{}).Count(&stats.Jobs).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
