package store

import (
	"context"
	"iter"

	"gorm.io/gorm"
)

const defaultPageSize = 100

// paginate returns a lazy sequence over the rows matched by filter, read in pages ordered by
// keyColumn. No connection is held while the consumer handles a page. Each iteration of the
// returned sequence starts again from the first row.
func paginate[T any](ctx context.Context, db *gorm.DB, filter *BaseQuerier, keyColumn string, key func(T) any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var last any
		for {
			var page []T

			tx := filter.apply(db.WithContext(ctx).Model(new(T)))
			if last != nil {
				tx = tx.Where(keyColumn+" > ?", last)
			}
			if err := tx.Order(keyColumn).Limit(defaultPageSize).Find(&page).Error; err != nil {
				var zero T
				yield(zero, err)
				return
			}

			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}

			if len(page) < defaultPageSize {
				return
			}
			last = key(page[len(page)-1])
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	items := make([]T, 0)
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
