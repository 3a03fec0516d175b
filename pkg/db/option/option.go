package option

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// QueryOption customizes a generic repository query.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithLimit(limit int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// WithSortBy orders by a whitelisted column; unknown directions fall back to ASC.
func WithSortBy(column, direction string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if column == "" {
			return db
		}
		if direction != "desc" && direction != "DESC" {
			direction = "ASC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

// WithWhere appends a raw condition, e.g. WithWhere("archived_at IS NULL").
func WithWhere(query string, args ...any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

// WithIDAfter implements keyset pagination on snowflake ids.
func WithIDAfter(id snowflake.ID) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if id <= 0 {
			return db
		}
		return db.Where("id > ?", id)
	})
}
