package db

import (
	"context"

	"gorm.io/gorm"
)

// WithTx runs fn inside one transaction. Every write in fn commits together
// or, when fn returns an error or panics, rolls back together. The error
// from fn is returned as is.
func WithTx(ctx context.Context, gdb *gorm.DB, fn func(tx *gorm.DB) error) error {
	return gdb.WithContext(ctx).Transaction(fn)
}
