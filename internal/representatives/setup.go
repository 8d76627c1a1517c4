package representatives

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates the three tables, their indexes and the
// cascading foreign keys of rep_geography_map.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&Geography{},
		&Representative{},
		&RepGeographyMap{},
	); err != nil {
		return fmt.Errorf("auto-migrate representatives: %w", err)
	}

	// The column default lives in the database only. A gorm default tag would
	// turn an explicit false into true on insert.
	if err := gdb.Exec(`ALTER TABLE representatives ALTER COLUMN is_active SET DEFAULT true`).Error; err != nil {
		return fmt.Errorf("set is_active default: %w", err)
	}

	if err := gdb.Exec(`
		CREATE INDEX IF NOT EXISTS idx_representatives_name_lower
		ON representatives (LOWER(name));
	`).Error; err != nil {
		return fmt.Errorf("create idx_representatives_name_lower: %w", err)
	}
	return nil
}
