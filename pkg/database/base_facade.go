package database

import (
	"gorm.io/gorm"

	"github.com/gweizero/engine/pkg/sql"
)

// BaseFacade is the base structure for all facades, providing DB access
// capability.
type BaseFacade struct {
	db *gorm.DB // nil means using the default pool
}

// getDB retrieves the facade's database connection.
func (f *BaseFacade) getDB() *gorm.DB {
	if f.db != nil {
		return f.db
	}
	return sql.GetDefaultDB()
}

// withDB returns a new BaseFacade bound to the given connection.
func (f *BaseFacade) withDB(db *gorm.DB) BaseFacade {
	return BaseFacade{db: db}
}
