package specification

import "gorm.io/gorm"

// Specification narrows a repository query. The in-memory repositories
// evaluate the same values without a database.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
