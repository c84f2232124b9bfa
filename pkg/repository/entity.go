package repository

// Entity is the minimal contract repository entities must implement.
// GORM models satisfy it with their table name and primary key value.
type Entity interface {
	// TableName returns the database table name for this entity
	// This should match GORM's table naming convention
	TableName() string

	// GetPrimaryKeyValue returns the actual value of the primary key
	// Used for cache invalidation and dependency tracking
	GetPrimaryKeyValue() interface{}
}
